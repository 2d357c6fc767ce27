package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/internal/infrastructure/metrics"
)

// scriptedFetcher returns the scripted outcome for each successive call.
type scriptedFetcher struct {
	source string
	cats   []string
	script []scriptedPage
	calls  int
}

type scriptedPage struct {
	entries []*domain.RawLedgerEntry
	more    bool
	err     error
}

func (s *scriptedFetcher) Source() string       { return s.source }
func (s *scriptedFetcher) Categories() []string { return s.cats }

func (s *scriptedFetcher) FetchPage(ctx context.Context, wallet, category string, page int, from, to *time.Time) ([]*domain.RawLedgerEntry, bool, error) {
	if s.calls >= len(s.script) {
		return nil, false, errors.New("script exhausted")
	}
	out := s.script[s.calls]
	s.calls++
	return out.entries, out.more, out.err
}

func entry(id string) *domain.RawLedgerEntry {
	return &domain.RawLedgerEntry{
		ID:        id,
		Source:    "subscan",
		Category:  "transfers",
		Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Mode:      domain.ModeAccount,
		Unit:      "DOT",
		Delta:     decimal.NewFromInt(1),
	}
}

func transientErr() error {
	return &domain.SourceError{Kind: domain.KindTransient, Source: "subscan", Category: "transfers", Err: errors.New("upstream 502")}
}

func TestOrchestrator_PaginatesToEnd(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{entries: []*domain.RawLedgerEntry{entry("a"), entry("b")}, more: true},
			{entries: []*domain.RawLedgerEntry{entry("c")}, more: false},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partial {
		t.Error("complete pagination must not be partial")
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if fetcher.calls != 2 {
		t.Errorf("expected 2 page calls, got %d", fetcher.calls)
	}
}

func TestOrchestrator_RetriesTransientFailure(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{err: transientErr()},
			{err: transientErr()},
			{entries: []*domain.RawLedgerEntry{entry("a")}, more: false},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err != nil {
		t.Fatalf("expected recovery within the retry budget, got %v", err)
	}
	if partial || len(entries) != 1 {
		t.Fatalf("expected 1 entry after retries, partial=false; got %d, partial=%v", len(entries), partial)
	}
	if fetcher.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fetcher.calls)
	}
}

func TestOrchestrator_KeepsEarlierPagesWhenRetriesExhaust(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{entries: []*domain.RawLedgerEntry{entry("a"), entry("b")}, more: true},
			{err: transientErr()},
			{err: transientErr()},
			{err: transientErr()},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if !partial {
		t.Error("a failure after landed pages must be partial")
	}
	if len(entries) != 2 {
		t.Fatalf("landed pages must be kept, got %d entries", len(entries))
	}
	if fetcher.calls != 4 {
		t.Errorf("expected 1 success + 3 attempts, got %d", fetcher.calls)
	}
}

func TestOrchestrator_NotFoundIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{err: domain.NewNotFound("subscan", "transfers")},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if partial || len(entries) != 0 {
		t.Error("not-found on the first page must yield nothing")
	}
	if fetcher.calls != 1 {
		t.Errorf("not-found must not be retried, got %d attempts", fetcher.calls)
	}
}

func TestOrchestrator_DataAnomalyIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{err: &domain.SourceError{Kind: domain.KindDataAnomaly, Source: "subscan", Category: "transfers", Err: errors.New("garbled payload")}},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	_, _, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if domain.KindOf(err) != domain.KindDataAnomaly {
		t.Fatalf("expected data anomaly, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("a data anomaly is an answer, not transport trouble; got %d attempts", fetcher.calls)
	}
}

func TestOrchestrator_RateLimitCoolsDownThenRetries(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{err: &domain.SourceError{Kind: domain.KindRateLimited, Source: "subscan", Category: "transfers", Err: errors.New("429")}},
			{entries: []*domain.RawLedgerEntry{entry("a")}, more: false},
		},
	}

	budget := NewFixedDelayBudget(0, 20*time.Millisecond)
	o := NewOrchestrator(fetcher, budget, zerolog.Nop())

	started := time.Now()
	entries, _, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if elapsed := time.Since(started); elapsed < 20*time.Millisecond {
		t.Errorf("expected the full cooldown before the retry, elapsed %v", elapsed)
	}
}

func TestOrchestrator_PageCapReturnsTruncatedResult(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{entries: []*domain.RawLedgerEntry{entry("a")}, more: true},
			{entries: []*domain.RawLedgerEntry{entry("b")}, more: true},
			{entries: []*domain.RawLedgerEntry{entry("c")}, more: true},
		},
	}

	o := NewOrchestrator(fetcher, nil, zerolog.Nop(), WithMaxPages(2))

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !partial {
		t.Error("hitting the page cap must report partial")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 pages before the cap, got %d entries", len(entries))
	}
}

func TestOrchestrator_ContextCancellationStopsFetch(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{err: transientErr()},
			{err: transientErr()},
			{err: transientErr()},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(fetcher, nil, zerolog.Nop())

	_, _, err := o.Fetch(ctx, "w1", "transfers", nil, nil)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestFixtureFetcherThroughOrchestrator(t *testing.T) {
	fixture := NewFixtureFetcher("fixture", "transfers")
	fixture.SetPageSize(2)
	fixture.Add("transfers", entry("a"), entry("b"), entry("c"), entry("d"), entry("e"))

	o := NewOrchestrator(fixture, NewFixedDelayBudget(0, 0), zerolog.Nop())

	entries, partial, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partial {
		t.Error("fixture pagination must complete")
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries across 3 pages, got %d", len(entries))
	}
}

func TestOrchestrator_RecordsFetchMetrics(t *testing.T) {
	fetcher := &scriptedFetcher{
		source: "subscan",
		cats:   []string{"transfers"},
		script: []scriptedPage{
			{entries: []*domain.RawLedgerEntry{entry("a")}, more: true},
			{err: transientErr()},
			{entries: []*domain.RawLedgerEntry{entry("b")}, more: false},
		},
	}

	m := metrics.NewWith(prometheus.NewRegistry())
	o := NewOrchestrator(fetcher, nil, zerolog.Nop(), WithMetrics(m))

	if _, _, err := o.Fetch(context.Background(), "w1", "transfers", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := promtestutil.ToFloat64(m.FetchPages.WithLabelValues("subscan", "transfers")); got != 2 {
		t.Errorf("expected two pages counted, got %v", got)
	}
	if got := promtestutil.ToFloat64(m.FetchRetries.WithLabelValues("subscan")); got != 1 {
		t.Errorf("expected one retry counted, got %v", got)
	}
}
