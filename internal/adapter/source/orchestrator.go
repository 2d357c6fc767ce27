package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/internal/infrastructure/metrics"
)

// PageFetcher fetches one page of raw entries from an upstream source.
// Implementations do the transport and decoding; pacing, retries and
// pagination are the orchestrator's.
type PageFetcher interface {
	Source() string
	Categories() []string
	// FetchPage returns the page's entries and whether another page
	// follows. Failures are reported as *domain.SourceError so the
	// orchestrator can tell retryable transport trouble from terminal
	// answers.
	FetchPage(ctx context.Context, wallet, category string, page int, from, to *time.Time) ([]*domain.RawLedgerEntry, bool, error)
}

// RateBudget paces calls against one upstream source. Either a token
// bucket or a fixed inter-call delay, plus a full cooldown taken after an
// explicit rate-limit response.
type RateBudget struct {
	limiter  *rate.Limiter
	delay    time.Duration
	cooldown time.Duration
}

// NewFixedDelayBudget spaces calls delay apart and sleeps cooldown after
// a rate-limit response.
func NewFixedDelayBudget(delay, cooldown time.Duration) *RateBudget {
	return &RateBudget{delay: delay, cooldown: cooldown}
}

// NewTokenBucketBudget allows bursts of b calls refilling at r per second.
func NewTokenBucketBudget(r float64, b int, cooldown time.Duration) *RateBudget {
	return &RateBudget{limiter: rate.NewLimiter(rate.Limit(r), b), cooldown: cooldown}
}

// Wait blocks until the next call is allowed.
func (rb *RateBudget) Wait(ctx context.Context) error {
	if rb == nil {
		return nil
	}
	if rb.limiter != nil {
		return rb.limiter.Wait(ctx)
	}
	if rb.delay <= 0 {
		return nil
	}
	return sleepCtx(ctx, rb.delay)
}

// Cooldown blocks for the full post-rate-limit window.
func (rb *RateBudget) Cooldown(ctx context.Context) error {
	if rb == nil || rb.cooldown <= 0 {
		return nil
	}
	return sleepCtx(ctx, rb.cooldown)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator drives one source's paginated fetch loop and adapts it to
// the export's SourceAdapter contract: paced calls, bounded retries with
// exponential backoff, and pages that already landed are never thrown
// away when a later page fails.
type Orchestrator struct {
	fetcher     PageFetcher
	budget      *RateBudget
	maxAttempts int
	maxPages    int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts bounds attempts per page, first try included.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxAttempts = n }
}

// WithMaxPages caps pagination; hitting the cap returns a partial result.
func WithMaxPages(n int) Option {
	return func(o *Orchestrator) { o.maxPages = n }
}

// WithMetrics records fetch counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wraps fetcher. budget may be nil for unpaced sources.
func NewOrchestrator(fetcher PageFetcher, budget *RateBudget, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:     fetcher,
		budget:      budget,
		maxAttempts: 3,
		maxPages:    10000,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Source() string       { return o.fetcher.Source() }
func (o *Orchestrator) Categories() []string { return o.fetcher.Categories() }

// Fetch walks the category's pages until the source reports no more, the
// page cap is hit, or a page fails terminally. A terminal failure after
// pages already landed returns those pages alongside the error; the
// caller decides how to surface the gap.
func (o *Orchestrator) Fetch(ctx context.Context, wallet, category string, from, to *time.Time) ([]*domain.RawLedgerEntry, bool, error) {
	started := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.FetchDuration.WithLabelValues(o.Source(), category).Observe(time.Since(started).Seconds())
		}
	}()

	var all []*domain.RawLedgerEntry
	for page := 0; ; page++ {
		if page >= o.maxPages {
			o.logger.Warn().Str("category", category).Int("pages", page).
				Msg("page safety limit reached, returning truncated result")
			if o.metrics != nil {
				o.metrics.PagesTruncated.WithLabelValues(o.Source(), category).Inc()
			}
			return all, true, nil
		}

		entries, more, err := o.fetchPage(ctx, wallet, category, page, from, to)
		if err != nil {
			if o.metrics != nil {
				o.metrics.FetchErrors.WithLabelValues(o.Source(), string(domain.KindOf(err))).Inc()
			}
			return all, len(all) > 0, err
		}
		if o.metrics != nil {
			o.metrics.FetchPages.WithLabelValues(o.Source(), category).Inc()
		}

		all = append(all, entries...)
		if !more {
			return all, false, nil
		}
	}
}

// fetchPage retries one page with exponential backoff. NotFound and data
// anomalies are answers, not transport trouble, so they fail immediately;
// a rate-limit response takes the source's full cooldown before the next
// attempt.
func (o *Orchestrator) fetchPage(ctx context.Context, wallet, category string, page int, from, to *time.Time) ([]*domain.RawLedgerEntry, bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	var (
		entries  []*domain.RawLedgerEntry
		more     bool
		attempts int
	)

	err := backoff.Retry(func() error {
		if err := o.budget.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		entries, more, err = o.fetcher.FetchPage(ctx, wallet, category, page, from, to)
		if err == nil {
			return nil
		}

		var se *domain.SourceError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}

		attempts++
		if attempts >= o.maxAttempts {
			return backoff.Permanent(err)
		}
		if o.metrics != nil {
			o.metrics.FetchRetries.WithLabelValues(o.Source()).Inc()
		}

		if domain.KindOf(err) == domain.KindRateLimited {
			if o.metrics != nil {
				o.metrics.RateLimitWaits.WithLabelValues(o.Source()).Inc()
			}
			if cerr := o.budget.Cooldown(ctx); cerr != nil {
				return backoff.Permanent(err)
			}
		}

		o.logger.Warn().Err(err).Str("category", category).Int("page", page).Int("attempt", attempts).
			Msg("page fetch failed, retrying")
		return err
	}, backoff.WithContext(b, ctx))

	if err != nil {
		return nil, false, err
	}
	return entries, more, nil
}
