package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/internal/infrastructure/metrics"
)

// ExportUseCase reconciles one wallet's raw activity into a canonical
// ledger: concurrent per-category fetch, net-flow + classification per
// entry, price join, merge-sort dedup, ambiguity pass, summary. The engine
// stages themselves are pure; all I/O lives behind the injected
// collaborators.
type ExportUseCase struct {
	adapters   []SourceAdapter
	prices     PriceSource
	classifier *Classifier
	detector   *AmbiguityDetector
	ledgerRepo LedgerRepository
	idGen      IDGenerator
	logger     zerolog.Logger
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// NewExportUseCase creates an export use case. prices and ledgerRepo may be
// nil; enrichment and persistence are then skipped.
func NewExportUseCase(
	adapters []SourceAdapter,
	prices PriceSource,
	classifier *Classifier,
	detector *AmbiguityDetector,
	ledgerRepo LedgerRepository,
	idGen IDGenerator,
	logger zerolog.Logger,
	timeout time.Duration,
) *ExportUseCase {
	return &ExportUseCase{
		adapters:   adapters,
		prices:     prices,
		classifier: classifier,
		detector:   detector,
		ledgerRepo: ledgerRepo,
		idGen:      idGen,
		logger:     logger,
		timeout:    timeout,
	}
}

// WithMetrics enables counter recording; m may be nil.
func (uc *ExportUseCase) WithMetrics(m *metrics.Metrics) *ExportUseCase {
	uc.metrics = m
	return uc
}

// ExportResult is one wallet's reconciled ledger plus the per-category
// failures that did not abort it.
type ExportResult struct {
	Wallet         string                         `json:"wallet"`
	Transactions   []*domain.CanonicalTransaction `json:"transactions"`
	Summary        ExportSummary                  `json:"summary"`
	Partial        bool                           `json:"partial"`
	CategoryErrors map[string]error               `json:"-"`
}

// categoryKey identifies one fetch unit in authority order.
type categoryKey struct {
	adapter  int
	category int
}

type categoryOutcome struct {
	stream  []*domain.CanonicalTransaction
	partial bool
	err     error
}

// Export runs one full reconciliation for wallet. A failed category never
// aborts the others; whatever succeeded is merged and returned. When any
// category was partial or failed, the result is returned together with a
// PartialResult error so callers cannot silently under-report.
func (uc *ExportUseCase) Export(ctx context.Context, wallet string, from, to *time.Time) (*ExportResult, error) {
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	if uc.metrics != nil {
		uc.metrics.ExportsStarted.Inc()
		started := time.Now()
		defer func() {
			uc.metrics.ExportDuration.Observe(time.Since(started).Seconds())
		}()
	}

	outcomes := uc.fetchAndClassify(ctx, wallet, from, to)

	result := &ExportResult{
		Wallet:         wallet,
		CategoryErrors: make(map[string]error),
	}

	// Streams merge in adapter/category declaration order: that order is
	// the authority order deciding duplicate winners.
	var streams [][]*domain.CanonicalTransaction
	notFound, attempted := 0, 0
	for ai, adapter := range uc.adapters {
		for ci, category := range adapter.Categories() {
			attempted++
			out := outcomes[categoryKey{ai, ci}]
			streams = append(streams, out.stream)

			if out.partial {
				result.Partial = true
			}
			if out.err == nil {
				continue
			}

			key := adapter.Source() + "/" + category
			result.CategoryErrors[key] = out.err
			if domain.KindOf(out.err) == domain.KindNotFound {
				notFound++
				continue
			}
			result.Partial = true
			uc.logger.Warn().Err(out.err).Str("wallet", wallet).Str("category", key).
				Msg("category fetch failed, continuing with remainder")
		}
	}

	// A wallet no source knows at all is a single top-level error; a
	// wallet with zero net activity is an empty, well-formed ledger.
	if attempted > 0 && notFound == attempted {
		return nil, domain.NewNotFound("all", "all")
	}

	result.Transactions = Reconcile(streams...)

	uc.enrich(ctx, result)
	uc.detector.Annotate(result.Transactions)
	result.Summary = Summarize(wallet, result.Transactions, result.Partial)

	if uc.metrics != nil {
		uc.metrics.ExportLedgerLen.Observe(float64(len(result.Transactions)))
		if result.Partial {
			uc.metrics.ExportsPartial.Inc()
		}
		for _, tx := range result.Transactions {
			uc.metrics.TransactionsClassified.WithLabelValues(string(tx.Type)).Inc()
			for _, reason := range tx.AmbiguousReasons {
				uc.metrics.AmbiguityFlags.WithLabelValues(reason).Inc()
			}
		}
	}

	if err := uc.persist(ctx, result); err != nil {
		return result, fmt.Errorf("persist export: %w", err)
	}

	if result.Partial {
		return result, &domain.SourceError{
			Kind:   domain.KindPartialResult,
			Source: "export",
			Hint:   "some categories are incomplete; re-run to fill gaps",
		}
	}
	return result, nil
}

// fetchAndClassify fans out one goroutine per (adapter, category). The
// rate budget within a source is the adapter's to enforce; fan-out here is
// only across categories.
func (uc *ExportUseCase) fetchAndClassify(ctx context.Context, wallet string, from, to *time.Time) map[categoryKey]categoryOutcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[categoryKey]categoryOutcome)
	)

	for ai, adapter := range uc.adapters {
		for ci, category := range adapter.Categories() {
			wg.Add(1)
			go func(key categoryKey, adapter SourceAdapter, category string) {
				defer wg.Done()

				entries, partial, err := adapter.Fetch(ctx, wallet, category, from, to)
				stream := uc.classifyEntries(wallet, adapter.Source(), category, entries)

				mu.Lock()
				outcomes[key] = categoryOutcome{stream: stream, partial: partial, err: err}
				mu.Unlock()
			}(categoryKey{ai, ci}, adapter, category)
		}
	}

	wg.Wait()
	return outcomes
}

// classifyEntries maps raw entries to canonical transactions. An entry the
// engine cannot make sense of becomes a zero-valued placeholder carrying
// the anomaly; it never aborts the wallet's export.
func (uc *ExportUseCase) classifyEntries(wallet, source, category string, entries []*domain.RawLedgerEntry) []*domain.CanonicalTransaction {
	stream := make([]*domain.CanonicalTransaction, 0, len(entries))
	for _, entry := range entries {
		tx, err := uc.classifier.Classify(wallet, entry)
		if err != nil {
			uc.logger.Warn().Err(err).Str("wallet", wallet).Str("entry", entry.ID).
				Msg("unclassifiable entry, emitting placeholder")
			stream = append(stream, anomalyTransaction(wallet, source, category, entry, err))
			continue
		}
		if tx != nil {
			if uc.metrics != nil {
				for range tx.SourceAnomalies {
					uc.metrics.SourceAnomalies.WithLabelValues(source).Inc()
				}
			}
			stream = append(stream, tx)
		}
	}
	return stream
}

// anomalyTransaction is the §DataAnomaly placeholder: default/zero values,
// guaranteed to be flagged by the detector.
func anomalyTransaction(wallet, source, category string, entry *domain.RawLedgerEntry, cause error) *domain.CanonicalTransaction {
	zero := decimal.Zero
	id := entry.ID
	if id == "" {
		id = fmt.Sprintf("%s:%s:anomaly:%d", source, category, entry.Timestamp.UTC().UnixMilli())
	} else {
		id = fmt.Sprintf("%s:%s:%s", source, category, id)
	}

	return &domain.CanonicalTransaction{
		ID:               id,
		Wallet:           wallet,
		Timestamp:        entry.Timestamp.UTC().Truncate(time.Millisecond),
		Type:             domain.TxTransferReceived,
		Tag:              domain.TagReceive,
		ReceivedAmount:   &zero,
		ReceivedCurrency: entry.Unit,
		Notes:            "data anomaly: " + cause.Error(),
		SourceAnomalies:  []string{"unclassifiable_entry"},
	}
}

// enrich joins fiat unit prices per principal currency over the ledger's
// date span. Price failures degrade to unpriced records, never abort.
func (uc *ExportUseCase) enrich(ctx context.Context, result *ExportResult) {
	if uc.prices == nil || len(result.Transactions) == 0 {
		return
	}

	start, end, ok := DateSpan(result.Transactions)
	if !ok {
		return
	}

	byCurrency := make(map[string][]*domain.CanonicalTransaction)
	for _, tx := range result.Transactions {
		if c := tx.PrincipalCurrency(); c != "" {
			byCurrency[c] = append(byCurrency[c], tx)
		}
	}

	for _, currency := range Currencies(result.Transactions) {
		if uc.metrics != nil {
			uc.metrics.PriceLookups.WithLabelValues(currency).Inc()
		}
		table, err := uc.prices.PriceHistory(ctx, currency, start, end)
		if err != nil {
			uc.logger.Warn().Err(err).Str("currency", currency).Msg("price history unavailable, leaving records unpriced")
			result.CategoryErrors["prices/"+currency] = err
			continue
		}
		EnrichPrices(byCurrency[currency], table)
	}
}

func (uc *ExportUseCase) persist(ctx context.Context, result *ExportResult) error {
	if uc.ledgerRepo == nil {
		return nil
	}

	now := time.Now().UTC()
	run := &domain.ExportRun{
		ID:           uc.idGen.Generate(),
		Wallet:       result.Wallet,
		StartedAt:    now,
		FinishedAt:   now,
		Partial:      result.Partial,
		Transactions: len(result.Transactions),
	}

	return uc.ledgerRepo.SaveExport(ctx, run, result.Transactions)
}
