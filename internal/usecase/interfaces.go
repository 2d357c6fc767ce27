package usecase

import (
	"context"
	"time"

	"github.com/iho/chainledger/internal/domain"
)

// SourceAdapter delivers already-decoded raw entries for one data source.
// Categories are ordered most-authoritative first; when the same underlying
// event is reported by two categories, the earlier category's record wins
// in the reconciler.
type SourceAdapter interface {
	Source() string
	Categories() []string
	// Fetch returns the category's entries for the wallet. partial=true
	// means pagination terminated early but the returned entries are
	// valid; the export surfaces that instead of discarding them.
	Fetch(ctx context.Context, wallet, category string, from, to *time.Time) (entries []*domain.RawLedgerEntry, partial bool, err error)
}

// PriceSource provides the date-keyed fiat unit price history for one
// currency. Implementations are read-only for the duration of one export;
// caching is the caller's concern.
type PriceSource interface {
	PriceHistory(ctx context.Context, currency string, start, end time.Time) (PriceTable, error)
}

// LedgerRepository persists reconciled ledgers. SaveExport is atomic: a
// re-run replaces the wallet's previous ledger entirely.
type LedgerRepository interface {
	SaveExport(ctx context.Context, run *domain.ExportRun, ledger []*domain.CanonicalTransaction) error
	GetLedger(ctx context.Context, wallet string, limit, offset int) ([]*domain.CanonicalTransaction, error)
	GetLatestRun(ctx context.Context, wallet string) (*domain.ExportRun, error)
}

// IDGenerator generates unique IDs for export runs.
type IDGenerator interface {
	Generate() string
}

// Cache defines the export-scoped caching operations the price layer uses.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
