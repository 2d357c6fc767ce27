package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	pool    *pgxpool.Pool
	retrier *Retrier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool, retrier *Retrier) *LedgerRepository {
	return &LedgerRepository{pool: pool, retrier: retrier}
}

// SaveExport atomically replaces the wallet's ledger with the new run's.
// A re-run therefore never leaves a mix of old and new records behind.
func (r *LedgerRepository) SaveExport(ctx context.Context, run *domain.ExportRun, ledger []*domain.CanonicalTransaction) error {
	return r.retrier.Retry(ctx, func() error {
		return r.saveExport(ctx, run, ledger)
	})
}

func (r *LedgerRepository) saveExport(ctx context.Context, run *domain.ExportRun, ledger []*domain.CanonicalTransaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO export_runs (id, wallet, started_at, finished_at, partial, transactions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.Wallet, run.StartedAt, run.FinishedAt, run.Partial, run.Transactions)
	if err != nil {
		return fmt.Errorf("insert export run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transactions WHERE wallet = $1`, run.Wallet); err != nil {
		return fmt.Errorf("clear previous ledger: %w", err)
	}

	batch := &pgx.Batch{}
	for _, t := range ledger {
		batch.Queue(`
			INSERT INTO transactions (
				id, wallet, run_id, ts, type, tag,
				sent_amount, sent_currency, received_amount, received_currency,
				fee_amount, fee_currency, counterparty_hint, notes,
				fiat_price_at_event, realized_pnl, liquidation, derived,
				source_anomalies, is_ambiguous, ambiguous_reasons
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		`,
			t.ID, t.Wallet, run.ID, t.Timestamp, string(t.Type), string(t.Tag),
			decimalPtrParam(t.SentAmount), t.SentCurrency,
			decimalPtrParam(t.ReceivedAmount), t.ReceivedCurrency,
			t.FeeAmount.String(), t.FeeCurrency, t.CounterpartyHint, t.Notes,
			decimalPtrParam(t.FiatPriceAtEvent), decimalPtrParam(t.RealizedPnL), t.Liquidation, t.Derived,
			t.SourceAnomalies, t.IsAmbiguous, t.AmbiguousReasons,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range ledger {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// GetLedger returns one page of the wallet's reconciled ledger in
// timestamp-then-ID order.
func (r *LedgerRepository) GetLedger(ctx context.Context, wallet string, limit, offset int) ([]*domain.CanonicalTransaction, error) {
	limit, offset = domain.ValidatePagination(limit, offset)

	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet, ts, type, tag,
			sent_amount, sent_currency, received_amount, received_currency,
			fee_amount, fee_currency, counterparty_hint, notes,
			fiat_price_at_event, realized_pnl, liquidation, derived,
			source_anomalies, is_ambiguous, ambiguous_reasons
		FROM transactions
		WHERE wallet = $1
		ORDER BY ts, id
		LIMIT $2 OFFSET $3
	`, wallet, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var ledger []*domain.CanonicalTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, t)
	}
	return ledger, rows.Err()
}

// GetLatestRun returns the wallet's most recent export run.
func (r *LedgerRepository) GetLatestRun(ctx context.Context, wallet string) (*domain.ExportRun, error) {
	run := &domain.ExportRun{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, wallet, started_at, finished_at, partial, transactions
		FROM export_runs
		WHERE wallet = $1
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, wallet).Scan(&run.ID, &run.Wallet, &run.StartedAt, &run.FinishedAt, &run.Partial, &run.Transactions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return run, nil
}

func scanTransaction(rows pgx.Rows) (*domain.CanonicalTransaction, error) {
	var (
		t                               domain.CanonicalTransaction
		txType, tag                     string
		sent, received, price, pnl, fee pgtype.Numeric
	)

	err := rows.Scan(
		&t.ID, &t.Wallet, &t.Timestamp, &txType, &tag,
		&sent, &t.SentCurrency, &received, &t.ReceivedCurrency,
		&fee, &t.FeeCurrency, &t.CounterpartyHint, &t.Notes,
		&price, &pnl, &t.Liquidation, &t.Derived,
		&t.SourceAnomalies, &t.IsAmbiguous, &t.AmbiguousReasons,
	)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Type = domain.TxType(txType)
	t.Tag = domain.TaxTag(tag)

	if t.SentAmount, err = toDecimalPtr(sent); err != nil {
		return nil, err
	}
	if t.ReceivedAmount, err = toDecimalPtr(received); err != nil {
		return nil, err
	}
	if t.FiatPriceAtEvent, err = toDecimalPtr(price); err != nil {
		return nil, err
	}
	if t.RealizedPnL, err = toDecimalPtr(pnl); err != nil {
		return nil, err
	}

	feeVal, err := toDecimal(fee)
	if err != nil {
		return nil, err
	}
	t.FeeAmount = feeVal

	return &t, nil
}

// decimalPtrParam encodes an optional decimal as a nullable numeric
// parameter via its string form.
func decimalPtrParam(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func toDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(n.Int.String())
	if err != nil {
		return decimal.Zero, err
	}

	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d, nil
}

func toDecimalPtr(n pgtype.Numeric) (*decimal.Decimal, error) {
	if !n.Valid {
		return nil, nil
	}
	d, err := toDecimal(n)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
