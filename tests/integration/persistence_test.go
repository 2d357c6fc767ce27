package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/adapter/repository/postgres"
	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/tests/testutil"
)

func TestLedgerPersistenceRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()
	testDB.TruncateAll(ctx)

	repo := postgres.NewLedgerRepository(testDB.Pool, postgres.NewRetrier(zerolog.Nop()))
	idGen := postgres.NewULIDGenerator()

	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	sent := decimal.RequireFromString("10.5")
	price := decimal.RequireFromString("7.20")

	run := &domain.ExportRun{
		ID:           idGen.Generate(),
		Wallet:       "w1",
		StartedAt:    ts,
		FinishedAt:   ts.Add(time.Second),
		Partial:      false,
		Transactions: 1,
	}
	ledger := []*domain.CanonicalTransaction{
		{
			ID:               "subscan:transfers:tx1",
			Wallet:           "w1",
			Timestamp:        ts,
			Type:             domain.TxTransferSent,
			Tag:              domain.TagPayment,
			SentAmount:       &sent,
			SentCurrency:     "DOT",
			FeeAmount:        decimal.RequireFromString("0.5"),
			FeeCurrency:      "DOT",
			FiatPriceAtEvent: &price,
			Derived:          true,
			IsAmbiguous:      true,
			AmbiguousReasons: []string{domain.ReasonAssumedDirection},
		},
	}

	if err := repo.SaveExport(ctx, run, ledger); err != nil {
		t.Fatalf("save export: %v", err)
	}

	got, err := repo.GetLedger(ctx, "w1", 10, 0)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(got))
	}
	tx := got[0]
	if tx.ID != ledger[0].ID || tx.Type != domain.TxTransferSent || tx.Tag != domain.TagPayment {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	if tx.SentAmount == nil || !tx.SentAmount.Equal(sent) {
		t.Errorf("sent amount mismatch: %v", tx.SentAmount)
	}
	if tx.FiatPriceAtEvent == nil || !tx.FiatPriceAtEvent.Equal(price) {
		t.Errorf("price mismatch: %v", tx.FiatPriceAtEvent)
	}
	if !tx.IsAmbiguous || len(tx.AmbiguousReasons) != 1 {
		t.Errorf("ambiguity flags lost: %+v", tx)
	}
	if !tx.Derived {
		t.Errorf("derived marker lost: %+v", tx)
	}

	latest, err := repo.GetLatestRun(ctx, "w1")
	if err != nil {
		t.Fatalf("get latest run: %v", err)
	}
	if latest.ID != run.ID || latest.Transactions != 1 {
		t.Errorf("unexpected run: %+v", latest)
	}
}

func TestSaveExportReplacesPreviousLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()
	testDB.TruncateAll(ctx)

	repo := postgres.NewLedgerRepository(testDB.Pool, postgres.NewRetrier(zerolog.Nop()))
	idGen := postgres.NewULIDGenerator()

	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(1)

	mkTx := func(id string) *domain.CanonicalTransaction {
		return &domain.CanonicalTransaction{
			ID: id, Wallet: "w1", Timestamp: ts,
			Type: domain.TxTransferReceived, Tag: domain.TagReceive,
			ReceivedAmount: &amount, ReceivedCurrency: "DOT",
		}
	}

	first := &domain.ExportRun{ID: idGen.Generate(), Wallet: "w1", StartedAt: ts, FinishedAt: ts, Transactions: 2}
	if err := repo.SaveExport(ctx, first, []*domain.CanonicalTransaction{mkTx("a"), mkTx("b")}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second := &domain.ExportRun{ID: idGen.Generate(), Wallet: "w1", StartedAt: ts.Add(time.Hour), FinishedAt: ts.Add(time.Hour), Transactions: 1}
	if err := repo.SaveExport(ctx, second, []*domain.CanonicalTransaction{mkTx("c")}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := repo.GetLedger(ctx, "w1", 10, 0)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("expected the re-run to replace the ledger, got %d rows", len(got))
	}

	latest, err := repo.GetLatestRun(ctx, "w1")
	if err != nil {
		t.Fatalf("get latest run: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected second run to be latest, got %s", latest.ID)
	}
}
