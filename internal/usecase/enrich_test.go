package usecase

import (
	"testing"
	"time"

	"github.com/iho/chainledger/internal/domain"
)

func TestEnrichPricesJoinsByCalendarDay(t *testing.T) {
	priced := &domain.CanonicalTransaction{
		ID:             "p1",
		Timestamp:      time.Date(2023, 4, 1, 23, 59, 0, 0, time.UTC),
		ReceivedAmount: decPtr("2"), ReceivedCurrency: "DOT",
	}
	unpriced := &domain.CanonicalTransaction{
		ID:             "p2",
		Timestamp:      time.Date(2023, 4, 2, 0, 1, 0, 0, time.UTC),
		ReceivedAmount: decPtr("2"), ReceivedCurrency: "DOT",
	}

	table := PriceTable{"2023-04-01": dec("6.12")}
	EnrichPrices([]*domain.CanonicalTransaction{priced, unpriced}, table)

	if priced.FiatPriceAtEvent == nil || !priced.FiatPriceAtEvent.Equal(dec("6.12")) {
		t.Fatalf("expected 6.12, got %v", priced.FiatPriceAtEvent)
	}
	// Missing dates stay unset, never interpolated.
	if unpriced.FiatPriceAtEvent != nil {
		t.Fatalf("expected unset price, got %v", unpriced.FiatPriceAtEvent)
	}
}

func TestEnrichPricesTimezoneNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	tx := &domain.CanonicalTransaction{
		ID:        "p1",
		Timestamp: time.Date(2023, 3, 31, 22, 0, 0, 0, loc), // 2023-04-01 UTC
	}

	EnrichPrices([]*domain.CanonicalTransaction{tx}, PriceTable{"2023-04-01": dec("1")})

	if tx.FiatPriceAtEvent == nil {
		t.Fatal("expected join on the UTC calendar day")
	}
}

func TestDateSpan(t *testing.T) {
	txs := []*domain.CanonicalTransaction{
		{ID: "a", Timestamp: time.Date(2023, 4, 10, 15, 0, 0, 0, time.UTC)},
		{ID: "b", Timestamp: time.Date(2023, 4, 2, 3, 0, 0, 0, time.UTC)},
		{ID: "c", Timestamp: time.Date(2023, 4, 7, 23, 0, 0, 0, time.UTC)},
	}

	start, end, ok := DateSpan(txs)
	if !ok {
		t.Fatal("expected a span")
	}
	if start.Format("2006-01-02") != "2023-04-02" || end.Format("2006-01-02") != "2023-04-10" {
		t.Fatalf("unexpected span %s..%s", start, end)
	}

	if _, _, ok := DateSpan(nil); ok {
		t.Fatal("empty ledger has no span")
	}
}

func TestCurrenciesSortedUnique(t *testing.T) {
	txs := []*domain.CanonicalTransaction{
		{ID: "a", ReceivedAmount: decPtr("1"), ReceivedCurrency: "DOT"},
		{ID: "b", SentAmount: decPtr("1"), SentCurrency: "BTC"},
		{ID: "c", ReceivedAmount: decPtr("1"), ReceivedCurrency: "DOT"},
	}

	got := Currencies(txs)
	if len(got) != 2 || got[0] != "BTC" || got[1] != "DOT" {
		t.Fatalf("expected [BTC DOT], got %v", got)
	}
}
