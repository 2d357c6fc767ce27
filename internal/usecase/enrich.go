package usecase

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
)

// PriceTable holds one fiat unit price per UTC calendar day, keyed
// "2006-01-02". Built once per export from the union of transaction dates;
// the engine treats it as read-only.
type PriceTable map[string]decimal.Decimal

// DayKey returns the UTC calendar-day key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EnrichPrices attaches the unit price for each transaction's event date.
// Dates missing from the table leave the price unset; interpolation is the
// price source's policy decision, never this join's.
func EnrichPrices(txs []*domain.CanonicalTransaction, table PriceTable) {
	if len(table) == 0 {
		return
	}

	for _, tx := range txs {
		if price, ok := table[tx.EventDate()]; ok {
			p := price
			tx.FiatPriceAtEvent = &p
		}
	}
}

// DateSpan returns the inclusive UTC day range covering every transaction,
// so one price-history fetch can serve the whole export.
func DateSpan(txs []*domain.CanonicalTransaction) (start, end time.Time, ok bool) {
	for _, tx := range txs {
		ts := tx.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if !ok {
			start, end, ok = day, day, true
			continue
		}
		if day.Before(start) {
			start = day
		}
		if day.After(end) {
			end = day
		}
	}
	return start, end, ok
}

// Currencies returns the sorted set of principal currencies appearing in
// the ledger, one price-history fetch per currency.
func Currencies(txs []*domain.CanonicalTransaction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tx := range txs {
		c := tx.PrincipalCurrency()
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
