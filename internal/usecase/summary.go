package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
)

// ExportSummary is the wallet-level reduction over the reconciled ledger.
// Serializers and the UI consume it alongside the transactions; recomputing
// it from the ledger must yield the same values.
type ExportSummary struct {
	Wallet         string                     `json:"wallet"`
	Transactions   int                        `json:"transactions"`
	CountsByType   map[domain.TxType]int      `json:"counts_by_type"`
	FeeTotals      map[string]decimal.Decimal `json:"fee_totals"`
	AmbiguousCount int                        `json:"ambiguous_count"`
	Partial        bool                       `json:"partial"`
}

// Summarize reduces the ledger into per-type counts and per-currency fee
// totals.
func Summarize(wallet string, ledger []*domain.CanonicalTransaction, partial bool) ExportSummary {
	s := ExportSummary{
		Wallet:       wallet,
		Transactions: len(ledger),
		CountsByType: make(map[domain.TxType]int),
		FeeTotals:    make(map[string]decimal.Decimal),
		Partial:      partial,
	}

	for _, tx := range ledger {
		s.CountsByType[tx.Type]++
		if tx.FeeAmount.IsPositive() && tx.FeeCurrency != "" {
			s.FeeTotals[tx.FeeCurrency] = s.FeeTotals[tx.FeeCurrency].Add(tx.FeeAmount)
		}
		if tx.IsAmbiguous {
			s.AmbiguousCount++
		}
	}

	return s
}
