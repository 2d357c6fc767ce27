package usecase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
)

// defaultRewardRateMultiple bounds how much larger than the trailing median
// a derived reward may be before it is considered implausible. No chain
// publishes an authoritative bound, so the default is deliberately
// conservative and configurable.
const defaultRewardRateMultiple = 10

// AmbiguityDetector is the final, additive-only pass over the merged
// ledger. It appends reason codes and sets the ambiguous flag; it never
// alters amounts, types or ordering, and it never suppresses a record.
type AmbiguityDetector struct {
	// RewardRateMultiple overrides defaultRewardRateMultiple when > 0.
	RewardRateMultiple int64
}

// NewAmbiguityDetector returns a detector with the default reward bound.
func NewAmbiguityDetector() *AmbiguityDetector {
	return &AmbiguityDetector{RewardRateMultiple: defaultRewardRateMultiple}
}

// Annotate evaluates the fixed rule set over every transaction in ledger
// order. The ledger must already be classified, priced and reconciled.
func (d *AmbiguityDetector) Annotate(ledger []*domain.CanonicalTransaction) {
	medianReward := medianEmissionReward(ledger)
	multiple := d.RewardRateMultiple
	if multiple <= 0 {
		multiple = defaultRewardRateMultiple
	}

	for _, tx := range ledger {
		// Rule: heuristic classification is always flagged.
		if tx.Derived {
			tx.Flag(domain.ReasonDerivedReward)

			if tx.ReceivedAmount != nil && medianReward.IsPositive() {
				bound := medianReward.Mul(decimal.NewFromInt(multiple))
				if tx.ReceivedAmount.GreaterThan(bound) {
					tx.Flag(domain.ReasonImplausibleReward)
				}
			}
		}

		if tx.Tag == domain.TagOpenPosition || tx.Tag == domain.TagClosePosition {
			tx.Flag(domain.ReasonInferredPosition)
		}

		// Rule: liquidations and forced deleverages, since realized value
		// may differ from the reported fill price.
		if tx.Liquidation {
			tx.Flag(domain.ReasonLiquidation)
		}

		// Rule: fee-only records where direction was assumed, not observed.
		if tx.SentAmount == nil && tx.ReceivedAmount == nil && tx.FeeAmount.IsPositive() {
			tx.Flag(domain.ReasonAssumedDirection)
		}

		// Rule: swaps whose currency identity could not be resolved.
		if tx.Type == domain.TxSwap {
			if tx.SentCurrency == "" || tx.ReceivedCurrency == "" {
				tx.Flag(domain.ReasonUnresolvedCurrency)
			} else if tx.SentCurrency == tx.ReceivedCurrency {
				tx.Flag(domain.ReasonSameCurrencySwap)
			}
		}

		// Rule: every zero-substitution the calculator made surfaces.
		for _, anomaly := range tx.SourceAnomalies {
			if anomaly == "unclassifiable_entry" {
				tx.Flag(domain.ReasonUnclassifiedAnomaly)
				continue
			}
			tx.Flag(domain.ReasonMalformedAmount)
		}
	}
}

// medianEmissionReward computes the median derived-reward magnitude,
// the baseline for the implausible-rate rule.
func medianEmissionReward(ledger []*domain.CanonicalTransaction) decimal.Decimal {
	var rewards []decimal.Decimal
	for _, tx := range ledger {
		if tx.Type == domain.TxEmissionReward && tx.ReceivedAmount != nil && tx.ReceivedAmount.IsPositive() {
			rewards = append(rewards, *tx.ReceivedAmount)
		}
	}

	if len(rewards) == 0 {
		return decimal.Zero
	}

	sort.Slice(rewards, func(i, j int) bool { return rewards[i].LessThan(rewards[j]) })

	mid := len(rewards) / 2
	if len(rewards)%2 == 1 {
		return rewards[mid]
	}
	return rewards[mid-1].Add(rewards[mid]).Div(decimal.NewFromInt(2))
}
