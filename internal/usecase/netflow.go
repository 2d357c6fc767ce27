package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iho/chainledger/internal/domain"
)

// rewardEpsilon absorbs rounding noise in derived-state reward inference.
// Deltas at or below it are treated as no reward.
var rewardEpsilon = decimal.New(1, -9)

// NetFlow is the signed asset movement of one wallet in one raw entry,
// expressed as non-negative magnitudes in the entry's native unit.
type NetFlow struct {
	Sent     decimal.Decimal
	Received decimal.Decimal
	Fee      decimal.Decimal

	// Coinbase marks a UTXO entry with zero inputs system-wide. It is a
	// mining/emission payout regardless of output shape.
	Coinbase bool

	// Derived marks a reward inferred from balance snapshots rather than
	// an explicit transfer record.
	Derived bool

	// Anomalies records every malformed field substituted with zero. The
	// export is best-effort: substitution beats aborting, but each one has
	// to surface as an ambiguity reason downstream.
	Anomalies []string
}

// Empty reports whether the flow carries no economic content at all.
func (f NetFlow) Empty() bool {
	return f.Sent.IsZero() && f.Received.IsZero() && f.Fee.IsZero()
}

// ComputeNetFlow derives the net flow for wallet from a raw ledger entry,
// dispatching on the entry's accounting mode.
func ComputeNetFlow(wallet string, e *domain.RawLedgerEntry) (NetFlow, error) {
	switch e.Mode {
	case domain.ModeUTXO:
		return utxoFlow(wallet, e), nil
	case domain.ModeAccount:
		return accountFlow(e), nil
	case domain.ModeDerived:
		return derivedFlow(e), nil
	default:
		return NetFlow{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, e.Mode)
	}
}

// utxoFlow nets the wallet's input and output participation. Change
// returned to self cancels out; the system-wide input/output difference is
// the fee, attributed to the wallet only when it co-signed the spend.
func utxoFlow(wallet string, e *domain.RawLedgerEntry) NetFlow {
	flow := NetFlow{Anomalies: append([]string(nil), e.Anomalies...)}

	var totalIn, totalOut, inSum, outSum decimal.Decimal

	for _, p := range e.Inputs {
		amt := sanitize(p.Amount, "input", &flow)
		totalIn = totalIn.Add(amt)
		if p.Address == wallet {
			inSum = inSum.Add(amt)
		}
	}

	for _, p := range e.Outputs {
		amt := sanitize(p.Amount, "output", &flow)
		totalOut = totalOut.Add(amt)
		if p.Address == wallet {
			outSum = outSum.Add(amt)
		}
	}

	// Zero inputs system-wide: coinbase. Everything the wallet got is a
	// mining reward and there is no fee to attribute.
	if totalIn.IsZero() {
		flow.Coinbase = true
		flow.Received = outSum
		return flow
	}

	fee := totalIn.Sub(totalOut)
	if fee.IsNegative() {
		flow.Anomalies = append(flow.Anomalies, "negative_utxo_fee")
		fee = decimal.Zero
	}
	if inSum.IsPositive() {
		flow.Fee = fee
	}

	if inSum.GreaterThan(outSum) {
		flow.Sent = inSum.Sub(outSum)
	}

	switch {
	case inSum.IsZero():
		flow.Received = outSum
	case outSum.GreaterThan(inSum):
		// Self-payments where output-to-self exceeds input net out as a
		// pure receive.
		flow.Received = outSum.Sub(inSum)
	}

	// Consolidations: everything except the fee went back to the wallet,
	// so the residual "sent" is exactly the fee. Fee-only, no transfer.
	if flow.Received.IsZero() && flow.Sent.Equal(flow.Fee) {
		flow.Sent = decimal.Zero
	}

	return flow
}

// accountFlow maps a single signed delta (or an explicit in/out pair for
// trade records) onto sent/received magnitudes.
func accountFlow(e *domain.RawLedgerEntry) NetFlow {
	flow := NetFlow{Anomalies: append([]string(nil), e.Anomalies...)}

	fee := e.Fee
	if fee.IsNegative() {
		flow.Anomalies = append(flow.Anomalies, "negative_fee")
		fee = decimal.Zero
	}
	flow.Fee = fee

	if e.TwoSided() {
		flow.Sent = sanitize(e.OutAmount, "out_amount", &flow)
		flow.Received = sanitize(e.InAmount, "in_amount", &flow)
		return flow
	}

	switch {
	case e.Delta.IsNegative():
		sent := e.Delta.Abs()
		// Some sources net the separately-reported fee out of the delta
		// already; subtracting it here keeps it from being counted twice.
		if e.FeeInDelta {
			sent = sent.Sub(fee)
			if sent.IsNegative() {
				flow.Anomalies = append(flow.Anomalies, "fee_exceeds_delta")
				sent = decimal.Zero
			}
		}
		flow.Sent = sent
	case e.Delta.IsPositive():
		flow.Received = e.Delta
	}

	return flow
}

// derivedFlow infers an implicit reward from consecutive state snapshots:
// reward = (curr - prev) - net explicit stake activity on the interval.
// Non-positive results are explicit activity already captured elsewhere, or
// rounding noise, and produce an empty flow.
func derivedFlow(e *domain.RawLedgerEntry) NetFlow {
	flow := NetFlow{Anomalies: append([]string(nil), e.Anomalies...)}

	reward := e.CurrBalance.Sub(e.PrevBalance).Sub(e.ExplicitNet)
	if reward.LessThanOrEqual(rewardEpsilon) {
		return flow
	}

	flow.Received = reward
	flow.Derived = true
	return flow
}

// sanitize clamps malformed (negative) amounts to zero and records the
// substitution.
func sanitize(amount decimal.Decimal, field string, flow *NetFlow) decimal.Decimal {
	if amount.IsNegative() {
		flow.Anomalies = append(flow.Anomalies, "negative_"+field)
		return decimal.Zero
	}
	return amount
}

// DeriveRewardEntries turns a balance time series into derived-mode raw
// entries, one per interval, netting out the explicit stake activity keyed
// by UTC calendar day. Entries whose inferred reward is filtered out later
// by the net-flow calculator are still returned; the calculator owns the
// epsilon policy.
func DeriveRewardEntries(source, wallet, unit string, series []domain.BalanceSnapshot, explicitNetByDay map[string]decimal.Decimal) []*domain.RawLedgerEntry {
	if len(series) < 2 {
		return nil
	}

	entries := make([]*domain.RawLedgerEntry, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		day := series[i].Date.UTC().Format("2006-01-02")
		entries = append(entries, &domain.RawLedgerEntry{
			Source:      source,
			Category:    "derived_rewards",
			Timestamp:   series[i].Date.UTC(),
			Mode:        domain.ModeDerived,
			Unit:        unit,
			PrevBalance: series[i-1].Balance,
			CurrBalance: series[i].Balance,
			ExplicitNet: explicitNetByDay[day],
		})
	}
	return entries
}
