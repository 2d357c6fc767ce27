package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountingMode selects how a RawLedgerEntry expresses value movement.
type AccountingMode string

const (
	// ModeUTXO: the entry consumes prior outputs as inputs and creates new
	// outputs; net effect per party is input vs output participation.
	ModeUTXO AccountingMode = "utxo"
	// ModeAccount: the entry is a single signed balance delta, or a
	// two-sided in/out pair for trade-style records.
	ModeAccount AccountingMode = "account"
	// ModeDerived: the entry is a before/after snapshot of an external
	// state value (e.g. staked balance) plus the explicit activity already
	// reported for the same interval.
	ModeDerived AccountingMode = "derived"
)

// Participant is one weighted party of a UTXO-style entry.
type Participant struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// RawLedgerEntry is the already-decoded record a source adapter delivers.
// The engine consumes it; it never owns or produces one.
type RawLedgerEntry struct {
	// ID is source-qualified and stable across repeated fetches of the same
	// data. Empty only for engine-derived entries.
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Mode      AccountingMode `json:"mode"`

	// Unit is the entry's native currency symbol.
	Unit string `json:"unit"`

	// UTXO mode.
	Inputs  []Participant `json:"inputs,omitempty"`
	Outputs []Participant `json:"outputs,omitempty"`

	// Account mode: a single signed delta, with the fee reported separately.
	// FeeInDelta marks sources that already net the fee out of the delta so
	// it is not double-counted.
	Delta      decimal.Decimal `json:"delta"`
	Fee        decimal.Decimal `json:"fee"`
	FeeInDelta bool            `json:"fee_in_delta,omitempty"`

	// Account mode, two-sided trade records (DEX swaps, liquidity moves).
	// When either side is set they take precedence over Delta.
	OutAmount decimal.Decimal `json:"out_amount"`
	OutUnit   string          `json:"out_unit,omitempty"`
	InAmount  decimal.Decimal `json:"in_amount"`
	InUnit    string          `json:"in_unit,omitempty"`

	// Derived mode: consecutive state snapshots and the net explicit
	// stake/unstake activity on the interval (stakes positive, unstakes
	// negative).
	PrevBalance decimal.Decimal `json:"prev_balance"`
	CurrBalance decimal.Decimal `json:"curr_balance"`
	ExplicitNet decimal.Decimal `json:"explicit_net"`

	// Hint is the source's semantic identifier (method, event or
	// module/function name) when available.
	Hint string `json:"hint,omitempty"`

	// Counterparty is a free-text provenance note, never used in logic.
	Counterparty string `json:"counterparty,omitempty"`

	// Perpetual-futures fills.
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	Liquidation bool             `json:"liquidation,omitempty"`

	// Anomalies lists fields the adapter zero-defaulted because the source
	// payload was malformed. Each substitution ends up as an ambiguity
	// reason on the canonical transaction.
	Anomalies []string `json:"anomalies,omitempty"`
}

// TwoSided reports whether the entry carries an explicit in/out pair
// rather than a single signed delta.
func (e *RawLedgerEntry) TwoSided() bool {
	return !e.OutAmount.IsZero() || !e.InAmount.IsZero()
}

// BalanceSnapshot is one point of a derived-state time series.
type BalanceSnapshot struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}
