package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/iho/chainledger/internal/domain"
)

// Classifier maps a raw ledger entry to one canonical transaction. It is
// pure: identical input always yields an identical transaction, including
// the id, so repeated fetches dedupe in the reconciler.
type Classifier struct {
	tables TableSet
}

// NewClassifier creates a classifier over the given hint tables.
func NewClassifier(tables TableSet) *Classifier {
	return &Classifier{tables: tables}
}

// Classify turns one raw entry into a canonical transaction, or nil when
// the entry has no economic content. It never fails on malformed data; an
// entry it cannot make sense of becomes a zero-valued transaction carrying
// the anomaly for the detector to flag.
func (c *Classifier) Classify(wallet string, e *domain.RawLedgerEntry) (*domain.CanonicalTransaction, error) {
	flow, err := ComputeNetFlow(wallet, e)
	if err != nil {
		return nil, err
	}

	// Nothing moved and nothing was charged: not economically meaningful,
	// dropped whatever the hint says. Fills are exempt because realized
	// profit/loss is value even when no transfer shows.
	if flow.Empty() && e.RealizedPnL == nil {
		return nil, nil
	}

	tx := &domain.CanonicalTransaction{
		ID:               entryID(wallet, e, flow),
		Wallet:           wallet,
		Timestamp:        e.Timestamp.UTC().Truncate(time.Millisecond),
		FeeAmount:        flow.Fee,
		FeeCurrency:      e.Unit,
		CounterpartyHint: e.Counterparty,
		RealizedPnL:      e.RealizedPnL,
		Liquidation:      e.Liquidation,
		Derived:          flow.Derived,
		SourceAnomalies:  flow.Anomalies,
	}

	c.applyAmounts(tx, e, flow)
	c.applyClassification(tx, e, flow)

	return tx, nil
}

// applyAmounts sets the sent/received sides and their currencies.
func (c *Classifier) applyAmounts(tx *domain.CanonicalTransaction, e *domain.RawLedgerEntry, flow NetFlow) {
	sentUnit, receivedUnit := e.Unit, e.Unit
	if e.TwoSided() {
		sentUnit, receivedUnit = e.OutUnit, e.InUnit
	}

	if flow.Sent.IsPositive() {
		sent := flow.Sent
		tx.SentAmount = &sent
		tx.SentCurrency = sentUnit
	}
	if flow.Received.IsPositive() {
		received := flow.Received
		tx.ReceivedAmount = &received
		tx.ReceivedCurrency = receivedUnit
	}
}

// applyClassification resolves type and tag. Decision order: coinbase,
// perpetual-futures fill, explicit hint, then direction.
func (c *Classifier) applyClassification(tx *domain.CanonicalTransaction, e *domain.RawLedgerEntry, flow NetFlow) {
	if flow.Coinbase {
		tx.Type = domain.TxTransferReceived
		tx.Tag = domain.TagReceive
		tx.Notes = "mining reward"
		return
	}

	if flow.Derived {
		tx.Type = domain.TxEmissionReward
		tx.Tag = domain.TagClaimRewards
		tx.Notes = "inferred from balance history"
		return
	}

	if cls, ok := c.tables.Lookup(e.Hint); ok {
		tx.Type = cls.Type
		tx.Tag = cls.Tag
		tx.Notes = cls.Note
		return
	}

	// A fill is a position change, not a transfer. Without running
	// per-market position state this is a heuristic: non-zero realized
	// profit/loss or a liquidation marker means a close, anything else an
	// open. The detector flags every such record.
	if e.RealizedPnL != nil {
		tx.Type = domain.TxSwap
		if !e.RealizedPnL.IsZero() || e.Liquidation {
			tx.Tag = domain.TagClosePosition
		} else {
			tx.Tag = domain.TagOpenPosition
		}
		tx.Notes = "position direction inferred from fill"
		return
	}

	switch {
	case flow.Sent.IsPositive() && flow.Received.IsZero():
		tx.Type = domain.TxTransferSent
		tx.Tag = domain.TagPayment
	case flow.Received.IsPositive() && flow.Sent.IsZero():
		tx.Type = domain.TxTransferReceived
		tx.Tag = domain.TagReceive
	case flow.Sent.IsPositive() && flow.Received.IsPositive():
		// Two-sided value exchange. Same-currency both-sides data is a
		// caller error; it stays a swap and the detector flags it.
		tx.Type = domain.TxSwap
		tx.Tag = domain.TagTrade
	default:
		// Fee-only: a zero-value administrative action whose direction was
		// assumed rather than observed.
		tx.Type = domain.TxApprove
		tx.Tag = domain.TagPayment
		tx.Notes = "fee-only administrative action"
	}
}

// entryID returns the stable source-qualified id. Source-reported entries
// already carry one; engine-derived entries get a deterministic digest so a
// re-run of the same series produces the same ledger.
func entryID(wallet string, e *domain.RawLedgerEntry, flow NetFlow) string {
	if e.ID != "" {
		return fmt.Sprintf("%s:%s:%s", e.Source, e.Category, e.ID)
	}

	seed := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		e.Source, e.Category, wallet,
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		flow.Received.String(), e.Unit,
	)
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("%s:%s:%s", e.Source, e.Category, hex.EncodeToString(sum[:8]))
}
