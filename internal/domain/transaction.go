package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the closed set of canonical transaction types. Every source
// adapter maps into this set; serializers and the tax report depend on it
// staying closed.
type TxType string

const (
	TxTransferSent     TxType = "transfer_sent"
	TxTransferReceived TxType = "transfer_received"
	TxTokenSent        TxType = "token_sent"
	TxTokenReceived    TxType = "token_received"
	TxNFTSent          TxType = "nft_sent"
	TxNFTReceived      TxType = "nft_received"
	TxNFTPurchase      TxType = "nft_purchase"
	TxNFTSale          TxType = "nft_sale"
	TxStake            TxType = "stake"
	TxUnstake          TxType = "unstake"
	TxBond             TxType = "bond"
	TxUnbond           TxType = "unbond"
	TxEmissionReward   TxType = "emission_reward"
	TxSlash            TxType = "slash"
	TxSwap             TxType = "swap"
	TxLiquidityAdd     TxType = "liquidity_add"
	TxLiquidityRemove  TxType = "liquidity_remove"
	TxAirdrop          TxType = "airdrop"
	TxMint             TxType = "mint"
	TxBurn             TxType = "burn"
	TxApprove          TxType = "approve"
)

// TaxTag is the closed set of tax categories, distinct from TxType.
type TaxTag string

const (
	TagPayment           TaxTag = "payment"
	TagReceive           TaxTag = "receive"
	TagStakingDeposit    TaxTag = "staking_deposit"
	TagUnstakingWithdraw TaxTag = "unstaking_withdraw"
	TagClaimRewards      TaxTag = "claim_rewards"
	TagTrade             TaxTag = "trade"
	TagLost              TaxTag = "lost"
	TagGiftSent          TaxTag = "gift_sent"
	TagGiftReceived      TaxTag = "gift_received"
	TagOpenPosition      TaxTag = "open_position"
	TagClosePosition     TaxTag = "close_position"
)

// Ambiguity reason codes. Machine-readable, appended by the ambiguity
// detector only.
const (
	ReasonDerivedReward       = "derived_reward"
	ReasonImplausibleReward   = "implausible_reward_rate"
	ReasonInferredPosition    = "inferred_position_direction"
	ReasonLiquidation         = "liquidation_fill"
	ReasonAssumedDirection    = "assumed_direction"
	ReasonUnresolvedCurrency  = "unresolved_currency"
	ReasonSameCurrencySwap    = "same_currency_swap"
	ReasonMalformedAmount     = "malformed_amount_defaulted"
	ReasonUnclassifiedAnomaly = "unclassified_data_anomaly"
)

// CanonicalTransaction is one economically meaningful event for one wallet.
// Instances are created once by the classifier, enriched with a fiat price,
// and are immutable after reconciliation except for the ambiguity detector's
// flagging pass.
type CanonicalTransaction struct {
	ID               string           `json:"id"`
	Wallet           string           `json:"wallet"`
	Timestamp        time.Time        `json:"timestamp"`
	Type             TxType           `json:"type"`
	Tag              TaxTag           `json:"tag"`
	SentAmount       *decimal.Decimal `json:"sent_amount,omitempty"`
	SentCurrency     string           `json:"sent_currency,omitempty"`
	ReceivedAmount   *decimal.Decimal `json:"received_amount,omitempty"`
	ReceivedCurrency string           `json:"received_currency,omitempty"`
	FeeAmount        decimal.Decimal  `json:"fee_amount"`
	FeeCurrency      string           `json:"fee_currency,omitempty"`
	CounterpartyHint string           `json:"counterparty_hint,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	FiatPriceAtEvent *decimal.Decimal `json:"fiat_price_at_event,omitempty"`
	RealizedPnL      *decimal.Decimal `json:"realized_pnl,omitempty"`
	Liquidation      bool             `json:"liquidation,omitempty"`

	// Derived marks a record the engine synthesised from balance
	// observations rather than a source-reported event.
	Derived bool `json:"derived,omitempty"`

	// SourceAnomalies records substitutions the net-flow calculator made for
	// malformed source data. The ambiguity detector translates them into
	// reason codes; nothing else reads them.
	SourceAnomalies []string `json:"source_anomalies,omitempty"`

	IsAmbiguous      bool     `json:"is_ambiguous"`
	AmbiguousReasons []string `json:"ambiguous_reasons,omitempty"`
}

// Validate checks the invariants every transaction must satisfy before it
// may enter the reconciler.
func (t *CanonicalTransaction) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}

	if t.SentAmount == nil && t.ReceivedAmount == nil && !t.FeeAmount.IsPositive() && t.RealizedPnL == nil {
		return ErrNoValue
	}

	if t.FeeAmount.IsNegative() {
		return ErrNegativeFee
	}

	if !ValidTxType(t.Type) || !ValidTaxTag(t.Tag) {
		return ErrUnknownClassification
	}

	return nil
}

// Flag appends a reason code, keeping the list deduplicated and ordered.
// Only the ambiguity detector calls this.
func (t *CanonicalTransaction) Flag(reason string) {
	for _, r := range t.AmbiguousReasons {
		if r == reason {
			return
		}
	}
	t.AmbiguousReasons = append(t.AmbiguousReasons, reason)
	t.IsAmbiguous = true
}

// EventDate returns the UTC calendar day of the event, the key used by the
// price enrichment join.
func (t *CanonicalTransaction) EventDate() string {
	return t.Timestamp.UTC().Format("2006-01-02")
}

// PrincipalCurrency is the currency a fiat unit price refers to: the
// received side for inflows and swaps, otherwise the sent side.
func (t *CanonicalTransaction) PrincipalCurrency() string {
	if t.ReceivedAmount != nil && t.ReceivedCurrency != "" {
		return t.ReceivedCurrency
	}
	if t.SentAmount != nil && t.SentCurrency != "" {
		return t.SentCurrency
	}
	return t.FeeCurrency
}
