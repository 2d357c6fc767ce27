package usecase

import (
	"testing"
	"time"

	"github.com/iho/chainledger/internal/domain"
)

var testTime = time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)

func TestClassifyUTXOTransferSent(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "tx1", Source: "blockchair", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeUTXO, Unit: "BTC",
		Inputs:  []domain.Participant{{Address: "walletA", Amount: dec("10")}},
		Outputs: []domain.Participant{{Address: "walletB", Amount: dec("9.5")}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if tx.Type != domain.TxTransferSent || tx.Tag != domain.TagPayment {
		t.Fatalf("expected transfer_sent/payment, got %s/%s", tx.Type, tx.Tag)
	}
	if tx.SentAmount == nil || !tx.SentAmount.Equal(dec("10")) {
		t.Fatalf("expected sent 10, got %v", tx.SentAmount)
	}
	if tx.ReceivedAmount != nil {
		t.Fatalf("expected nil received, got %v", tx.ReceivedAmount)
	}
	if !tx.FeeAmount.Equal(dec("0.5")) {
		t.Fatalf("expected fee 0.5, got %s", tx.FeeAmount)
	}
	if tx.ID != "blockchair:transfers:tx1" {
		t.Fatalf("unexpected id %s", tx.ID)
	}
}

func TestClassifyCoinbaseIsMiningReward(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "cb1", Source: "blockchair", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeUTXO, Unit: "BTC",
		Outputs: []domain.Participant{
			{Address: "walletA", Amount: dec("5")},
		},
		// A hint must not override the coinbase rule.
		Hint: "Swap",
	})
	if err != nil {
		t.Fatal(err)
	}

	if tx.Type != domain.TxTransferReceived {
		t.Fatalf("expected transfer_received, got %s", tx.Type)
	}
	if tx.Notes != "mining reward" {
		t.Fatalf("expected mining reward note, got %q", tx.Notes)
	}
	if tx.ReceivedAmount == nil || !tx.ReceivedAmount.Equal(dec("5")) {
		t.Fatalf("expected received 5, got %v", tx.ReceivedAmount)
	}
	if !tx.FeeAmount.IsZero() {
		t.Fatalf("coinbase must carry no fee, got %s", tx.FeeAmount)
	}
}

func TestClassifyHintTableFirst(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tests := []struct {
		hint     string
		delta    string
		wantType domain.TxType
		wantTag  domain.TaxTag
	}{
		{"ValidatorStake", "-100", domain.TxStake, domain.TagStakingDeposit},
		{"Unbond", "100", domain.TxUnbond, domain.TagUnstakingWithdraw},
		{"PayoutStakers", "3.2", domain.TxEmissionReward, domain.TagClaimRewards},
		{"Slash", "-1", domain.TxSlash, domain.TagLost},
		{"Airdrop", "50", domain.TxAirdrop, domain.TagReceive},
		{"NftTransferOut", "-1", domain.TxNFTSent, domain.TagGiftSent},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
				ID: "h1", Source: "subscan", Category: "staking",
				Timestamp: testTime, Mode: domain.ModeAccount, Unit: "DOT",
				Delta: dec(tt.delta), Hint: tt.hint,
			})
			if err != nil {
				t.Fatal(err)
			}
			if tx.Type != tt.wantType || tx.Tag != tt.wantTag {
				t.Fatalf("hint %s: expected %s/%s, got %s/%s", tt.hint, tt.wantType, tt.wantTag, tx.Type, tx.Tag)
			}
		})
	}
}

func TestClassifyDirectionalFallback(t *testing.T) {
	c := NewClassifier(DefaultTables())

	sent, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "d1", Source: "algoexplorer", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "ALGO", Delta: dec("-4"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sent.Type != domain.TxTransferSent || sent.Tag != domain.TagPayment {
		t.Fatalf("expected transfer_sent/payment, got %s/%s", sent.Type, sent.Tag)
	}

	received, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "d2", Source: "algoexplorer", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "ALGO", Delta: dec("4"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if received.Type != domain.TxTransferReceived || received.Tag != domain.TagReceive {
		t.Fatalf("expected transfer_received/receive, got %s/%s", received.Type, received.Tag)
	}
}

func TestClassifyTwoSidedBecomesSwap(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "s1", Source: "dexscreener", Category: "trades",
		Timestamp: testTime, Mode: domain.ModeAccount,
		OutAmount: dec("1"), OutUnit: "ETH",
		InAmount: dec("3000"), InUnit: "USDC",
	})
	if err != nil {
		t.Fatal(err)
	}

	if tx.Type != domain.TxSwap || tx.Tag != domain.TagTrade {
		t.Fatalf("expected swap/trade, got %s/%s", tx.Type, tx.Tag)
	}
	if tx.SentCurrency != "ETH" || tx.ReceivedCurrency != "USDC" {
		t.Fatalf("expected ETH->USDC, got %s->%s", tx.SentCurrency, tx.ReceivedCurrency)
	}
}

func TestClassifyFeeOnlyAdministrativeAction(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "f1", Source: "xrpscan", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "XRP",
		Fee: dec("0.00001"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if tx.Type != domain.TxApprove || tx.Tag != domain.TagPayment {
		t.Fatalf("expected approve/payment, got %s/%s", tx.Type, tx.Tag)
	}
	if tx.SentAmount != nil || tx.ReceivedAmount != nil {
		t.Fatal("fee-only action must carry no amounts")
	}
}

func TestClassifyDropsEmptyEntries(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "z1", Source: "xrpscan", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "XRP",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx != nil {
		t.Fatalf("expected entry dropped, got %+v", tx)
	}
}

func TestClassifyPerpFills(t *testing.T) {
	c := NewClassifier(DefaultTables())

	open, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "fill1", Source: "dydx", Category: "fills",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "USDC",
		OutAmount: dec("1000"), OutUnit: "USDC",
		InAmount: dec("0.5"), InUnit: "ETH-PERP",
		RealizedPnL: decPtr("0"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if open.Tag != domain.TagOpenPosition {
		t.Fatalf("zero pnl fill should open, got %s", open.Tag)
	}

	closed, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "fill2", Source: "dydx", Category: "fills",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "USDC",
		InAmount: dec("996.8"), InUnit: "USDC",
		OutAmount: dec("0.5"), OutUnit: "ETH-PERP",
		RealizedPnL: decPtr("-3.2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if closed.Tag != domain.TagClosePosition {
		t.Fatalf("non-zero pnl fill should close, got %s", closed.Tag)
	}
	if closed.RealizedPnL == nil || !closed.RealizedPnL.Equal(dec("-3.2")) {
		t.Fatalf("expected pnl -3.2, got %v", closed.RealizedPnL)
	}

	liquidated, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "fill3", Source: "dydx", Category: "fills",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "USDC",
		InAmount: dec("400"), InUnit: "USDC",
		OutAmount: dec("0.2"), OutUnit: "ETH-PERP",
		RealizedPnL: decPtr("0"), Liquidation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if liquidated.Tag != domain.TagClosePosition {
		t.Fatalf("liquidation fill should close, got %s", liquidated.Tag)
	}
	if !liquidated.Liquidation {
		t.Fatal("liquidation marker must survive classification")
	}
}

func TestClassifyDerivedRewardIsDeterministic(t *testing.T) {
	c := NewClassifier(DefaultTables())

	entry := &domain.RawLedgerEntry{
		Source: "subscan", Category: "derived_rewards",
		Timestamp: testTime, Mode: domain.ModeDerived, Unit: "DOT",
		PrevBalance: dec("100"), CurrBalance: dec("102"),
	}

	first, err := c.Classify("walletA", entry)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Classify("walletA", entry)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("derived ids must be deterministic: %q vs %q", first.ID, second.ID)
	}
	if first.Type != domain.TxEmissionReward {
		t.Fatalf("expected emission_reward, got %s", first.Type)
	}
	if first.Notes != "inferred from balance history" {
		t.Fatalf("unexpected note %q", first.Notes)
	}
	if !first.Derived {
		t.Fatal("synthesised reward must carry the derived marker")
	}
}

func TestClassifyCarriesAnomalies(t *testing.T) {
	c := NewClassifier(DefaultTables())

	tx, err := c.Classify("walletA", &domain.RawLedgerEntry{
		ID: "a1", Source: "subscan", Category: "transfers",
		Timestamp: testTime, Mode: domain.ModeAccount, Unit: "DOT",
		Delta: dec("-5"), Fee: dec("-1"),
		Anomalies: []string{"missing_block_time"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(tx.SourceAnomalies) != 2 {
		t.Fatalf("expected adapter and netflow anomalies, got %v", tx.SourceAnomalies)
	}
}
