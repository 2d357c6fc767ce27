package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestCanonicalTransactionValidate(t *testing.T) {
	base := func() CanonicalTransaction {
		return CanonicalTransaction{
			ID:           "dot:transfers:0xabc-1",
			Wallet:       "walletA",
			Timestamp:    time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC),
			Type:         TxTransferSent,
			Tag:          TagPayment,
			SentAmount:   decPtr("10"),
			SentCurrency: "DOT",
			FeeAmount:    dec("0.01"),
			FeeCurrency:  "DOT",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CanonicalTransaction)
		wantErr error
	}{
		{
			name:   "valid transfer",
			mutate: func(tx *CanonicalTransaction) {},
		},
		{
			name: "missing id",
			mutate: func(tx *CanonicalTransaction) {
				tx.ID = ""
			},
			wantErr: ErrMissingID,
		},
		{
			name: "no value and no fee",
			mutate: func(tx *CanonicalTransaction) {
				tx.SentAmount = nil
				tx.ReceivedAmount = nil
				tx.FeeAmount = decimal.Zero
			},
			wantErr: ErrNoValue,
		},
		{
			name: "fee-only administrative action is valid",
			mutate: func(tx *CanonicalTransaction) {
				tx.SentAmount = nil
				tx.ReceivedAmount = nil
				tx.Type = TxApprove
			},
		},
		{
			name: "negative fee",
			mutate: func(tx *CanonicalTransaction) {
				tx.FeeAmount = dec("-0.5")
			},
			wantErr: ErrNegativeFee,
		},
		{
			name: "unknown type",
			mutate: func(tx *CanonicalTransaction) {
				tx.Type = TxType("teleport")
			},
			wantErr: ErrUnknownClassification,
		},
		{
			name: "unknown tag",
			mutate: func(tx *CanonicalTransaction) {
				tx.Tag = TaxTag("speculation")
			},
			wantErr: ErrUnknownClassification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := base()
			tt.mutate(&tx)

			err := tx.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFlagIsAdditiveAndDeduplicated(t *testing.T) {
	tx := CanonicalTransaction{ID: "x"}

	tx.Flag(ReasonDerivedReward)
	tx.Flag(ReasonImplausibleReward)
	tx.Flag(ReasonDerivedReward)

	if !tx.IsAmbiguous {
		t.Fatal("expected IsAmbiguous after flagging")
	}
	if len(tx.AmbiguousReasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", tx.AmbiguousReasons)
	}
	if tx.AmbiguousReasons[0] != ReasonDerivedReward || tx.AmbiguousReasons[1] != ReasonImplausibleReward {
		t.Fatalf("reason order not preserved: %v", tx.AmbiguousReasons)
	}
}

func TestEventDateUsesUTCCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	tx := CanonicalTransaction{Timestamp: time.Date(2023, 4, 2, 1, 30, 0, 0, loc)}

	if got := tx.EventDate(); got != "2023-04-01" {
		t.Fatalf("expected 2023-04-01, got %s", got)
	}
}

func TestPrincipalCurrency(t *testing.T) {
	swap := CanonicalTransaction{
		SentAmount: decPtr("1"), SentCurrency: "ETH",
		ReceivedAmount: decPtr("3000"), ReceivedCurrency: "USDC",
	}
	if swap.PrincipalCurrency() != "USDC" {
		t.Fatalf("swap principal should be received side, got %s", swap.PrincipalCurrency())
	}

	sent := CanonicalTransaction{SentAmount: decPtr("1"), SentCurrency: "ETH"}
	if sent.PrincipalCurrency() != "ETH" {
		t.Fatalf("expected ETH, got %s", sent.PrincipalCurrency())
	}

	feeOnly := CanonicalTransaction{FeeCurrency: "ALGO"}
	if feeOnly.PrincipalCurrency() != "ALGO" {
		t.Fatalf("expected ALGO, got %s", feeOnly.PrincipalCurrency())
	}
}

func TestSourceErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindNotFound, false},
		{KindRateLimited, true},
		{KindTransient, true},
		{KindDataAnomaly, false},
		{KindPartialResult, false},
	}

	for _, tt := range tests {
		se := &SourceError{Kind: tt.kind, Source: "subscan", Category: "transfers"}
		if se.Retryable() != tt.want {
			t.Errorf("kind %s: expected retryable=%v", tt.kind, tt.want)
		}
	}
}

func TestNewNotFoundCarriesHintAndSentinel(t *testing.T) {
	err := NewNotFound("blockchair", "transfers")

	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatal("expected ErrWalletNotFound in chain")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found kind, got %s", KindOf(err))
	}
	if err.Hint == "" {
		t.Fatal("expected remediation hint")
	}
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	if KindOf(errors.New("connection reset")) != KindTransient {
		t.Fatal("plain errors should map to transient")
	}
}
