package domain

import (
	"errors"
	"fmt"
)

var (
	// Transaction invariant errors
	ErrMissingID             = errors.New("transaction has no id")
	ErrNoValue               = errors.New("transaction has neither sent nor received value")
	ErrNegativeFee           = errors.New("fee amount must be non-negative")
	ErrUnknownClassification = errors.New("unknown transaction type or tax tag")

	// Raw entry errors
	ErrUnknownMode = errors.New("unknown accounting mode")

	// Export errors
	ErrWalletNotFound = errors.New("wallet has no on-chain activity")

	// Cache errors
	ErrCacheMiss = errors.New("cache miss")
)

// ErrorKind classifies a source-adapter failure. It drives the fetch
// orchestrator's retry policy and the export's partial-result handling.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindRateLimited   ErrorKind = "rate_limited"
	KindTransient     ErrorKind = "transient"
	KindDataAnomaly   ErrorKind = "data_anomaly"
	KindPartialResult ErrorKind = "partial_result"
)

// SourceError wraps a failure from a source adapter with its kind and
// provenance. NotFound carries a remediation hint for the caller.
type SourceError struct {
	Err      error
	Kind     ErrorKind
	Source   string
	Category string
	Hint     string
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s/%s: %s", e.Source, e.Category, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retryable reports whether the orchestrator may retry the failed call.
// NotFound cannot change by retrying; anomalies are data, not transport.
func (e *SourceError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// NewNotFound builds the terminal no-activity error with its standard
// remediation hint.
func NewNotFound(source, category string) *SourceError {
	return &SourceError{
		Kind:     KindNotFound,
		Source:   source,
		Category: category,
		Hint:     "address may not be activated",
		Err:      ErrWalletNotFound,
	}
}

// KindOf extracts the ErrorKind from err, defaulting to Transient for
// errors that did not originate in a source adapter.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}
