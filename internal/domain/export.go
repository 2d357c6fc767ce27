package domain

import "time"

// ExportRun records one reconciliation run for one wallet. Re-running an
// export replaces the wallet's ledger atomically; runs are how callers
// correlate a stored ledger with the fetch that produced it.
type ExportRun struct {
	ID           string    `json:"id"`
	Wallet       string    `json:"wallet"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Partial      bool      `json:"partial"`
	Transactions int       `json:"transactions"`
}
