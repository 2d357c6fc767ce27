package usecase

import (
	"sort"

	"github.com/iho/chainledger/internal/domain"
)

// Reconcile merges N per-category transaction streams into one ordered,
// duplicate-free ledger. Stream order is the caller's authority order: when
// two streams report the same id, the earlier stream's record wins and the
// later one is dropped. Output is ascending by timestamp with id as the
// tiebreak, so a re-run over the same input is byte-identical.
//
// Pure function, O(n log n) over the combined input.
func Reconcile(streams ...[]*domain.CanonicalTransaction) []*domain.CanonicalTransaction {
	total := 0
	for _, s := range streams {
		total += len(s)
	}

	seen := make(map[string]bool, total)
	merged := make([]*domain.CanonicalTransaction, 0, total)

	for _, stream := range streams {
		for _, tx := range stream {
			if tx == nil || seen[tx.ID] {
				continue
			}
			seen[tx.ID] = true
			merged = append(merged, tx)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].ID < merged[j].ID
	})

	return merged
}
