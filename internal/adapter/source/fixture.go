package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/iho/chainledger/internal/domain"
)

// FixtureFetcher serves raw entries from memory, paged. It backs offline
// exports from dumped source payloads and the orchestrator's tests.
type FixtureFetcher struct {
	source   string
	cats     []string
	pageSize int
	entries  map[string][]*domain.RawLedgerEntry
}

// NewFixtureFetcher creates an empty fetcher for source with the given
// category order.
func NewFixtureFetcher(source string, categories ...string) *FixtureFetcher {
	return &FixtureFetcher{
		source:   source,
		cats:     categories,
		pageSize: 100,
		entries:  make(map[string][]*domain.RawLedgerEntry),
	}
}

// LoadFixture reads a JSON array of raw entries and groups them into
// category streams by each entry's own category field.
func LoadFixture(r io.Reader, source string) (*FixtureFetcher, error) {
	var entries []*domain.RawLedgerEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	f := NewFixtureFetcher(source)
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Category == "" {
			return nil, fmt.Errorf("fixture entry %q has no category", e.ID)
		}
		if !seen[e.Category] {
			seen[e.Category] = true
			f.cats = append(f.cats, e.Category)
		}
		f.entries[e.Category] = append(f.entries[e.Category], e)
	}
	return f, nil
}

// LoadFixtureFile reads a fixture from path.
func LoadFixtureFile(path, source string) (*FixtureFetcher, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return LoadFixture(file, source)
}

// Add appends entries to a category stream, registering the category if
// new.
func (f *FixtureFetcher) Add(category string, entries ...*domain.RawLedgerEntry) {
	if _, ok := f.entries[category]; !ok {
		found := false
		for _, c := range f.cats {
			if c == category {
				found = true
				break
			}
		}
		if !found {
			f.cats = append(f.cats, category)
		}
	}
	f.entries[category] = append(f.entries[category], entries...)
}

// SetPageSize overrides the default page size of 100.
func (f *FixtureFetcher) SetPageSize(n int) {
	if n > 0 {
		f.pageSize = n
	}
}

func (f *FixtureFetcher) Source() string       { return f.source }
func (f *FixtureFetcher) Categories() []string { return f.cats }

// FetchPage serves one page, applying the optional time window. An
// unknown category reports not found like a live source would.
func (f *FixtureFetcher) FetchPage(ctx context.Context, wallet, category string, page int, from, to *time.Time) ([]*domain.RawLedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	all, ok := f.entries[category]
	if !ok {
		return nil, false, domain.NewNotFound(f.source, category)
	}

	filtered := make([]*domain.RawLedgerEntry, 0, len(all))
	for _, e := range all {
		if from != nil && e.Timestamp.Before(*from) {
			continue
		}
		if to != nil && e.Timestamp.After(*to) {
			continue
		}
		filtered = append(filtered, e)
	}

	start := page * f.pageSize
	if start >= len(filtered) {
		return nil, false, nil
	}
	end := start + f.pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], end < len(filtered), nil
}
