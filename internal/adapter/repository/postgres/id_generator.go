package postgres

import (
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates run IDs that sort by creation time, so the
// latest-run query can break started_at ties on the ID.
type ULIDGenerator struct{}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}
