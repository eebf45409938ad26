package canon

import (
	"fmt"

	"github.com/robklg/canon/internal/store"
)

// Canon orchestrates the scan/enrich/cluster/apply pipeline over a single
// SQLite-backed store.
type Canon struct {
	store *store.Store
}

// Open opens (creating if necessary) a Canon store at dbPath and runs
// migrations.
func Open(dbPath string) (*Canon, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("canon: open store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("canon: migrate: %w", err)
	}
	return &Canon{store: s}, nil
}

// Close releases the Canon's database resources.
func (c *Canon) Close() error {
	return c.store.Close()
}

// Store returns the underlying store, for callers (chiefly the CLI) that
// need direct access for housekeeping commands like `roots list`.
func (c *Canon) Store() *store.Store {
	return c.store
}
