package canon

import (
	"fmt"
	"strings"

	"github.com/robklg/canon/internal/store"
)

// FactDeletion summarizes what a facts-delete run removed, or (for a dry
// run) would remove.
type FactDeletion struct {
	Sources     int   // sources in scope
	SourceFacts int64 // fact rows on the sources themselves
	ObjectFacts int64 // fact rows on their linked objects
}

// DeleteFactKey removes every fact with the given key from the sources
// matching opts and from their linked objects. Unless execute is true it
// only counts and leaves the store untouched; the actual deletion is a
// single transaction that fails fast.
func (c *Canon) DeleteFactKey(opts CoverageOptions, key string, execute bool) (FactDeletion, error) {
	if strings.HasPrefix(key, protectedSourceNamespace) {
		return FactDeletion{}, fmt.Errorf("canon: facts delete: %q is derived from the file, not stored", key)
	}

	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, opts.IncludeArchived, opts.IncludeExcluded)
	if err != nil {
		return FactDeletion{}, fmt.Errorf("canon: facts delete: %w", err)
	}
	ids := store.SourceIDs(sources)
	del := FactDeletion{Sources: len(sources)}

	if !execute {
		del.SourceFacts, del.ObjectFacts, err = c.store.CountFactsByKey(ids, key)
		if err != nil {
			return FactDeletion{}, fmt.Errorf("canon: facts delete: %w", err)
		}
		return del, nil
	}

	tx, err := c.store.DB().Begin()
	if err != nil {
		return FactDeletion{}, fmt.Errorf("canon: facts delete: begin transaction: %w", err)
	}
	defer tx.Rollback()

	del.SourceFacts, del.ObjectFacts, err = store.DeleteFactsByKey(tx, ids, key)
	if err != nil {
		return FactDeletion{}, fmt.Errorf("canon: facts delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return FactDeletion{}, fmt.Errorf("canon: facts delete: commit: %w", err)
	}
	return del, nil
}
