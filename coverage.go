package canon

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/robklg/canon/internal/store"
)

// coreBuiltinKeys are always included in a fact overview: every source
// carries them, so their coverage is trivially 1.0, but listing them keeps
// the overview a complete picture of what a filter can key on.
var coreBuiltinKeys = []string{"source.filename", "source.ext", "source.size", "source.mtime", "source.basis_rev"}

// verboseBuiltinKeys are additionally included when --all is requested.
var verboseBuiltinKeys = []string{"source.root", "source.rel_path", "source.device", "source.inode"}

// FactCoverage is one row of a fact overview: a key and how many of the N
// sources in scope carry it.
type FactCoverage struct {
	Key      string
	Count    int
	Fraction float64
}

// CoverageOptions scopes a coverage query the same way a worklist is scoped.
type CoverageOptions struct {
	Filters         []string
	Subpath         string
	IncludeArchived bool
	IncludeExcluded bool
}

// FactOverview reports, for every fact key observed on any source in scope
// (directly or via its linked object), the number of sources carrying it and
// the coverage fraction. Sorted by count descending, ties broken
// lexicographically by key. When all is true, verbose built-ins (root,
// rel_path, device, inode) are included alongside the core built-ins and
// every observed content/policy key.
func (c *Canon) FactOverview(opts CoverageOptions, all bool) ([]FactCoverage, int, error) {
	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, opts.IncludeArchived, opts.IncludeExcluded)
	if err != nil {
		return nil, 0, fmt.Errorf("canon: facts overview: %w", err)
	}
	n := len(sources)

	counts := make(map[string]int)
	for _, key := range coreBuiltinKeys {
		counts[key] = n
	}
	if all {
		for _, key := range verboseBuiltinKeys {
			counts[key] = n
		}
	}

	for _, src := range sources {
		facts, err := c.store.EffectiveFacts(src)
		if err != nil {
			return nil, 0, fmt.Errorf("canon: facts overview: %w", err)
		}
		for key := range facts {
			counts[key]++
		}
	}

	rows := make([]FactCoverage, 0, len(counts))
	for key, count := range counts {
		frac := 0.0
		if n > 0 {
			frac = float64(count) / float64(n)
		}
		rows = append(rows, FactCoverage{Key: key, Count: count, Fraction: frac})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	return rows, n, nil
}

// FactValueCount is one row of a key's value distribution.
type FactValueCount struct {
	Value string
	Count int
}

// FactKeyDetail returns the value distribution for a specific key across
// the sources in scope, sorted by count descending then value ascending. A
// limit of 0 means unlimited; the default limit is 50, applied by callers
// (the CLI layer), not here.
func (c *Canon) FactKeyDetail(opts CoverageOptions, key string, limit int) ([]FactValueCount, error) {
	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, opts.IncludeArchived, opts.IncludeExcluded)
	if err != nil {
		return nil, fmt.Errorf("canon: facts key: %w", err)
	}

	counts := make(map[string]int)
	for _, src := range sources {
		val, ok, err := builtinSourceValue(src, key)
		if err != nil {
			return nil, fmt.Errorf("canon: facts key: %w", err)
		}
		if ok {
			counts[val]++
			continue
		}
		facts, err := c.store.EffectiveFacts(src)
		if err != nil {
			return nil, fmt.Errorf("canon: facts key: %w", err)
		}
		if val, ok := facts[key]; ok {
			counts[val]++
		}
	}

	rows := make([]FactValueCount, 0, len(counts))
	for val, count := range counts {
		rows = append(rows, FactValueCount{Value: val, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Value < rows[j].Value
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// builtinSourceValue returns a built-in source.* key's value for src, and
// whether key names a built-in read from the source row itself.
// source.root is not resolved here and reports false.
func builtinSourceValue(src *store.Source, key string) (string, bool, error) {
	switch key {
	case "source.filename":
		return src.Filename, true, nil
	case "source.ext":
		return src.Ext, true, nil
	case "source.size":
		return strconv.FormatInt(src.Size, 10), true, nil
	case "source.mtime":
		return strconv.FormatInt(src.Mtime, 10), true, nil
	case "source.basis_rev":
		return strconv.FormatInt(src.BasisRev, 10), true, nil
	case "source.device":
		return strconv.FormatUint(src.Device, 10), true, nil
	case "source.inode":
		return strconv.FormatUint(src.Inode, 10), true, nil
	case "source.rel_path":
		return src.RelPath, true, nil
	default:
		return "", false, nil
	}
}

// ArchiveCoverageRow reports, for a single root, how much of it has been
// hashed and how much of that hashed content is present in an archive.
type ArchiveCoverageRow struct {
	RootID     int64
	RootPath   string
	Total      int
	Hashed     int
	Archived   int
	Unarchived int
}

// ArchiveCoverage partitions the sources matching opts by root and reports,
// per root, total/hashed/archived/unarchived counts. If archiveRootID is
// non-nil, "archived" is restricted to objects also present in that one
// archive root.
func (c *Canon) ArchiveCoverage(opts CoverageOptions, archiveRootID *int64) ([]ArchiveCoverageRow, error) {
	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, opts.IncludeArchived, opts.IncludeExcluded)
	if err != nil {
		return nil, fmt.Errorf("canon: facts coverage: %w", err)
	}
	archivedObjects, err := c.store.ArchivedObjectIDs(archiveRootID)
	if err != nil {
		return nil, fmt.Errorf("canon: facts coverage: %w", err)
	}

	type tally struct {
		total, hashed, archived int
	}
	byRoot := make(map[int64]*tally)
	rootPaths := make(map[int64]string)

	for _, src := range sources {
		t, ok := byRoot[src.RootID]
		if !ok {
			t = &tally{}
			byRoot[src.RootID] = t
			root, err := c.store.RootByID(src.RootID)
			if err != nil {
				return nil, fmt.Errorf("canon: facts coverage: %w", err)
			}
			if root != nil {
				rootPaths[src.RootID] = root.Path
			}
		}
		t.total++
		if src.ObjectID == nil {
			continue
		}
		t.hashed++
		if archivedObjects[*src.ObjectID] {
			t.archived++
		}
	}

	rootIDs := make([]int64, 0, len(byRoot))
	for id := range byRoot {
		rootIDs = append(rootIDs, id)
	}
	sort.Slice(rootIDs, func(i, j int) bool { return rootIDs[i] < rootIDs[j] })

	rows := make([]ArchiveCoverageRow, 0, len(rootIDs))
	for _, id := range rootIDs {
		t := byRoot[id]
		rows = append(rows, ArchiveCoverageRow{
			RootID:     id,
			RootPath:   rootPaths[id],
			Total:      t.total,
			Hashed:     t.hashed,
			Archived:   t.archived,
			Unarchived: t.hashed - t.archived,
		})
	}
	return rows, nil
}
