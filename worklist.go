package canon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/robklg/canon/internal/filter"
	"github.com/robklg/canon/internal/store"
)

// WorklistRecord is a single line of the worklist stream: the contract
// external enrichment tools consume.
type WorklistRecord struct {
	SourceID int64  `json:"source_id"`
	Path     string `json:"path"`
	RootID   int64  `json:"root_id"`
	Size     int64  `json:"size"`
	Mtime    int64  `json:"mtime"`
	BasisRev int64  `json:"basis_rev"`
}

// WorklistOptions configures the scope of a worklist export.
type WorklistOptions struct {
	// Filters are combined with AND when multiple are given.
	Filters []string
	// Subpath restricts the worklist to sources whose relative path starts
	// with this prefix, within their root.
	Subpath string
	// IncludeArchived lifts the default restriction to source-role roots.
	IncludeArchived bool
	// IncludeExcluded additionally includes sources carrying
	// policy.exclude = true.
	IncludeExcluded bool
}

// matchingSourcesForScope compiles the filter, folds in worklist/cluster
// scope rules (role restriction, exclude gate, subpath), and returns the
// matching sources. Shared by the worklist producer and the coverage
// subsystem so they agree on what "matching a filter" means.
func (c *Canon) matchingSourcesForScope(filters []string, subpath string, includeArchived, includeExcluded bool) ([]*store.Source, error) {
	node, err := filter.ParseAll(filters)
	if err != nil {
		return nil, err
	}
	compiled, err := filter.Compile(node)
	if err != nil {
		return nil, err
	}

	var scopeParts []string
	var scopeArgs []any

	if !includeArchived {
		scopeParts = append(scopeParts, `s.root_id IN (SELECT id FROM roots WHERE role = ?)`)
		scopeArgs = append(scopeArgs, string(store.RoleSource))
	}
	if !includeExcluded {
		scopeParts = append(scopeParts,
			`NOT EXISTS (SELECT 1 FROM source_facts sf WHERE sf.source_id = s.id AND sf.key = 'policy.exclude' AND sf.value = 'true')`)
	}
	if subpath != "" {
		scopeParts = append(scopeParts, `s.rel_path LIKE ? ESCAPE '\'`)
		scopeArgs = append(scopeArgs, likePrefix(subpath)+"%")
	}

	scopeSQL := "1=1"
	if len(scopeParts) > 0 {
		scopeSQL = strings.Join(scopeParts, " AND ")
	}

	return c.store.MatchingSources(compiled, scopeSQL, scopeArgs)
}

// likePrefix escapes LIKE metacharacters in a literal prefix.
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Worklist streams a snapshot of sources matching opts to w as
// line-delimited JSON records. Paths are absolute so external enrichment
// tools can open the files without knowing about roots.
func (c *Canon) Worklist(w io.Writer, opts WorklistOptions) error {
	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, opts.IncludeArchived, opts.IncludeExcluded)
	if err != nil {
		return fmt.Errorf("canon: worklist: %w", err)
	}

	rootPaths := make(map[int64]string)
	roots, err := c.store.ListRoots()
	if err != nil {
		return fmt.Errorf("canon: worklist: %w", err)
	}
	for _, r := range roots {
		rootPaths[r.ID] = r.Path
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, src := range sources {
		rec := WorklistRecord{
			SourceID: src.ID,
			Path:     filepath.Join(rootPaths[src.RootID], filepath.FromSlash(src.RelPath)),
			RootID:   src.RootID,
			Size:     src.Size,
			Mtime:    src.Mtime,
			BasisRev: src.BasisRev,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("canon: worklist: encode: %w", err)
		}
	}
	return bw.Flush()
}
