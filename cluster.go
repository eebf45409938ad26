package canon

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robklg/canon/internal/manifest"
	"github.com/robklg/canon/internal/store"
)

// ClusterOptions configures a manifest generation run.
type ClusterOptions struct {
	Filters []string
	Subpath string
	// Dest is a path inside a registered archive root; its root becomes the
	// manifest's target and the absolute, cleaned Dest path becomes base_dir.
	Dest string
	// Pattern is the output pattern; defaults to "{hash_short}/{filename}".
	Pattern string
}

const defaultClusterPattern = "{hash_short}/{filename}"

// Cluster resolves opts.Dest to a registered archive root, enumerates
// sources matching the filter (excluding anything carrying
// policy.exclude = true, a hard gate with no override), and builds a
// self-contained manifest with destinations precomputed.
func (c *Canon) Cluster(opts ClusterOptions) (*manifest.Manifest, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = defaultClusterPattern
	}

	archiveRoot, baseDir, err := c.resolveArchiveDest(opts.Dest)
	if err != nil {
		return nil, fmt.Errorf("canon: cluster: %w", err)
	}

	// The exclude gate is hard here: cluster never includes excluded
	// sources, regardless of flags.
	sources, err := c.matchingSourcesForScope(opts.Filters, opts.Subpath, false, false)
	if err != nil {
		return nil, fmt.Errorf("canon: cluster: %w", err)
	}

	entries := make([]manifest.Entry, 0, len(sources))
	for _, src := range sources {
		facts, err := c.store.EffectiveFacts(src)
		if err != nil {
			return nil, fmt.Errorf("canon: cluster: %w", err)
		}

		var obj *store.Object
		if src.ObjectID != nil {
			obj, err = c.store.ObjectByID(*src.ObjectID)
			if err != nil {
				return nil, fmt.Errorf("canon: cluster: %w", err)
			}
		}

		dest, err := expandPattern(pattern, src, obj, facts)
		if err != nil {
			return nil, fmt.Errorf("canon: cluster: source %d: %w", src.ID, err)
		}

		root, err := c.store.RootByID(src.RootID)
		if err != nil {
			return nil, fmt.Errorf("canon: cluster: %w", err)
		}
		var absPath string
		if root != nil {
			absPath = filepath.Join(root.Path, filepath.FromSlash(src.RelPath))
		}

		entries = append(entries, manifest.Entry{
			SourceID: src.ID,
			RootID:   src.RootID,
			BasisRev: src.BasisRev,
			Path:     absPath,
			Dest:     dest,
			Facts:    facts,
		})
	}

	return &manifest.Manifest{
		Query:         opts.Filters,
		ArchiveRootID: archiveRoot.ID,
		GeneratedAt:   time.Now().UTC(),
		RunID:         uuid.NewString(),
		Output: manifest.Output{
			Pattern: pattern,
			BaseDir: baseDir,
		},
		Entries: entries,
	}, nil
}

// resolveArchiveDest finds the registered archive root containing dest and
// returns it alongside the absolute base directory inside it.
func (c *Canon) resolveArchiveDest(dest string) (*store.Root, string, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, "", fmt.Errorf("resolve dest: %w", err)
	}
	abs = filepath.Clean(abs)

	roots, err := c.store.ListRoots()
	if err != nil {
		return nil, "", err
	}

	var best *store.Root
	for _, r := range roots {
		if r.Role != store.RoleArchive {
			continue
		}
		if abs != r.Path && !strings.HasPrefix(abs, r.Path+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("%s is not inside any registered archive root", dest)
	}

	return best, abs, nil
}
