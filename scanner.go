package canon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/robklg/canon/internal/fsstat"
	"github.com/robklg/canon/internal/store"
)

// defaultSkipGlobs are always honored, on top of any caller-supplied
// SkipGlobs, so a scan never descends into VCS metadata.
var defaultSkipGlobs = []string{".git", ".git/**"}

// ScanCounts tallies the outcome of a single scan.
type ScanCounts struct {
	New       int
	Updated   int
	Moved     int
	Unchanged int
	Missing   int
	// BytesSeen sums the size of every file matched or created during the
	// walk (new + updated + moved + unchanged), for a human-readable
	// scan summary.
	BytesSeen int64
}

// ScanOptions configures a single scan invocation.
type ScanOptions struct {
	Role store.Role
	// SkipGlobs are doublestar patterns, matched against the root-relative
	// slash-form path, of files and directories the walk should not
	// descend into or record. Combined with defaultSkipGlobs.
	SkipGlobs []string
}

// ScanWarning reports a per-entry problem encountered during a walk; the
// walk continues past it.
type ScanWarning struct {
	Path string
	Err  error
}

func (w ScanWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Err)
}

// Scan walks rootPath, reconciling every regular file it finds against
// stored sources under a root of the given role. It implements the lookup
// priority of an exact (root, relative path) match, then a (device, inode)
// match elsewhere in the store (a move), then treats the file as new.
//
// Symlinks and unreadable entries are skipped and reported as warnings;
// the walk continues. Sources under this root not observed during the
// walk are reported as missing but never deleted (pruning is explicit).
func (c *Canon) Scan(rootPath string, opts ScanOptions) (ScanCounts, []ScanWarning, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return ScanCounts{}, nil, fmt.Errorf("canon: scan: resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	root, err := c.store.FindOrCreateRoot(abs, opts.Role)
	if err != nil {
		return ScanCounts{}, nil, fmt.Errorf("canon: scan: %w", err)
	}

	generation, err := c.store.NextGeneration(root.ID)
	if err != nil {
		return ScanCounts{}, nil, fmt.Errorf("canon: scan: %w", err)
	}

	skipGlobs := append(append([]string{}, defaultSkipGlobs...), opts.SkipGlobs...)

	var counts ScanCounts
	var warnings []ScanWarning

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			warnings = append(warnings, ScanWarning{Path: path, Err: err})
			return nil
		}
		if path == abs {
			return nil
		}
		relPath, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			warnings = append(warnings, ScanWarning{Path: path, Err: relErr})
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if matchesSkipGlob(relPath, skipGlobs) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			warnings = append(warnings, ScanWarning{Path: path, Err: fmt.Errorf("skipping symlink")})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			warnings = append(warnings, ScanWarning{Path: path, Err: err})
			return nil
		}

		if err := c.reconcile(root.ID, relPath, info, generation, &counts); err != nil {
			warnings = append(warnings, ScanWarning{Path: path, Err: err})
		}
		return nil
	})
	if walkErr != nil {
		return counts, warnings, fmt.Errorf("canon: scan: walk: %w", walkErr)
	}

	missing, err := c.store.MissingSources(root.ID, generation)
	if err != nil {
		return counts, warnings, fmt.Errorf("canon: scan: %w", err)
	}
	counts.Missing = len(missing)

	return counts, warnings, nil
}

// matchesSkipGlob reports whether relPath itself matches any of globs.
// Ancestor directories are not checked here; the walk skips a matched
// directory's contents by returning filepath.SkipDir.
func matchesSkipGlob(relPath string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Canon) reconcile(rootID int64, relPath string, info os.FileInfo, generation int64, counts *ScanCounts) error {
	size := info.Size()
	counts.BytesSeen += size
	mtime := info.ModTime().Unix()
	device, inode := fsstat.DeviceInode(info)
	filename := filepath.Base(relPath)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(relPath), "."))

	existing, err := c.store.SourceByRootRelPath(rootID, relPath)
	if err != nil {
		return fmt.Errorf("lookup by path: %w", err)
	}
	if existing != nil {
		changed := existing.Size != size || existing.Mtime != mtime
		existing.Size, existing.Mtime = size, mtime
		existing.Device, existing.Inode = device, inode
		existing.Filename, existing.Ext = filename, ext
		existing.SeenRev = generation
		if changed {
			existing.BasisRev++
			counts.Updated++
		} else {
			counts.Unchanged++
		}
		if err := c.store.UpdateSource(existing); err != nil {
			return fmt.Errorf("update source: %w", err)
		}
		return nil
	}

	// Physical identity of (0, 0) means the platform gave us nothing to
	// match on; treating it as a move signal would glue unrelated files
	// together.
	var moved *store.Source
	if device != 0 || inode != 0 {
		moved, err = c.store.SourceByDeviceInode(device, inode)
		if err != nil {
			return fmt.Errorf("lookup by device/inode: %w", err)
		}
	}
	if moved != nil {
		changed := moved.Size != size || moved.Mtime != mtime
		moved.RootID = rootID
		moved.RelPath = relPath
		moved.Filename, moved.Ext = filename, ext
		moved.Size, moved.Mtime = size, mtime
		moved.Device, moved.Inode = device, inode
		moved.SeenRev = generation
		if changed {
			moved.BasisRev++
		}
		if err := c.store.UpdateSource(moved); err != nil {
			return fmt.Errorf("update moved source: %w", err)
		}
		counts.Moved++
		return nil
	}

	src := &store.Source{
		RootID:   rootID,
		RelPath:  relPath,
		Filename: filename,
		Ext:      ext,
		Size:     size,
		Mtime:    mtime,
		Device:   device,
		Inode:    inode,
		BasisRev: 0,
		SeenRev:  generation,
	}
	if _, err := c.store.InsertSource(src); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	counts.New++
	return nil
}
