package canon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/robklg/canon/internal/fsstat"
	"github.com/robklg/canon/internal/manifest"
	"github.com/robklg/canon/internal/store"
	"github.com/robklg/canon/internal/xfer"
)

// ErrPreflightFailed is returned when apply's pre-flight checks abort the
// whole run (an unregistered archive root, a destination collision, or an
// entry whose source no longer exists). Stale entries are skipped, not fatal.
var ErrPreflightFailed = errors.New("canon: apply: pre-flight failed")

// ErrPartialApply is returned when at least one entry failed
// materialization in Phase C, even though the run as a whole proceeded.
var ErrPartialApply = errors.New("canon: apply: partial failure")

// RootFilter restricts Phase C to sources under one root, specified either
// by id or by canonical path.
type RootFilter struct {
	ByID   bool
	RootID int64
	Path   string
}

func (f *RootFilter) matches(root *store.Root) bool {
	if f == nil {
		return true
	}
	if f.ByID {
		return root.ID == f.RootID
	}
	return root.Path == f.Path
}

// ApplyOptions configures a single apply run.
type ApplyOptions struct {
	Mode                        xfer.Mode
	DryRun                      bool
	AllowCrossArchiveDuplicates bool
	RootFilter                  *RootFilter
}

// EntryOutcome classifies what happened (or would happen) to one manifest
// entry.
type EntryOutcome string

const (
	OutcomeApplied             EntryOutcome = "applied"
	OutcomePlanned             EntryOutcome = "planned" // dry-run
	OutcomeFilteredByRoot      EntryOutcome = "filtered-by-root"
	OutcomeMissingSource       EntryOutcome = "missing-source"
	OutcomeStale               EntryOutcome = "stale"
	OutcomeExcluded            EntryOutcome = "excluded"
	OutcomePatternMismatch     EntryOutcome = "pattern-mismatch"
	OutcomeDestinationExists   EntryOutcome = "destination-exists"
	OutcomeAlreadyInArchive    EntryOutcome = "already-in-archive"
	OutcomeDuplicateElsewhere  EntryOutcome = "duplicate-in-other-archive"
	OutcomeTransferError       EntryOutcome = "transfer-error"
)

// EntryResult reports the outcome for one manifest entry.
type EntryResult struct {
	SourceID int64
	Dest     string
	Outcome  EntryOutcome
	Err      error
}

// ApplyResult summarizes a full apply run.
type ApplyResult struct {
	// RunID identifies this apply invocation, distinct from the manifest's
	// own RunID, so a dry-run report (or a failed run's log line) can be
	// referenced even though nothing was necessarily written to the store.
	RunID      string
	Entries    []EntryResult
	Collisions map[string][]int64 // destination -> colliding source ids
}

// Apply validates, pre-flights, and (unless DryRun) materializes a
// manifest's entries using the given transfer mode.
func (c *Canon) Apply(m *manifest.Manifest, opts ApplyOptions) (ApplyResult, error) {
	result := ApplyResult{RunID: uuid.NewString()}

	archiveRoot, err := c.store.RootByID(m.ArchiveRootID)
	if err != nil {
		return result, fmt.Errorf("canon: apply: %w", err)
	}
	if archiveRoot == nil {
		return result, fmt.Errorf("%w: archive root %d not found", ErrPreflightFailed, m.ArchiveRootID)
	}

	type staged struct {
		entry manifest.Entry
		src   *store.Source
		root  *store.Root
		dest  string // absolute destination path
	}
	var candidates []staged

	// Phase A: validation.
	for _, e := range m.Entries {
		src, err := c.store.SourceByID(e.SourceID)
		if err != nil {
			return result, fmt.Errorf("canon: apply: %w", err)
		}
		if src == nil {
			result.Entries = append(result.Entries, EntryResult{SourceID: e.SourceID, Dest: e.Dest, Outcome: OutcomeMissingSource})
			continue
		}
		if src.BasisRev != e.BasisRev {
			result.Entries = append(result.Entries, EntryResult{SourceID: e.SourceID, Dest: e.Dest, Outcome: OutcomeStale})
			continue
		}

		facts, err := c.store.EffectiveFacts(src)
		if err != nil {
			return result, fmt.Errorf("canon: apply: %w", err)
		}
		if facts["policy.exclude"] == "true" {
			result.Entries = append(result.Entries, EntryResult{SourceID: e.SourceID, Dest: e.Dest, Outcome: OutcomeExcluded})
			continue
		}

		var obj *store.Object
		if src.ObjectID != nil {
			obj, err = c.store.ObjectByID(*src.ObjectID)
			if err != nil {
				return result, fmt.Errorf("canon: apply: %w", err)
			}
		}
		reexpanded, err := expandPattern(m.Output.Pattern, src, obj, facts)
		if err != nil || reexpanded != e.Dest {
			result.Entries = append(result.Entries, EntryResult{SourceID: e.SourceID, Dest: e.Dest, Outcome: OutcomePatternMismatch})
			continue
		}

		root, err := c.store.RootByID(src.RootID)
		if err != nil {
			return result, fmt.Errorf("canon: apply: %w", err)
		}

		candidates = append(candidates, staged{
			entry: e,
			src:   src,
			root:  root,
			dest:  filepath.Join(m.Output.BaseDir, filepath.FromSlash(e.Dest)),
		})
	}

	// Phase B.1: destination collision, fatal for the whole run before any
	// file is written.
	byDest := make(map[string][]int64)
	for _, s := range candidates {
		byDest[s.dest] = append(byDest[s.dest], s.entry.SourceID)
	}
	collisions := make(map[string][]int64)
	for dest, ids := range byDest {
		if len(ids) > 1 {
			collisions[dest] = ids
		}
	}
	if len(collisions) > 0 {
		result.Collisions = collisions
		return result, fmt.Errorf("%w: destination collision across %d path(s)", ErrPreflightFailed, len(collisions))
	}

	// An entry whose source no longer exists is also fatal for the whole
	// run, before any file is written.
	missing := 0
	for _, r := range result.Entries {
		if r.Outcome == OutcomeMissingSource {
			missing++
		}
	}
	if missing > 0 {
		sortEntryResults(result.Entries)
		return result, fmt.Errorf("%w: %d entr(ies) reference a missing source", ErrPreflightFailed, missing)
	}

	// Phase B.2/B.3: per-entry archive-conflict checks and root filtering.
	var toMaterialize []staged
	for _, s := range candidates {
		if !opts.RootFilter.matches(s.root) {
			result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeFilteredByRoot})
			continue
		}

		if _, err := os.Lstat(s.dest); err == nil {
			result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeDestinationExists})
			continue
		} else if !os.IsNotExist(err) {
			return result, fmt.Errorf("canon: apply: stat %s: %w", s.dest, err)
		}

		if s.src.ObjectID != nil {
			present, err := c.store.ObjectPresentInRoot(*s.src.ObjectID, archiveRoot.ID)
			if err != nil {
				return result, fmt.Errorf("canon: apply: %w", err)
			}
			if present {
				result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeAlreadyInArchive})
				continue
			}
			if !opts.AllowCrossArchiveDuplicates {
				elsewhere, err := c.store.ObjectPresentInOtherArchive(*s.src.ObjectID, archiveRoot.ID)
				if err != nil {
					return result, fmt.Errorf("canon: apply: %w", err)
				}
				if elsewhere {
					result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeDuplicateElsewhere})
					continue
				}
			}
		}

		toMaterialize = append(toMaterialize, s)
	}

	if opts.DryRun {
		for _, s := range toMaterialize {
			result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomePlanned})
		}
		sortEntryResults(result.Entries)
		return result, nil
	}

	// Phase C: materialization.
	partial := false
	for _, s := range toMaterialize {
		srcPath := filepath.Join(s.root.Path, filepath.FromSlash(s.src.RelPath))
		if err := xfer.Transfer(opts.Mode, srcPath, s.dest); err != nil {
			partial = true
			result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeTransferError, Err: err})
			continue
		}
		if err := c.recordMaterialized(archiveRoot, s.src, s.dest, opts.Mode); err != nil {
			return result, fmt.Errorf("canon: apply: record %s: %w", s.dest, err)
		}
		result.Entries = append(result.Entries, EntryResult{SourceID: s.entry.SourceID, Dest: s.entry.Dest, Outcome: OutcomeApplied})
	}

	sortEntryResults(result.Entries)
	if partial {
		return result, ErrPartialApply
	}
	return result, nil
}

// recordMaterialized registers the freshly placed file as a source under
// the archive root, so the archive-presence index covers it without
// waiting for the user's next scan. A rename or move carries the original
// source row along (the file genuinely lives at the new path now); a copy
// records a second, independent row sharing the object linkage.
func (c *Canon) recordMaterialized(archiveRoot *store.Root, src *store.Source, dest string, mode xfer.Mode) error {
	rel, err := filepath.Rel(archiveRoot.Path, dest)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Destination escaped the archive root; leave it for a scan to find.
		return nil
	}
	relSlash := filepath.ToSlash(rel)

	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	device, inode := fsstat.DeviceInode(info)
	filename := filepath.Base(relSlash)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(relSlash), "."))

	if mode == xfer.ModeRename || mode == xfer.ModeMove {
		src.RootID = archiveRoot.ID
		src.RelPath = relSlash
		src.Filename, src.Ext = filename, ext
		src.Size, src.Mtime = info.Size(), info.ModTime().Unix()
		src.Device, src.Inode = device, inode
		return c.store.UpdateSource(src)
	}

	existing, err := c.store.SourceByRootRelPath(archiveRoot.ID, relSlash)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Filename, existing.Ext = filename, ext
		existing.Size, existing.Mtime = info.Size(), info.ModTime().Unix()
		existing.Device, existing.Inode = device, inode
		if err := c.store.UpdateSource(existing); err != nil {
			return err
		}
		return c.store.SetSourceObject(existing.ID, src.ObjectID)
	}
	_, err = c.store.InsertSource(&store.Source{
		RootID:   archiveRoot.ID,
		RelPath:  relSlash,
		Filename: filename,
		Ext:      ext,
		Size:     info.Size(),
		Mtime:    info.ModTime().Unix(),
		Device:   device,
		Inode:    inode,
		ObjectID: src.ObjectID,
	})
	return err
}

func sortEntryResults(rs []EntryResult) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].SourceID < rs[j].SourceID })
}

// ParseRootFilter parses a `--root` flag value of the form "id:N" or
// "path:/abs/path".
func ParseRootFilter(spec string) (*RootFilter, error) {
	if spec == "" {
		return nil, nil
	}
	kind, val, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("canon: invalid --root value %q, want id:N or path:...", spec)
	}
	switch kind {
	case "id":
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("canon: invalid --root id %q: %w", val, err)
		}
		return &RootFilter{ByID: true, RootID: id}, nil
	case "path":
		abs, err := filepath.Abs(val)
		if err != nil {
			return nil, fmt.Errorf("canon: invalid --root path %q: %w", val, err)
		}
		return &RootFilter{Path: filepath.Clean(abs)}, nil
	default:
		return nil, fmt.Errorf("canon: invalid --root value %q, want id:N or path:...", spec)
	}
}
