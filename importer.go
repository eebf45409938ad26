package canon

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/robklg/canon/internal/store"
)

// ImportRecord is a single line of a fact-import stream.
type ImportRecord struct {
	SourceID   int64                      `json:"source_id"`
	BasisRev   int64                      `json:"basis_rev"`
	ObservedAt *int64                     `json:"observed_at,omitempty"`
	Facts      map[string]json.RawMessage `json:"facts"`
}

// ImportOptions configures fact import behavior.
type ImportOptions struct {
	// AllowArchived permits writing facts onto sources in archive-role roots.
	AllowArchived bool
}

// ImportSkip records a record that was skipped without being fatal to the
// stream.
type ImportSkip struct {
	SourceID int64
	Reason   string
}

// ImportReject records a record that was rejected outright (the whole
// record, not individual facts).
type ImportReject struct {
	SourceID int64
	Reason   string
}

// ImportResult summarizes a fact-import run.
type ImportResult struct {
	Imported int
	Skipped  []ImportSkip
	Rejected []ImportReject
}

const protectedSourceNamespace = "source."
const protectedPolicyNamespace = "policy."
const contentNamespace = "content."

// ImportFacts reads a stream of fact-import records from r and applies them
// one transaction per record, in stream order: stale records are skipped,
// writes under a protected namespace are rejected, a hash fact links the
// source to its object, and any content facts observed before that linkage
// are promoted onto the object.
func (c *Canon) ImportFacts(r io.Reader, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec ImportRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			result.Rejected = append(result.Rejected, ImportReject{Reason: fmt.Sprintf("malformed record: %s", err)})
			continue
		}
		if err := c.importRecord(rec, opts, &result); err != nil {
			return result, fmt.Errorf("canon: import-facts: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("canon: import-facts: read: %w", err)
	}
	return result, nil
}

func (c *Canon) importRecord(rec ImportRecord, opts ImportOptions, result *ImportResult) error {
	src, err := c.store.SourceByID(rec.SourceID)
	if err != nil {
		return err
	}
	if src == nil {
		result.Skipped = append(result.Skipped, ImportSkip{SourceID: rec.SourceID, Reason: "source not found"})
		return nil
	}
	if src.BasisRev != rec.BasisRev {
		result.Skipped = append(result.Skipped, ImportSkip{SourceID: rec.SourceID, Reason: "stale: basis_rev mismatch"})
		return nil
	}

	root, err := c.store.RootByID(src.RootID)
	if err != nil {
		return err
	}
	if root != nil && root.Role == store.RoleArchive && !opts.AllowArchived {
		result.Skipped = append(result.Skipped, ImportSkip{SourceID: rec.SourceID, Reason: "source is in an archive root"})
		return nil
	}

	normalized := make(map[string]string, len(rec.Facts))
	for rawKey, rawVal := range rec.Facts {
		key := normalizeFactKey(rawKey)
		if strings.HasPrefix(key, protectedSourceNamespace) || strings.HasPrefix(key, protectedPolicyNamespace) {
			result.Rejected = append(result.Rejected, ImportReject{
				SourceID: rec.SourceID,
				Reason:   fmt.Sprintf("protected namespace key %q", key),
			})
			return nil
		}
		val, err := scalarToString(rawVal)
		if err != nil {
			result.Rejected = append(result.Rejected, ImportReject{SourceID: rec.SourceID, Reason: err.Error()})
			return nil
		}
		normalized[key] = val
	}

	observedAt := time.Now()
	if rec.ObservedAt != nil {
		observedAt = time.Unix(*rec.ObservedAt, 0).UTC()
	}

	tx, err := c.store.DB().Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if hash, ok := normalized["content.hash.sha256"]; ok {
		obj, err := store.FindOrCreateObjectTx(tx, hash)
		if err != nil {
			return err
		}
		switch {
		case src.ObjectID == nil:
			if err := store.SetSourceObjectTx(tx, src.ID, obj.ID); err != nil {
				return err
			}
			if err := migrateContentFacts(tx, src.ID, obj.ID); err != nil {
				return err
			}
			src.ObjectID = &obj.ID
		case *src.ObjectID != obj.ID:
			result.Rejected = append(result.Rejected, ImportReject{
				SourceID: rec.SourceID,
				Reason:   "hash already linked to a different object",
			})
			return nil
		}
	}

	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := normalized[key]
		if err := writeContentFact(tx, src, key, val, rec.BasisRev, observedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	result.Imported++
	return nil
}

// writeContentFact funnels every content-fact write through a single
// decision: consult the source's object linkage once, write to the
// correct table, and migrate any pre-existing same-key source fact to the
// object inside the same transaction. Do not scatter this logic across
// importers.
func writeContentFact(tx *sql.Tx, src *store.Source, key, value string, basisRev int64, observedAt time.Time) error {
	if src.ObjectID != nil {
		if err := store.DeleteSourceFact(tx, src.ID, key); err != nil {
			return err
		}
		return store.UpsertObjectFact(tx, *src.ObjectID, key, value, basisRev, observedAt)
	}
	return store.UpsertSourceFact(tx, src.ID, key, value, basisRev, observedAt)
}

// migrateContentFacts moves every content.* fact already attached to a
// source onto its newly linked object, preserving each fact's original
// observed_basis_rev and observed_at (a one-shot promotion, not a
// re-observation).
func migrateContentFacts(tx *sql.Tx, sourceID, objectID int64) error {
	facts, err := store.SourceFactsTx(tx, sourceID)
	if err != nil {
		return err
	}
	for _, f := range facts {
		if !strings.HasPrefix(f.Key, contentNamespace) {
			continue
		}
		if err := store.UpsertObjectFact(tx, objectID, f.Key, f.Value, f.ObservedBasisRev, f.ObservedAt); err != nil {
			return err
		}
		if err := store.DeleteSourceFact(tx, sourceID, f.Key); err != nil {
			return err
		}
	}
	return nil
}

// normalizeFactKey tolerates importer quirks: underscore-separated keys are
// treated as dot-separated, then any key whose first segment isn't a known
// namespace is folded into content.*.
func normalizeFactKey(raw string) string {
	key := strings.ReplaceAll(raw, "_", ".")
	first, _, _ := strings.Cut(key, ".")
	switch first {
	case "source", "content", "policy":
		return key
	default:
		return contentNamespace + key
	}
}

// scalarToString converts a JSON scalar (string, number, or boolean) into
// Canon's textual fact value representation. Booleans are stored as the
// strings "true"/"false".
func scalarToString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("fact value %s must be a string, number, or boolean", raw)
}
