package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertSourceFact writes a fact attached to a source, overwriting any
// existing value for the same key (last-writer-wins) and bumping the stored
// observed_basis_rev to basisRev.
func UpsertSourceFact(tx *sql.Tx, sourceID int64, key, value string, basisRev int64, observedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO source_facts (source_id, key, value, observed_basis_rev, observed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, key) DO UPDATE SET
		   value = excluded.value,
		   observed_basis_rev = excluded.observed_basis_rev,
		   observed_at = excluded.observed_at`,
		sourceID, key, value, basisRev, observedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert source fact %s: %w", key, err)
	}
	return nil
}

// UpsertObjectFact writes a fact attached to an object, overwriting any
// existing value for the same key (last-writer-wins).
func UpsertObjectFact(tx *sql.Tx, objectID int64, key, value string, basisRev int64, observedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO object_facts (object_id, key, value, observed_basis_rev, observed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(object_id, key) DO UPDATE SET
		   value = excluded.value,
		   observed_basis_rev = excluded.observed_basis_rev,
		   observed_at = excluded.observed_at`,
		objectID, key, value, basisRev, observedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert object fact %s: %w", key, err)
	}
	return nil
}

// DeleteSourceFact removes a single source fact by key, if present. Used to
// migrate a fact onto an object at the moment of first linkage.
func DeleteSourceFact(tx *sql.Tx, sourceID int64, key string) error {
	if _, err := tx.Exec(`DELETE FROM source_facts WHERE source_id = ? AND key = ?`, sourceID, key); err != nil {
		return fmt.Errorf("delete source fact %s: %w", key, err)
	}
	return nil
}

// SourceFact looks up a single fact attached directly to a source. Returns
// nil, nil if absent.
func (s *Store) SourceFact(sourceID int64, key string) (*Fact, error) {
	row := s.db.QueryRow(
		`SELECT id, source_id, key, value, observed_basis_rev, observed_at FROM source_facts
		 WHERE source_id = ? AND key = ?`, sourceID, key)
	return scanTargetFact(row, TargetSource)
}

// ObjectFact looks up a single fact attached directly to an object. Returns
// nil, nil if absent.
func (s *Store) ObjectFact(objectID int64, key string) (*Fact, error) {
	row := s.db.QueryRow(
		`SELECT id, object_id, key, value, observed_basis_rev, observed_at FROM object_facts
		 WHERE object_id = ? AND key = ?`, objectID, key)
	return scanTargetFact(row, TargetObject)
}

func scanTargetFact(row *sql.Row, kind TargetKind) (*Fact, error) {
	var f Fact
	f.TargetKind = kind
	if err := row.Scan(&f.ID, &f.TargetID, &f.Key, &f.Value, &f.ObservedBasisRev, &f.ObservedAt); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("scan fact: %w", err)
	}
	return &f, nil
}

// SourceFacts lists every fact attached directly to a source.
func (s *Store) SourceFacts(sourceID int64) ([]*Fact, error) {
	rows, err := s.db.Query(
		`SELECT id, source_id, key, value, observed_basis_rev, observed_at FROM source_facts
		 WHERE source_id = ? ORDER BY key`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source facts: %w", err)
	}
	defer rows.Close()
	return scanTargetFacts(rows, TargetSource)
}

// ObjectFacts lists every fact attached directly to an object.
func (s *Store) ObjectFacts(objectID int64) ([]*Fact, error) {
	rows, err := s.db.Query(
		`SELECT id, object_id, key, value, observed_basis_rev, observed_at FROM object_facts
		 WHERE object_id = ? ORDER BY key`, objectID)
	if err != nil {
		return nil, fmt.Errorf("object facts: %w", err)
	}
	defer rows.Close()
	return scanTargetFacts(rows, TargetObject)
}

func scanTargetFacts(rows *sql.Rows, kind TargetKind) ([]*Fact, error) {
	var out []*Fact
	for rows.Next() {
		var f Fact
		f.TargetKind = kind
		if err := rows.Scan(&f.ID, &f.TargetID, &f.Key, &f.Value, &f.ObservedBasisRev, &f.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// EffectiveFacts returns the full, flattened fact set visible for a source:
// its direct source facts plus (if linked) its object's facts. Object facts
// take precedence on key collision: once a source is linked to an object,
// content facts live on the object.
func (s *Store) EffectiveFacts(src *Source) (map[string]string, error) {
	out := make(map[string]string)
	sfacts, err := s.SourceFacts(src.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range sfacts {
		out[f.Key] = f.Value
	}
	if src.ObjectID != nil {
		ofacts, err := s.ObjectFacts(*src.ObjectID)
		if err != nil {
			return nil, err
		}
		for _, f := range ofacts {
			out[f.Key] = f.Value
		}
	}
	return out, nil
}

// CountFactsByKey reports how many facts with key are attached to the
// given sources directly, and how many to their linked objects. The
// read-only half of a facts-delete dry run.
func (s *Store) CountFactsByKey(sourceIDs []int64, key string) (int64, int64, error) {
	if len(sourceIDs) == 0 {
		return 0, 0, nil
	}
	placeholders := placeholderList(len(sourceIDs))
	args := append([]any{key}, int64sToArgs(sourceIDs)...)

	var onSources int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM source_facts WHERE key = ? AND source_id IN (`+placeholders+`)`, args...,
	).Scan(&onSources)
	if err != nil {
		return 0, 0, fmt.Errorf("count source facts by key: %w", err)
	}

	var onObjects int64
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM object_facts WHERE key = ?
		   AND object_id IN (SELECT object_id FROM sources WHERE object_id IS NOT NULL AND id IN (`+placeholders+`))`, args...,
	).Scan(&onObjects)
	if err != nil {
		return 0, 0, fmt.Errorf("count object facts by key: %w", err)
	}
	return onSources, onObjects, nil
}

// DeleteFactsByKey removes every fact with key attached to the given
// sources or their linked objects, one batched statement per table.
func DeleteFactsByKey(tx *sql.Tx, sourceIDs []int64, key string) (int64, int64, error) {
	if len(sourceIDs) == 0 {
		return 0, 0, nil
	}
	placeholders := placeholderList(len(sourceIDs))
	args := append([]any{key}, int64sToArgs(sourceIDs)...)

	res, err := tx.Exec(
		`DELETE FROM source_facts WHERE key = ? AND source_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("delete source facts by key: %w", err)
	}
	onSources, _ := res.RowsAffected()

	res, err = tx.Exec(
		`DELETE FROM object_facts WHERE key = ?
		   AND object_id IN (SELECT object_id FROM sources WHERE object_id IS NOT NULL AND id IN (`+placeholders+`))`, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("delete object facts by key: %w", err)
	}
	onObjects, _ := res.RowsAffected()
	return onSources, onObjects, nil
}

// DeleteSourcesCascade removes the given sources, along with their facts,
// in one batched statement per table rather than one DELETE per row.
func DeleteSourcesCascade(tx *sql.Tx, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	placeholders := placeholderList(len(sourceIDs))
	args := int64sToArgs(sourceIDs)

	if _, err := tx.Exec(`DELETE FROM source_facts WHERE source_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete facts for sources: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sources WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete sources: %w", err)
	}
	return nil
}
