package store

import (
	"database/sql"
	"fmt"
)

// FindOrCreateObjectTx is the transactional counterpart of FindOrCreateObject,
// used by the fact importer so object creation and fact writes commit
// atomically with the rest of a record.
func FindOrCreateObjectTx(tx *sql.Tx, hash string) (*Object, error) {
	row := tx.QueryRow(`SELECT id, hash FROM objects WHERE hash = ?`, hash)
	var o Object
	err := row.Scan(&o.ID, &o.Hash)
	if err == nil {
		return &o, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("object by hash: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO objects (hash) VALUES (?)`, hash)
	if err != nil {
		return nil, fmt.Errorf("insert object: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert object: %w", err)
	}
	return &Object{ID: id, Hash: hash}, nil
}

// SetSourceObjectTx links a source to an object within a transaction.
func SetSourceObjectTx(tx *sql.Tx, sourceID, objectID int64) error {
	if _, err := tx.Exec(`UPDATE sources SET object_id = ? WHERE id = ?`, objectID, sourceID); err != nil {
		return fmt.Errorf("set source object: %w", err)
	}
	return nil
}

// SourceFactsTx lists facts attached directly to a source, within a transaction.
func SourceFactsTx(tx *sql.Tx, sourceID int64) ([]*Fact, error) {
	rows, err := tx.Query(
		`SELECT id, source_id, key, value, observed_basis_rev, observed_at FROM source_facts
		 WHERE source_id = ? ORDER BY key`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source facts: %w", err)
	}
	defer rows.Close()
	return scanTargetFacts(rows, TargetSource)
}
