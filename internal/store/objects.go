package store

import (
	"database/sql"
	"fmt"
)

// ObjectByHash looks up an object by its content hash. Returns nil, nil if absent.
func (s *Store) ObjectByHash(hash string) (*Object, error) {
	row := s.db.QueryRow(`SELECT id, hash FROM objects WHERE hash = ?`, hash)
	var o Object
	if err := row.Scan(&o.ID, &o.Hash); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("object by hash: %w", err)
	}
	return &o, nil
}

// ObjectByID looks up an object by id. Returns nil, nil if absent.
func (s *Store) ObjectByID(id int64) (*Object, error) {
	row := s.db.QueryRow(`SELECT id, hash FROM objects WHERE id = ?`, id)
	var o Object
	if err := row.Scan(&o.ID, &o.Hash); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("object by id: %w", err)
	}
	return &o, nil
}

// FindOrCreateObject resolves the object for a hash, creating it if this is
// the first time the hash has been seen. Lazy creation, never mutated.
func (s *Store) FindOrCreateObject(hash string) (*Object, error) {
	existing, err := s.ObjectByHash(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	res, err := s.db.Exec(`INSERT INTO objects (hash) VALUES (?)`, hash)
	if err != nil {
		// Lost a race with a concurrent writer inserting the same hash.
		if existing, lookupErr := s.ObjectByHash(hash); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert object: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert object: %w", err)
	}
	return &Object{ID: id, Hash: hash}, nil
}
