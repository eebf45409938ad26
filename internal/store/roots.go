package store

import (
	"database/sql"
	"fmt"
)

// RootByPath looks up a root by its canonical path. Returns nil, nil if absent.
func (s *Store) RootByPath(path string) (*Root, error) {
	row := s.db.QueryRow(`SELECT id, path, role FROM roots WHERE path = ?`, path)
	r, err := scanRoot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("root by path: %w", err)
	}
	return r, nil
}

// RootByID looks up a root by id. Returns nil, nil if absent.
func (s *Store) RootByID(id int64) (*Root, error) {
	row := s.db.QueryRow(`SELECT id, path, role FROM roots WHERE id = ?`, id)
	r, err := scanRoot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("root by id: %w", err)
	}
	return r, nil
}

// ListRoots returns every registered root.
func (s *Store) ListRoots() ([]*Root, error) {
	rows, err := s.db.Query(`SELECT id, path, role FROM roots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	defer rows.Close()

	var out []*Root
	for rows.Next() {
		var r Root
		var role string
		if err := rows.Scan(&r.ID, &r.Path, &role); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		r.Role = Role(role)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// FindOrCreateRoot looks up a root by path, creating it with the given role
// if absent. Refuses to reuse an existing root registered under a different
// role.
func (s *Store) FindOrCreateRoot(path string, role Role) (*Root, error) {
	existing, err := s.RootByPath(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role != role {
			return nil, fmt.Errorf("root %s is registered as %s, cannot reuse as %s", path, existing.Role, role)
		}
		return existing, nil
	}

	res, err := s.db.Exec(`INSERT INTO roots (path, role) VALUES (?, ?)`, path, string(role))
	if err != nil {
		return nil, fmt.Errorf("insert root: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert root: %w", err)
	}
	return &Root{ID: id, Path: path, Role: role}, nil
}

func scanRoot(row *sql.Row) (*Root, error) {
	var r Root
	var role string
	if err := row.Scan(&r.ID, &r.Path, &role); err != nil {
		return nil, err
	}
	r.Role = Role(role)
	return &r, nil
}
