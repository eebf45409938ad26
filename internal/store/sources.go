package store

import (
	"database/sql"
	"fmt"
)

const sourceCols = `id, root_id, rel_path, filename, ext, size, mtime, device, inode, basis_rev, seen_rev, object_id`

// SourceByRootRelPath looks up a source by its exact (root, relative path).
// Returns nil, nil if absent.
func (s *Store) SourceByRootRelPath(rootID int64, relPath string) (*Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceCols+` FROM sources WHERE root_id = ? AND rel_path = ?`, rootID, relPath)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by root/rel_path: %w", err)
	}
	return src, nil
}

// SourceByDeviceInode looks up a source anywhere in the store by physical
// identity. Returns nil, nil if absent. If more than one source shares the
// identity (inode reuse across roots), the lowest id is returned.
func (s *Store) SourceByDeviceInode(device, inode uint64) (*Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceCols+` FROM sources WHERE device = ? AND inode = ? ORDER BY id LIMIT 1`, device, inode)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by device/inode: %w", err)
	}
	return src, nil
}

// SourceByID looks up a source by id. Returns nil, nil if absent.
func (s *Store) SourceByID(id int64) (*Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceCols+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("source by id: %w", err)
	}
	return src, nil
}

// InsertSource creates a new source row and returns its assigned id.
func (s *Store) InsertSource(src *Source) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO sources (root_id, rel_path, filename, ext, size, mtime, device, inode, basis_rev, seen_rev, object_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.RootID, src.RelPath, src.Filename, src.Ext, src.Size, src.Mtime, src.Device, src.Inode,
		src.BasisRev, src.SeenRev, src.ObjectID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSource persists size, mtime, device, inode, root/rel_path, basis_rev
// and seen_rev for an existing source.
func (s *Store) UpdateSource(src *Source) error {
	_, err := s.db.Exec(
		`UPDATE sources SET root_id = ?, rel_path = ?, filename = ?, ext = ?, size = ?, mtime = ?,
		 device = ?, inode = ?, basis_rev = ?, seen_rev = ? WHERE id = ?`,
		src.RootID, src.RelPath, src.Filename, src.Ext, src.Size, src.Mtime, src.Device, src.Inode,
		src.BasisRev, src.SeenRev, src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// SetSourceObject links a source to an object. objectID may be nil to clear
// the link.
func (s *Store) SetSourceObject(sourceID int64, objectID *int64) error {
	if _, err := s.db.Exec(`UPDATE sources SET object_id = ? WHERE id = ?`, objectID, sourceID); err != nil {
		return fmt.Errorf("set source object: %w", err)
	}
	return nil
}

// MissingSources returns sources under rootID whose seen_rev is older than
// generation, meaning they were not observed in the most recent scan.
func (s *Store) MissingSources(rootID, generation int64) ([]*Source, error) {
	rows, err := s.db.Query(`SELECT `+sourceCols+` FROM sources WHERE root_id = ? AND seen_rev < ?`, rootID, generation)
	if err != nil {
		return nil, fmt.Errorf("missing sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// SourceIDs returns the ids from a slice of sources, preserving order.
func SourceIDs(srcs []*Source) []int64 {
	ids := make([]int64, len(srcs))
	for i, s := range srcs {
		ids[i] = s.ID
	}
	return ids
}

func scanSource(row *sql.Row) (*Source, error) {
	var src Source
	var objectID sql.NullInt64
	if err := row.Scan(&src.ID, &src.RootID, &src.RelPath, &src.Filename, &src.Ext, &src.Size, &src.Mtime,
		&src.Device, &src.Inode, &src.BasisRev, &src.SeenRev, &objectID); err != nil {
		return nil, err
	}
	if objectID.Valid {
		v := objectID.Int64
		src.ObjectID = &v
	}
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]*Source, error) {
	var out []*Source
	for rows.Next() {
		var src Source
		var objectID sql.NullInt64
		if err := rows.Scan(&src.ID, &src.RootID, &src.RelPath, &src.Filename, &src.Ext, &src.Size, &src.Mtime,
			&src.Device, &src.Inode, &src.BasisRev, &src.SeenRev, &objectID); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if objectID.Valid {
			v := objectID.Int64
			src.ObjectID = &v
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}
