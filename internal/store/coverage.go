package store

import (
	"database/sql"
	"fmt"
)

// ArchivedObjectIDs returns the set of object ids linked to at least one
// source in an archive-role root. If archiveRootID is non-nil, the set is
// restricted to that single root, matching the "restricted to one archive"
// variant of archive coverage.
func (s *Store) ArchivedObjectIDs(archiveRootID *int64) (map[int64]bool, error) {
	var rows *sql.Rows
	var err error

	if archiveRootID != nil {
		rows, err = s.db.Query(
			`SELECT DISTINCT object_id FROM sources WHERE root_id = ? AND object_id IS NOT NULL`, *archiveRootID)
	} else {
		rows, err = s.db.Query(
			`SELECT DISTINCT object_id FROM sources
			 WHERE object_id IS NOT NULL
			   AND root_id IN (SELECT id FROM roots WHERE role = ?)`, string(RoleArchive))
	}
	if err != nil {
		return nil, fmt.Errorf("archived object ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan archived object id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
