package store

import (
	"database/sql"
	"fmt"
)

// ObjectPresentInRoot reports whether any source under rootID is linked to
// objectID, i.e. the content is already materialized somewhere in that
// root. Backed by the (object_id, root_id) index: a per-entry scan of the
// archive file tree would be too slow for large archives.
func (s *Store) ObjectPresentInRoot(objectID, rootID int64) (bool, error) {
	row := s.db.QueryRow(
		`SELECT 1 FROM sources WHERE object_id = ? AND root_id = ? LIMIT 1`, objectID, rootID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("object present in root: %w", err)
	}
	return true, nil
}

// ObjectPresentInOtherArchive reports whether objectID is linked to a
// source in any archive-role root other than exceptRootID.
func (s *Store) ObjectPresentInOtherArchive(objectID, exceptRootID int64) (bool, error) {
	row := s.db.QueryRow(
		`SELECT 1 FROM sources s JOIN roots r ON r.id = s.root_id
		 WHERE s.object_id = ? AND r.role = ? AND s.root_id != ? LIMIT 1`,
		objectID, string(RoleArchive), exceptRootID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("object present in other archive: %w", err)
	}
	return true, nil
}
