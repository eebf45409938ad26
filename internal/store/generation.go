package store

import "fmt"

// NextGeneration returns the scan generation number to use for a fresh scan
// of rootID: one past the highest seen_rev recorded for any of its sources.
func (s *Store) NextGeneration(rootID int64) (int64, error) {
	max, err := s.LastGeneration(rootID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// LastGeneration returns the highest seen_rev recorded for any of rootID's
// sources: the generation its most recent completed scan used. Sources
// whose seen_rev falls short of this were missing on that scan.
func (s *Store) LastGeneration(rootID int64) (int64, error) {
	var max int64
	row := s.db.QueryRow(`SELECT COALESCE(MAX(seen_rev), 0) FROM sources WHERE root_id = ?`, rootID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("last generation: %w", err)
	}
	return max, nil
}
