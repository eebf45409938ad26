package store

import (
	"fmt"

	"github.com/robklg/canon/internal/filter"
)

// MatchingSources runs a compiled filter query against the sources table,
// additionally restricted by scopeSQL (a boolean SQL fragment over
// `sources s`, using subselects for anything beyond it), and returns the
// matching sources ordered by id. This is the single query path filters
// compile to: no per-row script callbacks.
func (s *Store) MatchingSources(q filter.Query, scopeSQL string, scopeArgs []any) ([]*Source, error) {
	if scopeSQL == "" {
		scopeSQL = "1=1"
	}
	sql := fmt.Sprintf(`SELECT %s FROM sources s WHERE (%s) AND (%s) ORDER BY s.id`, sourceCols, scopeSQL, q.SQL)
	args := append(append([]any{}, scopeArgs...), q.Args...)
	rows, err := s.db.Query(sql, args...)
	if err != nil {
		return nil, fmt.Errorf("matching sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}
