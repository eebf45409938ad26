// Package store is the SQLite data access layer for Canon's relational
// schema: roots, sources, objects, and facts.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for Canon's 5 tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath in write-ahead mode with a
// busy-wait timeout, so concurrent readers and a single writer can make
// progress across separate invocations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS roots (
  id   INTEGER PRIMARY KEY,
  path TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL CHECK (role IN ('source', 'archive'))
);

CREATE TABLE IF NOT EXISTS sources (
  id         INTEGER PRIMARY KEY,
  root_id    INTEGER NOT NULL REFERENCES roots(id),
  rel_path   TEXT NOT NULL,
  filename   TEXT NOT NULL,
  ext        TEXT NOT NULL,
  size       INTEGER NOT NULL,
  mtime      INTEGER NOT NULL,
  device     INTEGER NOT NULL,
  inode      INTEGER NOT NULL,
  basis_rev  INTEGER NOT NULL DEFAULT 0,
  seen_rev   INTEGER NOT NULL DEFAULT 0,
  object_id  INTEGER REFERENCES objects(id),
  UNIQUE (root_id, rel_path)
);

CREATE TABLE IF NOT EXISTS objects (
  id   INTEGER PRIMARY KEY,
  hash TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS source_facts (
  id                 INTEGER PRIMARY KEY,
  source_id          INTEGER NOT NULL REFERENCES sources(id),
  key                TEXT NOT NULL,
  value              TEXT NOT NULL,
  observed_basis_rev INTEGER NOT NULL,
  observed_at        TIMESTAMP NOT NULL,
  UNIQUE (source_id, key)
);

CREATE TABLE IF NOT EXISTS object_facts (
  id                 INTEGER PRIMARY KEY,
  object_id          INTEGER NOT NULL REFERENCES objects(id),
  key                TEXT NOT NULL,
  value              TEXT NOT NULL,
  observed_basis_rev INTEGER NOT NULL,
  observed_at        TIMESTAMP NOT NULL,
  UNIQUE (object_id, key)
);

CREATE INDEX IF NOT EXISTS idx_sources_root ON sources(root_id);
CREATE INDEX IF NOT EXISTS idx_sources_device_inode ON sources(device, inode);
CREATE INDEX IF NOT EXISTS idx_sources_object ON sources(object_id);
CREATE INDEX IF NOT EXISTS idx_sources_object_root ON sources(object_id, root_id);
CREATE INDEX IF NOT EXISTS idx_source_facts_source ON source_facts(source_id);
CREATE INDEX IF NOT EXISTS idx_source_facts_key ON source_facts(key);
CREATE INDEX IF NOT EXISTS idx_object_facts_object ON object_facts(object_id);
CREATE INDEX IF NOT EXISTS idx_object_facts_key ON object_facts(key);
`
