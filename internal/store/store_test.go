package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"roots", "sources", "objects", "source_facts", "object_facts"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestFindOrCreateRoot_RefusesRoleMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)

	_, err = s.FindOrCreateRoot("/p", RoleArchive)
	assert.Error(t, err)
}

func TestFindOrCreateRoot_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r1, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)
	r2, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
}

func TestSourceByDeviceInode_PrefersLowestID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	root, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)

	a := &Source{RootID: root.ID, RelPath: "a", Filename: "a", Device: 1, Inode: 1}
	b := &Source{RootID: root.ID, RelPath: "b", Filename: "b", Device: 1, Inode: 1}
	idA, err := s.InsertSource(a)
	require.NoError(t, err)
	_, err = s.InsertSource(b)
	require.NoError(t, err)

	found, err := s.SourceByDeviceInode(1, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, idA, found.ID)
}

func TestFactUpsert_LastWriterWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	root, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)
	id, err := s.InsertSource(&Source{RootID: root.ID, RelPath: "a", Filename: "a"})
	require.NoError(t, err)

	tx, err := s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertSourceFact(tx, id, "content.Make", "Apple", 0, time.Now()))
	require.NoError(t, UpsertSourceFact(tx, id, "content.Make", "Canon", 1, time.Now()))
	require.NoError(t, tx.Commit())

	f, err := s.SourceFact(id, "content.Make")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "Canon", f.Value)
	assert.Equal(t, int64(1), f.ObservedBasisRev)
}

func TestEffectiveFacts_ObjectFactsWinOnCollision(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	root, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)
	id, err := s.InsertSource(&Source{RootID: root.ID, RelPath: "a", Filename: "a"})
	require.NoError(t, err)

	obj, err := s.FindOrCreateObject("deadbeef")
	require.NoError(t, err)
	require.NoError(t, s.SetSourceObject(id, &obj.ID))

	tx, err := s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertSourceFact(tx, id, "content.Make", "stale-source-value", 0, time.Now()))
	require.NoError(t, UpsertObjectFact(tx, obj.ID, "content.Make", "Apple", 0, time.Now()))
	require.NoError(t, tx.Commit())

	src, err := s.SourceByID(id)
	require.NoError(t, err)
	facts, err := s.EffectiveFacts(src)
	require.NoError(t, err)
	assert.Equal(t, "Apple", facts["content.Make"])
}

func TestMissingSources(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	root, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)

	_, err = s.InsertSource(&Source{RootID: root.ID, RelPath: "a", Filename: "a", SeenRev: 1})
	require.NoError(t, err)
	_, err = s.InsertSource(&Source{RootID: root.ID, RelPath: "b", Filename: "b", SeenRev: 2})
	require.NoError(t, err)

	missing, err := s.MissingSources(root.ID, 2)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "a", missing[0].RelPath)
}

func TestDeleteSourcesCascade_RemovesSourcesAndTheirFacts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	root, err := s.FindOrCreateRoot("/p", RoleSource)
	require.NoError(t, err)

	idA, err := s.InsertSource(&Source{RootID: root.ID, RelPath: "a", Filename: "a"})
	require.NoError(t, err)
	idB, err := s.InsertSource(&Source{RootID: root.ID, RelPath: "b", Filename: "b"})
	require.NoError(t, err)
	idC, err := s.InsertSource(&Source{RootID: root.ID, RelPath: "c", Filename: "c"})
	require.NoError(t, err)

	tx, err := s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertSourceFact(tx, idA, "content.Make", "Apple", 0, time.Now()))
	require.NoError(t, UpsertSourceFact(tx, idB, "content.Make", "Canon", 0, time.Now()))
	require.NoError(t, tx.Commit())

	tx, err = s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, DeleteSourcesCascade(tx, []int64{idA, idB}))
	require.NoError(t, tx.Commit())

	gone, err := s.SourceByID(idA)
	require.NoError(t, err)
	assert.Nil(t, gone)
	gone, err = s.SourceByID(idB)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.SourceByID(idC)
	require.NoError(t, err)
	require.NotNil(t, kept)

	f, err := s.SourceFact(idA, "content.Make")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDeleteSourcesCascade_EmptyIsANoop(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx, err := s.db.Begin()
	require.NoError(t, err)
	require.NoError(t, DeleteSourcesCascade(tx, nil))
	require.NoError(t, tx.Commit())
}
