package manifest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead_RoundTrips(t *testing.T) {
	t.Parallel()
	m := &Manifest{
		Query:         []string{"source.ext=jpg", "content.hash.sha256?"},
		ArchiveRootID: 7,
		GeneratedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RunID:         "11111111-1111-1111-1111-111111111111",
		Output: Output{
			Pattern: "{year}/{month}/{filename}",
			BaseDir: "/archive/photos",
		},
		Entries: []Entry{
			{
				SourceID: 1,
				RootID:   2,
				BasisRev: 3,
				Path:     "/source/a.jpg",
				Dest:     "2026/01/a.jpg",
				Facts:    map[string]string{"content.hash.sha256": "deadbeef"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, m))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, m.Query, got.Query)
	assert.Equal(t, m.ArchiveRootID, got.ArchiveRootID)
	assert.True(t, m.GeneratedAt.Equal(got.GeneratedAt))
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Output, got.Output)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, m.Entries[0].Dest, got.Entries[0].Dest)
	assert.Equal(t, "deadbeef", got.Entries[0].Facts["content.hash.sha256"])
}

func TestWriteFileThenReadFile_RoundTrips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := dir + "/manifest.toml"
	m := &Manifest{
		Query:         []string{"source.ext=png"},
		ArchiveRootID: 1,
		GeneratedAt:   time.Now().UTC(),
		Output:        Output{Pattern: "{filename}", BaseDir: "/archive"},
	}
	require.NoError(t, WriteFile(path, m))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Query, got.Query)
}

func TestRead_MalformedTOMLIsAnError(t *testing.T) {
	t.Parallel()
	_, err := Read(bytes.NewBufferString("this is not = [valid toml"))
	assert.Error(t, err)
}
