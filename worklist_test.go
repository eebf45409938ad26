package canon

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robklg/canon/internal/store"
)

func TestWorklist_EmitsOneRecordPerMatchingSource(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "0123456789")
	_, _, err := c.Scan(dir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Worklist(&buf, WorklistOptions{}))

	var rec WorklistRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, filepath.Join(dir, "a.jpg"), rec.Path, "worklist paths must be absolute so external tools can open the files")
	assert.Equal(t, int64(10), rec.Size)
}

func TestWorklist_DefaultExcludesArchiveRoots(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	_, _, err := c.Scan(dir, ScanOptions{Role: store.RoleArchive})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Worklist(&buf, WorklistOptions{}))
	assert.Empty(t, buf.String())

	buf.Reset()
	require.NoError(t, c.Worklist(&buf, WorklistOptions{IncludeArchived: true}))
	assert.NotEmpty(t, buf.String())
}

func TestWorklist_DefaultExcludesPolicyExcludedSources(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	_, _, err := c.Scan(dir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	sources := allSources(t, c)
	require.Len(t, sources, 1)
	setSourceFact(t, c, sources[0].ID, "policy.exclude", "true")

	var buf bytes.Buffer
	require.NoError(t, c.Worklist(&buf, WorklistOptions{}))
	assert.Empty(t, buf.String())

	buf.Reset()
	require.NoError(t, c.Worklist(&buf, WorklistOptions{IncludeExcluded: true}))
	assert.NotEmpty(t, buf.String())
}

func TestWorklist_SubpathRestrictsToPrefix(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep", "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "other", "b.jpg"), "y")
	_, _, err := c.Scan(dir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Worklist(&buf, WorklistOptions{Subpath: "keep"}))

	dec := json.NewDecoder(&buf)
	var count int
	for dec.More() {
		var rec WorklistRecord
		require.NoError(t, dec.Decode(&rec))
		assert.Equal(t, filepath.Join(dir, "keep", "a.jpg"), rec.Path)
		count++
	}
	assert.Equal(t, 1, count)
}

func TestWorklist_FilterRestrictsByExtension(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "b.png"), "y")
	_, _, err := c.Scan(dir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Worklist(&buf, WorklistOptions{Filters: []string{"source.ext=jpg"}}))

	dec := json.NewDecoder(&buf)
	var count int
	for dec.More() {
		var rec WorklistRecord
		require.NoError(t, dec.Decode(&rec))
		assert.Equal(t, filepath.Join(dir, "a.jpg"), rec.Path)
		count++
	}
	assert.Equal(t, 1, count)
}
