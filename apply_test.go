package canon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robklg/canon/internal/store"
	"github.com/robklg/canon/internal/xfer"
)

func requireArchiveRoot(t *testing.T, c *Canon, path string) {
	t.Helper()
	_, err := c.Store().FindOrCreateRoot(path, store.RoleArchive)
	require.NoError(t, err)
}

func TestApply_DryRunMakesNoFilesystemChanges(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "x")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy, DryRun: true})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomePlanned, result.Entries[0].Outcome)

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry-run must not write anything under the archive root")
}

func TestApply_CopyMaterializesAndLeavesSource(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	srcPath := filepath.Join(sourceDir, "a.jpg")
	writeFile(t, srcPath, "hello")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomeApplied, result.Entries[0].Outcome)

	_, err = os.Stat(srcPath)
	assert.NoError(t, err, "copy mode must leave the source file in place")

	dest := filepath.Join(archiveDir, m.Entries[0].Dest)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestApply_DestinationCollisionAbortsWholeRunBeforeAnyWrite(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "one")
	writeFile(t, filepath.Join(sourceDir, "sub", "a.jpg"), "two")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	// Both sources expand to the same destination under a filename-only pattern.
	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.ErrorIs(t, err, ErrPreflightFailed)
	assert.NotEmpty(t, result.Collisions)

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a collision anywhere in the run must block every write")
}

// TestApply_CopyRecordsArchiveSourceRow checks that a materialized copy is
// registered as a source under the archive root with the object linkage
// carried over, so the archive-presence index covers it immediately.
func TestApply_CopyRecordsArchiveSourceRow(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "x")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	sources := allSources(t, c)
	require.Len(t, sources, 1)
	rec := `{"source_id":` + itoa(sources[0].ID) + `,"basis_rev":0,"facts":{"hash.sha256":"deadbeefcafefeed"}}`
	_, err = c.ImportFacts(strings.NewReader(rec), ImportOptions{})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir})
	require.NoError(t, err)
	_, err = c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)

	archiveRoot, err := c.Store().RootByPath(archiveDir)
	require.NoError(t, err)
	recorded, err := c.Store().SourceByRootRelPath(archiveRoot.ID, "deadbeef/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, recorded)
	require.NotNil(t, recorded.ObjectID)

	// A second cluster+apply of the same content now skips as already
	// present, keyed off the recorded row rather than a tree walk.
	m2, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "other/{filename}"})
	require.NoError(t, err)
	result, err := c.Apply(m2, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomeAlreadyInArchive, result.Entries[0].Outcome)
}

func TestApply_StaleBasisRevIsSkippedNotFatal(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "x")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)
	m.Entries[0].BasisRev = 999

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomeStale, result.Entries[0].Outcome)
}

func TestApply_RootFilterSkipsOtherRoots(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "x")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy, RootFilter: &RootFilter{ByID: true, RootID: -1}})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomeFilteredByRoot, result.Entries[0].Outcome)
}

func TestApply_RerunAfterSuccessReportsDestinationExists(t *testing.T) {
	t.Parallel()
	c := newTestCanon(t)
	sourceDir, archiveDir := t.TempDir(), t.TempDir()
	requireArchiveRoot(t, c, archiveDir)
	writeFile(t, filepath.Join(sourceDir, "a.jpg"), "x")
	_, _, err := c.Scan(sourceDir, ScanOptions{Role: store.RoleSource})
	require.NoError(t, err)

	m, err := c.Cluster(ClusterOptions{Dest: archiveDir, Pattern: "{filename}"})
	require.NoError(t, err)

	_, err = c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)

	result, err := c.Apply(m, ApplyOptions{Mode: xfer.ModeCopy})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, OutcomeDestinationExists, result.Entries[0].Outcome)
}
