package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robklg/canon/internal/store"
)

func TestExpandPattern_DefaultPattern(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg", Ext: "jpg", Mtime: 0}
	obj := &store.Object{ID: 1, Hash: "deadbeefcafefeed"}

	dest, err := expandPattern("{hash_short}/{filename}", src, obj, nil)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef/a.jpg", dest)
}

func TestExpandPattern_MissingObjectFailsHashVariable(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg"}

	_, err := expandPattern("{hash}/{filename}", src, nil, nil)
	var perr *PatternError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "hash", perr.Variable)
}

func TestExpandPattern_DateFallsBackToMtime(t *testing.T) {
	t.Parallel()
	// 2024-03-05T00:00:00Z
	src := &store.Source{ID: 1, Filename: "a.jpg", Mtime: 1709596800}

	dest, err := expandPattern("{year}/{month}/{day}", src, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024/03/05", dest)
}

func TestExpandPattern_DateTimeOriginalTakesPrecedence(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg", Mtime: 0}
	facts := map[string]string{"content.DateTimeOriginal": "2019-07-04T10:00:00"}

	dest, err := expandPattern("{year}", src, nil, facts)
	require.NoError(t, err)
	assert.Equal(t, "2019", dest)
}

func TestExpandPattern_ArbitraryFactVariable(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg"}
	facts := map[string]string{"content.Make": "Apple"}

	dest, err := expandPattern("{content_Make}", src, nil, facts)
	require.NoError(t, err)
	assert.Equal(t, "Apple", dest)
}

func TestExpandPattern_MissingFactVariableIsNamedError(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg"}

	_, err := expandPattern("{content_Model}", src, nil, nil)
	var perr *PatternError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "content_Model", perr.Variable)
}

func TestExpandPattern_SanitizesPathSeparatorsInFactValues(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg"}
	facts := map[string]string{"content.Make": "Ca/no\\n\x00"}

	dest, err := expandPattern("{content_Make}", src, nil, facts)
	require.NoError(t, err)
	assert.NotContains(t, dest, "/")
	assert.NotContains(t, dest, "\x00")
}

func TestExpandPattern_UnterminatedVariableIsAnError(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "a.jpg"}
	_, err := expandPattern("{filename", src, nil, nil)
	require.Error(t, err)
}

func TestExpandPattern_StemStripsExtension(t *testing.T) {
	t.Parallel()
	src := &store.Source{ID: 1, Filename: "vacation.photo.jpg"}
	dest, err := expandPattern("{stem}", src, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "vacation.photo", dest)
}
