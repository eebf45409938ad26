package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_NilNodeIsAlwaysTrue(t *testing.T) {
	t.Parallel()
	q, err := Compile(nil)
	require.NoError(t, err)
	assert.Equal(t, "1=1", q.SQL)
	assert.Empty(t, q.Args)
}

func TestCompile_VirtualColumnSkipsFactTables(t *testing.T) {
	t.Parallel()
	node, err := Parse("source.ext=jpg")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "s.ext")
	assert.NotContains(t, q.SQL, "source_facts", "built-in source.* keys never need the fact tables")
	assert.Equal(t, []any{"jpg"}, q.Args)
}

func TestCompile_FactKeyJoinsBothTables(t *testing.T) {
	t.Parallel()
	node, err := Parse("content.Make=Apple")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "source_facts")
	assert.Contains(t, q.SQL, "object_facts")
	assert.Equal(t, []any{"content.Make", "Apple", "content.Make", "Apple"}, q.Args)
}

func TestCompile_ExistsAtomParameterizesKeyTwice(t *testing.T) {
	t.Parallel()
	node, err := Parse("content.hash.sha256?")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.Equal(t, []any{"content.hash.sha256", "content.hash.sha256"}, q.Args)
}

func TestCompile_InAtomExpandsToOrOfEqualities(t *testing.T) {
	t.Parallel()
	node, err := Parse("source.ext IN (jpg, png)")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, " OR ")
	assert.Equal(t, []any{"jpg", "png"}, q.Args)
}

func TestCompile_NumericComparisonCastsToReal(t *testing.T) {
	t.Parallel()
	node, err := Parse("source.size>1000000")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "CAST(s.size AS REAL)")
}

func TestCompile_NoPerRowCallback(t *testing.T) {
	t.Parallel()
	node, err := Parse("(source.ext=jpg OR source.ext=png) AND content.Make=Apple")
	require.NoError(t, err)
	q, err := Compile(node)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "jpg", "literal values must be bound as args, never inlined into the SQL text")
	assert.NotContains(t, q.SQL, "Apple")
	assert.Equal(t, []any{"jpg", "png", "content.Make", "Apple", "content.Make", "Apple"}, q.Args)
}
