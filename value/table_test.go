package value

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSetGet(t *testing.T) {
	tbl := NewTable()
	created := tbl.Set("alpha", Number(1))
	assert.True(t, created)

	v, ok := tbl.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, Number(1), v)

	overwritten := tbl.Set("alpha", Number(2))
	assert.False(t, overwritten)
	v, ok = tbl.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, Number(2), v)
}

func TestTableMissingKey(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get("missing")
	assert.False(t, ok)
	assert.False(t, tbl.Has("missing"))
}

func TestTableDeleteLeavesTombstone(t *testing.T) {
	tbl := NewTable()
	tbl.Set("a", Number(1))
	tbl.Set("b", Number(2))

	assert.True(t, tbl.Delete("a"))
	assert.False(t, tbl.Has("a"))
	// b must still resolve even though a (which may have hashed into the
	// same probe chain) left a tombstone behind.
	v, ok := tbl.Get("b")
	require.True(t, ok)
	assert.Equal(t, Number(2), v)

	assert.False(t, tbl.Delete("a"))
}

func TestTableGrowsAndKeepsEntries(t *testing.T) {
	tbl := NewTable()
	const n = 200
	for i := 0; i < n; i++ {
		tbl.Set(fmt.Sprintf("key-%d", i), Number(float64(i)))
	}
	assert.Equal(t, n, tbl.Len())
	for i := 0; i < n; i++ {
		v, ok := tbl.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		assert.Equal(t, Number(float64(i)), v)
	}
}
