package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetDel(t *testing.T) {
	c, err := New[[]string](1 << 20)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.True(t, c.Set("snap-1", []string{"a", "b"}, 2))
	got, ok := c.Get("snap-1")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	c.Del("snap-1")
	_, ok = c.Get("snap-1")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestCache_RejectsOversizedValue(t *testing.T) {
	c, err := New[string](10)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	c.Set("big", "value", 100)
	_, ok := c.Get("big")
	assert.False(t, ok)
}

func TestNilCache(t *testing.T) {
	var c *Cache[int]
	_, ok := c.Get("x")
	assert.False(t, ok)
	assert.False(t, c.Set("x", 1, 1))
	c.Del("x")
	c.Close()
	assert.Equal(t, Stats{}, c.Stats())
}
