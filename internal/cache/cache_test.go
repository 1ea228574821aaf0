package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, size int, ttl time.Duration) (*LRUCache[int], *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)

	c.Set("2025-01", 1)
	c.Set("2025-02", 2)
	_, ok := c.Get("2025-01")
	require.True(t, ok)

	c.Set("2025-03", 3)

	_, ok = c.Get("2025-02")
	assert.False(t, ok, "least recently used entry should be evicted")
	v, ok := c.Get("2025-01")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_TTL(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", 3)
	clk.t = clk.t.Add(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired entry must not be returned")

	assert.Equal(t, 0, c.CleanExpired())
	v, ok := c.Get("b")
	assert.True(t, ok, "overwrite refreshes the TTL")
	assert.Equal(t, 3, v)

	clk.t = clk.t.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, 2, c.Size())

	c.Purge()
	assert.Equal(t, 0, c.Size())
	_, ok := c.Get("b")
	assert.False(t, ok)

	c.Set("d", 4)
	assert.Equal(t, 1, c.Size())
}

func TestManager(t *testing.T) {
	c, clk := newTestCache(t, 10, time.Minute)
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	assert.Equal(t, 0, m.CleanNow())
	clk.t = clk.t.Add(2 * time.Minute)
	assert.Equal(t, 1, m.CleanNow())

	m.Stop()
}
