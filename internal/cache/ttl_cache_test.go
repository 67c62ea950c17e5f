package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/clock"
)

func newTestCache(capacity int, ttl time.Duration) (*TTLCache[int], *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	return New[int](capacity, ttl, clk), clk
}

func TestNew_Defaults(t *testing.T) {
	c := New[string](0, 0, nil)

	assert.Equal(t, DefaultCapacity, c.Capacity())
	assert.Equal(t, DefaultTTL, c.defaultTTL)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_SetGet(t *testing.T) {
	c, _ := newTestCache(10, time.Second)

	c.Set("a", 1)
	v, ok := c.Get("a")

	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_ExpiryRemovesEntry(t *testing.T) {
	c, clk := newTestCache(10, time.Second)

	c.Set("a", 1)
	clk.Advance(999 * time.Millisecond)
	_, ok := c.Get("a")
	assert.True(t, ok)

	// expiresAt == now counts as expired
	clk.Advance(time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestTTLCache_SetWithTTL(t *testing.T) {
	c, clk := newTestCache(10, time.Second)

	c.SetWithTTL("long", 1, time.Minute)
	c.SetWithTTL("default", 2, -1)

	clk.Advance(2 * time.Second)

	_, ok := c.Get("default")
	assert.False(t, ok)
	v, ok := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLCache_EvictsLeastRecentlyInserted(t *testing.T) {
	c, clk := newTestCache(2, time.Second)

	c.Set("a", 1)
	clk.Advance(time.Millisecond)
	c.Set("b", 2)
	clk.Advance(time.Millisecond)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLCache_EvictionTieBreakIsDeterministic(t *testing.T) {
	// Same instant for every insert: the first inserted key must go.
	for run := 0; run < 20; run++ {
		c, _ := newTestCache(3, time.Second)
		c.Set("x", 1)
		c.Set("y", 2)
		c.Set("z", 3)
		c.Set("w", 4)

		_, ok := c.Get("x")
		assert.False(t, ok, "run %d", run)
		assert.Equal(t, 3, c.Len())
	}
}

func TestTTLCache_UpdateExistingKeyDoesNotEvict(t *testing.T) {
	c, clk := newTestCache(2, time.Second)

	c.Set("a", 1)
	clk.Advance(time.Millisecond)
	c.Set("b", 2)
	clk.Advance(time.Millisecond)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// "a" was re-inserted, so "b" is now the oldest.
	c.Set("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTLCache_SizeNeverExceedsCapacity(t *testing.T) {
	c, clk := newTestCache(5, time.Minute)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i%17), i)
		clk.Advance(time.Millisecond)
		assert.LessOrEqual(t, c.Len(), 5)
	}
}

func TestTTLCache_Sweep(t *testing.T) {
	c, clk := newTestCache(10, time.Second)

	assert.Equal(t, 0, c.Sweep())

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Minute)
	clk.Advance(2 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Sweep())
}

func TestTTLCache_ClearAndDelete(t *testing.T) {
	c, _ := newTestCache(10, time.Second)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Stats(t *testing.T) {
	c, _ := newTestCache(10, time.Second)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.Capacity)
}

func TestTTLCache_EndToEndExample(t *testing.T) {
	c, clk := newTestCache(2, 1000*time.Millisecond)

	c.Set("a", 1)
	clk.Advance(time.Millisecond)
	c.Set("b", 2)
	clk.Advance(time.Millisecond)
	c.Set("c", 3)

	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := New[int](50, time.Minute, clock.Real{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.Sweep()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
