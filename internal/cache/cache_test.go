package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorybot/armory/internal/cache"
)

func TestSetGet(t *testing.T) {
	c := cache.New[string](10, time.Minute)

	c.Set("key", "value")
	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Sets)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(0), st.Misses)
}

func TestGetMiss(t *testing.T) {
	c := cache.New[int](10, time.Minute)

	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestTTLExpiry(t *testing.T) {
	c := cache.New[string](10, time.Minute)

	c.SetTTL("short", "value", 20*time.Millisecond)
	v, ok := c.Get("short")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	time.Sleep(40 * time.Millisecond)

	_, ok = c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// Expired read counts as miss + eviction, not as hit.
	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.GreaterOrEqual(t, st.Evictions, uint64(1))
}

func TestZeroTTLExpiresImmediately(t *testing.T) {
	c := cache.New[string](10, time.Minute)

	c.SetTTL("dead", "value", 0)
	_, ok := c.Get("dead")
	assert.False(t, ok)

	c.SetTTL("dead", "value", -time.Second)
	_, ok = c.Get("dead")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := cache.New[string](3, time.Minute)

	c.Set("k1", "v1")
	c.Set("k2", "v2")
	c.Set("k3", "v3")
	require.Equal(t, 3, c.Len())

	// Touch k1 so k2 becomes the oldest unused entry.
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Set("k4", "v4")
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("k2")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.True(t, ok)
	_, ok = c.Get("k4")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestSetRefreshProtectsFromEviction(t *testing.T) {
	c := cache.New[string](2, time.Minute)

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	// Overwriting k1 counts as a use, so k2 is evicted next.
	c.Set("k1", "v1-new")
	c.Set("k3", "v3")

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1-new", v)
	_, ok = c.Get("k2")
	assert.False(t, ok)
}

func TestCapacityOne(t *testing.T) {
	c := cache.New[string](1, time.Minute)

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	v, ok := c.Get("k2")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := cache.New[string](10, time.Minute)

	c.Set("key", "value")
	c.Invalidate("key")
	_, ok := c.Get("key")
	assert.False(t, ok)

	// Absent key is a no-op.
	c.Invalidate("never-set")
}

func TestInvalidateTag(t *testing.T) {
	c := cache.New[int](10, time.Minute)

	c.SetTagged("stats", 1, time.Minute, "stats")
	c.SetTagged("count_pending", 2, time.Minute, "stats", "counts")
	c.SetTagged("count_approved", 3, time.Minute, "stats", "counts")
	c.Set("unrelated", 4)

	c.InvalidateTag("counts")
	_, ok := c.Get("count_pending")
	assert.False(t, ok)
	_, ok = c.Get("count_approved")
	assert.False(t, ok)
	_, ok = c.Get("stats")
	assert.True(t, ok)
	_, ok = c.Get("unrelated")
	assert.True(t, ok)

	c.InvalidateTag("stats")
	_, ok = c.Get("stats")
	assert.False(t, ok)
}

func TestOverwriteReplacesTags(t *testing.T) {
	c := cache.New[int](10, time.Minute)

	c.SetTagged("key", 1, time.Minute, "old")
	c.SetTagged("key", 2, time.Minute, "new")

	c.InvalidateTag("old")
	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	c.InvalidateTag("new")
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c := cache.New[int](10, time.Minute)

	c.Set("count_pending", 1)
	c.Set("count_approved", 2)
	c.Set("stats", 3)

	c.InvalidatePrefix("count_")
	_, ok := c.Get("count_pending")
	assert.False(t, ok)
	_, ok = c.Get("count_approved")
	assert.False(t, ok)
	_, ok = c.Get("stats")
	assert.True(t, ok)
}

func TestFlush(t *testing.T) {
	c := cache.New[int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Flush()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := cache.New[int](100, time.Minute)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("worker_%d_%d", w, i%20)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}
