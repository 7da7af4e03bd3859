// Package cache provides a thread-safe, bounded, TTL-aware key/value store
// with LRU eviction. It backs the permission resolver and the moderation
// stats cache, so every read of hot admin data goes through it.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the maximum number of entries if no capacity is given.
	DefaultCapacity = 2000
	// DefaultTTL is the expiry applied by Set if no TTL was configured.
	DefaultTTL = 5 * time.Minute
)

// Tag is a category label shared by a group of derived cache keys.
// A mutation that affects several derived values invalidates them
// with a single InvalidateTag call instead of enumerating keys.
type Tag string

// Stats holds diagnostic counters of a cache instance.
// They are not authoritative data, only observability.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Evictions uint64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	tags      []Tag
}

// Cache is a bounded TTL+LRU store for a single key family.
// Each key family owns its own instance, so values stay typed.
// All operations are O(1) and safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is the most recently used
	byTag   map[Tag]map[string]struct{}

	capacity int
	ttl      time.Duration
	stats    Stats

	now func() time.Time
}

// New creates a cache with the given capacity and default TTL.
// Non-positive arguments fall back to DefaultCapacity and DefaultTTL.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		byTag:    make(map[Tag]map[string]struct{}),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value for key if it is present and fresh.
// An expired entry is dropped and reported as a miss plus an eviction.
// A hit marks the entry as most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if !c.now().Before(ent.expiresAt) {
		c.removeLocked(el, ent)
		c.stats.Misses++
		c.stats.Evictions++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.stats.Hits++
	return ent.value, true
}

// Set inserts or overwrites key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL inserts or overwrites key with an explicit TTL.
// A non-positive ttl means the entry is already expired: it is stored but
// the next Get treats it as absent. Overwriting refreshes value, expiry
// and LRU position. Inserting a new key over capacity evicts the least
// recently used entry first.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.set(key, value, ttl, nil)
}

// SetTagged is SetTTL with category tags attached to the key.
// Tagged keys are dropped together by InvalidateTag.
func (c *Cache[V]) SetTagged(key string, value V, ttl time.Duration, tags ...Tag) {
	c.set(key, value, ttl, tags)
}

func (c *Cache[V]) set(key string, value V, ttl time.Duration, tags []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[V])
		c.dropTagsLocked(ent)
		ent.value = value
		ent.expiresAt = expiresAt
		ent.tags = tags
		c.addTagsLocked(key, tags)
		c.order.MoveToFront(el)
		c.stats.Sets++
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}

	ent := &entry[V]{key: key, value: value, expiresAt: expiresAt, tags: tags}
	c.entries[key] = c.order.PushFront(ent)
	c.addTagsLocked(key, tags)
	c.stats.Sets++
}

// Invalidate removes key unconditionally. Removing an absent key is a no-op.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el, el.Value.(*entry[V]))
	}
}

// InvalidateTag removes every key registered under tag.
func (c *Cache[V]) InvalidateTag(tag Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byTag[tag] {
		if el, ok := c.entries[key]; ok {
			c.removeLocked(el, el.Value.(*entry[V]))
		}
	}
	delete(c.byTag, tag)
}

// InvalidatePrefix removes every key that starts with prefix.
// Unlike the O(1) operations above it scans all entries, so it is meant
// for rare explicit flushes, not hot paths.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(el, el.Value.(*entry[V]))
		}
	}
}

// Flush removes all entries. Counters are kept.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	c.byTag = make(map[Tag]map[string]struct{})
}

// Len returns the number of stored entries, including not yet
// collected expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the diagnostic counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache[V]) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeLocked(el, el.Value.(*entry[V]))
	c.stats.Evictions++
}

func (c *Cache[V]) removeLocked(el *list.Element, ent *entry[V]) {
	c.order.Remove(el)
	delete(c.entries, ent.key)
	c.dropTagsLocked(ent)
}

func (c *Cache[V]) addTagsLocked(key string, tags []Tag) {
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *Cache[V]) dropTagsLocked(ent *entry[V]) {
	for _, tag := range ent.tags {
		if keys, ok := c.byTag[tag]; ok {
			delete(keys, ent.key)
			if len(keys) == 0 {
				delete(c.byTag, tag)
			}
		}
	}
}
