package cache

import (
	"sync"
	"time"

	"github.com/fabienpiette/wanderlust/internal/clock"
)

const (
	// DefaultCapacity is used when a cache is created with a non-positive capacity
	DefaultCapacity = 1000
	// DefaultTTL is used when a cache is created with a non-positive TTL
	DefaultTTL = 5 * time.Minute
)

// Entry is a cached value with its insertion and expiry timestamps
type Entry[V any] struct {
	Value      V
	InsertedAt time.Time
	ExpiresAt  time.Time

	// seq breaks ties between entries inserted at the same instant
	seq uint64
}

// Stats reports cache counters
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// TTLCache is a bounded, string-keyed cache with per-entry expiry. When full,
// inserting a new key evicts the least recently inserted entry.
type TTLCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*Entry[V]
	capacity   int
	defaultTTL time.Duration
	clock      clock.Clock
	seq        uint64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// New creates a TTL cache
func New[V any](capacity int, defaultTTL time.Duration, clk clock.Clock) *TTLCache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &TTLCache[V]{
		entries:    make(map[string]*Entry[V], capacity),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		clock:      clk,
	}
}

// Get returns the value stored under key. Expired entries are removed and
// reported as absent.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	if !c.clock.Now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		c.expirations++
		c.misses++
		return zero, false
	}

	c.hits++
	return entry.Value, true
}

// Set stores value under key with the default TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl means the default TTL.
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	now := c.clock.Now()
	c.seq++
	c.entries[key] = &Entry[V]{
		Value:      value,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
		seq:        c.seq,
	}
}

// evictOldest removes the entry with the smallest (InsertedAt, seq). Caller holds mu.
func (c *TTLCache[V]) evictOldest() {
	var (
		oldestKey string
		oldest    *Entry[V]
	)

	for key, entry := range c.entries {
		if oldest == nil ||
			entry.InsertedAt.Before(oldest.InsertedAt) ||
			(entry.InsertedAt.Equal(oldest.InsertedAt) && entry.seq < oldest.seq) {
			oldestKey = key
			oldest = entry
		}
	}

	if oldest != nil {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Delete removes key if present
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Has reports whether key holds a live entry without touching hit counters
func (c *TTLCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return ok && c.clock.Now().Before(entry.ExpiresAt)
}

// Clear removes every entry
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V], c.capacity)
	c.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were removed
func (c *TTLCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return 0
	}

	now := c.clock.Now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.expirations += int64(removed)

	return removed
}

// Len returns the number of stored entries, expired or not
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries
func (c *TTLCache[V]) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the cache counters
func (c *TTLCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:        len(c.entries),
		Capacity:    c.capacity,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups)
	}

	return stats
}
