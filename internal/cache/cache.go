// Package cache provides the bounded TTL cache shared by the query and search
// optimizers.
package cache

import "time"

// Cache is a string-keyed cache with per-entry TTL
type Cache[V any] interface {
	// Get returns the value and whether it was present and not expired.
	Get(key string) (V, bool)

	// Set stores the value with the cache's default TTL.
	Set(key string, value V)

	// SetWithTTL stores the value with an explicit TTL; ttl <= 0 means the default.
	SetWithTTL(key string, value V, ttl time.Duration)

	// Delete removes a key if present.
	Delete(key string)

	// Clear removes all entries.
	Clear()

	// Sweep removes expired entries and returns how many were removed.
	Sweep() int

	// Len returns the number of stored entries.
	Len() int

	// Stats returns counters for reporting.
	Stats() Stats
}

var _ Cache[any] = (*TTLCache[any])(nil)
