// Package localcache provides an in-process, bounded LRU+TTL cache and a
// Memoize decorator for wrapping adapter calls (LLM, embedding, retrieval)
// with cache-aside semantics keyed on a canonical hash of their arguments.
package localcache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
}

// HitRate returns Hits / (Hits+Misses), or 0 if there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a bounded, thread-safe key-value store with a fixed per-entry TTL
// and LRU eviction once capacity is exceeded. One Cache instance is created
// per logical namespace (e.g. one per Memoize-wrapped function), each with
// its own TTL, mirroring how the decorator is used throughout the pipeline.
type Cache struct {
	lru *expirable.LRU[string, any]

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Cache with the given capacity and entry TTL. ttl<=0 disables
// expiry; entries then live until evicted by capacity.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	c := &Cache{}
	c.lru = expirable.NewLRU[string, any](capacity, func(key string, value any) {
		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()
	}, ttl)
	return c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.lru.Get(key)

	c.statsMu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.statsMu.Unlock()
	return v, ok
}

// Set stores val under key using the cache's configured TTL.
func (c *Cache) Set(key string, val any) {
	c.lru.Add(key, val)

	c.statsMu.Lock()
	c.stats.Sets++
	c.statsMu.Unlock()
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.lru.Remove(key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Size returns the number of entries currently held.
func (c *Cache) Size() int {
	return c.lru.Len()
}

// StatsSnapshot returns a copy of the current counters.
func (c *Cache) StatsSnapshot() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}
