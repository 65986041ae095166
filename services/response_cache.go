package services

import (
	"math"
	"sync"
	"time"
)

// CacheKey identifies one cached fetch result by symbol and data kind
type CacheKey struct {
	Symbol string
	Kind   string
}

type cacheEntry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// ResponseCache is a short-TTL read-through cache in front of fetch
// operations. Entries live in one process's memory only; there is no
// cross-instance coherency. Now is injectable to keep expiry tests
// deterministic.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[CacheKey]cacheEntry
	Now     func() time.Time
}

// NewResponseCache creates a cache using the real clock
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: make(map[CacheKey]cacheEntry),
		Now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key if it is younger than ttl
// and forceRefresh is unset. Otherwise it invokes fetch, stores the
// result stamped with the current time, and returns it. The second
// return value reports whether the value came from the cache.
func (c *ResponseCache) GetOrFetch(key CacheKey, ttl time.Duration, fetch func() (interface{}, error), forceRefresh bool) (interface{}, bool, error) {
	if !forceRefresh {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.Now().Sub(entry.storedAt) < ttl {
			return entry.value, true, nil
		}
	}

	value, err := fetch()
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.Now(), ttl: ttl}
	c.mu.Unlock()
	return value, false, nil
}

// TimeRemaining reports the whole minutes left before the entry for key
// expires, rounded up. A missing or expired entry reports 0.
func (c *ResponseCache) TimeRemaining(key CacheKey) int {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0
	}

	remaining := entry.ttl - c.Now().Sub(entry.storedAt)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// StoredAt returns when the entry for key was cached, or zero time
func (c *ResponseCache) StoredAt(key CacheKey) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key].storedAt
}

// Invalidate drops every entry for a symbol, regardless of data kind.
// The scheduler calls this after a successful refresh so readers pick up
// the new snapshot without waiting out the TTL.
func (c *ResponseCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.Symbol == symbol {
			delete(c.entries, key)
		}
	}
}
