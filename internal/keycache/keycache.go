// Package keycache caches derived key material by identity string so that
// hot paths (batch runs, API requests) skip repeated parsing and derivation.
package keycache

import (
	"sync"
	"time"

	"github.com/kenneth/save-resign-gateway/internal/identity"
)

// Stats holds cache statistics.
type Stats struct {
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is an interface for caching derived keys.
type Cache interface {
	// Get retrieves the key material cached for an identity string.
	Get(identityStr string) (identity.KeyMaterial, bool)

	// Put stores key material for an identity string.
	Put(identityStr string, key identity.KeyMaterial)

	// Clear removes all entries.
	Clear()

	// Stats returns cache statistics.
	Stats() Stats
}

type entry struct {
	key       identity.KeyMaterial
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// memoryCache is an in-memory implementation of Cache.
type memoryCache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	maxItems int
	ttl      time.Duration
	stats    Stats
}

// NewMemoryCache creates a bounded in-memory key cache.
func NewMemoryCache(maxItems int, ttl time.Duration) Cache {
	return &memoryCache{
		entries:  make(map[string]*entry),
		maxItems: maxItems,
		ttl:      ttl,
	}
}

// Get retrieves the key material cached for an identity string.
func (c *memoryCache) Get(identityStr string) (identity.KeyMaterial, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[identityStr]
	if !ok || e.expired() {
		c.stats.Misses++
		return identity.KeyMaterial{}, false
	}
	c.stats.Hits++
	return e.key, true
}

// Put stores key material for an identity string.
func (c *memoryCache) Put(identityStr string, key identity.KeyMaterial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	if len(c.entries) >= c.maxItems {
		c.evictOneLocked()
	}
	c.entries[identityStr] = &entry{key: key, expiresAt: time.Now().Add(c.ttl)}
}

// Clear removes all entries.
func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.stats = Stats{}
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Items = len(c.entries)
	return stats
}

// evictExpiredLocked removes expired entries (must be called with lock held).
func (c *memoryCache) evictExpiredLocked() {
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}
}

// evictOneLocked removes the entry closest to expiry (must be called with
// lock held).
func (c *memoryCache) evictOneLocked() {
	var oldest string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldest == "" || e.expiresAt.Before(oldestAt) {
			oldest = k
			oldestAt = e.expiresAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
		c.stats.Evictions++
	}
}
