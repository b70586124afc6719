package edgar

import (
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

// Cache is a minimal in-memory TTL cache safe for concurrent access.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]cacheItem[V]
	now   func() time.Time
}

// NewCache constructs an empty Cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[string]cacheItem[V]), now: time.Now}
}

// Set stores a value with a time-to-live for the given key.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem[V]{value: value, expiration: c.now().Add(ttl)}
}

// Get retrieves a non-expired value for the key, returning false if missing or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(it.expiration) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expiration.Equal(it.expiration) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
