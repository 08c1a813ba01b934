package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val    V
	stored time.Time
}

// Cache is a small in-memory map whose entries expire after a fixed TTL.
// A TTL of zero or less disables caching: Get always misses.
type Cache[V any] struct {
	data map[string]entry[V]
	ttl  time.Duration
	now  func() time.Time
	mu   sync.RWMutex
}

// NewCache creates a new cache with the specified TTL
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		data: make(map[string]entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c.ttl <= 0 {
		return zero, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.data[key]
	if !exists {
		return zero, false
	}
	if c.now().Sub(e.stored) > c.ttl {
		return zero, false
	}
	return e.val, true
}

// Set stores a value in the cache
func (c *Cache[V]) Set(key string, val V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry[V]{val: val, stored: c.now()}
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry[V])
}
