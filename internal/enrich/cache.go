package enrich

import (
	"sync"
	"time"
)

// cacheEntry represents a single cache entry with expiration.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
	accessed  time.Time
}

// Cache is a thread-safe LRU-like cache with TTL.
type Cache[K comparable, V any] struct {
	data    map[K]*cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

// NewCache creates a new cache with the specified size and TTL.
func NewCache[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache[K, V]{
		data:    make(map[K]*cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.data[key]
	if !ok {
		return zero, false
	}

	now := c.now()
	if now.After(entry.expiresAt) {
		delete(c.data, key)
		return zero, false
	}
	entry.accessed = now
	return entry.value, true
}

// Set stores a value in the cache.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok && len(c.data) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.data[key] = &cacheEntry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
		accessed:  now,
	}
}

// Delete removes a key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]*cacheEntry[V])
}

// Size returns the current number of entries in the cache.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// evictOldest removes the least recently accessed entry.
// Must be called with lock held.
func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.data {
		if !found || entry.accessed.Before(oldest) {
			oldestKey, oldest, found = key, entry.accessed, true
		}
	}
	if found {
		delete(c.data, oldestKey)
	}
}

// Cleanup removes expired entries.
func (c *Cache[K, V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}
