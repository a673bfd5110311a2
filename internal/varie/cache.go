package varie

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	fetchedAt time.Time
}

func (e cacheEntry[V]) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.fetchedAt) >= ttl
}

// Cache is a read-through cache with a fixed TTL and no invalidation
// signal from the store. Instances are passed explicitly to whatever
// needs them; there is no package-level singleton.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]cacheEntry[V]
}

func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: map[K]cacheEntry[V]{},
	}
}

// NewCacheWithClock injects the clock, for tests.
func NewCacheWithClock[K comparable, V any](ttl time.Duration, now func() time.Time) *Cache[K, V] {
	c := NewCache[K, V](ttl)
	c.now = now
	return c
}

// Get returns the cached value for key, calling fetch on a miss or an
// expired entry. A failed fetch leaves any stale entry in place and
// returns the error.
func (c *Cache[K, V]) Get(key K, fetch func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !e.isExpired(c.now(), c.ttl) {
		return e.value, nil
	}
	v, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = cacheEntry[V]{value: v, fetchedAt: c.now()}
	return v, nil
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
