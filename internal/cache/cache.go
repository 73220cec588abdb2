package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type entry[V any] struct {
	value   V
	expires time.Time
	stored  time.Time
}

// TTL is a concurrency-safe map whose entries expire a fixed duration after
// they were stored.
type TTL[K comparable, V any] struct {
	mu sync.Mutex

	items map[K]entry[V]

	ttl        time.Duration
	maxEntries int // 0 = unlimited
	now        Clock
}

// New creates a TTL cache. A nil clock uses time.Now.
func New[K comparable, V any](ttl time.Duration, maxEntries int, now Clock) *TTL[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTL[K, V]{
		items:      make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the value for key if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expires) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry when full.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.purgeLocked(now)

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		var oldestKey K
		var oldest time.Time
		first := true
		for k, e := range c.items {
			if first || e.stored.Before(oldest) {
				oldestKey, oldest, first = k, e.stored, false
			}
		}
		delete(c.items, oldestKey)
	}

	c.items[key] = entry[V]{value: value, stored: now, expires: now.Add(c.ttl)}
}

// Purge drops expired entries and returns how many were removed.
func (c *TTL[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

func (c *TTL[K, V]) purgeLocked(now time.Time) int {
	removed := 0
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
