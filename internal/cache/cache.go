// Package cache is a TTL keyed store for values that are expensive to
// recompute, such as host metrics snapshots.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt int64
}

// Cache is a thread-safe in-memory TTL cache.
type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration

	entries map[string]entry
}

// New creates a cache with the given default TTL and starts the
// background sweeper.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
	go c.sweep()
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with a custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl).UnixNano(),
	}
}

// Get returns the live value for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().UnixNano() > e.expiresAt {
		return nil, false
	}
	return e.value, true
}

// GetOrSet returns the cached value for key, computing and storing it
// when absent.
func (c *Cache) GetOrSet(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UnixNano()
		c.mu.Lock()
		for key, e := range c.entries {
			if now > e.expiresAt {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

// Cache keys.
const (
	KeyCPU    = "metrics:cpu"
	KeyMemory = "metrics:memory"
	KeyDisk   = "metrics:disk"
	KeyHost   = "metrics:host"
	KeyAll    = "metrics:all"
)

// MetricsCache caches local host metrics with a short TTL so polling
// clients do not hammer the collectors.
type MetricsCache struct {
	*Cache
}

// NewMetricsCache creates the metrics cache.
func NewMetricsCache() *MetricsCache {
	return &MetricsCache{Cache: New(2 * time.Second)}
}
