// Package cache provides a bounded key-value store with TTL expiry and
// least-recently-used eviction, shared by every in-process cache of the bot.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is safe for concurrent use. Entries expire ttl after their last
// write; reads do not extend the lifetime.
type Cache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]

	// mu serializes writers so Update is atomic per cache. Reads go straight
	// to the LRU, which has its own lock.
	mu sync.Mutex
}

type config[K comparable, V any] struct {
	onEvict func(K, V)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*config[K, V])

// WithOnEvict registers a callback invoked when an entry leaves the cache
// because of expiry, capacity pressure or Delete.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *config[K, V]) {
		c.onEvict = fn
	}
}

// New creates a cache holding at most capacity entries. capacity 0 means
// unbounded and ttl 0 means entries never expire.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	var cfg config[K, V]
	for _, opt := range opts {
		opt(&cfg)
	}
	if capacity < 0 {
		capacity = 0
	}

	return &Cache[K, V]{
		lru: expirable.NewLRU[K, V](capacity, cfg.onEvict, ttl),
	}
}

// Get returns the value for key. A missing or expired entry is not an error.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value and restarts the entry's TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, value)
}

// Update atomically replaces the value for key with fn(current, found) and
// returns the stored value. Concurrent Update calls on the same cache never
// lose writes.
func (c *Cache[K, V]) Update(key K, fn func(current V, found bool) V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, found := c.lru.Get(key)
	next := fn(current, found)
	c.lru.Add(key, next)
	return next
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Len returns the number of entries, including ones that expired but were
// not yet purged.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
