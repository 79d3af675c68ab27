// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides a small in-memory cache with TTL support.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vodsession",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by cache name and result.",
	},
	[]string{"cache", "result"},
)

// Stats holds cache counters.
type Stats struct {
	Hits        int64 // successful Get calls
	Misses      int64 // Get calls on absent or expired keys
	Sets        int64
	Evictions   int64 // expired entries removed by the janitor
	CurrentSize int
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

// Cache is a thread-safe map with per-entry expiry.
type Cache[V any] struct {
	name string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]

	hits, misses, sets, evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option tunes a Cache.
type Option func(*options)

type options struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanup starts a janitor that drops expired entries every interval.
func WithCleanup(interval time.Duration) Option {
	return func(o *options) { o.cleanupInterval = interval }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache. name labels its metrics.
func New[V any](name string, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		name:    name,
		now:     o.now,
		entries: make(map[string]entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go c.janitor(o.cleanupInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the value for key unless it is absent or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || c.now().After(e.expiration) {
		c.misses.Add(1)
		lookupsTotal.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	lookupsTotal.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value for ttl. A non-positive ttl is a no-op.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiration: c.now().Add(ttl)}
	c.mu.Unlock()
	c.sets.Add(1)
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// Close stops the janitor and waits for it to exit. It is safe to call twice.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// deleteExpired removes expired entries and returns how many were dropped.
func (c *Cache[V]) deleteExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, key)
			count++
		}
	}
	c.evictions.Add(int64(count))
	return count
}

func (c *Cache[V]) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}
