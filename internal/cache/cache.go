// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar


// Package cache holds short-lived API responses that are expensive to
// recompute. Entries expire after a TTL and the whole cache is dropped
// whenever the underlying readings change.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/metrics"
)

// DefaultTTL bounds staleness for windows anchored on "now".
const DefaultTTL = 30 * time.Second

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe TTL map. The zero value is not usable; call New.
type Cache[V any] struct {
	mu          sync.RWMutex
	entries     map[string]entry[V]
	ttl         time.Duration
	now         func() time.Time
	lastCleanup time.Time
	stats       Stats
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// New creates a cache whose entries live for ttl. A non-positive ttl uses
// DefaultTTL. Expired entries are swept lazily on writes, so no background
// goroutine outlives the cache.
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	now := c.now()
	if !ok || now.After(e.expiresAt) {
		var zero V
		c.mu.Lock()
		if ok {
			// Re-check: a concurrent Set may have refreshed the entry.
			if cur, still := c.entries[key]; still && now.After(cur.expiresAt) {
				delete(c.entries, key)
				c.stats.Evictions++
			}
		}
		c.stats.Misses++
		n := len(c.entries)
		c.mu.Unlock()
		metrics.CacheMisses.Inc()
		metrics.CacheEntries.Set(float64(n))
		return zero, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.CacheHits.Inc()
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache[V]) Set(key string, value V) {
	now := c.now()
	c.mu.Lock()
	if now.Sub(c.lastCleanup) >= c.ttl {
		c.sweepLocked(now)
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
	n := len(c.entries)
	c.mu.Unlock()
	metrics.CacheEntries.Set(float64(n))
}

// Clear drops every entry. Called whenever stored readings or the
// thresholds derived from the profile change.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
	metrics.CacheEntries.Set(0)
}

// GetStats returns a copy of the counters.
func (c *Cache[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache[V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache[V]) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}
	c.lastCleanup = now
}

// GenerateKey builds a compact key from a method name and its parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}
