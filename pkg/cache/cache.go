// Package cache provides the per-owner result cache for computed aggregates.
// Keys follow the "<query>:<ownerID>:<rangeStart>:<rangeEnd>" shape so that
// all entries for an owner can be purged when their ledger changes.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Recorder receives hit/miss/eviction notifications. Implemented by pkg/metrics.
type Recorder interface {
	CacheHit()
	CacheMiss()
	CacheEvicted(n int)
}

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// ResultCache is a time-boxed key/value store with owner-scoped invalidation.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	rec     Recorder
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *ResultCache) { c.rec = r }
}

// New creates an empty cache.
func New(opts ...Option) *ResultCache {
	c := &ResultCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a cache key for a query scoped to an owner.
func Key(query, ownerID string, parts ...string) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte(':')
	b.WriteString(ownerID)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// Get returns the cached value for key. Expired entries are deleted on read.
func (c *ResultCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil, false
	}

	if e.expired(c.now()) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, still := c.entries[key]; still && cur.expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.miss()
		return nil, false
	}

	if c.rec != nil {
		c.rec.CacheHit()
	}
	return e.value, true
}

// Set stores value under key. A ttl <= 0 stores the entry without expiry.
func (c *ResultCache) Set(key string, value any, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Invalidate removes every entry whose key embeds ownerID.
// An empty ownerID clears the whole cache.
func (c *ResultCache) Invalidate(ownerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ownerID == "" {
		n := len(c.entries)
		c.entries = make(map[string]entry)
		c.evicted(n)
		return n
	}

	infix := ":" + ownerID + ":"
	suffix := ":" + ownerID
	prefix := ownerID + ":"

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, infix) || strings.HasSuffix(key, suffix) || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.evicted(removed)
	return removed
}

// Sweep drops all expired entries and returns how many were removed.
func (c *ResultCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.evicted(removed)
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ResultCache) miss() {
	if c.rec != nil {
		c.rec.CacheMiss()
	}
}

func (c *ResultCache) evicted(n int) {
	if c.rec != nil && n > 0 {
		c.rec.CacheEvicted(n)
	}
}
