// Package cache keeps the latest decoded reading per sensor kind.
package cache

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/srg/thpgw/internal/sensor"
)

// Entry is the cached state of one sensor kind
type Entry struct {
	Reading   sensor.Reading `json:"-"`
	Kind      sensor.Kind    `json:"kind"`
	Value     string         `json:"value"`
	SampledAt time.Time      `json:"sampled_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Updates   uint64         `json:"updates"`
	Stale     bool           `json:"stale"`
}

// Cache is a coalescing latest-value store.
// Reads are lock-free; writers are serialized so an older sample never replaces a newer one.
type Cache struct {
	entries    *hashmap.Map[sensor.Kind, *Entry]
	staleAfter time.Duration
	now        func() time.Time

	writeMu sync.Mutex
}

// New creates a cache. staleAfter of 0 disables staleness.
func New(staleAfter time.Duration) *Cache {
	return &Cache{
		entries:    hashmap.New[sensor.Kind, *Entry](),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// StaleAfter returns the configured staleness threshold
func (c *Cache) StaleAfter() time.Duration {
	return c.staleAfter
}

// Update stores r unless a newer sample of the same kind is cached.
// A zero SampledAt is stamped with the current time. Returns whether r was applied.
func (c *Cache) Update(r sensor.Reading) bool {
	if !r.Kind.Valid() {
		return false
	}

	now := c.now()
	if r.SampledAt.IsZero() {
		r.SampledAt = now
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var updates uint64
	if prev, ok := c.entries.Get(r.Kind); ok {
		if r.SampledAt.Before(prev.SampledAt) {
			return false
		}
		updates = prev.Updates
	}

	c.entries.Set(r.Kind, &Entry{
		Reading:   r,
		Kind:      r.Kind,
		Value:     sensor.FormatValue(r.Value),
		SampledAt: r.SampledAt,
		UpdatedAt: now,
		Updates:   updates + 1,
	})
	return true
}

// Get returns a copy of the entry for kind with Stale evaluated now
func (c *Cache) Get(k sensor.Kind) (Entry, bool) {
	e, ok := c.entries.Get(k)
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Stale = c.isStale(out, c.now())
	return out, true
}

// Snapshot returns every cached entry in kind order with Stale evaluated at now
func (c *Cache) Snapshot(now time.Time) []Entry {
	out := make([]Entry, 0, len(sensor.Kinds()))
	for _, k := range sensor.Kinds() {
		e, ok := c.entries.Get(k)
		if !ok {
			continue
		}
		entry := *e
		entry.Stale = c.isStale(entry, now)
		out = append(out, entry)
	}
	return out
}

// Len returns the number of kinds with a cached value
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Reset drops every cached value
func (c *Cache) Reset() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, k := range sensor.Kinds() {
		c.entries.Del(k)
	}
}

func (c *Cache) isStale(e Entry, now time.Time) bool {
	if c.staleAfter <= 0 {
		return false
	}
	return now.Sub(e.SampledAt) > c.staleAfter
}
