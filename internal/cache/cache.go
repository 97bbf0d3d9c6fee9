// Package cache memoizes expensive query results with an LRU capacity
// bound, per-entry TTL, and O(1) global invalidation tied to the index
// write epoch. Concurrent identical requests share one in-flight
// computation.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/secondbrain-labs/brainmcp/internal/errors"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 256

// DefaultTTL is the entry lifetime when none is configured.
const DefaultTTL = time.Hour

// EpochFunc reports the index coordinator's current write epoch. Entries
// tagged with an older epoch are stale regardless of age.
type EpochFunc func() uint64

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	value     V
	epoch     uint64 // Index epoch read before compute started
	gen       uint64 // Cache generation at creation
	expiresAt time.Time
}

// QueryCache memoizes key -> value with single-flight deduplication.
// An entry is returned only while all three hold: the index epoch it was
// computed against is still current, the cache generation has not been
// bumped by InvalidateAll, and its TTL has not passed.
type QueryCache[V any] struct {
	entries *lru.Cache[string, *entry[V]]
	flight  singleflight.Group
	ttl     time.Duration
	epochFn EpochFunc

	gen       atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	// now is swappable for TTL tests.
	now func() time.Time
}

// New creates a query cache. epochFn must never be nil; capacity and ttl
// fall back to defaults when non-positive.
func New[V any](capacity int, ttl time.Duration, epochFn EpochFunc) *QueryCache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if epochFn == nil {
		epochFn = func() uint64 { return 0 }
	}

	c := &QueryCache[V]{
		ttl:     ttl,
		epochFn: epochFn,
		now:     time.Now,
	}
	c.entries, _ = lru.NewWithEvict[string, *entry[V]](capacity, func(string, *entry[V]) {
		c.evictions.Add(1)
	})
	return c
}

// GetOrCompute returns the cached value for key if a fresh entry exists;
// otherwise it runs compute exactly once, even under concurrent identical
// calls, and caches the result. A compute failure is propagated to every
// waiter of that flight and nothing is stored, so the next call retries.
func (c *QueryCache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if e, ok := c.entries.Get(key); ok && c.fresh(e) {
		c.hits.Add(1)
		return e.value, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller in the same burst may have already populated
		// the entry between our lookup and this flight starting.
		if e, ok := c.entries.Get(key); ok && c.fresh(e) {
			c.hits.Add(1)
			return e.value, nil
		}
		c.misses.Add(1)

		// The epoch and generation are read before compute so a write
		// that lands mid-compute invalidates this entry at lookup time.
		epoch := c.epochFn()
		gen := c.gen.Load()

		value, err := compute(ctx)
		if err != nil {
			return nil, errors.ComputeFailed(err)
		}

		c.entries.Add(key, &entry[V]{
			value:     value,
			epoch:     epoch,
			gen:       gen,
			expiresAt: c.now().Add(c.ttl),
		})
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// fresh reports whether an entry may still be served.
func (c *QueryCache[V]) fresh(e *entry[V]) bool {
	return e.epoch == c.epochFn() &&
		e.gen == c.gen.Load() &&
		c.now().Before(e.expiresAt)
}

// InvalidateAll marks every current entry stale by bumping the cache
// generation. Entries are dropped lazily on lookup or LRU eviction; no
// walk of the table happens here.
func (c *QueryCache[V]) InvalidateAll() {
	c.gen.Add(1)
}

// Stats returns a snapshot of the cache counters.
func (c *QueryCache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.entries.Len(),
	}
}

// Len returns the number of entries currently held, fresh or stale.
func (c *QueryCache[V]) Len() int {
	return c.entries.Len()
}
