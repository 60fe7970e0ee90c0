// Package cache implements the statistics cache: an LRU- and TTL-bounded
// memoization layer in front of the aggregation queries, invalidated by
// namespace generation counters rather than per-key deletes.
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrComputeTimeout reports that the aggregation callback exceeded its
// deadline. Nothing is cached; the caller sees the error.
var ErrComputeTimeout = errors.New("aggregation compute timed out")

// ErrCorruptEntry reports a cached value that could not be read back as the
// expected type even after recomputation.
var ErrCorruptEntry = errors.New("cache entry has unexpected type")

type entry struct {
	key        string
	namespace  Namespace
	value      any
	computedAt time.Time
	expiresAt  time.Time
	generation uint64
}

// StatisticsCache memoizes aggregation results. An entry is served only
// while it is unexpired and its generation matches the current generation
// of its namespace; bumping a namespace generation logically discards all
// of its entries in O(1).
type StatisticsCache struct {
	mu          sync.Mutex
	maxSize     int
	ttl         time.Duration
	computeTTL  time.Duration
	items       map[string]*list.Element
	lru         *list.List
	generations map[Namespace]uint64
	hits        map[Namespace]uint64
	misses      map[Namespace]uint64

	// sf collapses concurrent misses for the same key into one compute.
	// The flight key includes the generation snapshot, so an invalidation
	// during a compute starts a fresh flight for later callers instead of
	// handing them a pre-invalidation result.
	sf singleflight.Group
}

// New creates a statistics cache bounded to maxSize entries, with the given
// entry TTL and per-compute timeout.
func New(maxSize int, ttl, computeTimeout time.Duration) *StatisticsCache {
	c := &StatisticsCache{
		maxSize:     maxSize,
		ttl:         ttl,
		computeTTL:  computeTimeout,
		items:       make(map[string]*list.Element),
		lru:         list.New(),
		generations: make(map[Namespace]uint64),
		hits:        make(map[Namespace]uint64),
		misses:      make(map[Namespace]uint64),
	}
	for _, ns := range Namespaces() {
		c.generations[ns] = 0
	}
	return c
}

// GetOrCompute returns the cached value for key, or runs compute exactly
// once across concurrent callers and caches the result. The boolean
// reports whether the value came from the cache.
func (c *StatisticsCache) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (any, error)) (any, bool, error) {
	canonical := key.Canonical()

	c.mu.Lock()
	gen := c.generations[key.Namespace]
	if elem, ok := c.items[canonical]; ok {
		ent := elem.Value.(*entry)
		if ent.generation == gen && time.Now().Before(ent.expiresAt) {
			c.lru.MoveToFront(elem)
			c.hits[key.Namespace]++
			value := ent.value
			c.mu.Unlock()
			return value, true, nil
		}
		c.removeElement(elem)
	}
	c.misses[key.Namespace]++
	c.mu.Unlock()

	flightKey := fmt.Sprintf("%s@%d", canonical, gen)
	value, err, _ := c.sf.Do(flightKey, func() (any, error) {
		cctx := ctx
		if c.computeTTL > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, c.computeTTL)
			defer cancel()
		}

		v, err := compute(cctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrComputeTimeout, err)
			}
			return nil, err
		}

		c.store(canonical, key.Namespace, v, gen)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}

// store inserts the computed value with the generation snapshotted before
// the compute started. If the namespace was invalidated meanwhile, the new
// entry is already stale and the next get recomputes.
func (c *StatisticsCache) store(canonical string, ns Namespace, value any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	ent := &entry{
		key:        canonical,
		namespace:  ns,
		value:      value,
		computedAt: now,
		expiresAt:  now.Add(c.ttl),
		generation: gen,
	}

	if elem, ok := c.items[canonical]; ok {
		elem.Value = ent
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(ent)
	c.items[canonical] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Contains reports whether a live entry exists for the key: present,
// unexpired, and of the current generation. It does not touch LRU order
// or the hit/miss counters; the debug surface uses it to report cache
// state without perturbing it.
func (c *StatisticsCache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key.Canonical()]
	if !ok {
		return false
	}
	ent := elem.Value.(*entry)
	return ent.generation == c.generations[key.Namespace] && time.Now().Before(ent.expiresAt)
}

// Remove drops a single key, regardless of its state.
func (c *StatisticsCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key.Canonical()]; ok {
		c.removeElement(elem)
	}
}

// Invalidate logically discards every entry of the namespace by bumping
// its generation counter. No entries are scanned or deleted here; stale
// entries age out through TTL expiry, LRU pressure, or CleanExpired.
func (c *StatisticsCache) Invalidate(ns Namespace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ns]++
}

// InvalidateAll bumps every namespace generation.
func (c *StatisticsCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ns := range c.generations {
		c.generations[ns]++
	}
}

// Clear drops all entries and advances every namespace generation.
// Generations stay monotonic: a compute already in flight carries an older
// generation snapshot, so the result it stores after the clear is stale on
// arrival instead of reading as current. Exposed on the operator surface
// for manual recovery.
func (c *StatisticsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru = list.New()
	for ns := range c.generations {
		c.generations[ns]++
	}
}

// Generation returns the current generation of a namespace.
func (c *StatisticsCache) Generation(ns Namespace) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ns]
}

// Size returns the current number of physically stored entries,
// including logically invalidated ones not yet evicted.
func (c *StatisticsCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanExpired physically removes entries that are TTL-expired or belong
// to a superseded generation, returning the count removed.
func (c *StatisticsCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry)
		if now.After(ent.expiresAt) || ent.generation != c.generations[ent.namespace] {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// NamespaceStats is one namespace's slice of the cache-stats surface.
type NamespaceStats struct {
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Entries    int    `json:"entries"`
	Generation uint64 `json:"generation"`
}

// Stats reports hit/miss counters, live entry counts, and generations
// per namespace.
func (c *StatisticsCache) Stats() map[Namespace]NamespaceStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[Namespace]int)
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry)
		entries[ent.namespace]++
	}

	stats := make(map[Namespace]NamespaceStats, len(c.generations))
	for _, ns := range Namespaces() {
		stats[ns] = NamespaceStats{
			Hits:       c.hits[ns],
			Misses:     c.misses[ns],
			Entries:    entries[ns],
			Generation: c.generations[ns],
		}
	}
	return stats
}

func (c *StatisticsCache) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.lru.Remove(elem)
}
