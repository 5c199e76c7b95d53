// Package cache implements a deduplicating two-tier cache.
//
// It memoizes expensive computations — query plans, validations,
// subgraph responses — behind a single-flight front-end: when N
// concurrent callers ask for the same absent key, exactly one of them is
// elected to compute the value and the other N-1 suspend until it is
// published. Values live in a bounded in-memory LRU tier and, when
// configured, in a shared Redis tier for cross-process reuse.
//
// Usage:
//
//	entry := c.Get(ctx, key)
//	if entry.IsFirst() {
//	    v, err := compute(ctx, key)   // potentially long, can fail
//	    if err != nil {
//	        entry.Abandon()           // waiters observe ErrNoValue
//	        return err
//	    }
//	    entry.Insert(ctx, v)          // write-through + broadcast
//	    return use(v)
//	}
//	v, err := entry.Get(ctx)          // hit, or wait for the producer
//
// The wait registry maps each in-flight key to a rendezvous slot. A slot
// exists exactly as long as one production is in flight; it resolves
// once, to either a value or abandonment, and is removed by the producer
// (or its cancellation cleanup) only after resolution. Waiters never
// observe a pending slot's contents.
package cache

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"dedup-cache/internal/config"
	"dedup-cache/internal/redis"
	"dedup-cache/internal/storage"
)

// Cache is the deduplicating front-end over the two storage tiers.
// It is safe for concurrent use. Multiple independent caches coexist in
// one process, distinguished by their caller name in metrics output.
type Cache[K comparable, V any] struct {
	caller  string
	storage *storage.Storage[K, V]
	log     *logrus.Entry

	// waiting holds one slot per in-flight production. Its mutex guards
	// insert/lookup/remove only and is never held across I/O or while
	// waiting on a slot.
	mu      sync.Mutex
	waiting map[K]*slot[V]
}

// slot is the per-key rendezvous between one producer and any number of
// waiters. The producer stores value/ok and then closes done; the close
// is the publication barrier, so waiters reading the fields afterwards
// observe them fully written.
type slot[V any] struct {
	done  chan struct{}
	value V
	ok    bool
}

// WithCapacity creates a cache with the given in-memory capacity and an
// optional remote tier. remote may be nil for a local-only cache.
func WithCapacity[K comparable, V any](capacity int, remote storage.Remote[K, V], caller string) *Cache[K, V] {
	return &Cache[K, V]{
		caller:  caller,
		storage: storage.New[K, V](capacity, remote, caller),
		log:     logrus.WithField("caller", caller),
		waiting: make(map[K]*slot[V]),
	}
}

// FromConfig creates a cache from an enumerated configuration, wiring up
// the Redis tier when one is configured.
func FromConfig[K comparable, V any](cfg config.Cache, caller string) (*Cache[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var remote storage.Remote[K, V]
	if cfg.Redis != nil {
		store, err := redis.New[K, V](redis.Options{
			URLs:     cfg.Redis.URLs,
			Timeout:  cfg.Redis.Timeout.Std(),
			TTL:      cfg.Redis.TTL.Std(),
			PoolSize: cfg.Redis.PoolSize,
		}, caller)
		if err != nil {
			return nil, err
		}
		remote = store
	}

	return WithCapacity[K, V](cfg.InMemory.Limit, remote, caller), nil
}

// Get returns a handle for key.
//
// On an in-memory hit the handle already carries the value. Otherwise
// the caller joins the wait registry: the first arrival gets the
// producer handle (IsFirst reports true) and owes the registry a
// resolution; later arrivals get waiter handles that suspend in
// Entry.Get until the producer publishes or abandons.
//
// ctx governs the producer's obligation: if it is cancelled before the
// handle is consumed, the production is abandoned and waiters are
// released with ErrNoValue.
func (c *Cache[K, V]) Get(ctx context.Context, key K) *Entry[K, V] {
	// Fast path: only the in-memory tier. The remote tier is consulted
	// by the elected producer alone, so N concurrent misses cost one
	// remote round-trip rather than N.
	if v, ok := c.storage.GetMemory(key); ok {
		return &Entry[K, V]{kind: entryValue, value: v}
	}
	return c.dedup(ctx, key)
}

// dedup joins or opens the wait registry entry for key.
func (c *Cache[K, V]) dedup(ctx context.Context, key K) *Entry[K, V] {
	c.mu.Lock()
	if s, ok := c.waiting[key]; ok {
		c.mu.Unlock()
		return &Entry[K, V]{kind: entryWaiter, slot: s}
	}

	// First arrival: create the slot and register it while still holding
	// the registry lock, so no other caller can observe an empty slot
	// that nobody owns.
	s := &slot[V]{done: make(chan struct{})}
	c.waiting[key] = s
	c.mu.Unlock()

	e := &Entry[K, V]{
		kind:     entryFirst,
		key:      key,
		slot:     s,
		cache:    c,
		consumed: make(chan struct{}),
	}

	// Drop sentinel. If the producer's context ends before the handle is
	// consumed — cancellation, deadline, or the caller erroring out —
	// the production is abandoned so waiters are not stranded.
	go func() {
		select {
		case <-e.consumed:
		case <-ctx.Done():
			c.log.Debug("producer context ended before publish; abandoning")
			e.Abandon()
		}
	}()

	// A concurrent producer in another process (or a racing insert in
	// this one) may have published between our miss and the registry
	// insert. Re-check the full facade once; on a hit, publish through
	// our own slot so any waiter that raced in behind us resolves too.
	if v, ok := c.storage.Get(ctx, key); ok {
		e.resolve(ctx, v, true, false)
		return &Entry[K, V]{kind: entryValue, value: v}
	}

	return e
}

// Insert writes key=value through both tiers without any single-flight
// ceremony. It is idempotent: a later Insert for the same key simply
// overwrites, and in-flight productions for the key are unaffected.
func (c *Cache[K, V]) Insert(ctx context.Context, key K, value V) {
	c.storage.Insert(ctx, key, value)
}

// Len returns the number of entries in the in-memory tier.
func (c *Cache[K, V]) Len() int {
	return c.storage.Len()
}

// Keys returns the in-memory tier's keys, most recently used first.
// Diagnostics only.
func (c *Cache[K, V]) Keys() []K {
	return c.storage.Keys()
}

// removeWaiting deletes key from the wait registry. Called exactly once
// per production, after its slot has resolved.
func (c *Cache[K, V]) removeWaiting(key K) {
	c.mu.Lock()
	delete(c.waiting, key)
	c.mu.Unlock()
}
