// Package storage composes the two cache tiers behind one facade.
//
// Reads consult the in-memory tier first, then the remote tier; a remote
// hit back-fills the in-memory tier before returning so the next read is
// local. Writes go to the in-memory tier synchronously and to the remote
// tier asynchronously — a caller inserting a value never waits on
// network I/O, and readers never observe a remote write ahead of the
// local one.
//
// The in-memory tier is authoritative: when the remote tier is absent or
// failing, the facade behaves exactly like a local LRU cache.
//
// Every read increments one of the four hit/miss counters and records a
// latency histogram, labeled by the caller name and the tier that
// answered. Every insert updates the memory size gauge.
package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dedup-cache/internal/lru"
	"dedup-cache/internal/metrics"
)

// Remote is the facade's view of a shared external store. The concrete
// implementation is the Redis adapter; tests substitute fakes.
//
// Implementations never fail: a broken get is a miss, a broken insert is
// a no-op.
type Remote[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Insert(ctx context.Context, key K, value V)
}

// Storage layers the bounded in-memory tier over an optional remote
// tier. It is safe for concurrent use.
type Storage[K comparable, V any] struct {
	caller string
	memory *lru.Cache[K, V]
	remote Remote[K, V] // nil when no remote tier is configured
	log    *logrus.Entry
}

// New creates a Storage with the given in-memory capacity. remote may be
// nil, in which case the facade is purely local.
func New[K comparable, V any](capacity int, remote Remote[K, V], caller string) *Storage[K, V] {
	return &Storage[K, V]{
		caller: caller,
		memory: lru.New[K, V](capacity),
		remote: remote,
		log:    logrus.WithField("caller", caller),
	}
}

// GetMemory consults only the in-memory tier.
//
// The deduplicating front-end uses this for its fast path: remote
// lookups are reserved for the single elected producer, so N concurrent
// misses cost one remote round-trip, not N.
func (s *Storage[K, V]) GetMemory(key K) (V, bool) {
	start := time.Now()

	v, ok := s.memory.Get(key)
	if ok {
		metrics.HitCount.WithLabelValues(s.caller, metrics.StorageMemory).Inc()
		metrics.HitTime.WithLabelValues(s.caller, metrics.StorageMemory).Observe(time.Since(start).Seconds())
		return v, true
	}

	metrics.MissCount.WithLabelValues(s.caller, metrics.StorageMemory).Inc()
	metrics.MissTime.WithLabelValues(s.caller, metrics.StorageMemory).Observe(time.Since(start).Seconds())
	var zero V
	return zero, false
}

// Get consults the in-memory tier, then the remote tier. A remote hit is
// back-filled into the in-memory tier before returning.
func (s *Storage[K, V]) Get(ctx context.Context, key K) (V, bool) {
	if v, ok := s.GetMemory(key); ok {
		return v, true
	}

	var zero V
	if s.remote == nil {
		return zero, false
	}

	start := time.Now()
	v, ok := s.remote.Get(ctx, key)
	if !ok {
		metrics.MissCount.WithLabelValues(s.caller, metrics.StorageRedis).Inc()
		metrics.MissTime.WithLabelValues(s.caller, metrics.StorageRedis).Observe(time.Since(start).Seconds())
		return zero, false
	}

	metrics.HitCount.WithLabelValues(s.caller, metrics.StorageRedis).Inc()
	metrics.HitTime.WithLabelValues(s.caller, metrics.StorageRedis).Observe(time.Since(start).Seconds())

	s.insertMemory(key, v)
	return v, true
}

// Insert writes to the in-memory tier, then kicks off the remote write
// in the background. By the time Insert returns, a local read is
// guaranteed to hit; the remote tier catches up eventually.
func (s *Storage[K, V]) Insert(ctx context.Context, key K, value V) {
	s.insertMemory(key, value)

	if s.remote != nil {
		// The write must survive the caller's cancellation: the producer
		// often tears its context down right after publishing.
		go s.remote.Insert(context.WithoutCancel(ctx), key, value)
	}
}

func (s *Storage[K, V]) insertMemory(key K, value V) {
	s.memory.Put(key, value)
	metrics.Size.WithLabelValues(s.caller, metrics.StorageMemory).Set(float64(s.memory.Len()))
}

// Len returns the number of entries in the in-memory tier.
func (s *Storage[K, V]) Len() int {
	return s.memory.Len()
}

// Keys returns the in-memory tier's keys, most recently used first.
func (s *Storage[K, V]) Keys() []K {
	return s.memory.Keys()
}
