package cache

import (
	"context"
	"errors"
	"sync"
)

// Errors surfaced to callers. Remote-tier failures are never among
// them; those degrade the cache silently.
var (
	// ErrIsFirst reports Entry.Get called on a producer handle. The
	// first arrival must produce the value and call Insert, Send, or
	// Abandon instead.
	ErrIsFirst = errors.New("cache: entry is first, caller must produce the value")

	// ErrNoValue reports that the producer abandoned the production.
	// The caller may retry; the next Get elects a fresh producer.
	ErrNoValue = errors.New("cache: no value was produced")
)

type entryKind int

const (
	entryValue  entryKind = iota // hit: value already attached
	entryWaiter                  // awaiting another caller's production
	entryFirst                   // obligation to publish or abandon
)

// Entry is the handle returned by Cache.Get. It must be consumed
// exactly once: Value and Waiter handles by Get, a First handle by one
// of Insert, Send, or Abandon (a second consumption is a no-op).
type Entry[K comparable, V any] struct {
	kind  entryKind
	value V        // entryValue
	slot  *slot[V] // entryWaiter and entryFirst

	// Producer state, set only for entryFirst.
	key      K
	cache    *Cache[K, V]
	once     sync.Once
	consumed chan struct{} // closed on consumption; watched by the drop sentinel
}

// IsFirst reports whether this caller was elected to produce the value.
func (e *Entry[K, V]) IsFirst() bool {
	return e.kind == entryFirst
}

// Get consumes the handle and returns the value.
//
// On a hit it returns immediately. On a waiter handle it suspends until
// the producer publishes (the value) or abandons (ErrNoValue), or until
// ctx ends; cancelling one waiter affects neither the producer nor the
// other waiters. Calling Get on a producer handle is a programming
// error and returns ErrIsFirst.
func (e *Entry[K, V]) Get(ctx context.Context) (V, error) {
	var zero V
	switch e.kind {
	case entryValue:
		return e.value, nil
	case entryWaiter:
		select {
		case <-e.slot.done:
			if !e.slot.ok {
				return zero, ErrNoValue
			}
			return e.slot.value, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	default:
		return zero, ErrIsFirst
	}
}

// Insert publishes value for this production: it writes through both
// storage tiers, then broadcasts to every waiter. No-op on non-producer
// handles and on already-consumed handles.
func (e *Entry[K, V]) Insert(ctx context.Context, value V) {
	if e.kind != entryFirst {
		return
	}
	e.resolve(ctx, value, true, true)
}

// Send broadcasts value to the waiters without writing it to either
// tier. This is for intentionally non-cacheable results — a transient
// error the waiters should see once but nobody should memoize.
func (e *Entry[K, V]) Send(ctx context.Context, value V) {
	if e.kind != entryFirst {
		return
	}
	e.resolve(ctx, value, true, false)
}

// Abandon gives up the production without a value. Current waiters (and
// any that arrive before the registry entry is gone) observe ErrNoValue;
// the next Get after removal starts a fresh production. The drop
// sentinel calls this when the producer's context ends unconsumed.
func (e *Entry[K, V]) Abandon() {
	if e.kind != entryFirst {
		return
	}
	var zero V
	e.resolve(context.Background(), zero, false, false)
}

// resolve terminates the production exactly once. The order is strict
// and load-bearing:
//
//  1. write-through (in-memory tier synchronously) — so a waiter that
//     wakes and re-reads the cache sees the value;
//  2. publish the slot — the channel close is the broadcast;
//  3. remove the slot from the registry — late arrivals either hit the
//     cache or catch the resolved slot, both correct;
//  4. release the drop sentinel.
func (e *Entry[K, V]) resolve(ctx context.Context, value V, ok bool, writeThrough bool) {
	e.once.Do(func() {
		if writeThrough {
			e.cache.storage.Insert(ctx, e.key, value)
		}
		e.slot.value, e.slot.ok = value, ok
		close(e.slot.done)
		e.cache.removeWaiting(e.key)
		close(e.consumed)
	})
}
