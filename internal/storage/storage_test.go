package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedup-cache/internal/metrics"
)

// fakeRemote is an in-memory Remote with operation counters.
type fakeRemote[K comparable, V any] struct {
	mu      sync.Mutex
	data    map[K]V
	gets    atomic.Int64
	inserts atomic.Int64
}

func newFakeRemote[K comparable, V any]() *fakeRemote[K, V] {
	return &fakeRemote[K, V]{data: make(map[K]V)}
}

func (f *fakeRemote[K, V]) Get(_ context.Context, key K) (V, bool) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeRemote[K, V]) Insert(_ context.Context, key K, value V) {
	f.inserts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func TestLocalOnlyGetAndInsert(t *testing.T) {
	s := New[string, string](4, nil, "storage_local")
	ctx := context.Background()

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)

	s.Insert(ctx, "k", "v")

	v, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, s.Len())
}

// A remote hit is served and back-filled so the next read stays local.
func TestRemoteHitBackfillsMemory(t *testing.T) {
	remote := newFakeRemote[string, string]()
	remote.data["k"] = "warm"

	s := New[string, string](4, remote, "storage_backfill")
	ctx := context.Background()

	v, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "warm", v)
	assert.EqualValues(t, 1, remote.gets.Load())

	// Second read must not touch the remote tier.
	v, ok = s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "warm", v)
	assert.EqualValues(t, 1, remote.gets.Load())
}

// Insert returns before the remote write lands; the remote tier catches
// up in the background.
func TestInsertWritesThroughAsynchronously(t *testing.T) {
	remote := newFakeRemote[string, string]()
	s := New[string, string](4, remote, "storage_writethrough")
	ctx := context.Background()

	s.Insert(ctx, "k", "v")

	// Local read hits immediately.
	v, ok := s.GetMemory("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.Eventually(t, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return remote.data["k"] == "v"
	}, time.Second, 5*time.Millisecond)
}

// The remote write survives the caller cancelling its context right
// after Insert returns.
func TestInsertSurvivesCallerCancellation(t *testing.T) {
	remote := newFakeRemote[string, string]()
	s := New[string, string](4, remote, "storage_cancel")

	ctx, cancel := context.WithCancel(context.Background())
	s.Insert(ctx, "k", "v")
	cancel()

	require.Eventually(t, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return remote.data["k"] == "v"
	}, time.Second, 5*time.Millisecond)
}

func TestGetMemoryDoesNotTouchRemote(t *testing.T) {
	remote := newFakeRemote[string, string]()
	remote.data["k"] = "warm"

	s := New[string, string](4, remote, "storage_memonly")

	_, ok := s.GetMemory("k")
	assert.False(t, ok)
	assert.EqualValues(t, 0, remote.gets.Load())
}

// The instrument names and labels are a dashboard contract.
func TestMetricsEmitted(t *testing.T) {
	const caller = "storage_metrics"

	remote := newFakeRemote[string, string]()
	remote.data["warm"] = "v"

	s := New[string, string](4, remote, caller)
	ctx := context.Background()

	s.Get(ctx, "cold") // memory miss + redis miss
	s.Get(ctx, "warm") // memory miss + redis hit
	s.Get(ctx, "warm") // memory hit

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HitCount.WithLabelValues(caller, metrics.StorageMemory)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MissCount.WithLabelValues(caller, metrics.StorageMemory)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HitCount.WithLabelValues(caller, metrics.StorageRedis)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MissCount.WithLabelValues(caller, metrics.StorageRedis)))

	s.Insert(ctx, "k", "v")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Size.WithLabelValues(caller, metrics.StorageMemory)))
}
