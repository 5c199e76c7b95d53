// Package metrics declares the process-wide cache instruments.
//
// The names are a contract: downstream dashboards query them verbatim.
// Individual cache instances are distinguished by the "kind" label (the
// caller name given at construction) and the "storage" label (which tier
// served the operation), never by separate metric names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage tier label values.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

var (
	// HitCount counts cache hits per caller and tier.
	HitCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hit_count",
		Help: "Number of cache hits.",
	}, []string{"kind", "storage"})

	// MissCount counts cache misses per caller and tier.
	MissCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_miss_count",
		Help: "Number of cache misses.",
	}, []string{"kind", "storage"})

	// HitTime records how long a hit took to serve, in seconds.
	HitTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_hit_time",
		Help:    "Time to serve a cache hit, in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "storage"})

	// MissTime records how long a miss took to establish, in seconds.
	MissTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_miss_time",
		Help:    "Time to establish a cache miss, in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "storage"})

	// Size reports the number of entries held by the in-memory tier.
	Size = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_size",
		Help: "Number of entries held by a cache tier.",
	}, []string{"kind", "storage"})
)
