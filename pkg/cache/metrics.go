package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered from a cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsense_cache_hits_total",
			Help: "Total number of cache hits by cache name",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks lookups with no entry
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsense_cache_misses_total",
			Help: "Total number of cache misses by cache name",
		},
		[]string{"cache"},
	)

	// CacheErrors tracks backend operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsense_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "redis"|"leveldb", "get"|"put"|...
	)

	// GenerationsPurged tracks cache generations dropped on activation
	GenerationsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicsense_cache_generations_purged_total",
			Help: "Total number of stale cache generations deleted on activation",
		},
	)
)
