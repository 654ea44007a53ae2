package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by bucket
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of offline cache hits",
		},
		[]string{"bucket"},
	)

	// CacheMisses tracks lookups that matched no bucket
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of offline cache misses",
		},
	)

	// EntriesWritten tracks entries stored by bucket
	EntriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_entries_written_total",
			Help: "Total number of entries written to offline cache buckets",
		},
		[]string{"bucket"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "get", "set", "keys", "names", "delete"
	)
)
