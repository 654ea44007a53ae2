// Package metrics documents the Prometheus metrics exported by the offline
// cache. Metrics are defined next to the code that records them (cache,
// client, worker) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer every package registers with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics registered with Registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - offline_cache_hits_total{bucket} (Counter): Cache hits by bucket
//   - offline_cache_misses_total (Counter): Lookups that matched no bucket
//   - offline_cache_entries_written_total{bucket} (Counter): Entries stored by bucket
//   - offline_cache_errors_total{operation} (Counter): Storage operation errors
//
// Network Metrics (pkg/client):
//   - offline_network_requests_total{status} (Counter): Requests by HTTP status or error class
//   - offline_network_duration_seconds (Histogram): Request duration including retries
//   - offline_network_retries_total (Counter): Retry attempts
//   - offline_network_retry_exhausted_total (Counter): Requests that exhausted retries
//
// Worker Metrics (pkg/worker):
//   - offline_fetch_total{source} (Counter): Intercepted requests by cache, network, fallback
//   - offline_fetch_ignored_total (Counter): Requests left to the default network path
//   - offline_install_total{result} (Counter): Install attempts by success/failed
//   - offline_buckets_deleted_total{result} (Counter): Stale bucket deletions by deleted/failed
//   - offline_cache_store_total{result} (Counter): Opportunistic writes by stored/skipped/failed
//
// Example Prometheus Queries:
//
//   # Share of requests answered offline
//   sum(rate(offline_fetch_total{source="cache"}[5m])) / sum(rate(offline_fetch_total[5m]))
//
//   # Fallback page rate
//   rate(offline_fetch_total{source="fallback"}[5m])
//
//   # Failed cache writes
//   rate(offline_cache_store_total{result="failed"}[5m])
