package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_total",
		Help: "Intercepted requests by response source",
	}, []string{"source"}) // "cache", "network", "fallback"

	fetchIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_fetch_ignored_total",
		Help: "Requests passed through without interception",
	})

	installTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_install_total",
		Help: "Install attempts by result",
	}, []string{"result"})

	bucketsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_buckets_deleted_total",
		Help: "Stale bucket deletions at activation by result",
	}, []string{"result"})

	cacheStoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_store_total",
		Help: "Opportunistic cache writes by result",
	}, []string{"result"}) // "stored", "skipped", "failed"
)
