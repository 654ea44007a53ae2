// Package worker implements the offline cache worker: cache-first serving with
// network fallback for a single site.
//
// A Worker reacts to three lifecycle steps:
//
//   - Install pre-caches the fundamentals into <version>fundamentals, all or nothing
//   - Fetch answers an intercepted GET from cache, network or a 503 fallback page
//   - Activate deletes every bucket that does not belong to the worker version
//
// Network responses are copied into <version>pages in the background so the
// next request can be answered offline. A cached hit still triggers the
// network fetch, which keeps the pages bucket warm.
//
// # Usage
//
//	origin, _ := url.Parse("https://example.com/")
//	w, err := worker.New(worker.DefaultConfig(origin), cache.NewMemoryStorage(), http.DefaultClient)
//	if err != nil {
//		return err
//	}
//
//	reg := worker.NewRegistration()
//	if err := reg.Register(ctx, w); err != nil {
//		return err // install failed, nothing activated
//	}
//
//	proxy := httputil.NewSingleHostReverseProxy(origin)
//	http.ListenAndServe(":8080", worker.Handler(reg, proxy, nil))
//
// # Metrics
//
//   - offline_fetch_total{source} - Intercepted requests by cache, network or fallback
//   - offline_fetch_ignored_total - Requests passed to the default network path
//   - offline_install_total{result} - Install attempts
//   - offline_buckets_deleted_total{result} - Stale bucket deletions
//   - offline_cache_store_total{result} - Opportunistic cache writes
package worker
