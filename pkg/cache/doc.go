// Package cache provides named response buckets for the offline cache worker.
//
// A Storage holds any number of Buckets. Each Bucket maps a request Key
// (method + URL) to a stored Entry (status, headers, body). Two backends are
// available:
//
// - MemoryStorage keeps buckets in process memory
// - RedisStorage persists buckets in Redis so a restarted proxy keeps serving offline
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	storage := cache.NewRedisStorage(redisClient, "")
//
//	bucket, err := storage.Open(ctx, "v6.0.0pages")
//	if err != nil {
//		return err
//	}
//
//	// Look the request up in every bucket
//	entry, err := storage.Match(ctx, cache.NewKey(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - go to the network
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry; resp.Body stays readable
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	if err := bucket.Put(ctx, cache.NewKey(req), entry); err != nil {
//		return err
//	}
//
// # Metrics
//
//   - offline_cache_hits_total{bucket} - Cache hits
//   - offline_cache_misses_total - Cache misses
//   - offline_cache_entries_written_total{bucket} - Entries stored
//   - offline_cache_errors_total{operation} - Cache operation errors
//
// Buckets are never evicted entry by entry. Whole buckets are removed with
// Storage.Delete when a new cache version activates.
package cache
