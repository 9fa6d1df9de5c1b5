// Package cache provides the named response caches used by the offline
// controller, with pluggable storage backends.
//
// A Storage holds any number of named caches (generations). Each cache is a
// Store: a flat key-value map from a request identity (see Key) to an Entry
// holding either a cached response or a pending mutation awaiting replay.
//
// # Backends
//
//   - MemoryStorage: process-local maps, used by tests and single-instance setups
//   - RedisStorage: one Redis hash per generation, shared across gateway instances
//   - LevelStorage: LevelDB on disk, survives restarts of a single instance
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	storage := cache.NewRedisStorage(redisClient)
//	api, err := storage.Open(ctx, "civicsense-api-v1")
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyForRequest(req).String()
//	entry, err := api.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Nothing cached for this request
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry (body is restored for the caller)
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//	if err := api.Put(ctx, key, entry); err != nil {
//		return err
//	}
//
//	// Later: rebuild a response from the entry
//	resp := cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - civicsense_cache_hits_total{cache} - Lookups answered from a cache
//   - civicsense_cache_misses_total{cache} - Lookups with no entry
//   - civicsense_cache_errors_total{backend,operation} - Backend failures
//   - civicsense_cache_generations_purged_total - Generations dropped on activation
package cache
