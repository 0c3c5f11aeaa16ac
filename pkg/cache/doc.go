// Package cache provides a Redis-backed page body cache for the fetcher.
//
// A cached body lets the page-1 fetch of a listing reuse the body fetched
// during pagination discovery, and lets a repeated harvest skip pages that
// were fetched recently.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, time.Hour)
//
//	f := fetch.New(fetch.Config{
//		UserAgent: "quote-harvester/1.0",
//		Cache:     manager,
//	})
//
// # Keys
//
// Keys are derived from the page URL with sorted query parameters, so
// "?p=2&x=1" and "?x=1&p=2" share an entry:
//
//	harvest:page:www.azquotes.com/quotes/topics/life.html:p=2
//
// Only 2xx bodies are stored. Entries expire through Redis TTLs.
//
// # Metrics
//
//   - harvest_cache_hits_total - Cache hits
//   - harvest_cache_misses_total - Cache misses
//   - harvest_cache_stored_bytes_total - Bytes written
//   - harvest_cache_errors_total{operation} - Cache operation errors
package cache
