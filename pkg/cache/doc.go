// Package cache provides conditional HTTP caching for GitHub API responses.
//
// The package has two halves: a pluggable Storage keyed by request URI,
// and a Transport (an http.RoundTripper decorator) that uses it to turn
// plain requests into conditional ones:
//
//   - When a validator (ETag or Last-Modified) is stored for a URI, the
//     outgoing request carries If-None-Match or If-Modified-Since. ETag
//     wins when both were present on the original response.
//   - A 304 Not Modified is rewritten into the 200 the caller would have
//     received: stored body substituted, stored Content-Type, Content-Length
//     and Link restored, status set to 200. A conditional hit costs no
//     GitHub rate-limit quota.
//   - Fresh 200 responses bearing a validator populate the store through a
//     write-through tap: bytes stream to the caller unchanged and are
//     committed only once the body has been read to completion. A body
//     closed early commits nothing.
//   - Storage failures never fail delivery; they degrade the request to
//     uncached and are logged and counted.
//
// # Basic Usage
//
//	storage := cache.NewMemoryStorage()
//	transport := cache.NewTransport(http.DefaultTransport, storage)
//	httpClient := &http.Client{Transport: transport}
//
//	resp, err := httpClient.Get("https://api.github.com/repos/golang/go")
//
// # Storage Backends
//
//   - MemoryStorage: process-local, no dependencies.
//   - RedisStorage: shared across processes, optional TTL eviction.
//   - SQLiteStorage: single-file persistence for single-host tools.
//   - NoopStorage: caching disabled.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - github_client_cache_hits_total - 304 responses served from the store
//   - github_client_cache_misses_total - requests sent without a validator
//   - github_client_conditional_requests_total{validator} - conditional requests sent
//   - github_client_cache_writes_total - snapshots committed
//   - github_client_cache_errors_total{operation} - storage operation failures
//   - github_client_cache_inconsistencies_total - 304 responses with no stored snapshot
package cache
