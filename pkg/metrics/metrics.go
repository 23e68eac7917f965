// Package metrics provides the centralized Prometheus metrics registry
// for the GitHub REST client. All metrics are defined in their
// respective packages (client, cache, ratelimit) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns an http.Handler serving the registered metrics,
// suitable for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - github_client_cache_hits_total (Counter): 304 responses substituted from the cache
//   - github_client_cache_misses_total (Counter): requests without a cached validator
//   - github_client_conditional_requests_total{validator} (Counter): conditional requests by validator kind (etag, last-modified)
//   - github_client_cache_writes_total (Counter): responses committed to the cache
//   - github_client_cache_errors_total{operation} (Counter): storage errors by operation (validator, load, store)
//   - github_client_cache_inconsistencies_total (Counter): 304 responses with no matching cache entry
//
// Rate Limit Metrics (pkg/ratelimit):
//   - github_client_rate_limit_remaining{resource} (Gauge): remaining quota per resource
//   - github_client_rate_limit_reset_timestamp_seconds{resource} (Gauge): window reset time per resource
//
// Request Metrics (pkg/client):
//   - github_client_requests_total{method, status} (Counter): requests by method and HTTP status
//   - github_client_request_duration_seconds{method} (Histogram): request duration by method
//   - github_client_blocked_requests_total{resource} (Counter): requests refused locally on exhausted quota
//
// Retry Metrics (pkg/client):
//   - github_client_retries_total{error_class} (Counter): retry attempts by error class
//   - github_client_retry_delay_seconds{source} (Histogram): retry delays by source (retry_after, ratelimit_reset, fallback)
//   - github_client_retry_exhausted_total (Counter): requests that ran out of retry budget
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	rate(github_client_cache_hits_total[5m]) /
//	(rate(github_client_cache_hits_total[5m]) + rate(github_client_cache_misses_total[5m]))
//
//	# Quota Headroom
//	github_client_rate_limit_remaining{resource="core"} < 100
//
//	# Request Error Rate
//	sum(rate(github_client_requests_total{status=~"5.."}[5m]))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(github_client_request_duration_seconds_bucket[5m]))
//
//	# Retry Pressure
//	rate(github_client_retries_total[5m])
