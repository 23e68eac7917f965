package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks 304 replies served from the store.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "github_client_cache_hits_total",
			Help: "Total number of 304 responses substituted from the cache",
		},
	)

	// CacheMisses tracks requests with no stored validator.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "github_client_cache_misses_total",
			Help: "Total number of requests without a cached validator",
		},
	)

	// ConditionalRequests tracks requests sent with a validator attached.
	ConditionalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_client_conditional_requests_total",
			Help: "Total number of conditional requests sent",
		},
		[]string{"validator"}, // "etag", "last-modified"
	)

	// CacheWrites tracks write-through commits.
	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "github_client_cache_writes_total",
			Help: "Total number of responses committed to the cache",
		},
	)

	// CacheErrors tracks storage operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_client_cache_errors_total",
			Help: "Total number of cache storage errors",
		},
		[]string{"operation"}, // "validator", "load", "store"
	)

	// CacheInconsistencies tracks 304 replies that had no stored entry.
	CacheInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "github_client_cache_inconsistencies_total",
			Help: "Total number of 304 responses with no matching cache entry",
		},
	)
)
