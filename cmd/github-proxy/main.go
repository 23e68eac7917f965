// Command github-proxy exposes a caching proxy in front of the GitHub
// REST API. Requests under /api/ are forwarded upstream through the
// conditional cache and retry stack, so repeated reads are answered with
// revalidated cache entries instead of fresh quota-burning transfers.
//
// Configuration is taken from the environment:
//
//	PORT             listen port (default 8080)
//	UPSTREAM_URL     API root to proxy (default https://api.github.com)
//	USER_AGENT       User-Agent sent upstream
//	GITHUB_TOKEN     bearer token for authenticated quota (optional)
//	CACHE_BACKEND    memory, redis, sqlite or none (default memory)
//	REDIS_URL        redis address for CACHE_BACKEND=redis
//	SQLITE_PATH      database file for CACHE_BACKEND=sqlite
//	LOG_LEVEL        debug, info, warn or error (default info)
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nordgaard/github-rest-client/pkg/cache"
	"github.com/nordgaard/github-rest-client/pkg/client"
	"github.com/nordgaard/github-rest-client/pkg/logging"
	"github.com/nordgaard/github-rest-client/pkg/metrics"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")
	upstream := getEnv("UPSTREAM_URL", client.DefaultBaseURL)
	userAgent := getEnv("USER_AGENT", "github-proxy/0.1.0")

	ctx := context.Background()
	storage, ready, err := newStorage(ctx,
		getEnv("CACHE_BACKEND", "memory"),
		getEnv("REDIS_URL", "localhost:6379"),
		getEnv("SQLITE_PATH", "github-cache.db"),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache backend setup failed")
	}

	ghClient, err := client.New(client.Config{
		BaseURL:   upstream,
		UserAgent: userAgent,
		Token:     os.Getenv("GITHUB_TOKEN"),
		Storage:   storage,
		Retry:     client.DefaultRetryPolicy(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("client setup failed")
	}
	defer ghClient.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(ready))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/", apiProxyHandler(ghClient))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("upstream", upstream).
		Str("user_agent", userAgent).
		Msg("starting github proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// newStorage builds the cache backend named by CACHE_BACKEND, plus a
// readiness check for it.
func newStorage(ctx context.Context, backend, redisURL, sqlitePath string) (cache.Storage, func(context.Context) error, error) {
	alwaysReady := func(context.Context) error { return nil }

	switch backend {
	case "memory":
		return cache.NewMemoryStorage(), alwaysReady, nil
	case "none":
		return cache.NoopStorage{}, alwaysReady, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", redisURL, err)
		}
		ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return cache.NewRedisStorage(rdb, 0), ready, nil
	case "sqlite":
		store, err := cache.NewSQLiteStorage(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, alwaysReady, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := check(ctx); err != nil {
			http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// apiProxyHandler forwards GET requests under /api/ to the upstream API.
// Example: /api/repos/octocat/hello-world -> /repos/octocat/hello-world.
func apiProxyHandler(gh *client.Client) http.HandlerFunc {
	logger := logging.NewLogger("proxy")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "only GET is proxied", http.StatusMethodNotAllowed)
			return
		}

		route := strings.TrimPrefix(r.URL.Path, "/api")
		if r.URL.RawQuery != "" {
			route += "?" + r.URL.RawQuery
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := gh.Get(ctx, route)
		if err != nil {
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			// The status line is already on the wire; all that is left
			// is to note the truncated copy.
			logger.Warn().Err(err).Str("route", route).Msg("response copy interrupted")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
