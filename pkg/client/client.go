// Package client provides the GitHub REST client core: a transport
// stack assembled from a retry policy over a conditional cache layer,
// authentication and media-type headers, rate-limit tracking, and typed
// JSON request helpers.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordgaard/github-rest-client/pkg/cache"
	"github.com/nordgaard/github-rest-client/pkg/logging"
	"github.com/nordgaard/github-rest-client/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_client_requests_total",
		Help: "Total requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "github_client_request_duration_seconds",
		Help:    "Request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	blockedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_client_blocked_requests_total",
		Help: "Requests refused locally because quota was exhausted",
	}, []string{"resource"})
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const defaultAccept = "application/vnd.github.v3+json"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root: https://api.github.com, or a GitHub
	// Enterprise /api/v3 endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// UserAgent identifies the application. REQUIRED: GitHub rejects
	// requests without one.
	UserAgent string

	// Token is the bearer token (PAT or installation token). Optional;
	// unauthenticated clients get the anonymous quota.
	Token string

	// Previews lists preview API names to advertise in Accept.
	Previews []string

	// MediaType overrides the default v3 JSON media type, e.g. "raw".
	MediaType string

	// Storage backs the conditional cache layer. Defaults to an
	// in-process cache.NewMemoryStorage(); use cache.NoopStorage{} to
	// disable caching.
	Storage cache.Storage

	// Retry is the retry policy applied to every request.
	Retry RetryPolicy

	// Transport is the base RoundTripper beneath the cache and retry
	// layers. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Timeout, when nonzero, bounds each Do call end to end including
	// retry waits. Per-request contexts are usually the better tool.
	Timeout time.Duration

	// BlockWhenLimited makes Do fail fast with *RateLimitedError when
	// the tracked quota for the request's resource is exhausted,
	// instead of spending a request that will be rejected anyway.
	BlockWhenLimited bool

	// LowWater is the remaining-quota mark below which the tracker
	// warns. Defaults to ratelimit.DefaultLowWater.
	LowWater int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Storage:   cache.NewMemoryStorage(),
		Retry:     DefaultRetryPolicy(),
	}
}

// Client executes requests against the GitHub REST API. The middleware
// stack is assembled once at construction: the retry transport wraps the
// conditional cache transport, which wraps the base transport, so every
// retry attempt can still be answered from cache.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	accept     string
	tracker    *ratelimit.Tracker
	logger     zerolog.Logger
}

// New creates a client from cfg, validating it fail-fast.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", cfg.BaseURL)
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage == nil {
		cfg.Storage = cache.NewMemoryStorage()
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	stack := &retryTransport{
		inner:  cache.NewTransport(cfg.Transport, cfg.Storage),
		policy: cfg.Retry,
		logger: logging.NewLogger("retry"),
	}

	return &Client{
		httpClient: &http.Client{
			Transport: stack,
			Timeout:   cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		accept:  buildAccept(cfg.Previews, cfg.MediaType),
		tracker: ratelimit.NewTracker(cfg.LowWater),
		logger:  logging.NewLogger("client"),
	}, nil
}

func buildAccept(previews []string, mediaType string) string {
	parts := make([]string, 0, len(previews)+1)
	if mediaType != "" {
		parts = append(parts, FormatMediaType(mediaType))
	} else {
		parts = append(parts, defaultAccept)
	}
	for _, preview := range previews {
		parts = append(parts, FormatPreview(preview))
	}
	return strings.Join(parts, ", ")
}

// FormatPreview renders a preview API name as its Accept media type:
// "squirrel-girl" becomes "application/vnd.github.squirrel-girl-preview".
func FormatPreview(name string) string {
	return fmt.Sprintf("application/vnd.github.%s-preview", name)
}

// FormatMediaType renders a GitHub media type name as a full Accept
// value: "raw" becomes "application/vnd.github.v3.raw+json". Names
// already ending in "json" get no extra suffix.
func FormatMediaType(name string) string {
	suffix := "+json"
	if strings.HasSuffix(name, "json") {
		suffix = ""
	}
	return fmt.Sprintf("application/vnd.github.v3.%s%s", name, suffix)
}

// Absolute resolves route against the client's base URL. Already
// absolute routes pass through unchanged.
func (c *Client) Absolute(route string) (*url.URL, error) {
	u, err := c.baseURL.Parse(route)
	if err != nil {
		return nil, fmt.Errorf("resolve route %q: %w", route, err)
	}
	return u, nil
}

// Do sends the request through the transport stack, adding the
// client-level headers, and feeds the response's rate-limit headers back
// into the tracker. Headers already set on the request are respected.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	method := req.Method

	if c.config.BlockWhenLimited {
		resource := requestResource(req.URL)
		if delay := c.tracker.Delay(resource, time.Now()); delay > 0 {
			blockedRequests.WithLabelValues(resource).Inc()
			snap, _ := c.tracker.Snapshot(resource)
			c.logger.Warn().
				Str("resource", resource).
				Dur("retry_in", delay).
				Msg("request blocked, quota exhausted")
			return nil, &RateLimitedError{Resource: resource, Reset: snap.Reset}
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", c.accept)
	}
	if c.config.Token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		c.logger.Error().
			Err(err).
			Str("method", method).
			Str("uri", req.URL.String()).
			Msg("request failed")
		return nil, err
	}

	c.tracker.Update(resp.Header)
	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", method).
		Str("uri", req.URL.String()).
		Int("status", resp.StatusCode).
		Msg("request complete")

	return resp, nil
}

// Get issues a GET to route, which may be relative to the base URL, and
// returns the raw response.
func (c *Client) Get(ctx context.Context, route string) (*http.Response, error) {
	u, err := c.Absolute(route)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// RateLimit exposes the quota tracker fed by this client's responses.
func (c *Client) RateLimit() *ratelimit.Tracker {
	return c.tracker
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// requestResource maps a request path to the rate-limit resource GitHub
// accounts it against.
func requestResource(u *url.URL) string {
	switch {
	case strings.HasPrefix(u.Path, "/search/"):
		return "search"
	case u.Path == "/graphql":
		return "graphql"
	default:
		return ratelimit.ResourceCore
	}
}
