package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordgaard/github-rest-client/pkg/logging"
)

// Prometheus metrics for rate limit tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "github_client_rate_limit_remaining",
		Help: "Remaining quota in the current rate limit window, per resource",
	}, []string{"resource"})

	quotaReset = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "github_client_rate_limit_reset_timestamp_seconds",
		Help: "Unix timestamp when the rate limit window resets, per resource",
	}, []string{"resource"})
)

// Tracker records per-resource quota snapshots observed on responses.
// It is a passive observer: it never blocks a request itself, callers
// decide with Delay or State. Safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	resources map[string]Snapshot

	lowWater int
	logger   zerolog.Logger
}

// NewTracker creates a tracker with the given low-water mark; values
// below 1 fall back to DefaultLowWater.
func NewTracker(lowWater int) *Tracker {
	if lowWater < 1 {
		lowWater = DefaultLowWater
	}
	return &Tracker{
		resources: make(map[string]Snapshot),
		lowWater:  lowWater,
		logger:    logging.NewLogger("ratelimit"),
	}
}

// Update records the quota headers of a response, if any. Responses
// without X-RateLimit-Remaining (proxies, non-API hosts) are ignored.
func (t *Tracker) Update(header http.Header) {
	remaining, ok := intHeader(header, "X-RateLimit-Remaining")
	if !ok {
		return
	}

	resource := header.Get("X-RateLimit-Resource")
	if resource == "" {
		resource = ResourceCore
	}

	snap := Snapshot{
		Resource:  resource,
		Remaining: remaining,
		UpdatedAt: time.Now(),
	}
	if limit, ok := intHeader(header, "X-RateLimit-Limit"); ok {
		snap.Limit = limit
	}
	if used, ok := intHeader(header, "X-RateLimit-Used"); ok {
		snap.Used = used
	}
	if epoch, ok := intHeader(header, "X-RateLimit-Reset"); ok {
		snap.Reset = time.Unix(int64(epoch), 0)
	}

	t.mu.Lock()
	t.resources[resource] = snap
	t.mu.Unlock()

	quotaRemaining.WithLabelValues(resource).Set(float64(remaining))
	if !snap.Reset.IsZero() {
		quotaReset.WithLabelValues(resource).Set(float64(snap.Reset.Unix()))
	}

	switch snap.State(t.lowWater) {
	case StateExhausted:
		t.logger.Warn().
			Str("resource", resource).
			Time("reset", snap.Reset).
			Msg("rate limit exhausted")
	case StateLow:
		t.logger.Warn().
			Str("resource", resource).
			Int("remaining", remaining).
			Int("limit", snap.Limit).
			Msg("rate limit low")
	default:
		t.logger.Debug().
			Str("resource", resource).
			Int("remaining", remaining).
			Msg("rate limit updated")
	}
}

// Snapshot returns the last recorded quota for resource.
func (t *Tracker) Snapshot(resource string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.resources[resource]
	return snap, ok
}

// State classifies the resource's quota; unseen resources are Unknown.
func (t *Tracker) State(resource string) State {
	snap, ok := t.Snapshot(resource)
	if !ok {
		return StateUnknown
	}
	return snap.State(t.lowWater)
}

// Delay returns how long a caller should wait before spending quota on
// resource: the time until reset when the resource is exhausted, zero
// otherwise.
func (t *Tracker) Delay(resource string, now time.Time) time.Duration {
	snap, ok := t.Snapshot(resource)
	if !ok {
		return 0
	}
	if snap.State(t.lowWater) != StateExhausted {
		return 0
	}
	return snap.TimeUntilReset(now)
}

func intHeader(h http.Header, name string) (int, bool) {
	v := h.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
