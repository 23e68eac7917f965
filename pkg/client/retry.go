package client

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_client_retries_total",
		Help: "Total retry attempts by error class",
	}, []string{"error_class"})

	retryDelaySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "github_client_retry_delay_seconds",
		Help:    "Delay waited before each retry attempt, by delay source",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "github_client_retry_exhausted_total",
		Help: "Times the retry budget ran out with the request still failing",
	})
)

// Delay sources for the retry delay histogram.
const (
	delaySourceRetryAfter = "retry_after"
	delaySourceReset      = "ratelimit_reset"
	delaySourceFallback   = "fallback"
)

type retryMode int

const (
	modeNone retryMode = iota
	modeFixed
	modeBackoff
)

// RetryPolicy decides whether and when failed requests are re-sent.
// Construct one with NoRetry, FixedRetries or BackoffRetries; the zero
// value never retries.
//
// A request is considered retryable on a transport failure, a 5xx, a
// 429, or a 400 whose headers carry a computable delay hint.
type RetryPolicy struct {
	mode     retryMode
	count    int
	fallback time.Duration
	max      time.Duration
}

// NoRetry returns a policy that never retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{mode: modeNone}
}

// FixedRetries retries up to count times with no delay between attempts.
// Delay hints in response headers are ignored; use BackoffRetries to
// honor them.
func FixedRetries(count int) RetryPolicy {
	return RetryPolicy{mode: modeFixed, count: count}
}

// BackoffRetries retries up to count times, waiting before each attempt.
// The wait is the response's Retry-After in seconds when present, else
// the time until X-RateLimit-Reset, else the fallback delay, which
// doubles after each use. Whatever the source, the wait never exceeds
// max. Transport failures leave no headers to consult and always take
// the fallback path.
func BackoffRetries(fallback, max time.Duration, count int) RetryPolicy {
	return RetryPolicy{mode: modeBackoff, count: count, fallback: fallback, max: max}
}

// DefaultRetryPolicy backs off from one second, waits at most thirty,
// and gives up after three retries.
func DefaultRetryPolicy() RetryPolicy {
	return BackoffRetries(1*time.Second, 30*time.Second, 3)
}

func (p RetryPolicy) validate() error {
	if p.count < 0 {
		return fmt.Errorf("retry count cannot be negative")
	}
	if p.mode == modeBackoff {
		if p.fallback <= 0 {
			return fmt.Errorf("backoff fallback delay must be positive")
		}
		if p.max < p.fallback {
			return fmt.Errorf("backoff max delay must be at least the fallback delay")
		}
	}
	return nil
}

// retryable reports whether the attempt's outcome warrants another try.
func (p RetryPolicy) retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch {
	case resp.StatusCode >= 500:
		return true
	case resp.StatusCode == http.StatusTooManyRequests:
		return true
	case resp.StatusCode == http.StatusBadRequest:
		// Some rate limiters answer 400 with delay headers; only those
		// are worth retrying.
		_, _, ok := headerDelay(resp.Header, time.Now())
		return ok
	default:
		return false
	}
}

// headerDelay extracts a server-provided delay hint: Retry-After seconds
// (integral or fractional), else X-RateLimit-Reset as epoch seconds with
// the remaining wait floored at zero.
func headerDelay(h http.Header, now time.Time) (time.Duration, string, bool) {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second)), delaySourceRetryAfter, true
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			d := time.Unix(epoch, 0).Sub(now)
			if d < 0 {
				d = 0
			}
			return d, delaySourceReset, true
		}
	}
	return 0, "", false
}

// retryTransport applies a RetryPolicy around an inner RoundTripper. It
// sits outermost in the stack so every attempt re-enters the conditional
// cache layer underneath.
type retryTransport struct {
	inner  http.RoundTripper
	policy RetryPolicy
	logger zerolog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if t.policy.mode == modeNone || t.policy.count <= 0 {
		return resp, err
	}

	budget := t.policy.count
	fallback := t.policy.fallback

	for budget > 0 && t.policy.retryable(resp, err) {
		class := ErrorClassNetwork
		if err == nil {
			class = classifyStatus(resp.StatusCode)
		}

		var delay time.Duration
		source := ""
		if t.policy.mode == modeBackoff {
			delay, source = t.policy.nextDelay(resp, fallback)
			if source == delaySourceFallback {
				fallback *= 2
			}
		}

		retryReq, rewindErr := rewindRequest(req)
		if rewindErr != nil {
			if resp != nil {
				drainBody(resp.Body)
			}
			return nil, rewindErr
		}
		if resp != nil {
			drainBody(resp.Body)
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		t.logger.Debug().
			Str("uri", req.URL.String()).
			Str("error_class", string(class)).
			Dur("delay", delay).
			Int("budget", budget).
			Msg("retrying request")

		if delay > 0 {
			retryDelaySeconds.WithLabelValues(source).Observe(delay.Seconds())
			select {
			case <-req.Context().Done():
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, req.Context().Err())
			case <-time.After(delay):
			}
		}

		budget--
		resp, err = t.inner.RoundTrip(retryReq)
	}

	if budget == 0 && t.policy.retryable(resp, err) {
		retryExhaustedTotal.Inc()
		t.logger.Warn().
			Str("uri", req.URL.String()).
			Int("retries", t.policy.count).
			Msg("retry budget exhausted")
	}

	return resp, err
}

// nextDelay picks the wait before the next attempt: header hint when a
// response is at hand, the current fallback otherwise, capped at max.
func (p RetryPolicy) nextDelay(resp *http.Response, fallback time.Duration) (time.Duration, string) {
	if resp != nil {
		if d, source, ok := headerDelay(resp.Header, time.Now()); ok {
			if d > p.max {
				d = p.max
			}
			return d, source
		}
	}
	d := fallback
	if d > p.max {
		d = p.max
	}
	return d, delaySourceFallback
}

// rewindRequest rebuilds the request for another attempt. Bodies come
// back through GetBody; a consumed body that cannot be rebuilt makes the
// retry impossible.
func rewindRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotRewindable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyNotRewindable, err)
	}
	clone.Body = body
	return clone, nil
}

func drainBody(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	io.Copy(io.Discard, rc) //nolint:errcheck
	rc.Close()
}
