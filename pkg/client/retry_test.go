package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newRetryTransport(inner http.RoundTripper, policy RetryPolicy) *retryTransport {
	return &retryTransport{inner: inner, policy: policy, logger: zerolog.Nop()}
}

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"zero value", RetryPolicy{}, false},
		{"no retry", NoRetry(), false},
		{"fixed", FixedRetries(3), false},
		{"fixed zero count", FixedRetries(0), false},
		{"fixed negative count", FixedRetries(-1), true},
		{"backoff", BackoffRetries(time.Second, 30*time.Second, 3), false},
		{"backoff zero fallback", BackoffRetries(0, 30*time.Second, 3), true},
		{"backoff max below fallback", BackoffRetries(10*time.Second, time.Second, 3), true},
		{"default", DefaultRetryPolicy(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.mode != modeBackoff {
		t.Errorf("mode = %d, want backoff", p.mode)
	}
	if p.fallback != 1*time.Second {
		t.Errorf("fallback = %v, want 1s", p.fallback)
	}
	if p.max != 30*time.Second {
		t.Errorf("max = %v, want 30s", p.max)
	}
	if p.count != 3 {
		t.Errorf("count = %d, want 3", p.count)
	}
}

func TestRetryable(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		name   string
		status int
		header http.Header
		err    error
		want   bool
	}{
		{"transport error", 0, nil, errors.New("connection refused"), true},
		{"internal server error", 500, nil, nil, true},
		{"bad gateway", 502, nil, nil, true},
		{"service unavailable", 503, nil, nil, true},
		{"too many requests", 429, nil, nil, true},
		{"bad request with retry-after", 400, http.Header{"Retry-After": {"2"}}, nil, true},
		{"bad request with reset", 400, http.Header{"X-Ratelimit-Reset": {"1700000000"}}, nil, true},
		{"bad request plain", 400, nil, nil, false},
		{"not found", 404, nil, nil, false},
		{"forbidden", 403, nil, nil, false},
		{"ok", 200, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = stubResponse(tt.status, "", tt.header)
			}
			if got := p.retryable(resp, tt.err); got != tt.want {
				t.Errorf("retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeaderDelay(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		header     http.Header
		want       time.Duration
		wantSource string
		wantOK     bool
	}{
		{
			name:       "retry-after seconds",
			header:     http.Header{"Retry-After": {"5"}},
			want:       5 * time.Second,
			wantSource: delaySourceRetryAfter,
			wantOK:     true,
		},
		{
			name:       "retry-after fractional",
			header:     http.Header{"Retry-After": {"2.5"}},
			want:       2500 * time.Millisecond,
			wantSource: delaySourceRetryAfter,
			wantOK:     true,
		},
		{
			name:       "reset in the future",
			header:     http.Header{"X-Ratelimit-Reset": {strconv.FormatInt(now.Add(7*time.Second).Unix(), 10)}},
			wantSource: delaySourceReset,
			wantOK:     true,
		},
		{
			name:       "reset in the past floors at zero",
			header:     http.Header{"X-Ratelimit-Reset": {strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)}},
			want:       0,
			wantSource: delaySourceReset,
			wantOK:     true,
		},
		{
			name: "retry-after wins over reset",
			header: http.Header{
				"Retry-After":       {"3"},
				"X-Ratelimit-Reset": {strconv.FormatInt(now.Add(time.Hour).Unix(), 10)},
			},
			want:       3 * time.Second,
			wantSource: delaySourceRetryAfter,
			wantOK:     true,
		},
		{
			name: "unparsable retry-after falls back to reset",
			header: http.Header{
				"Retry-After":       {"Wed, 21 Oct 2026 07:28:00 GMT"},
				"X-Ratelimit-Reset": {strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)},
			},
			want:       0,
			wantSource: delaySourceReset,
			wantOK:     true,
		},
		{
			name:   "negative retry-after ignored",
			header: http.Header{"Retry-After": {"-1"}},
			wantOK: false,
		},
		{
			name:   "no hint headers",
			header: http.Header{"Content-Type": {"application/json"}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source, ok := headerDelay(tt.header, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
			if tt.name == "reset in the future" {
				// Unix truncation makes the exact value imprecise.
				if got < 6*time.Second || got > 8*time.Second {
					t.Errorf("delay = %v, want about 7s", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextDelay_ClampsToMax(t *testing.T) {
	p := BackoffRetries(time.Second, 5*time.Second, 3)

	resp := stubResponse(429, "", http.Header{"Retry-After": {"60"}})
	delay, source := p.nextDelay(resp, p.fallback)
	if delay != 5*time.Second {
		t.Errorf("header delay = %v, want clamped 5s", delay)
	}
	if source != delaySourceRetryAfter {
		t.Errorf("source = %q, want %q", source, delaySourceRetryAfter)
	}

	delay, source = p.nextDelay(nil, 20*time.Second)
	if delay != 5*time.Second {
		t.Errorf("fallback delay = %v, want clamped 5s", delay)
	}
	if source != delaySourceFallback {
		t.Errorf("source = %q, want %q", source, delaySourceFallback)
	}
}

func TestRetryTransport_FixedRetriesUntilSuccess(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls <= 3 {
			return stubResponse(500, "boom", nil), nil
		}
		return stubResponse(200, "ok", nil), nil
	})

	rt := newRetryTransport(inner, FixedRetries(3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	// Fixed mode retries immediately.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("elapsed = %v, want no deliberate delay", elapsed)
	}
}

func TestRetryTransport_NoRetry(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return stubResponse(500, "boom", nil), nil
	})

	rt := newRetryTransport(inner, NoRetry())
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want the failure passed through", resp.StatusCode)
	}
}

func TestRetryTransport_ExhaustionReturnsLastResponse(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return stubResponse(503, fmt.Sprintf("attempt-%d", calls), nil), nil
	})

	rt := newRetryTransport(inner, FixedRetries(2))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial plus 2 retries)", calls)
	}
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "attempt-3" {
		t.Errorf("body = %q, want the final attempt's body intact", body)
	}
}

func TestRetryTransport_TransportErrorTakesFallbackPath(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("connection reset")
		}
		return stubResponse(200, "ok", nil), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(10*time.Millisecond, 100*time.Millisecond, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Two fallback delays: 10ms then 20ms.
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the fallback delays", elapsed)
	}
}

func TestRetryTransport_TransportErrorExhausted(t *testing.T) {
	innerErr := errors.New("connection refused")
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, innerErr
	})

	rt := newRetryTransport(inner, BackoffRetries(time.Millisecond, 10*time.Millisecond, 2))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
	if !errors.Is(err, innerErr) {
		t.Errorf("err = %v, want the transport error unchanged", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryTransport_HonorsRetryAfter(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return stubResponse(429, "slow down", http.Header{"Retry-After": {"0.2"}}), nil
		}
		return stubResponse(200, "ok", nil), nil
	})

	// A tiny fallback makes any longer wait attributable to the header.
	rt := newRetryTransport(inner, BackoffRetries(time.Millisecond, time.Second, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the Retry-After delay", elapsed)
	}
}

func TestRetryTransport_FallbackDoubles(t *testing.T) {
	var timestamps []time.Time
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		timestamps = append(timestamps, time.Now())
		return stubResponse(500, "boom", nil), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(40*time.Millisecond, time.Second, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	resp.Body.Close()

	if len(timestamps) != 4 {
		t.Fatalf("attempts = %d, want 4", len(timestamps))
	}

	first := timestamps[1].Sub(timestamps[0])
	second := timestamps[2].Sub(timestamps[1])
	third := timestamps[3].Sub(timestamps[2])

	if first < 40*time.Millisecond {
		t.Errorf("first delay = %v, want at least 40ms", first)
	}
	if second < 80*time.Millisecond {
		t.Errorf("second delay = %v, want at least 80ms", second)
	}
	if third < 160*time.Millisecond {
		t.Errorf("third delay = %v, want at least 160ms", third)
	}
}

func TestRetryTransport_FallbackCappedAtMax(t *testing.T) {
	var timestamps []time.Time
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		timestamps = append(timestamps, time.Now())
		return stubResponse(500, "boom", nil), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(40*time.Millisecond, 60*time.Millisecond, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	resp.Body.Close()

	if len(timestamps) != 4 {
		t.Fatalf("attempts = %d, want 4", len(timestamps))
	}

	// Delays run 40ms, then 60ms capped, twice. Generous upper bounds
	// absorb scheduler noise.
	for i := 1; i < len(timestamps); i++ {
		delay := timestamps[i].Sub(timestamps[i-1])
		if delay > 250*time.Millisecond {
			t.Errorf("delay %d = %v, want capped near 60ms", i, delay)
		}
	}
}

func TestRetryTransport_BadRequestWithDelayHint(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return stubResponse(400, "rate limited", http.Header{"Retry-After": {"0.01"}}), nil
		}
		return stubResponse(200, "ok", nil), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(time.Millisecond, time.Second, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 2 {
		t.Errorf("calls = %d, want the hinted 400 retried", calls)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRetryTransport_PlainBadRequestNotRetried(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return stubResponse(400, "validation failed", nil), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(time.Millisecond, time.Second, 3))
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/widgets", nil)

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400 passed through", resp.StatusCode)
	}
}

func TestRetryTransport_RewindsBody(t *testing.T) {
	var bodies []string
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(data))
		if len(bodies) == 1 {
			return stubResponse(500, "boom", nil), nil
		}
		return stubResponse(200, "ok", nil), nil
	})

	rt := newRetryTransport(inner, FixedRetries(2))
	req, _ := http.NewRequest(http.MethodPost, "http://example.test/widgets", bytes.NewReader([]byte(`{"name":"x"}`)))

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("attempts = %d, want 2", len(bodies))
	}
	for i, body := range bodies {
		if body != `{"name":"x"}` {
			t.Errorf("attempt %d body = %q, want the full payload", i+1, body)
		}
	}
}

func TestRetryTransport_BodyNotRewindable(t *testing.T) {
	calls := 0
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		io.Copy(io.Discard, req.Body) //nolint:errcheck
		return stubResponse(500, "boom", nil), nil
	})

	rt := newRetryTransport(inner, FixedRetries(2))
	req, _ := http.NewRequest(http.MethodPost, "http://example.test/widgets", strings.NewReader("payload"))
	req.GetBody = nil

	resp, err := rt.RoundTrip(req)
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
	if !errors.Is(err, ErrBodyNotRewindable) {
		t.Errorf("err = %v, want ErrBodyNotRewindable", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retry without a body", calls)
	}
}

func TestRetryTransport_ContextCancelledDuringDelay(t *testing.T) {
	inner := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return stubResponse(503, "boom", http.Header{"Retry-After": {"30"}}), nil
	})

	rt := newRetryTransport(inner, BackoffRetries(time.Second, time.Minute, 3))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.test/widgets", nil)

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if resp != nil {
		t.Errorf("resp = %v, want nil", resp)
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("err = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("elapsed = %v, want the delay abandoned early", elapsed)
	}
}
