// Package ratelimit tracks GitHub rate-limit quota from X-RateLimit-*
// response headers. The tracker keeps one snapshot per rate-limit
// resource (core, search, graphql, ...) so callers can fail fast or wait
// instead of burning requests into a 403.
package ratelimit

import (
	"time"
)

// ResourceCore is the resource GitHub accounts most REST calls against;
// it is assumed when a response carries no X-RateLimit-Resource header.
const ResourceCore = "core"

// DefaultLowWater is the remaining-quota count below which a resource is
// reported Low when no other threshold is configured.
const DefaultLowWater = 10

// State classifies the quota of one rate-limit resource.
type State int

const (
	// StateUnknown means no rate-limit headers have been seen yet.
	StateUnknown State = iota

	// StateHealthy means quota is comfortably available.
	StateHealthy

	// StateLow means remaining quota fell below the low-water mark.
	StateLow

	// StateExhausted means no quota remains until the window resets.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateLow:
		return "low"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Snapshot is the last reported quota for one resource.
type Snapshot struct {
	// Resource names the quota bucket, e.g. "core" or "search".
	Resource string `json:"resource"`

	// Limit is the window's total quota.
	Limit int `json:"limit"`

	// Remaining is the quota left in the current window.
	Remaining int `json:"remaining"`

	// Used is the quota consumed in the current window.
	Used int `json:"used"`

	// Reset is when the window rolls over (X-RateLimit-Reset, epoch seconds).
	Reset time.Time `json:"reset"`

	// UpdatedAt is when this snapshot was recorded.
	UpdatedAt time.Time `json:"updated_at"`
}

// State classifies the snapshot against the given low-water mark.
func (s Snapshot) State(lowWater int) State {
	switch {
	case s.UpdatedAt.IsZero():
		return StateUnknown
	case s.Remaining <= 0:
		return StateExhausted
	case s.Remaining < lowWater:
		return StateLow
	default:
		return StateHealthy
	}
}

// TimeUntilReset returns how long until the window resets, or zero when
// the reset time has already passed.
func (s Snapshot) TimeUntilReset(now time.Time) time.Duration {
	d := s.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
