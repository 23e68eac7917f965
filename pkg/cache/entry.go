package cache

import (
	"net/http"
	"time"
)

// Entry is an immutable snapshot of a cached response: the validator the
// server issued, the complete body, and the headers needed to replay it.
// A new cacheable response for the same URI replaces the whole entry.
type Entry struct {
	// Key is the validator to re-send for this URI.
	Key Key `json:"key"`

	// Body is the response body.
	Body []byte `json:"body"`

	// Header is the response header snapshot taken at commit time.
	Header http.Header `json:"header"`

	// StoredAt is when the entry was committed.
	StoredAt time.Time `json:"stored_at"`
}

// Size returns the entry's body size in bytes.
func (e *Entry) Size() int {
	return len(e.Body)
}
