package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrContextCancelled is returned when the context ends while a retry
	// delay is being waited out.
	ErrContextCancelled = errors.New("context cancelled during retry delay")

	// ErrBodyNotRewindable is returned when a request should be retried
	// but its body cannot be rebuilt for the new attempt.
	ErrBodyNotRewindable = errors.New("request body cannot be rebuilt for retry")
)

// ErrorClass classifies request failures for logs and metrics.
type ErrorClass string

const (
	// ErrorClassClient covers 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer covers 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit covers 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork covers transport failures with no response.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus buckets an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// ErrorDetail is one element of the errors array GitHub attaches to
// validation failures.
type ErrorDetail struct {
	Resource string `json:"resource,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// APIError is a GitHub error response, decoded from the JSON body the
// API sends with non-2xx statuses.
type APIError struct {
	StatusCode       int           `json:"-"`
	Message          string        `json:"message"`
	DocumentationURL string        `json:"documentation_url,omitempty"`
	Errors           []ErrorDetail `json:"errors,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "github: %s (status %d)", e.Message, e.StatusCode)
	for _, detail := range e.Errors {
		if detail.Message != "" {
			fmt.Fprintf(&b, "; %s", detail.Message)
		} else if detail.Field != "" {
			fmt.Fprintf(&b, "; %s.%s: %s", detail.Resource, detail.Field, detail.Code)
		}
	}
	if e.DocumentationURL != "" {
		fmt.Fprintf(&b, ", see %s", e.DocumentationURL)
	}
	return b.String()
}

// Class reports the error's classification.
func (e *APIError) Class() ErrorClass {
	return classifyStatus(e.StatusCode)
}

// RateLimitedError is returned by Do when BlockWhenLimited is enabled
// and the tracked quota for the request's resource is exhausted.
type RateLimitedError struct {
	Resource string
	Reset    time.Time
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("github: %s rate limit exhausted, resets at %s",
		e.Resource, e.Reset.Format(time.RFC3339))
}

// responseError maps a non-2xx response to an *APIError. The GitHub
// error body is decoded when possible; otherwise the raw body or the
// status text stands in for the message.
func responseError(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
