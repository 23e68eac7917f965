package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Get issues a GET to route and decodes the JSON response into T.
func Get[T any](ctx context.Context, c *Client, route string) (T, error) {
	return roundTripJSON[T](ctx, c, http.MethodGet, route, nil)
}

// Post issues a POST to route with body serialized as JSON, decoding the
// response into T. A nil body sends no payload.
func Post[T any](ctx context.Context, c *Client, route string, body any) (T, error) {
	return roundTripJSON[T](ctx, c, http.MethodPost, route, body)
}

// Put issues a PUT to route with body serialized as JSON, decoding the
// response into T.
func Put[T any](ctx context.Context, c *Client, route string, body any) (T, error) {
	return roundTripJSON[T](ctx, c, http.MethodPut, route, body)
}

// Patch issues a PATCH to route with body serialized as JSON, decoding
// the response into T.
func Patch[T any](ctx context.Context, c *Client, route string, body any) (T, error) {
	return roundTripJSON[T](ctx, c, http.MethodPatch, route, body)
}

// Delete issues a DELETE to route and decodes any JSON response into T.
// Endpoints answering 204 No Content yield the zero value.
func Delete[T any](ctx context.Context, c *Client, route string) (T, error) {
	return roundTripJSON[T](ctx, c, http.MethodDelete, route, nil)
}

// roundTripJSON sends one JSON-in, JSON-out request. Go does not allow
// methods to carry type parameters, hence the package-level helpers.
func roundTripJSON[T any](ctx context.Context, c *Client, method, route string, body any) (T, error) {
	var zero T

	u, err := c.Absolute(route)
	if err != nil {
		return zero, err
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return zero, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return zero, responseError(resp, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return zero, nil
	}
	if err := json.Unmarshal(data, &zero); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return zero, nil
}
