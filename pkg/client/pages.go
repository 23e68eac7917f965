package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/nordgaard/github-rest-client/pkg/pagination"
)

// GetPage fetches the page behind u and decodes it. A nil URL yields a
// nil page and no error, so callers can pass page.Next unconditionally.
func GetPage[T any](ctx context.Context, c *Client, u *url.URL) (*pagination.Page[T], error) {
	if u == nil {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return readPage[T](resp)
}

// ListPage issues a GET to route, which may be relative to the base URL,
// and decodes the response as the first page of a collection.
func ListPage[T any](ctx context.Context, c *Client, route string) (*pagination.Page[T], error) {
	u, err := c.Absolute(route)
	if err != nil {
		return nil, err
	}
	return GetPage[T](ctx, c, u)
}

func readPage[T any](resp *http.Response) (*pagination.Page[T], error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, responseError(resp, body)
	}
	return pagination.ParsePage[T](body, resp.Header)
}

// Stream returns a lazy iterator over first and every page after it.
// Pages are fetched through c one at a time, only as the caller advances
// past a page boundary.
func Stream[T any](c *Client, first *pagination.Page[T]) *pagination.Stream[T] {
	return pagination.NewStream(first, fetchFunc[T](c))
}

// FetchAll retrieves route and every page linked after it, returning all
// items in order. Opts can cap the number of pages.
func FetchAll[T any](ctx context.Context, c *Client, route string, opts pagination.FetchAllOptions) ([]T, error) {
	first, err := ListPage[T](ctx, c, route)
	if err != nil {
		return nil, err
	}
	return pagination.FetchAll(ctx, first, fetchFunc[T](c), opts)
}

// fetchFunc adapts the client to the pagination fetch signature.
func fetchFunc[T any](c *Client) pagination.FetchFunc[T] {
	return func(ctx context.Context, u *url.URL) (*pagination.Page[T], error) {
		return GetPage[T](ctx, c, u)
	}
}
