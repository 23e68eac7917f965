package pagination

import (
	"context"
	"net/url"
)

// FetchFunc retrieves the page behind a pagination link. The client
// package provides one that runs the URL through its full transport
// stack, so streamed page fetches are cached and retried like any other
// request.
type FetchFunc[T any] func(ctx context.Context, u *url.URL) (*Page[T], error)

// Stream iterates a paginated collection item by item, following next
// links lazily: page N+1 is requested only after page N's last item has
// been consumed, and abandoning the stream leaves no request in flight.
//
// Usage follows the bufio.Scanner shape:
//
//	stream := pagination.NewStream(firstPage, fetch)
//	for stream.Next(ctx) {
//		item := stream.Item()
//		...
//	}
//	if err := stream.Err(); err != nil {
//		...
//	}
//
// A Stream is not safe for concurrent use.
type Stream[T any] struct {
	fetch   FetchFunc[T]
	page    *Page[T]
	index   int
	current T
	err     error
	done    bool
}

// NewStream starts a stream at first; first may be nil for an empty
// collection.
func NewStream[T any](first *Page[T], fetch FetchFunc[T]) *Stream[T] {
	return &Stream[T]{page: first, fetch: fetch}
}

// Next advances to the next item, fetching the following page once the
// current one is spent. It returns false when the collection ends, ctx
// is done, or a fetch fails; Err tells the cases apart.
func (s *Stream[T]) Next(ctx context.Context) bool {
	if s.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.fail(err)
		return false
	}

	for s.page == nil || s.index >= len(s.page.Items) {
		if s.page == nil || s.page.Next == nil || s.fetch == nil {
			s.stop()
			return false
		}
		next, err := s.fetch(ctx, s.page.Next)
		if err != nil {
			s.fail(err)
			return false
		}
		if next == nil || len(next.Items) == 0 {
			// An empty page ends the collection even when it still
			// advertises a next link.
			s.stop()
			return false
		}
		s.page = next
		s.index = 0
	}

	s.current = s.page.Items[s.index]
	s.index++
	return true
}

// Item returns the item the last successful Next advanced to.
func (s *Stream[T]) Item() T {
	return s.current
}

// Err returns the error that ended the stream, if any. A cleanly
// exhausted collection leaves Err nil.
func (s *Stream[T]) Err() error {
	return s.err
}

// Collect drains the remaining items into a slice.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var items []T
	for s.Next(ctx) {
		items = append(items, s.Item())
	}
	return items, s.Err()
}

func (s *Stream[T]) stop() {
	s.done = true
	var zero T
	s.current = zero
	s.page = nil
}

func (s *Stream[T]) fail(err error) {
	s.err = err
	s.stop()
}
