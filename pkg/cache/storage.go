package cache

import (
	"context"
	"errors"
)

var (
	// ErrNoEntry indicates no snapshot is stored for the URI.
	ErrNoEntry = errors.New("cache: no entry")

	// ErrInvalidEntry indicates a stored snapshot could not be decoded.
	ErrInvalidEntry = errors.New("cache: invalid entry")
)

// Storage persists one snapshot per URI. Implementations must be safe for
// concurrent use; lookups and writes for unrelated URIs must not serialize
// behind a single body-sized critical section.
//
// Entries are only ever overwritten, never deleted by the cache layer;
// eviction is a backend concern.
type Storage interface {
	// Validator returns the cache key stored for uri, if any. It runs on
	// every request and must not load the body snapshot.
	//
	// When Validator reports a hit, Load must be able to return the
	// matching snapshot.
	Validator(ctx context.Context, uri string) (Key, bool, error)

	// Load returns the snapshot stored for uri, or ErrNoEntry.
	Load(ctx context.Context, uri string) (*Entry, error)

	// Store commits a snapshot for uri, replacing any previous entry.
	Store(ctx context.Context, uri string, entry *Entry) error
}

// NoopStorage disables caching: it never hits and discards writes.
type NoopStorage struct{}

// Validator implements Storage.
func (NoopStorage) Validator(context.Context, string) (Key, bool, error) {
	return Key{}, false, nil
}

// Load implements Storage.
func (NoopStorage) Load(context.Context, string) (*Entry, error) {
	return nil, ErrNoEntry
}

// Store implements Storage.
func (NoopStorage) Store(context.Context, string, *Entry) error {
	return nil
}
