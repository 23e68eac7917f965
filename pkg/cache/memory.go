package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage keeps snapshots in process memory. Validators and entries
// live in separate maps so a validator lookup never touches body data, and
// sync.Map keeps operations on unrelated URIs from contending.
type MemoryStorage struct {
	validators sync.Map // uri -> Key
	entries    sync.Map // uri -> *Entry
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Validator implements Storage.
func (s *MemoryStorage) Validator(_ context.Context, uri string) (Key, bool, error) {
	v, ok := s.validators.Load(uri)
	if !ok {
		return Key{}, false, nil
	}
	return v.(Key), true, nil
}

// Load implements Storage.
func (s *MemoryStorage) Load(_ context.Context, uri string) (*Entry, error) {
	e, ok := s.entries.Load(uri)
	if !ok {
		return nil, ErrNoEntry
	}
	return e.(*Entry), nil
}

// Store implements Storage. The entry lands before the validator so a
// concurrent Validator hit always finds a loadable snapshot.
func (s *MemoryStorage) Store(_ context.Context, uri string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	s.entries.Store(uri, entry)
	s.validators.Store(uri, entry.Key)
	return nil
}

// Len reports the number of cached URIs.
func (s *MemoryStorage) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
