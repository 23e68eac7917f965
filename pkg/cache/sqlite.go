package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	uri       TEXT PRIMARY KEY,
	key_kind  TEXT NOT NULL,
	key_value TEXT NOT NULL,
	entry     BLOB NOT NULL,
	stored_at TIMESTAMP NOT NULL
);`

// SQLiteStorage persists snapshots in a local SQLite file. It suits
// single-host tools that want a cache surviving restarts without
// running a Redis.
type SQLiteStorage struct {
	db *sql.DB

	// SQLite allows one writer at a time; serializing writes here avoids
	// busy errors under concurrent Store calls. Reads stay concurrent.
	writeMu sync.Mutex
}

// NewSQLiteStorage opens (or creates) the database at path and prepares
// the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Validator implements Storage. It reads only the key columns, never
// the snapshot blob.
func (s *SQLiteStorage) Validator(ctx context.Context, uri string) (Key, bool, error) {
	var kind, value string
	err := s.db.QueryRowContext(ctx,
		"SELECT key_kind, key_value FROM cache_entries WHERE uri = ?", uri,
	).Scan(&kind, &value)
	if err != nil {
		if err == sql.ErrNoRows {
			return Key{}, false, nil
		}
		CacheErrors.WithLabelValues("validator").Inc()
		return Key{}, false, fmt.Errorf("query validator: %w", err)
	}

	return Key{Kind: KeyKind(kind), Value: value}, true, nil
}

// Load implements Storage.
func (s *SQLiteStorage) Load(ctx context.Context, uri string) (*Entry, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT entry FROM cache_entries WHERE uri = ?", uri,
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoEntry
		}
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("query entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Store implements Storage. The row carries validator and snapshot
// together, so replacement is atomic.
func (s *SQLiteStorage) Store(ctx context.Context, uri string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (uri, key_kind, key_value, entry, stored_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uri, string(entry.Key.Kind), entry.Key.Value, data, entry.StoredAt,
	)
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("insert cache entry: %w", err)
	}

	return nil
}
