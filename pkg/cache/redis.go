package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes. Validators and entries are stored separately so
// Validator stays a small GET even when bodies are large.
const (
	redisValidatorPrefix = "ghcache:v1:key:"
	redisEntryPrefix     = "ghcache:v1:entry:"
)

// RedisStorage persists snapshots in Redis, shared across processes.
//
// TTL is a backend eviction knob only; zero keeps entries until overwritten.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage creates a Redis-backed store.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStorage{
		client: client,
		ttl:    ttl,
	}
}

// Validator implements Storage.
func (s *RedisStorage) Validator(ctx context.Context, uri string) (Key, bool, error) {
	data, err := s.client.Get(ctx, redisValidatorPrefix+uri).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Key{}, false, nil
		}
		CacheErrors.WithLabelValues("validator").Inc()
		return Key{}, false, fmt.Errorf("redis get: %w", err)
	}

	var key Key
	if err := json.Unmarshal(data, &key); err != nil {
		CacheErrors.WithLabelValues("validator").Inc()
		return Key{}, false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return key, true, nil
}

// Load implements Storage.
func (s *RedisStorage) Load(ctx context.Context, uri string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisEntryPrefix+uri).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoEntry
		}
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// Store implements Storage. The entry lands before the validator so a
// concurrent Validator hit always finds a loadable snapshot.
func (s *RedisStorage) Store(ctx context.Context, uri string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	keyData, err := json.Marshal(entry.Key)
	if err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("marshal cache key: %w", err)
	}

	if err := s.client.Set(ctx, redisEntryPrefix+uri, entryData, s.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	if err := s.client.Set(ctx, redisValidatorPrefix+uri, keyData, s.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
