package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis for unit tests, skipping when
// none is running. Integration tests use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewRedisStorage_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStorage should panic with nil redis client")
		}
	}()
	NewRedisStorage(nil, 0)
}

func TestRedisStorage(t *testing.T) {
	client := setupTestRedis(t)
	exerciseStorage(t, NewRedisStorage(client, 0))
}

func TestRedisStorage_TTL(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, 10*time.Minute)
	ctx := context.Background()
	uri := "https://api.github.com/repos/golang/go"

	if err := storage.Store(ctx, uri, testEntry(`"v1"`, "body")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	for _, key := range []string{redisEntryPrefix + uri, redisValidatorPrefix + uri} {
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			t.Fatalf("TTL(%s) failed: %v", key, err)
		}
		if ttl <= 0 || ttl > 10*time.Minute {
			t.Errorf("TTL(%s) = %v, want within (0, 10m]", key, ttl)
		}
	}
}

func TestRedisStorage_NoTTLKeepsForever(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, 0)
	ctx := context.Background()
	uri := "https://api.github.com/repos/golang/go"

	if err := storage.Store(ctx, uri, testEntry(`"v1"`, "body")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	ttl, err := client.TTL(ctx, redisEntryPrefix+uri).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	// go-redis reports keys without expiry as -1.
	if ttl != -1 {
		t.Errorf("TTL = %v, want -1 (no expiry)", ttl)
	}
}

func TestRedisStorage_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	storage := NewRedisStorage(client, 0)
	ctx := context.Background()
	uri := "https://api.github.com/repos/golang/go"

	if err := client.Set(ctx, redisEntryPrefix+uri, "not json", 0).Err(); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, err := storage.Load(ctx, uri); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Load of corrupt entry = %v, want ErrInvalidEntry", err)
	}
}
