package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client for testing.
// Unit tests connect to a local Redis and skip when none is running.
// Integration tests use testcontainers-go with a real Redis instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
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

func TestKey(t *testing.T) {
	url := "https://jobs.example.com/search?keywords=go&start=0"

	key := Key(url)

	if !strings.HasPrefix(key, "ljobx:page:") {
		t.Errorf("Key(%q) = %q, want ljobx:page: prefix", url, key)
	}
	if key != Key(url) {
		t.Error("Key should be deterministic for the same URL")
	}
	if key == Key(url+"&start=10") {
		t.Error("Different URLs should produce different keys")
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	url := "https://jobs.example.com/search?keywords=go&start=0"
	body := []byte("<html><body>listing page</body></html>")

	if err := manager.SetPage(ctx, url, body, 5*time.Minute); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	got, err := manager.GetPage(ctx, url)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("GetPage = %q, want %q", got, body)
	}
}

func TestManager_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	_, err := manager.GetPage(ctx, "https://jobs.example.com/never-fetched")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetPage on missing URL = %v, want ErrCacheMiss", err)
	}
}

func TestManager_GetInvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	url := "https://jobs.example.com/corrupt"
	if err := client.Set(ctx, Key(url), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("Failed to seed corrupt entry: %v", err)
	}

	_, err := manager.GetPage(ctx, url)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("GetPage on corrupt entry = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_SetZeroTTL(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	url := "https://jobs.example.com/uncached"
	if err := manager.SetPage(ctx, url, []byte("body"), 0); err != nil {
		t.Fatalf("SetPage with zero TTL failed: %v", err)
	}

	if _, err := manager.GetPage(ctx, url); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("SetPage with zero TTL should not store, got err = %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	url := "https://jobs.example.com/job/123"
	if err := manager.SetPage(ctx, url, []byte("detail page"), time.Minute); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	if err := manager.Delete(ctx, url); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := manager.GetPage(ctx, url); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetPage after Delete = %v, want ErrCacheMiss", err)
	}
}

func TestManager_TTLExpiry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	url := "https://jobs.example.com/short-lived"
	if err := manager.SetPage(ctx, url, []byte("body"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := manager.GetPage(ctx, url); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetPage after TTL expiry = %v, want ErrCacheMiss", err)
	}
}
