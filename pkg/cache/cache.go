// Package cache provides an optional Redis-backed cache for fetched page
// bodies, keyed by URL. It lets repeated runs skip detail pages that were
// already downloaded recently.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested URL was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Prometheus metrics for page cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ljobx_cache_hits_total",
		Help: "Total number of page cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ljobx_cache_misses_total",
		Help: "Total number of page cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ljobx_cache_errors_total",
		Help: "Total number of cache operation errors",
	}, []string{"operation"})
)

// Entry is a cached page body with its fetch timestamp.
type Entry struct {
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key generates the deterministic Redis key for a URL.
// Format: ljobx:page:<sha256 of URL>.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return "ljobx:page:" + hex.EncodeToString(sum[:])
}

// Manager handles page caching with a Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a cache manager. Panics on a nil client: a disabled
// cache is expressed by a nil *Manager, not a Manager without a backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// GetPage returns the cached body for a URL, or ErrCacheMiss.
func (m *Manager) GetPage(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := m.redis.Get(ctx, Key(rawURL)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	cacheHits.Inc()
	return entry.Body, nil
}

// SetPage stores a page body for a URL with the given TTL. A non-positive
// TTL is a no-op.
func (m *Manager) SetPage(ctx context.Context, rawURL string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(Entry{Body: body, FetchedAt: time.Now()})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, Key(rawURL), data, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the cached body for a URL.
func (m *Manager) Delete(ctx context.Context, rawURL string) error {
	if err := m.redis.Del(ctx, Key(rawURL)).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
