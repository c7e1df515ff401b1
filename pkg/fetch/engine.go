// Package fetch implements the resilient fetch engine: bounded-concurrency,
// paced HTTP GETs multiplexed across a pool of proxy routes, with per-route
// health tracking and retry on alternate routes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ljobx/ljobx/pkg/cache"
	"github.com/ljobx/ljobx/pkg/proxy"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ljobx_requests_total",
		Help: "Total fetch requests by result status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ljobx_request_duration_seconds",
		Help:    "Fetch duration in seconds, including queueing and retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ljobx_fetch_failures_total",
		Help: "Failed fetch attempts by failure kind",
	}, []string{"kind"})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ljobx_fetch_retries_total",
		Help: "Total number of fetch attempts retried on another route",
	})
)

// Config holds the engine configuration.
type Config struct {
	// Routes are the egress proxies. Empty means direct connection.
	Routes []proxy.Route

	// ConcurrencyLimit caps in-flight fetches (default 5).
	ConcurrencyLimit int

	// DelayMin and DelayMax bound the uniform pacing delay applied once per
	// Fetch call before any attempt. Both zero disables pacing.
	DelayMin time.Duration
	DelayMax time.Duration

	// RequestTimeout is the per-attempt timeout used when a call does not
	// override it (default 10s).
	RequestTimeout time.Duration

	// BackoffCap is the route cooldown ceiling (default 60s).
	BackoffCap time.Duration

	// NoRouteBackoff is how long to wait when every route is cooling down
	// before retrying the lookup (default 5s).
	NoRouteBackoff time.Duration

	// NoRouteWaitLimit bounds consecutive no-route waits so a fetch cannot
	// hang forever (default 3).
	NoRouteWaitLimit int

	// Cache is an optional page cache. Nil disables caching.
	Cache *cache.Manager
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit: DefaultConcurrencyLimit,
		RequestTimeout:   10 * time.Second,
		BackoffCap:       proxy.DefaultBackoffCap,
		NoRouteBackoff:   5 * time.Second,
		NoRouteWaitLimit: 3,
	}
}

// Options are per-call fetch options.
type Options struct {
	// Timeout is the per-attempt timeout. Zero uses the engine default.
	Timeout time.Duration

	// MaxAttempts caps attempts across routes. Zero means a single attempt.
	MaxAttempts int

	// CacheTTL stores a successful body in the page cache for this long.
	// Zero disables caching for the call. Ignored when the engine has no
	// cache configured.
	CacheTTL time.Duration
}

// Stats is a success/failure counter snapshot for post-run reporting.
type Stats struct {
	Successes uint64
	Failures  uint64
}

// Engine orchestrates fetches: admission through the gate, pacing, route
// selection, the HTTP call, outcome classification and retries. Each
// scraping run owns its own Engine instance.
type Engine struct {
	cfg       Config
	pool      *proxy.Pool
	clients   *ClientCache
	gate      *Gate
	logger    zerolog.Logger
	successes atomic.Uint64
	failures  atomic.Uint64
}

// New creates a fetch engine.
func New(cfg Config) (*Engine, error) {
	if cfg.DelayMin < 0 || cfg.DelayMax < 0 {
		return nil, fmt.Errorf("delay bounds must be non-negative")
	}
	if cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("delay max %v is below delay min %v", cfg.DelayMax, cfg.DelayMin)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.NoRouteBackoff <= 0 {
		cfg.NoRouteBackoff = 5 * time.Second
	}
	if cfg.NoRouteWaitLimit <= 0 {
		cfg.NoRouteWaitLimit = 3
	}

	pool := proxy.NewPool(cfg.Routes, proxy.PoolConfig{BackoffCap: cfg.BackoffCap})
	gate := NewGate(cfg.ConcurrencyLimit)

	logger := log.With().Str("component", "fetch-engine").Logger()
	logger.Debug().
		Int("routes", pool.Size()).
		Int("concurrency", gate.Limit()).
		Msg("Fetch engine created")

	return &Engine{
		cfg:     cfg,
		pool:    pool,
		clients: NewClientCache(),
		gate:    gate,
		logger:  logger,
	}, nil
}

// Fetch downloads a URL through the next healthy route, retrying failed
// attempts on alternate routes up to opts.MaxAttempts. It returns the raw
// response body, or a terminal error once attempts or eligible routes are
// exhausted.
func (e *Engine) Fetch(ctx context.Context, rawURL string, opts Options) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = e.cfg.RequestTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if err := e.gate.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer e.gate.Release()

	if err := e.pace(ctx); err != nil {
		return nil, err
	}

	useCache := e.cfg.Cache != nil && opts.CacheTTL > 0
	if useCache {
		body, err := e.cfg.Cache.GetPage(ctx, rawURL)
		if err == nil {
			requestsTotal.WithLabelValues("cache_hit").Inc()
			return body, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache lookup failed, fetching anyway")
		}
	}

	var lastErr *FetchError
	noRouteWaits := 0

	for attempt := 1; attempt <= opts.MaxAttempts; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		route, ok := e.pool.Next()
		if !ok {
			if noRouteWaits >= e.cfg.NoRouteWaitLimit {
				requestsTotal.WithLabelValues("no_route").Inc()
				return nil, fmt.Errorf("%w: gave up after %d waits", ErrRoutesCoolingDown, noRouteWaits)
			}
			noRouteWaits++
			e.logger.Debug().
				Int("wait", noRouteWaits).
				Dur("backoff", e.cfg.NoRouteBackoff).
				Msg("All routes cooling down, waiting for one to recover")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.NoRouteBackoff):
			}
			continue
		}
		noRouteWaits = 0

		body, ferr := e.attempt(ctx, rawURL, route, opts.Timeout)
		if ferr == nil {
			e.pool.RecordSuccess(route)
			e.successes.Add(1)
			requestsTotal.WithLabelValues("success").Inc()

			if useCache {
				if err := e.cfg.Cache.SetPage(ctx, rawURL, body, opts.CacheTTL); err != nil {
					e.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache page")
				}
			}
			return body, nil
		}

		// Parent cancellation is not a route failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = ferr
		e.pool.RecordFailure(route)
		e.failures.Add(1)
		fetchFailuresTotal.WithLabelValues(string(ferr.Kind)).Inc()

		e.logger.Warn().
			Str("url", rawURL).
			Str("route", route.Redacted()).
			Str("kind", string(ferr.Kind)).
			Int("attempt", attempt).
			Int("max_attempts", opts.MaxAttempts).
			Err(ferr.Err).
			Msg("Fetch attempt failed")

		attempt++
		if attempt <= opts.MaxAttempts {
			fetchRetriesTotal.Inc()
		}
	}

	requestsTotal.WithLabelValues("exhausted").Inc()
	return nil, fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
}

// attempt issues a single GET through the given route.
func (e *Engine) attempt(ctx context.Context, rawURL string, route proxy.Route, timeout time.Duration) ([]byte, *FetchError) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindOther, URL: rawURL, Route: route.Redacted(), Err: err}
	}
	setRequestHeaders(req)

	e.logger.Debug().Str("url", rawURL).Str("route", route.Redacted()).Msg("Fetching URL")

	resp, err := e.clients.Get(route).Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classify(0, err), URL: rawURL, Route: route.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        rawURL,
			Route:      route.Redacted(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classify(0, err), URL: rawURL, Route: route.Redacted(), Err: err}
	}
	return body, nil
}

// pace sleeps for a duration drawn uniformly from [DelayMin, DelayMax],
// honoring cancellation. Applied once per Fetch call, not per attempt, so
// retries do not multiply the human-like spacing.
func (e *Engine) pace(ctx context.Context) error {
	if e.cfg.DelayMax <= 0 {
		return nil
	}
	delay := e.cfg.DelayMin
	if span := e.cfg.DelayMax - e.cfg.DelayMin; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Stats returns a snapshot of the success/failure counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Successes: e.successes.Load(),
		Failures:  e.failures.Load(),
	}
}

// Pool exposes the route pool for health inspection.
func (e *Engine) Pool() *proxy.Pool {
	return e.pool
}

// Close shuts down all cached connections. Idempotent.
func (e *Engine) Close() {
	e.clients.CloseAll()
}
