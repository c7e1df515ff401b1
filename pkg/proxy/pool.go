package proxy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for route health tracking.
var (
	routeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ljobx_route_failures_total",
		Help: "Total recorded failures by route",
	}, []string{"route"})

	routesCooling = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ljobx_routes_cooling",
		Help: "Number of routes currently in cooldown",
	})
)

// DefaultBackoffCap is the ceiling for per-route cooldowns. The cooldown
// after k consecutive failures is min(cap, 2^k) seconds.
const DefaultBackoffCap = 60 * time.Second

// PoolConfig holds pool configuration.
type PoolConfig struct {
	// BackoffCap is the maximum cooldown applied to a failing route.
	BackoffCap time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{BackoffCap: DefaultBackoffCap}
}

// Pool owns the set of egress routes and their health state, and hands out
// routes round-robin, skipping those in cooldown. All methods are safe for
// concurrent use.
type Pool struct {
	mu     sync.Mutex
	routes []Route
	health map[string]*routeHealth
	cursor int
	cap    time.Duration
	clock  func() time.Time
	logger zerolog.Logger
}

// NewPool creates a pool over the given routes. With no routes it contains
// exactly one direct sentinel route, which backs off on failure like any
// other.
func NewPool(routes []Route, cfg PoolConfig) *Pool {
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if len(routes) == 0 {
		routes = []Route{DirectRoute()}
	}

	health := make(map[string]*routeHealth, len(routes))
	for _, r := range routes {
		health[r.ID()] = &routeHealth{}
	}

	return &Pool{
		routes: routes,
		health: health,
		cap:    cfg.BackoffCap,
		clock:  time.Now,
		logger: log.With().Str("component", "proxy-pool").Logger(),
	}
}

// Size returns the number of routes in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.routes)
}

// Next returns the next eligible route in rotation order. The cursor
// advances by exactly one position per call regardless of outcome, and the
// scan covers at most len(routes) positions, so a route skipped for cooldown
// is not starved once it recovers. Returns ok=false when every route is
// cooling down.
func (p *Pool) Next() (Route, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	start := p.cursor
	p.cursor = (p.cursor + 1) % len(p.routes)

	for i := 0; i < len(p.routes); i++ {
		route := p.routes[(start+i)%len(p.routes)]
		if p.health[route.ID()].eligible(now) {
			return route, true
		}
	}
	return Route{}, false
}

// RecordSuccess resets the route's failure count and cooldown. Idempotent
// and safe to call for a route that is not currently selected.
func (p *Pool) RecordSuccess(route Route) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.health[route.ID()]
	if !ok {
		return
	}
	h.markSuccess()
	routesCooling.Set(float64(p.coolingLocked(p.clock())))
}

// RecordFailure increments the route's failure count and applies an
// exponential-backoff cooldown capped at the configured ceiling.
func (p *Pool) RecordFailure(route Route) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.health[route.ID()]
	if !ok {
		return
	}
	now := p.clock()
	backoff := h.markFailure(now, p.cap)
	routesCooling.Set(float64(p.coolingLocked(now)))
	routeFailuresTotal.WithLabelValues(route.Redacted()).Inc()

	p.logger.Warn().
		Str("route", route.Redacted()).
		Int("failures", h.failures).
		Dur("cooldown", backoff).
		Msg("Route failed, cooling down")
}

// CoolingDown returns the number of routes currently in cooldown.
func (p *Pool) CoolingDown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coolingLocked(p.clock())
}

// coolingLocked counts routes in cooldown. Callers must hold p.mu.
func (p *Pool) coolingLocked(now time.Time) int {
	count := 0
	for _, h := range p.health {
		if !h.eligible(now) {
			count++
		}
	}
	return count
}
