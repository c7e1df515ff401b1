package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xproxy "golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/ljobx/ljobx/pkg/proxy"
)

// probeTarget is the known endpoint each candidate is checked against.
const probeTarget = "api.ipify.org"

// AggregatorConfig configures candidate gathering and validation.
type AggregatorConfig struct {
	// Validate enables the liveness probe. Candidates failing the probe are
	// dropped.
	Validate bool

	// ProbeTimeout bounds one liveness probe (default 5s).
	ProbeTimeout time.Duration

	// ProbeConcurrency bounds parallel probes (default 10).
	ProbeConcurrency int
}

// DefaultAggregatorConfig returns the default aggregation configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Validate:         true,
		ProbeTimeout:     5 * time.Second,
		ProbeConcurrency: 10,
	}
}

// Aggregator fans out over providers, dedupes their candidates and
// optionally probes each one before parsing it into a Route.
type Aggregator struct {
	providers []Provider
	cfg       AggregatorConfig
	logger    zerolog.Logger
}

// NewAggregator creates an aggregator over the given providers.
func NewAggregator(providers []Provider, cfg AggregatorConfig) *Aggregator {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 10
	}
	return &Aggregator{
		providers: providers,
		cfg:       cfg,
		logger:    log.With().Str("component", "proxy-aggregator").Logger(),
	}
}

// Routes gathers candidates from all providers, dedupes them, validates
// them when configured, and returns the surviving routes. Provider failures
// are logged and skipped; an empty result is not an error (the pool falls
// back to a direct route).
func (a *Aggregator) Routes(ctx context.Context) ([]proxy.Route, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var candidates []string

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range a.providers {
		p := p
		g.Go(func() error {
			uris, err := p.FetchCandidates(gctx)
			if err != nil {
				a.logger.Error().Err(err).Str("provider", p.Name()).Msg("Provider failed, skipping its candidates")
				return nil
			}
			mu.Lock()
			for _, uri := range uris {
				if _, dup := seen[uri]; dup {
					continue
				}
				seen[uri] = struct{}{}
				candidates = append(candidates, uri)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Info().Int("count", len(candidates)).Int("providers", len(a.providers)).Msg("Gathered unique proxy candidates")

	if !a.cfg.Validate {
		a.logger.Warn().Msg("Proxy validation disabled, admitting all candidates")
		return a.parseAll(candidates), nil
	}
	return a.validate(ctx, candidates)
}

// Close closes every provider, returning the first error encountered.
func (a *Aggregator) Close() error {
	var first error
	for _, p := range a.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *Aggregator) parseAll(candidates []string) []proxy.Route {
	routes := make([]proxy.Route, 0, len(candidates))
	for _, uri := range candidates {
		route, err := proxy.ParseRoute(uri)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Dropping unparsable proxy candidate")
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// validate probes candidates concurrently and keeps only the live ones,
// preserving candidate order.
func (a *Aggregator) validate(ctx context.Context, candidates []string) ([]proxy.Route, error) {
	a.logger.Info().Int("count", len(candidates)).Msg("Validating proxy candidates")

	keep := make([]bool, len(candidates))
	routes := make([]proxy.Route, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ProbeConcurrency)

	for i, uri := range candidates {
		i, uri := i, uri
		route, err := proxy.ParseRoute(uri)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Dropping unparsable proxy candidate")
			continue
		}
		routes[i] = route

		g.Go(func() error {
			if err := a.probe(gctx, route); err != nil {
				a.logger.Debug().Err(err).Str("route", route.Redacted()).Msg("Proxy failed liveness probe")
				return nil
			}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var valid []proxy.Route
	for i := range candidates {
		if keep[i] {
			valid = append(valid, routes[i])
		}
	}

	a.logger.Info().Int("valid", len(valid)).Int("total", len(candidates)).Msg("Proxy validation complete")
	return valid, nil
}

// probe checks a single route against the probe target: a SOCKS5 dial for
// socks5 routes, an HTTPS HEAD through the proxy otherwise.
func (a *Aggregator) probe(ctx context.Context, route proxy.Route) error {
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	u := route.URL()
	if u.Scheme == "socks5" || u.Scheme == "socks5h" {
		return a.probeSocks5(probeCtx, u)
	}
	return a.probeHTTP(probeCtx, u)
}

func (a *Aggregator) probeSocks5(ctx context.Context, u *url.URL) error {
	var auth *xproxy.Auth
	if user := u.User; user != nil {
		password, _ := user.Password()
		auth = &xproxy.Auth{User: user.Username(), Password: password}
	}

	dialer, err := xproxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: a.cfg.ProbeTimeout})
	if err != nil {
		return fmt.Errorf("create socks5 dialer: %w", err)
	}

	conn, err := dialer.(xproxy.ContextDialer).DialContext(ctx, "tcp", probeTarget+":443")
	if err != nil {
		return err
	}
	return conn.Close()
}

func (a *Aggregator) probeHTTP(ctx context.Context, u *url.URL) error {
	transport := &http.Transport{
		Proxy: http.ProxyURL(u),
		DialContext: (&net.Dialer{
			Timeout: a.cfg.ProbeTimeout,
		}).DialContext,
		TLSHandshakeTimeout: a.cfg.ProbeTimeout,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+probeTarget, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %s", resp.Status)
	}
	return nil
}
