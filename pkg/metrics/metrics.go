// Package metrics provides the centralized Prometheus metrics registry for
// ljobx. All metrics are defined in their respective packages (fetch, proxy,
// cache, scrape) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by ljobx.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Route Metrics (pkg/proxy):
//   - ljobx_route_failures_total{route} (Counter): Failures recorded per route
//   - ljobx_routes_cooling (Gauge): Routes currently in cooldown
//
// Fetch Metrics (pkg/fetch):
//   - ljobx_requests_total{status} (Counter): Fetches by outcome (success, cache_hit, no_route, exhausted)
//   - ljobx_request_duration_seconds (Histogram): End-to-end fetch duration including retries
//   - ljobx_fetch_failures_total{kind} (Counter): Attempt failures by kind (timeout, connection, http_status, other)
//   - ljobx_fetch_retries_total (Counter): Attempts beyond the first
//
// Cache Metrics (pkg/cache):
//   - ljobx_cache_hits_total (Counter): Page cache hits
//   - ljobx_cache_misses_total (Counter): Page cache misses
//   - ljobx_cache_errors_total{operation} (Counter): Cache operation errors
//
// Scrape Metrics (pkg/scrape):
//   - ljobx_jobs_scraped_total (Counter): Job postings successfully scraped
//   - ljobx_job_detail_failures_total (Counter): Detail fetches that failed after retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ljobx_cache_hits_total[5m])) /
//   (sum(rate(ljobx_cache_hits_total[5m])) + sum(rate(ljobx_cache_misses_total[5m])))
//
//   # Fetch Error Rate
//   rate(ljobx_fetch_failures_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(ljobx_request_duration_seconds_bucket[5m]))
//
//   # Routes in Cooldown
//   ljobx_routes_cooling
