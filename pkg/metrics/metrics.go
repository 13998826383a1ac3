// Package metrics owns the Prometheus registry used by the loaders.
// Collectors are defined in their own packages (loader, ratelimit, batch)
// and registered on Registry through promauto.With; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every loader collector plus the Go runtime and process
// collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/loader):
//   - loader_cache_hits_total{cache} (Counter): Entries returned after a fresh check
//   - loader_cache_misses_total{cache} (Counter): Loads with no cached entry
//   - loader_cache_refreshes_total{cache} (Counter): Stale entries reloaded
//   - loader_cache_entries{cache} (Gauge): Current table size
//   - loader_errors_total{loader, kind} (Counter): Errors by loader and kind
//
// URL Loader Metrics (pkg/loader):
//   - loader_url_requests_total{op, status} (Counter): Requests by operation (load, is_fresh) and status
//   - loader_url_request_duration_seconds{op} (Histogram): Request duration
//   - loader_url_304_responses_total (Counter): Freshness checks answered 304
//   - loader_url_retries_total{error_class} (Counter): Retry attempts
//   - loader_url_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - loader_url_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - loader_rate_limit_throttles_total{host} (Counter): Requests delayed per host
//   - loader_rate_limit_backoffs_total{host} (Counter): Retry-After backoffs applied
//
// Batch Metrics (pkg/batch):
//   - loader_batch_loads_total{result} (Counter): Identifiers loaded by result
//   - loader_batch_duration_seconds (Histogram): Whole batch duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(loader_cache_hits_total[5m])) /
//   (sum(rate(loader_cache_hits_total[5m])) + sum(rate(loader_cache_misses_total[5m])))
//
//   # Not-found rate per loader
//   rate(loader_errors_total{kind="not_found"}[5m])
//
//   # P95 origin latency
//   histogram_quantile(0.95, rate(loader_url_request_duration_seconds_bucket[5m]))
