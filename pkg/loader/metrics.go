package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/resource-loader/pkg/metrics"
)

var (
	// CacheHits tracks loads answered from a cached loader's table
	CacheHits = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_cache_hits_total",
			Help: "Total number of cached loader hits (entry present and fresh)",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks loads with no entry in the table
	CacheMisses = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_cache_misses_total",
			Help: "Total number of cached loader misses",
		},
		[]string{"cache"},
	)

	// CacheRefreshes tracks stale entries reloaded from the wrapped loader
	CacheRefreshes = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_cache_refreshes_total",
			Help: "Total number of stale entries reloaded",
		},
		[]string{"cache"},
	)

	// CacheEntries tracks the current number of entries per cached loader
	CacheEntries = promauto.With(metrics.Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loader_cache_entries",
			Help: "Current number of entries in the cache table",
		},
		[]string{"cache"},
	)

	// LoadErrors tracks failed loads by loader type and error kind
	LoadErrors = promauto.With(metrics.Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_errors_total",
			Help: "Total number of loader errors by loader and kind",
		},
		[]string{"loader", "kind"}, // loader: "cached", "file", "url", "redis", "static"
	)

	// ConditionalRequests tracks HTTP freshness checks answered with 304
	ConditionalRequests = promauto.With(metrics.Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "loader_url_304_responses_total",
			Help: "Total number of 304 Not Modified responses to freshness checks",
		},
	)

	urlRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_url_requests_total",
		Help: "Total URL loader requests by operation and status",
	}, []string{"op", "status"})

	urlRequestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loader_url_request_duration_seconds",
		Help:    "URL loader request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	urlRetriesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_url_retries_total",
		Help: "Total number of URL loader retry attempts by error class",
	}, []string{"error_class"})

	urlRetryBackoffSeconds = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loader_url_retry_backoff_seconds",
		Help:    "Backoff duration for URL loader retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	urlRetryExhaustedTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_url_retry_exhausted_total",
		Help: "Total number of times URL loader retries were exhausted by error class",
	}, []string{"error_class"})
)

func recordError(loaderName string, err error) {
	LoadErrors.WithLabelValues(loaderName, string(KindOf(err))).Inc()
}
