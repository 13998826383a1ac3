package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/resource-loader/pkg/loader"
	"github.com/Sternrassler/resource-loader/pkg/metrics"
)

var (
	batchLoadsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_batch_loads_total",
		Help: "Total identifiers loaded by batch fetches by result",
	}, []string{"result"}) // "ok", "error"

	batchDuration = promauto.With(metrics.Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "loader_batch_duration_seconds",
		Help:    "Duration of complete batch fetches",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
	})
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel loads
	MaxConcurrency int
	// Timeout per identifier
	Timeout time.Duration
	// Logger for progress and failures
	Logger zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// Result is the outcome of loading one identifier.
type Result struct {
	ID       loader.ID
	Resource *loader.Resource
	Err      error
}

// Fetcher loads identifiers in parallel.
type Fetcher struct {
	loader loader.Loader
	config Config
}

// NewFetcher creates a fetcher over l.
func NewFetcher(l loader.Loader, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Fetcher{
		loader: l,
		config: config,
	}
}

// FetchAll loads every id and returns results in input order. Individual
// failures are reported in the results; the returned error is non-nil only
// when ctx ends before all loads were started, or when at least one load
// failed (then it summarises the failure count).
func (f *Fetcher) FetchAll(ctx context.Context, ids []loader.ID) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)

	var stopped error
	for i, id := range ids {
		results[i].ID = id
		if err := gctx.Err(); err != nil {
			stopped = err
			results[i].Err = err
			continue
		}

		g.Go(func() error {
			loadCtx, cancel := context.WithTimeout(gctx, f.config.Timeout)
			defer cancel()

			res, err := f.loader.Load(loadCtx, id)
			results[i].Resource = res
			results[i].Err = err
			if err != nil {
				batchLoadsTotal.WithLabelValues("error").Inc()
				f.config.Logger.Warn().
					Err(err).
					Str("id", string(id)).
					Msg("Batch load failed")
			} else {
				batchLoadsTotal.WithLabelValues("ok").Inc()
			}
			// Never fail the group: one bad identifier must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()
	batchDuration.Observe(time.Since(start).Seconds())

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	f.config.Logger.Info().
		Int("total", len(ids)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if stopped != nil {
		return results, fmt.Errorf("batch stopped (%d/%d failed): %w", failed, len(ids), stopped)
	}
	if failed > 0 {
		return results, fmt.Errorf("batch partially failed: %d/%d identifiers", failed, len(ids))
	}
	return results, nil
}
