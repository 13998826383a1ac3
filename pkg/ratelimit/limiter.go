// Package ratelimit gates outbound requests per host. It combines a token
// bucket per host with server-signalled backoff from Retry-After headers.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/resource-loader/pkg/metrics"
)

// Prometheus metrics for outbound rate limiting.
var (
	throttlesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_rate_limit_throttles_total",
		Help: "Total number of requests that waited on the per-host limiter",
	}, []string{"host"})

	backoffsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "loader_rate_limit_backoffs_total",
		Help: "Total number of Retry-After backoffs applied per host",
	}, []string{"host"})
)

// MaxBackoff caps a server-signalled Retry-After delay.
const MaxBackoff = 5 * time.Minute

// Limiter holds one token bucket per host. A nil *Limiter never blocks.
type Limiter struct {
	rps    rate.Limit
	burst  int
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	hosts   map[string]*rate.Limiter
	blocked map[string]time.Time
}

// NewLimiter creates a limiter allowing rps requests per second per host with
// the given burst. rps <= 0 disables the token bucket; Retry-After backoff
// still applies.
func NewLimiter(rps float64, burst int, logger zerolog.Logger) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		rps:     limit,
		burst:   burst,
		logger:  logger,
		now:     time.Now,
		hosts:   make(map[string]*rate.Limiter),
		blocked: make(map[string]time.Time),
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	until, blocked := l.blocked[host]
	if blocked && !until.After(l.now()) {
		delete(l.blocked, host)
		blocked = false
	}
	lim := l.limiterFor(host)
	l.mu.Unlock()

	if blocked {
		if wait := until.Sub(l.now()); wait > 0 {
			throttlesTotal.WithLabelValues(host).Inc()
			l.logger.Warn().
				Str("host", host).
				Dur("wait_duration", wait).
				Msg("Host in backoff - delaying request")

			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait for %s: %w", host, ctx.Err())
			case <-timer.C:
			}
		}
	}

	if !lim.Allow() {
		throttlesTotal.WithLabelValues(host).Inc()
		l.logger.Debug().Str("host", host).Msg("Request throttled")
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", host, err)
		}
	}
	return nil
}

// UpdateFromResponse applies a Retry-After backoff for host when the response
// is 429 or 503 and carries the header. It returns the applied delay.
func (l *Limiter) UpdateFromResponse(host string, statusCode int, headers http.Header) time.Duration {
	if l == nil {
		return 0
	}
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return 0
	}

	delay, ok := parseRetryAfter(headers.Get("Retry-After"), l.now())
	if !ok || delay <= 0 {
		return 0
	}
	if delay > MaxBackoff {
		delay = MaxBackoff
	}

	l.mu.Lock()
	l.blocked[host] = l.now().Add(delay)
	l.mu.Unlock()

	backoffsTotal.WithLabelValues(host).Inc()
	l.logger.Warn().
		Str("host", host).
		Int("status_code", statusCode).
		Dur("backoff", delay).
		Msg("Retry-After received - backing off host")

	return delay
}

// BlockedUntil returns the end of the current backoff for host, if any.
func (l *Limiter) BlockedUntil(host string) (time.Time, bool) {
	if l == nil {
		return time.Time{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.blocked[host]
	if !ok || !until.After(l.now()) {
		return time.Time{}, false
	}
	return until, true
}

// limiterFor must be called with l.mu held.
func (l *Limiter) limiterFor(host string) *rate.Limiter {
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.hosts[host] = lim
	}
	return lim
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	return when.Sub(now), true
}
