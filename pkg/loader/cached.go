package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultFlightTimeout bounds a shared load when WithFlightTimeout is not set.
const DefaultFlightTimeout = 2 * time.Minute

// CachedLoader wraps another Loader and memoizes its results by identifier.
// A cached entry is returned only after the wrapped loader confirms its token
// is still fresh.
//
// Concurrent loads of the same identifier share one lookup-check-fetch-store
// sequence; different identifiers proceed in parallel.
type CachedLoader struct {
	inner  Loader
	name   string
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[ID]*Entry
	// gens and epoch are bumped by Invalidate and Purge; a load that started
	// under an older value does not store its result.
	gens  map[ID]uint64
	epoch uint64

	flights       singleflight.Group
	flightTimeout time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	refreshes atomic.Uint64
	failures  atomic.Uint64
}

// CachedOption configures a CachedLoader.
type CachedOption func(*CachedLoader)

// WithLogger sets the logger used for hit/miss/refresh debug events.
func WithLogger(logger zerolog.Logger) CachedOption {
	return func(c *CachedLoader) {
		c.logger = logger
	}
}

// WithName sets the "cache" label used on the cached loader's metrics.
func WithName(name string) CachedOption {
	return func(c *CachedLoader) {
		c.name = name
	}
}

// WithFlightTimeout bounds a shared load. Flights are detached from the
// callers' cancellation, so this is what stops a load nobody waits for.
func WithFlightTimeout(d time.Duration) CachedOption {
	return func(c *CachedLoader) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

// WithClock overrides the time source used for CachedAt.
func WithClock(now func() time.Time) CachedOption {
	return func(c *CachedLoader) {
		c.now = now
	}
}

// Stats is a snapshot of a cached loader's counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Refreshes uint64
	Errors    uint64
	Entries   int
}

// NewCachedLoader creates a cached loader around inner.
func NewCachedLoader(inner Loader, opts ...CachedOption) *CachedLoader {
	if inner == nil {
		panic("wrapped loader cannot be nil")
	}
	c := &CachedLoader{
		inner:   inner,
		name:    "default",
		logger:  zerolog.Nop(),
		now:     time.Now,
		entries: make(map[ID]*Entry),
		gens:    make(map[ID]uint64),

		flightTimeout: DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the content for id, from the cache when the wrapped loader
// reports the cached token fresh, otherwise from the wrapped loader.
//
// Errors from the wrapped loader are returned unchanged. A failed call leaves
// the table untouched, except that ErrNotFound purges the entry for id.
// Callers joining an in-flight load for the same id share its result. The
// load runs detached from every caller's cancellation, bounded by the flight
// timeout; a caller whose ctx ends stops waiting and gets ctx.Err().
func (c *CachedLoader) Load(ctx context.Context, id ID) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := NormalizeID(id)

	ch := c.flights.DoChan(string(key), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return c.load(flightCtx, key, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Resource)
		res.ID = id
		return &res, nil
	}
}

func (c *CachedLoader) load(ctx context.Context, key, id ID) (*Resource, error) {
	c.mu.RLock()
	entry, cached := c.entries[key]
	gen, epoch := c.gens[key], c.epoch
	c.mu.RUnlock()

	if cached {
		fresh, err := c.inner.IsFresh(ctx, id, entry.Token)
		if err != nil {
			return nil, c.fail(key, err)
		}
		if fresh {
			c.hits.Add(1)
			CacheHits.WithLabelValues(c.name).Inc()
			c.logger.Debug().
				Str("cache", c.name).
				Str("id", string(key)).
				Dur("age", entry.Age(c.now())).
				Msg("Cache hit")
			return entry.resource(id), nil
		}
		c.refreshes.Add(1)
		CacheRefreshes.WithLabelValues(c.name).Inc()
		c.logger.Debug().Str("cache", c.name).Str("id", string(key)).Msg("Cache entry stale, reloading")
	} else {
		c.misses.Add(1)
		CacheMisses.WithLabelValues(c.name).Inc()
		c.logger.Debug().Str("cache", c.name).Str("id", string(key)).Msg("Cache miss")
	}

	res, err := c.inner.Load(ctx, id)
	if err != nil {
		return nil, c.fail(key, err)
	}
	if res == nil {
		return nil, c.fail(key, fmt.Errorf("load %q: wrapped loader returned no resource", string(id)))
	}

	loadedAt := res.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = c.now()
	}
	next := &Entry{
		Content:  res.Content,
		Token:    res.Token,
		LoadedAt: loadedAt,
		CachedAt: c.now(),
	}

	c.mu.Lock()
	if c.gens[key] != gen || c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug().Str("cache", c.name).Str("id", string(key)).Msg("Invalidated during load, not stored")
		return next.resource(id), nil
	}
	c.entries[key] = next
	size := len(c.entries)
	c.mu.Unlock()
	CacheEntries.WithLabelValues(c.name).Set(float64(size))

	return next.resource(id), nil
}

// fail records err and purges key when the resource no longer exists.
func (c *CachedLoader) fail(key ID, err error) error {
	c.failures.Add(1)
	recordError("cached", err)

	if errors.Is(err, ErrNotFound) {
		if c.remove(key) {
			c.logger.Debug().Str("cache", c.name).Str("id", string(key)).Msg("Resource gone, entry purged")
		}
	}
	return err
}

// IsFresh delegates to the wrapped loader so cached loaders compose.
func (c *CachedLoader) IsFresh(ctx context.Context, id ID, token Token) (bool, error) {
	return c.inner.IsFresh(ctx, id, token)
}

// Peek returns a copy of the cached entry for id without any I/O or
// freshness check. Content is shared with the cache and must not be modified.
func (c *CachedLoader) Peek(id ID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[NormalizeID(id)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Invalidate removes the entry for id and keeps a load already in flight for
// id from storing its result. It reports whether an entry existed.
func (c *CachedLoader) Invalidate(id ID) bool {
	key := NormalizeID(id)
	c.flights.Forget(string(key))

	c.mu.Lock()
	c.gens[key]++
	c.mu.Unlock()

	return c.remove(key)
}

// Purge removes every entry, discards the results of loads in flight and
// returns how many entries were removed.
func (c *CachedLoader) Purge() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[ID]*Entry)
	c.gens = make(map[ID]uint64)
	c.epoch++
	c.mu.Unlock()

	CacheEntries.WithLabelValues(c.name).Set(0)
	return n
}

// Len returns the number of cached entries.
func (c *CachedLoader) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the loader's counters.
func (c *CachedLoader) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Refreshes: c.refreshes.Load(),
		Errors:    c.failures.Load(),
		Entries:   c.Len(),
	}
}

func (c *CachedLoader) remove(key ID) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	size := len(c.entries)
	c.mu.Unlock()

	if ok {
		CacheEntries.WithLabelValues(c.name).Set(float64(size))
	}
	return ok
}
