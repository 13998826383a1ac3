// Package loader provides pluggable resource loaders sharing one contract:
// load content by identifier, and check whether a previously obtained
// freshness token is still valid.
//
// Variants:
//
//   - FileLoader   - local files; tokens carry mtime, size and an xxh3 hash
//   - URLLoader    - HTTP(S); freshness via If-None-Match / If-Modified-Since
//   - StaticLoader - fixed in-memory set; always fresh
//   - RedisLoader  - redis hashes with a content version
//   - CachedLoader - memoizes any other Loader
//   - Mux          - dispatches by identifier scheme
//
// # Basic Usage
//
//	files := loader.NewFileLoader("/srv/templates")
//	cached := loader.NewCachedLoader(files, loader.WithName("templates"))
//
//	res, err := cached.Load(ctx, "index.html")
//	if errors.Is(err, loader.ErrNotFound) {
//		// no such template
//	}
//
// The cached loader asks the wrapped loader IsFresh on every hit and only
// reloads when the token is stale. Errors from the wrapped loader are
// returned unchanged; ErrNotFound also purges the cached entry.
//
// # Errors
//
// Every loader reports failures as *Error with one of the kinds
// ErrNotFound, ErrIO, ErrTransport or ErrStalenessCheck, testable with
// errors.Is.
//
// # Metrics
//
//   - loader_cache_hits_total{cache}
//   - loader_cache_misses_total{cache}
//   - loader_cache_refreshes_total{cache}
//   - loader_cache_entries{cache}
//   - loader_errors_total{loader, kind}
//   - loader_url_requests_total{op, status}
//   - loader_url_304_responses_total
package loader
