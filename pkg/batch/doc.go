// Package batch loads many resource identifiers in parallel through any
// loader.Loader, typically to warm a CachedLoader at start-up.
//
// Example usage:
//
//	cached := loader.NewCachedLoader(files)
//	fetcher := batch.NewFetcher(cached, batch.DefaultConfig())
//	results, err := fetcher.FetchAll(ctx, []loader.ID{"a.html", "b.html"})
//
// The fetcher:
//   - Bounds concurrency (default 10 in-flight loads)
//   - Applies a per-identifier timeout
//   - Returns one Result per identifier, in input order
//   - Records per-identifier errors without aborting the batch
package batch
