package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/resource-loader/pkg/loader"
	"github.com/Sternrassler/resource-loader/pkg/metrics"
)

// newRouter wires the proxy routes around cached.
func newRouter(cached *loader.CachedLoader, redisClient *redis.Client, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /r/{id...}", resourceHandler(cached, logger))
	mux.HandleFunc("DELETE /r/{id...}", invalidateHandler(cached))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler pings redis when the proxy depends on it.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func requestID(r *http.Request) loader.ID {
	id := r.PathValue("id")
	if r.URL.RawQuery != "" {
		id += "?" + r.URL.RawQuery
	}
	return loader.ID(id)
}

// resourceHandler serves the content for /r/{id...} through the cache.
func resourceHandler(cached *loader.CachedLoader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		res, err := cached.Load(ctx, id)
		if err != nil {
			status := statusFor(err)
			event := logger.Warn()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.Err(err).Str("id", string(id)).Int("status_code", status).Msg("Resource load failed")
			http.Error(w, http.StatusText(status), status)
			return
		}

		etag := etagFor(res.Token)
		if etag != "" {
			w.Header().Set("ETag", etag)
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		if !res.Token.LastModified.IsZero() {
			w.Header().Set("Last-Modified", res.Token.LastModified.UTC().Format(http.TimeFormat))
		}

		contentType := mime.TypeByExtension(path.Ext(r.PathValue("id")))
		if contentType == "" {
			contentType = http.DetectContentType(res.Content)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Content); err != nil {
			logger.Debug().Err(err).Str("id", string(id)).Msg("Failed to write response")
		}
	}
}

// invalidateHandler drops the cache entry for /r/{id...}.
func invalidateHandler(cached *loader.CachedLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cached.Invalidate(requestID(r)) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "not cached", http.StatusNotFound)
	}
}

// statusFor maps loader error kinds to HTTP statuses. A deadline wins over
// the transport kind it is usually wrapped in.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loader.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, loader.ErrTransport), errors.Is(err, loader.ErrStalenessCheck):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// etagFor prefers the origin's ETag and falls back to the content hash.
func etagFor(token loader.Token) string {
	if token.ETag != "" {
		return token.ETag
	}
	if token.Hash != 0 {
		return fmt.Sprintf(`"%x"`, token.Hash)
	}
	return ""
}
