package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/resource-loader/pkg/batch"
	"github.com/Sternrassler/resource-loader/pkg/loader"
	"github.com/Sternrassler/resource-loader/pkg/logging"
	"github.com/Sternrassler/resource-loader/pkg/ratelimit"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	logger := logging.Setup(logging.ConfigFromEnv(os.Getenv))

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis")
	}

	backend, err := newBackend(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to create loader")
	}

	cached := loader.NewCachedLoader(backend,
		loader.WithName(cfg.Backend),
		loader.WithLogger(logging.NewLogger("cache")),
	)

	if len(cfg.WarmIDs) > 0 {
		warm(ctx, cached, cfg.WarmIDs, logger)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cached, redisClient, logging.NewLogger("proxy")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("backend", cfg.Backend).
		Msg("Starting loader proxy")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}

	stats := cached.Stats()
	logger.Info().
		Uint64("hits", stats.Hits).
		Uint64("misses", stats.Misses).
		Uint64("refreshes", stats.Refreshes).
		Msg("Loader proxy stopped")
}

// connectRedis returns nil when no redis URL is configured. Both redis://
// URLs and plain host:port addresses are accepted.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// newBackend builds the uncached loader selected by cfg.Backend.
func newBackend(cfg Config, redisClient *redis.Client, logger zerolog.Logger) (loader.Loader, error) {
	switch cfg.Backend {
	case BackendFile:
		opts := []loader.FileOption{loader.WithFileLogger(logging.NewLogger("file"))}
		if cfg.ContentHash {
			opts = append(opts, loader.WithContentHash())
		}
		return loader.NewFileLoader(cfg.FileRoot, opts...), nil

	case BackendURL:
		urlCfg := loader.DefaultURLConfig(cfg.OriginURL)
		urlCfg.UserAgent = cfg.UserAgent
		urlCfg.Logger = logging.NewLogger("url")
		urlCfg.Limiter = ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logging.NewLogger("ratelimit"))
		return loader.NewURLLoader(urlCfg)

	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis backend needs a redis client")
		}
		return loader.NewRedisLoader(redisClient, cfg.RedisPrefix), nil

	case BackendStatic:
		f, err := os.Open(cfg.StaticFile)
		if err != nil {
			return nil, fmt.Errorf("open static file: %w", err)
		}
		defer f.Close()
		static, err := loader.NewStaticLoaderFromYAML(f)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("resources", len(static.IDs())).Msg("Loaded static resources")
		return static, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// warm loads ids into the cache before serving. Failures are logged only.
func warm(ctx context.Context, cached *loader.CachedLoader, ids []loader.ID, logger zerolog.Logger) {
	bcfg := batch.DefaultConfig()
	bcfg.Logger = logging.NewLogger("warmup")

	results, err := batch.NewFetcher(cached, bcfg).FetchAll(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache warm-up incomplete")
		return
	}
	logger.Info().Int("resources", len(results)).Msg("Cache warmed")
}
