package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/resource-loader/pkg/loader"
)

// Backends selectable with LOADER_BACKEND.
const (
	BackendFile   = "file"
	BackendURL    = "url"
	BackendRedis  = "redis"
	BackendStatic = "static"
)

// Config holds the proxy configuration, read from the environment.
type Config struct {
	Port    string
	Backend string

	// file backend
	FileRoot    string
	ContentHash bool

	// url backend
	OriginURL      string
	UserAgent      string
	RateLimitRPS   float64
	RateLimitBurst int

	// redis backend (also used for readiness)
	RedisURL    string
	RedisPrefix string

	// static backend
	StaticFile string

	// WarmIDs are loaded into the cache at start-up
	WarmIDs []loader.ID
}

// loadConfig builds a Config from getenv and validates the chosen backend.
func loadConfig(getenv func(string) string) (Config, error) {
	env := func(key, defaultValue string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := Config{
		Port:        env("PORT", "8080"),
		Backend:     strings.ToLower(env("LOADER_BACKEND", BackendFile)),
		FileRoot:    env("FILE_ROOT", "."),
		OriginURL:   getenv("ORIGIN_URL"),
		UserAgent:   env("USER_AGENT", loader.DefaultUserAgent),
		RedisURL:    getenv("REDIS_URL"),
		RedisPrefix: env("REDIS_PREFIX", loader.DefaultRedisPrefix),
		StaticFile:  getenv("STATIC_FILE"),
	}

	var err error
	if cfg.ContentHash, err = parseBool(getenv("FILE_CONTENT_HASH")); err != nil {
		return cfg, fmt.Errorf("FILE_CONTENT_HASH: %w", err)
	}
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
	}
	cfg.RateLimitBurst = 1
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		if cfg.RateLimitBurst, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
	}
	for _, id := range strings.Split(getenv("WARM_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.WarmIDs = append(cfg.WarmIDs, loader.ID(id))
		}
	}

	switch cfg.Backend {
	case BackendFile:
	case BackendURL:
		if cfg.OriginURL == "" {
			return cfg, fmt.Errorf("ORIGIN_URL is required for the url backend")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return cfg, fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendStatic:
		if cfg.StaticFile == "" {
			return cfg, fmt.Errorf("STATIC_FILE is required for the static backend")
		}
	default:
		return cfg, fmt.Errorf("unknown LOADER_BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
