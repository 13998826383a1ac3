package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/Sternrassler/resource-loader/pkg/ratelimit"
)

// DefaultUserAgent is sent when URLConfig.UserAgent is empty.
const DefaultUserAgent = "resource-loader/0.1"

// URLConfig holds the URL loader configuration.
type URLConfig struct {
	// BaseURL resolves relative identifiers. Optional when every identifier
	// is an absolute http(s) URL.
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// HTTPClient overrides the default client (Timeout is then ignored)
	HTTPClient *http.Client

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry applies to network errors, 429 and 5xx responses
	Retry RetryConfig

	// Limiter gates requests per host; nil disables limiting
	Limiter *ratelimit.Limiter

	Logger zerolog.Logger
}

// DefaultURLConfig returns a configuration with sane timeouts and retries.
func DefaultURLConfig(baseURL string) URLConfig {
	return URLConfig{
		BaseURL:   baseURL,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
		Logger:    zerolog.Nop(),
	}
}

// URLLoader loads resources over HTTP(S). Freshness is checked with
// conditional requests (If-None-Match, If-Modified-Since).
type URLLoader struct {
	base    *url.URL
	client  *http.Client
	cfg     URLConfig
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// NewURLLoader creates a URL loader.
func NewURLLoader(cfg URLConfig) (*URLLoader, error) {
	l := &URLLoader{
		cfg:     cfg,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
	}

	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if base.Scheme != "http" && base.Scheme != "https" {
			return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
		}
		l.base = base
	}

	if l.cfg.UserAgent == "" {
		l.cfg.UserAgent = DefaultUserAgent
	}
	if l.cfg.Retry.MaxAttempts < 1 {
		l.cfg.Retry = DefaultRetryConfig()
	}

	l.client = cfg.HTTPClient
	if l.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		l.client = &http.Client{Timeout: timeout}
	}

	return l, nil
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// Load fetches id with a GET request.
func (l *URLLoader) Load(ctx context.Context, id ID) (*Resource, error) {
	u, err := l.resolve(id)
	if err != nil {
		recordError("url", err)
		return nil, err
	}

	resp, err := l.fetch(ctx, "load", u, nil)
	if err != nil {
		err = transportError("load", id, err)
		recordError("url", err)
		return nil, err
	}

	switch {
	case resp.status >= 200 && resp.status < 300:
	case resp.status == http.StatusNotFound || resp.status == http.StatusGone:
		err = notFound("load", id, fmt.Errorf("status %d", resp.status))
		recordError("url", err)
		return nil, err
	default:
		err = transportError("load", id, fmt.Errorf("unexpected status %d", resp.status))
		recordError("url", err)
		return nil, err
	}

	token := Token{
		ETag: resp.header.Get("ETag"),
		Size: int64(len(resp.body)),
		Hash: xxh3.Hash(resp.body),
	}
	if lastMod := resp.header.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			token.LastModified = t
		}
	}

	l.logger.Debug().
		Str("id", string(id)).
		Str("url", u.String()).
		Str("etag", token.ETag).
		Int("size", len(resp.body)).
		Msg("URL loaded")

	return &Resource{
		ID:       id,
		Content:  resp.body,
		Token:    token,
		LoadedAt: time.Now(),
	}, nil
}

// IsFresh sends a conditional request for id. Tokens without an ETag or
// Last-Modified cannot be validated and are reported stale.
func (l *URLLoader) IsFresh(ctx context.Context, id ID, token Token) (bool, error) {
	if !token.Conditional() {
		return false, nil
	}

	u, err := l.resolve(id)
	if err != nil {
		return false, err
	}

	resp, err := l.fetch(ctx, "is_fresh", u, &token)
	if err != nil {
		err = stalenessError(id, transportError("is_fresh", id, err))
		recordError("url", err)
		return false, err
	}

	switch {
	case resp.status == http.StatusNotModified:
		ConditionalRequests.Inc()
		l.logger.Debug().Str("id", string(id)).Msg("304 Not Modified")
		return true, nil
	case resp.status >= 200 && resp.status < 300:
		etag := resp.header.Get("ETag")
		return etag != "" && etag == token.ETag, nil
	case resp.status == http.StatusNotFound || resp.status == http.StatusGone:
		err = notFound("is_fresh", id, fmt.Errorf("status %d", resp.status))
	default:
		err = stalenessError(id, transportError("is_fresh", id, fmt.Errorf("unexpected status %d", resp.status)))
	}
	recordError("url", err)
	return false, err
}

// resolve maps id to an absolute URL.
func (l *URLLoader) resolve(id ID) (*url.URL, error) {
	switch id.Scheme() {
	case "http", "https":
		u, err := url.Parse(string(id))
		if err != nil {
			return nil, notFound("load", id, err)
		}
		return u, nil
	case "":
	default:
		return nil, notFound("load", id, fmt.Errorf("unsupported scheme %q", id.Scheme()))
	}

	if l.base == nil {
		return nil, notFound("load", id, fmt.Errorf("relative identifier without base url"))
	}
	ref, err := url.Parse(string(id))
	if err != nil {
		return nil, notFound("load", id, err)
	}
	return l.base.ResolveReference(ref), nil
}

// fetch performs a GET with retries. cond adds conditional request headers.
func (l *URLLoader) fetch(ctx context.Context, op string, u *url.URL, cond *Token) (*response, error) {
	var out *response

	err := retryWithBackoff(ctx, l.cfg.Retry, l.logger, func() error {
		if err := l.limiter.Wait(ctx, u.Host); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", l.cfg.UserAgent)
		req.Header.Set("Accept", "*/*")
		if cond != nil {
			addConditionalHeaders(req, *cond)
		}

		start := time.Now()
		resp, err := l.client.Do(req)
		urlRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			urlRequestsTotal.WithLabelValues(op, "network_error").Inc()
			return &retryableError{class: ErrorClassNetwork, err: err}
		}
		defer resp.Body.Close()

		urlRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		l.limiter.UpdateFromResponse(u.Host, resp.StatusCode, resp.Header)

		if class := classifyStatus(resp.StatusCode); shouldRetry(class) {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &retryableError{class: class, err: fmt.Errorf("status %s", resp.Status)}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &retryableError{class: ErrorClassNetwork, err: fmt.Errorf("read response body: %w", err)}
		}

		out = &response{status: resp.StatusCode, header: resp.Header, body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// classifyStatus categorizes an HTTP status for retry decisions.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// addConditionalHeaders prefers If-None-Match over If-Modified-Since.
func addConditionalHeaders(req *http.Request, token Token) {
	if token.ETag != "" {
		req.Header.Set("If-None-Match", token.ETag)
	} else if !token.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", token.LastModified.UTC().Format(http.TimeFormat))
	}
}
