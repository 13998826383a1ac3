package loader

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/resource-loader/internal/testutil"
	"github.com/Sternrassler/resource-loader/pkg/ratelimit"
)

func newTestURLLoader(t *testing.T, origin *testutil.MockOrigin) *URLLoader {
	t.Helper()
	cfg := DefaultURLConfig(origin.URL())
	cfg.UserAgent = "loader-test/1.0"
	cfg.Retry = RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	l, err := NewURLLoader(cfg)
	if err != nil {
		t.Fatalf("NewURLLoader failed: %v", err)
	}
	return l
}

func TestNewURLLoader_InvalidBase(t *testing.T) {
	tests := []string{"ftp://example.com", "://bad", "relative/path"}
	for _, base := range tests {
		if _, err := NewURLLoader(DefaultURLConfig(base)); err == nil {
			t.Errorf("NewURLLoader(%q) should fail", base)
		}
	}
}

func TestURLLoader_Load(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	etag := origin.SetDocument("/docs/a.txt", "alpha")

	l := newTestURLLoader(t, origin)
	ctx := context.Background()

	res, err := l.Load(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(res.Content) != "alpha" {
		t.Errorf("Content = %q, want alpha", res.Content)
	}
	if res.Token.ETag != etag {
		t.Errorf("ETag = %q, want %q", res.Token.ETag, etag)
	}
	if res.Token.LastModified.IsZero() {
		t.Error("LastModified should be parsed from the response")
	}
	if got := origin.LastRequestHeader.Get("User-Agent"); got != "loader-test/1.0" {
		t.Errorf("User-Agent = %q, want loader-test/1.0", got)
	}

	// Absolute identifiers bypass the base URL
	res, err = l.Load(ctx, ID(origin.URL()+"/docs/a.txt"))
	if err != nil {
		t.Fatalf("Load absolute failed: %v", err)
	}
	if string(res.Content) != "alpha" {
		t.Errorf("Content = %q, want alpha", res.Content)
	}
}

func TestURLLoader_Load_Errors(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/gone", testutil.MockResponse{StatusCode: http.StatusGone})
	origin.SetResponse("/forbidden", testutil.MockResponse{StatusCode: http.StatusForbidden})
	origin.SetResponse("/broken", testutil.NewServerErrorResponse())

	l := newTestURLLoader(t, origin)
	ctx := context.Background()

	tests := []struct {
		name      string
		id        ID
		wantErr   error
		wantCalls int
	}{
		{name: "404", id: "/missing", wantErr: ErrNotFound, wantCalls: 1},
		{name: "410", id: "/gone", wantErr: ErrNotFound, wantCalls: 1},
		{name: "403 not retried", id: "/forbidden", wantErr: ErrTransport, wantCalls: 1},
		{name: "500 retried", id: "/broken", wantErr: ErrTransport, wantCalls: 3},
		{name: "unsupported scheme", id: "ftp://example.com/x", wantErr: ErrNotFound, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin.Reset()
			_, err := l.Load(ctx, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load(%s) error = %v, want %v", tt.id, err, tt.wantErr)
			}
			if got := origin.GetRequestCount(); got != tt.wantCalls {
				t.Errorf("requests = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestURLLoader_Load_RetryRecovers(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetDocument("/flaky", "eventually")
	origin.FailNext("/flaky", 2)

	l := newTestURLLoader(t, origin)

	res, err := l.Load(context.Background(), "/flaky")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(res.Content) != "eventually" {
		t.Errorf("Content = %q, want eventually", res.Content)
	}
	if got := origin.GetPathCount("/flaky"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestURLLoader_IsFresh_ETag(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetDocument("/a", "v1")

	l := newTestURLLoader(t, origin)
	ctx := context.Background()

	res, err := l.Load(ctx, "/a")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	fresh, err := l.IsFresh(ctx, "/a", res.Token)
	if err != nil || !fresh {
		t.Fatalf("IsFresh() = %v, %v; want true, nil", fresh, err)
	}
	if got := origin.LastRequestHeader.Get("If-None-Match"); got != res.Token.ETag {
		t.Errorf("If-None-Match = %q, want %q", got, res.Token.ETag)
	}
	if origin.GetNotModifiedCount() != 1 {
		t.Errorf("304 responses = %d, want 1", origin.GetNotModifiedCount())
	}

	origin.SetDocument("/a", "v2")
	fresh, err = l.IsFresh(ctx, "/a", res.Token)
	if err != nil || fresh {
		t.Errorf("IsFresh() after change = %v, %v; want false, nil", fresh, err)
	}

	origin.DeleteDocument("/a")
	if _, err := l.IsFresh(ctx, "/a", res.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("IsFresh() after delete error = %v, want ErrNotFound", err)
	}
}

func TestURLLoader_IsFresh_LastModified(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	modified := time.Now().Add(-time.Hour).Truncate(time.Second)
	origin.SetDocumentLastModified("/lm", "v1", modified)

	l := newTestURLLoader(t, origin)
	ctx := context.Background()

	res, err := l.Load(ctx, "/lm")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Token.ETag != "" {
		t.Fatalf("unexpected ETag %q", res.Token.ETag)
	}

	fresh, err := l.IsFresh(ctx, "/lm", res.Token)
	if err != nil || !fresh {
		t.Fatalf("IsFresh() = %v, %v; want true, nil", fresh, err)
	}
	if origin.LastRequestHeader.Get("If-Modified-Since") == "" {
		t.Error("If-Modified-Since header not sent")
	}

	origin.SetDocumentLastModified("/lm", "v2", modified.Add(time.Minute))
	fresh, err = l.IsFresh(ctx, "/lm", res.Token)
	if err != nil || fresh {
		t.Errorf("IsFresh() after change = %v, %v; want false, nil", fresh, err)
	}
}

func TestURLLoader_IsFresh_NoValidators(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	l := newTestURLLoader(t, origin)

	fresh, err := l.IsFresh(context.Background(), "/a", Token{Hash: 42})
	if err != nil || fresh {
		t.Errorf("IsFresh() = %v, %v; want false, nil", fresh, err)
	}
	if origin.GetRequestCount() != 0 {
		t.Error("no request expected for a token without validators")
	}
}

func TestURLLoader_IsFresh_ServerError(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/down", testutil.NewServerErrorResponse())
	l := newTestURLLoader(t, origin)

	_, err := l.IsFresh(context.Background(), "/down", Token{ETag: `"x"`})
	if !errors.Is(err, ErrStalenessCheck) {
		t.Errorf("IsFresh() error = %v, want ErrStalenessCheck", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("IsFresh() error = %v, should wrap ErrTransport", err)
	}
}

func TestURLLoader_RateLimitBackoff(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/limited", testutil.NewRateLimitResponse("120"))

	limiter := ratelimit.NewLimiter(0, 1, zerolog.Nop())
	cfg := DefaultURLConfig(origin.URL())
	cfg.Limiter = limiter
	cfg.Retry = RetryConfig{MaxAttempts: 1}
	l, err := NewURLLoader(cfg)
	if err != nil {
		t.Fatalf("NewURLLoader failed: %v", err)
	}

	if _, err := l.Load(context.Background(), "/limited"); !errors.Is(err, ErrTransport) {
		t.Fatalf("Load error = %v, want ErrTransport", err)
	}

	host := origin.URL()[len("http://"):]
	if _, blocked := limiter.BlockedUntil(host); !blocked {
		t.Error("limiter should back off the host after Retry-After")
	}
}

func TestScenario_CachedURL(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetDocument("/page", "v1")

	cached := NewCachedLoader(newTestURLLoader(t, origin))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := cached.Load(ctx, "/page")
		if err != nil {
			t.Fatalf("Load %d failed: %v", i, err)
		}
		if string(res.Content) != "v1" {
			t.Errorf("Load %d = %q, want v1", i, res.Content)
		}
	}
	if got := origin.GetNotModifiedCount(); got != 2 {
		t.Errorf("304 responses = %d, want 2", got)
	}

	origin.SetDocument("/page", "v2")
	res, err := cached.Load(ctx, "/page")
	if err != nil {
		t.Fatalf("Load after change failed: %v", err)
	}
	if string(res.Content) != "v2" {
		t.Errorf("Content = %q, want v2", res.Content)
	}
}
