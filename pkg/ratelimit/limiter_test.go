package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNilLimiterNeverBlocks(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("Wait on nil limiter returned %v", err)
	}
	if d := l.UpdateFromResponse("example.com", 429, http.Header{"Retry-After": []string{"10"}}); d != 0 {
		t.Errorf("UpdateFromResponse on nil limiter = %v, want 0", d)
	}
}

func TestLimiter_Wait_Unlimited(t *testing.T) {
	l := NewLimiter(0, 1, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx, "example.com"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("unlimited limiter took %v for 100 requests", elapsed)
	}
}

func TestLimiter_Wait_ContextCancelled(t *testing.T) {
	l := NewLimiter(0.001, 1, zerolog.Nop())

	// First request consumes the only token
	if err := l.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "example.com"); err == nil {
		t.Error("expected error when bucket is empty and context expires")
	}
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	l := NewLimiter(0.001, 1, zerolog.Nop())
	ctx := context.Background()

	if err := l.Wait(ctx, "a.example.com"); err != nil {
		t.Fatalf("Wait a: %v", err)
	}
	if err := l.Wait(ctx, "b.example.com"); err != nil {
		t.Fatalf("Wait b should not be throttled by host a: %v", err)
	}
}

func TestLimiter_UpdateFromResponse(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		want       time.Duration
	}{
		{name: "429 with seconds", statusCode: 429, retryAfter: "30", want: 30 * time.Second},
		{name: "503 with http date", statusCode: 503, retryAfter: now.Add(2 * time.Minute).Format(http.TimeFormat), want: 2 * time.Minute},
		{name: "capped", statusCode: 429, retryAfter: "3600", want: MaxBackoff},
		{name: "200 ignored", statusCode: 200, retryAfter: "30", want: 0},
		{name: "missing header", statusCode: 429, retryAfter: "", want: 0},
		{name: "garbage header", statusCode: 429, retryAfter: "soon", want: 0},
		{name: "negative seconds", statusCode: 429, retryAfter: "-5", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(0, 1, zerolog.Nop())
			l.now = func() time.Time { return now }

			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}

			got := l.UpdateFromResponse("example.com", tt.statusCode, headers)
			if got != tt.want {
				t.Errorf("UpdateFromResponse() = %v, want %v", got, tt.want)
			}

			until, blocked := l.BlockedUntil("example.com")
			if (tt.want > 0) != blocked {
				t.Errorf("BlockedUntil blocked = %v, want %v", blocked, tt.want > 0)
			}
			if blocked && !until.Equal(now.Add(tt.want)) {
				t.Errorf("BlockedUntil = %v, want %v", until, now.Add(tt.want))
			}
		})
	}
}

func TestLimiter_Wait_HonoursBackoff(t *testing.T) {
	l := NewLimiter(0, 1, zerolog.Nop())
	l.UpdateFromResponse("example.com", 429, http.Header{"Retry-After": []string{"60"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait during backoff = %v, want deadline exceeded", err)
	}

	// Other hosts are unaffected
	if err := l.Wait(context.Background(), "other.example.com"); err != nil {
		t.Errorf("Wait for other host: %v", err)
	}
}
