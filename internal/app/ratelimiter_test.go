package app

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowWhenDisabled(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		limiter *RedisRateLimiter
		limit   int
		window  time.Duration
	}{
		{"nil limiter", nil, 10, time.Minute},
		{"nil client", NewRedisRateLimiter(nil, "test"), 10, time.Minute},
		{"zero limit", NewRedisRateLimiter(nil, "test"), 0, time.Minute},
		{"negative limit", NewRedisRateLimiter(nil, "test"), -1, time.Minute},
		{"zero window", NewRedisRateLimiter(nil, "test"), 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := tt.limiter.Allow(ctx, "api_key_minute", "subject", tt.limit, tt.window)
			if err != nil {
				t.Fatalf("Allow returned error: %v", err)
			}
			if !decision.Allowed {
				t.Fatal("disabled limiter must allow")
			}
			if decision.RetryAfterSeconds != 0 {
				t.Fatalf("disabled limiter set retry-after %d", decision.RetryAfterSeconds)
			}
		})
	}
}

func TestNewRedisRateLimiterNormalizesPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"empty falls back to default", "", "payvault:rate_limit"},
		{"whitespace falls back to default", "   ", "payvault:rate_limit"},
		{"trailing colon trimmed", "svc:limits:", "svc:limits"},
		{"kept verbatim otherwise", "svc:limits", "svc:limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewRedisRateLimiter(nil, tt.prefix)
			if limiter.prefix != tt.want {
				t.Fatalf("prefix = %q, want %q", limiter.prefix, tt.want)
			}
		})
	}
}
