/**
 * @description
 * Distributed fixed-window rate limiting over Redis for the per-minute API
 * key budget. The limiter owns the whole decision: it counts the attempt and
 * answers allow/deny, so callers never compare raw counts against limits. A
 * nil limiter, nil client, or non-positive limit disables the window; the
 * day-scoped counter in the database remains authoritative.
 */

package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errUnexpectedLimiterReply = errors.New("unexpected rate limiter reply shape")

// One atomic INCR per attempt; the key expires with the window so idle
// subjects cost nothing.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateDecision is the limiter's verdict on one attempt. RetryAfterSeconds is
// only meaningful when the attempt was denied.
type RateDecision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

var decisionAllowed = RateDecision{Allowed: true}

// RedisRateLimiter shares one fixed window per (scope, subject) across all
// service instances.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "payvault:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// Allow counts one attempt against the subject's current window and decides
// it. A disabled limiter always allows.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateDecision, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return decisionAllowed, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return decisionAllowed, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := r.prefix + ":" + scope + ":" + subject
	count, ttlMs, err := runFixedWindow(ctx, r.client, key, windowMs)
	if err != nil {
		return decisionAllowed, err
	}

	decision := RateDecision{Allowed: count <= limit}
	if remaining := limit - count; remaining > 0 {
		decision.Remaining = remaining
	}
	if !decision.Allowed {
		decision.RetryAfterSeconds = int(math.Ceil(float64(ttlMs) / 1000.0))
		if decision.RetryAfterSeconds < 1 {
			decision.RetryAfterSeconds = 1
		}
	}
	return decision, nil
}

func runFixedWindow(ctx context.Context, client redis.UniversalClient, key string, windowMs int64) (count int, ttlMs int64, err error) {
	values, err := fixedWindowScript.Run(ctx, client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) != 2 {
		return 0, 0, errUnexpectedLimiterReply
	}
	count = int(values[0])
	ttlMs = values[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	return count, ttlMs, nil
}
