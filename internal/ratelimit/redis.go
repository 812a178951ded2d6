package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1]: sorted set key
// ARGV[1]: window in milliseconds
// ARGV[2]: limit
// ARGV[3]: now in milliseconds
// ARGV[4]: member id
// Returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]

local window_start = now - window
redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window)
    return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
end
return {0, retry}
`)

// Redis is a sliding-window limiter shared by every server instance.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	clock  clock.Clock
}

// NewRedis builds a limiter storing windows under prefix.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration, clk clock.Clock) *Redis {
	if clk == nil {
		clk = clock.New()
	}
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, clock: clk}
}

// Allow runs the window script atomically. On Redis errors the hit is
// allowed and the error returned so callers can log it.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	if r.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + key},
		r.window.Milliseconds(),
		r.limit,
		r.clock.Now().UnixMilli(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

// Connect opens a client and verifies it answers PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
