package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript opens or advances a fixed window atomically.
// KEYS[1] window start key, KEYS[2] counter key.
// ARGV[1] now (ms), ARGV[2] window size (ms).
const incrementScript = `
local now = tonumber(ARGV[1])
local window_size = tonumber(ARGV[2])
local window_key = KEYS[1]
local counter_key = KEYS[2]

local window_start = redis.call('GET', window_key)
if not window_start or (now - tonumber(window_start)) >= window_size then
    redis.call('SET', window_key, ARGV[1], 'PX', ARGV[2])
    redis.call('SET', counter_key, 1, 'PX', ARGV[2])
    return {ARGV[1], 1}
end

local counter = redis.call('INCR', counter_key)
if redis.call('PTTL', counter_key) < 0 then
    redis.call('PEXPIRE', counter_key, ARGV[2])
end
return {window_start, counter}
`

// decrementScript refunds one request if the window is still open.
const decrementScript = `
local now = tonumber(ARGV[1])
local window_size = tonumber(ARGV[2])
local window_start = redis.call('GET', KEYS[1])
if not window_start or (now - tonumber(window_start)) >= window_size then
    return 0
end
local counter = tonumber(redis.call('GET', KEYS[2]) or '0')
if counter > 0 then
    return redis.call('DECR', KEYS[2])
end
return 0
`

// RedisStore is a WindowStore shared between processes through Redis.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	increment *redis.Script
	decrement *redis.Script
}

// NewRedisStore creates a store using client. prefix is prepended to every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		increment: redis.NewScript(incrementScript),
		decrement: redis.NewScript(decrementScript),
	}
}

// keys returns the window and counter keys. The hash tag keeps both on the
// same cluster slot.
func (s *RedisStore) keys(key string) []string {
	base := fmt.Sprintf("%s{%s}", s.prefix, key)
	return []string{base + ":window", base + ":count"}
}

// Increment implements WindowStore.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	val, err := s.increment.Run(ctx, s.client, s.keys(key), now.UnixMilli(), window.Milliseconds()).Result()
	if err != nil {
		return Window{}, fmt.Errorf("redis window increment: %w", err)
	}

	res, ok := val.([]interface{})
	if !ok || len(res) != 2 {
		return Window{}, fmt.Errorf("unexpected result from redis script: %v", val)
	}

	startMs, err := toInt64(res[0])
	if err != nil {
		return Window{}, fmt.Errorf("invalid window start: %w", err)
	}
	count, err := toInt64(res[1])
	if err != nil {
		return Window{}, fmt.Errorf("invalid window count: %w", err)
	}

	return Window{Start: time.UnixMilli(startMs), Count: count}, nil
}

// Decrement implements WindowStore.
func (s *RedisStore) Decrement(ctx context.Context, key string, window time.Duration, now time.Time) error {
	if err := s.decrement.Run(ctx, s.client, s.keys(key), now.UnixMilli(), window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis window decrement: %w", err)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case float64:
		return int64(n), nil
	default:
		return strconv.ParseInt(fmt.Sprintf("%v", v), 10, 64)
	}
}
