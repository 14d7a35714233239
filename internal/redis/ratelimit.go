package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{user_id}:commands - CommandWindow TTL

type RateLimitConfig struct {
	CommandLimit  int           // Max commands per window
	CommandWindow time.Duration // Command rate limit window
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		CommandLimit:  60,
		CommandWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

func commandKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s:commands", userID)
}

// AllowCommand checks and consumes one command of userID's quota.
func (r *RateLimiter) AllowCommand(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, commandKey(userID), r.config.CommandLimit, r.config.CommandWindow)
}

var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// checkLimit increments and checks a fixed-window counter atomically.
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed := resultSlice[0].(int64) == 1
	remaining := int(resultSlice[1].(int64))
	resetIn := time.Duration(resultSlice[2].(int64)) * time.Second

	return &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetIn:   resetIn,
		Limit:     limit,
	}, nil
}

// GetCommandStatus returns the current state without consuming.
func (r *RateLimiter) GetCommandStatus(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := commandKey(userID)
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	_, _ = pipe.Exec(ctx)

	current := 0
	if val, err := getCmd.Int(); err == nil {
		current = val
	}

	ttl := r.config.CommandWindow
	if ttlVal := ttlCmd.Val(); ttlVal > 0 {
		ttl = ttlVal
	}

	remaining := r.config.CommandLimit - current
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   current < r.config.CommandLimit,
		Remaining: remaining,
		ResetIn:   ttl,
		Limit:     r.config.CommandLimit,
	}, nil
}

// ResetUser clears userID's counter (admin operation).
func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	return r.client.Del(ctx, commandKey(userID)).Err()
}
