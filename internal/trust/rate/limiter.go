// Package rate implements the brute-force guard: fixed-window failure
// counters per caller and route, backed by Redis so every instance of
// the service sees the same budget.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimited is returned when a caller has exhausted its attempt budget.
var ErrLimited = errors.New("too many attempts")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("rate limiter cache unavailable")

// Config bounds failed attempts per caller and route within a window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig allows 10 failures per 300-second window.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		Window:      300 * time.Second,
	}
}

// Limiter tracks failure counters in Redis. Counters only grow on
// failed attempts; a success clears the budget.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 300 * time.Second
	}
	return &Limiter{redis: rdb, config: cfg}
}

func key(caller, route string) string {
	return "bf:" + route + ":" + caller
}

// Check returns ErrLimited with the remaining cooldown when the caller
// has no budget left on the route. Within budget it returns (0, nil).
func (l *Limiter) Check(ctx context.Context, caller, route string) (time.Duration, error) {
	k := key(caller, route)
	count, err := l.redis.Get(ctx, k).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < int64(l.config.MaxAttempts) {
		return 0, nil
	}

	retryAfter, err := l.redis.TTL(ctx, k).Result()
	if err != nil || retryAfter < 0 {
		retryAfter = l.config.Window
	}
	return retryAfter, ErrLimited
}

// Fail records one failed attempt. The first failure in a window starts
// the cooldown clock; INCR plus NX expiry keeps the window fixed.
func (l *Limiter) Fail(ctx context.Context, caller, route string) error {
	k := key(caller, route)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Clear wipes the counter after a successful attempt.
func (l *Limiter) Clear(ctx context.Context, caller, route string) error {
	if err := l.redis.Del(ctx, key(caller, route)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
