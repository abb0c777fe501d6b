// Package dedupe implements idempotency guards for sensitive mutating
// requests. A request key is claimed with a single SET-NX; the winner
// proceeds, every concurrent or repeated holder of the same key is a
// duplicate.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicate is returned when the key was already claimed inside its
// TTL window.
var ErrDuplicate = errors.New("duplicate request")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("dedupe cache unavailable")

// DefaultTTL is how long a claimed key blocks replays.
const DefaultTTL = 60 * time.Second

// Guard claims idempotency keys in Redis.
type Guard struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func New(rdb redis.UniversalClient, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{redis: rdb, ttl: ttl}
}

// Reserve claims key for the guard's TTL. Exactly one concurrent caller
// wins; the rest get ErrDuplicate.
func (g *Guard) Reserve(ctx context.Context, key string) error {
	ok, err := g.redis.SetNX(ctx, "idem:"+key, 1, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Release frees the key early, letting a client retry after a failure
// without waiting out the TTL.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.redis.Del(ctx, "idem:"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
