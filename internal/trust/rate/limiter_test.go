package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, _ := testLimiter(t, Config{MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Check(ctx, "1.2.3.4", "login"); err != nil {
			t.Fatalf("Check before exhaustion: %v", err)
		}
		if err := l.Fail(ctx, "1.2.3.4", "login"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}

	retryAfter, err := l.Check(ctx, "1.2.3.4", "login")
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("err = %v, want ErrLimited", err)
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}

func TestLimiterIsolatesCallersAndRoutes(t *testing.T) {
	l, _ := testLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Fail(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := l.Check(ctx, "1.2.3.4", "login"); !errors.Is(err, ErrLimited) {
		t.Fatalf("same caller and route should be limited, got %v", err)
	}
	if _, err := l.Check(ctx, "5.6.7.8", "login"); err != nil {
		t.Fatalf("other caller should be clean, got %v", err)
	}
	if _, err := l.Check(ctx, "1.2.3.4", "sudo"); err != nil {
		t.Fatalf("other route should be clean, got %v", err)
	}
}

func TestLimiterClearRestoresBudget(t *testing.T) {
	l, _ := testLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Fail(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := l.Clear(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := l.Check(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Check after clear: %v", err)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr := testLimiter(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if err := l.Fail(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	mr.FastForward(61 * time.Second)
	if _, err := l.Check(ctx, "1.2.3.4", "login"); err != nil {
		t.Fatalf("Check after window: %v", err)
	}
}
