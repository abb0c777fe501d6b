package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func testBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func failing(ctx context.Context) error { return errUpstream }
func succeeding(ctx context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 3, Cooldown: time.Minute, HalfOpenProbes: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if b.State() != Closed {
			t.Fatalf("state before trip = %s, want CLOSED", b.State())
		}
		if err := b.Do(ctx, failing, nil); !errors.Is(err, errUpstream) {
			t.Fatalf("err = %v, want upstream error", err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %s, want OPEN", b.State())
	}

	// Open breaker rejects without invoking the operation.
	called := false
	err := b.Do(ctx, func(ctx context.Context) error { called = true; return nil }, nil)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Fatal("operation must not run while OPEN")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 3, Cooldown: time.Minute, HalfOpenProbes: 1})
	ctx := context.Background()

	_ = b.Do(ctx, failing, nil)
	_ = b.Do(ctx, failing, nil)
	_ = b.Do(ctx, succeeding, nil)
	_ = b.Do(ctx, failing, nil)
	_ = b.Do(ctx, failing, nil)

	if b.State() != Closed {
		t.Fatalf("state = %s, want CLOSED after interleaved success", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b, now := testBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute, HalfOpenProbes: 2})
	ctx := context.Background()

	_ = b.Do(ctx, failing, nil)
	if b.State() != Open {
		t.Fatalf("state = %s, want OPEN", b.State())
	}

	*now = now.Add(61 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN after cooldown", b.State())
	}

	if err := b.Do(ctx, succeeding, nil); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN after one probe", b.State())
	}
	if err := b.Do(ctx, succeeding, nil); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state = %s, want CLOSED after probes", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := testBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute, HalfOpenProbes: 1})
	ctx := context.Background()

	_ = b.Do(ctx, failing, nil)
	*now = now.Add(61 * time.Second)
	_ = b.Do(ctx, failing, nil)
	if b.State() != Open {
		t.Fatalf("state = %s, want OPEN after failed probe", b.State())
	}
}

func TestBreakerFallback(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 1, Cooldown: time.Minute, HalfOpenProbes: 1})
	ctx := context.Background()

	fallbackCause := error(nil)
	fallback := func(ctx context.Context, cause error) error {
		fallbackCause = cause
		return nil
	}

	if err := b.Do(ctx, failing, fallback); err != nil {
		t.Fatalf("Do with fallback: %v", err)
	}
	if !errors.Is(fallbackCause, errUpstream) {
		t.Fatalf("fallback cause = %v, want upstream error", fallbackCause)
	}

	// Once OPEN the fallback receives ErrOpen.
	if err := b.Do(ctx, failing, fallback); err != nil {
		t.Fatalf("Do while OPEN with fallback: %v", err)
	}
	if !errors.Is(fallbackCause, ErrOpen) {
		t.Fatalf("fallback cause = %v, want ErrOpen", fallbackCause)
	}
}
