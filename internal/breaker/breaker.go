// Package breaker implements a three-state circuit breaker for calls to
// flaky dependencies. CLOSED passes calls through and counts failures;
// OPEN rejects immediately until a cooldown elapses; HALF_OPEN lets a
// bounded number of probes through and closes again only when they
// succeed.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// ErrOpen is returned when the breaker rejects a call without invoking
// the operation.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes one breaker.
type Config struct {
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays OPEN before probing.
	Cooldown time.Duration
	// HalfOpenProbes successful probes close the breaker again.
	HalfOpenProbes int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   2,
	}
}

// Breaker guards one dependency. Safe for concurrent use.
type Breaker struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   int
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{config: cfg, now: time.Now}
}

// State reports the breaker's current position, advancing OPEN to
// HALF_OPEN when the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Do runs op through the breaker. When the breaker rejects the call or
// op fails and a fallback is given, the fallback's result is returned
// instead; a nil fallback propagates the error.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	if err := b.acquire(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}

	err := op(ctx)
	b.record(err == nil)
	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// acquire decides whether a call may proceed.
func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()

	switch b.state {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.probing >= b.config.HalfOpenProbes {
			return ErrOpen
		}
		b.probing++
		return nil
	default:
		return nil
	}
}

// record feeds one call outcome back into the state machine.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing--
		if !success {
			b.tripLocked()
			return
		}
		b.successes++
		if b.successes >= b.config.HalfOpenProbes {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.probing = 0
		}
	case Closed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.tripLocked()
		}
	}
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probing = 0
}

func (b *Breaker) advanceLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		b.state = HalfOpen
		b.successes = 0
		b.probing = 0
	}
}
