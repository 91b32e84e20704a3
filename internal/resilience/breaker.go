// Package resilience provides the circuit breaker and error classification
// used around external AI service calls.
//
// The coach services each pair a primary LLM-backed implementation with a
// deterministic in-process fallback. A [Breaker] guards the primary: once it
// trips, calls short-circuit to the fallback without paying the upstream
// timeout, and periodic probes let the primary recover.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cool-down has not yet elapsed. It is classified as unavailable.
var ErrOpen = errors.New("resilience: circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed is the normal state — calls are forwarded.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker tripped on consecutive failures; calls
	// fail fast with [ErrOpen] until the cool-down elapses.
	BreakerOpen

	// BreakerProbing allows a limited number of trial calls after the
	// cool-down; success closes the breaker, failure re-opens it.
	BreakerProbing
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults.
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// TripAfter is the number of consecutive failures before the breaker
	// opens. Default: 3.
	TripAfter int

	// CoolDown is how long the breaker stays open before probing.
	// Default: 30s.
	CoolDown time.Duration

	// ProbeBudget is how many trial calls the probing state permits.
	// Default: 2.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker guarding one upstream service.
type Breaker struct {
	name        string
	tripAfter   int
	coolDown    time.Duration
	probeBudget int

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		coolDown:    cfg.CoolDown,
		probeBudget: cfg.ProbeBudget,
	}
}

// Do runs fn if the breaker allows it, recording the outcome. In the open
// state it returns [ErrOpen] without calling fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == BreakerProbing || b.failures >= b.tripAfter {
			if b.state != BreakerOpen {
				slog.Warn("circuit breaker opened", "name", b.name, "failures", b.failures)
			}
			b.state = BreakerOpen
			b.openedAt = time.Now()
		}
		return err
	}

	if b.state == BreakerProbing {
		slog.Info("circuit breaker closed after successful probe", "name", b.name)
	}
	b.state = BreakerClosed
	b.failures = 0
	return nil
}

// admit decides whether a call may proceed, performing the open→probing
// transition when the cool-down has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.coolDown {
			return ErrOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		slog.Info("circuit breaker probing", "name", b.name)
	case BreakerProbing:
		if b.probes >= b.probeBudget {
			return ErrOpen
		}
	}
	if b.state == BreakerProbing {
		b.probes++
	}
	return nil
}

// State returns the current [BreakerState]. An elapsed cool-down is reported
// as [BreakerProbing] even though the transition happens on the next call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerProbing
	}
	return b.state
}
