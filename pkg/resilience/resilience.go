// Package resilience provides fault-tolerance primitives for store access
// and batch processing.
package resilience

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// CircuitBreaker rejects calls for a cooldown period after too many
// consecutive failures.
type CircuitBreaker struct {
	mu sync.Mutex

	// Configuration
	maxFailures int
	cooldown    time.Duration

	// State
	state       CircuitState
	failures    int
	lastTripped time.Time
	tripReason  string

	// Callbacks
	OnTrip  func(reason string)
	OnReset func()
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting requests
	CircuitHalfOpen                     // Testing if recovered
)

// String returns the state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: 5,
		cooldown:    30 * time.Second,
	}
}

// WithMaxFailures sets the consecutive failures that trip the breaker.
func (cb *CircuitBreaker) WithMaxFailures(n int) *CircuitBreaker {
	cb.maxFailures = n
	return cb
}

// WithCooldown sets the cooldown period after tripping.
func (cb *CircuitBreaker) WithCooldown(d time.Duration) *CircuitBreaker {
	cb.cooldown = d
	return cb
}

// Allow reports whether a call may proceed. After the cooldown a single
// probe is let through in the half-open state.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastTripped) < cb.cooldown {
			return false
		}
		cb.state = CircuitHalfOpen
		return true
	case CircuitHalfOpen:
		// a probe is already in flight
		return false
	default:
		return true
	}
}

// Record reports the outcome of an allowed call. Only retryable errors
// count as failures; a missing model says nothing about backend health.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !errors.IsRetryable(err) {
		if cb.state != CircuitClosed {
			cb.reset()
		}
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.trip(err.Error())
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.state = CircuitOpen
	cb.lastTripped = time.Now()
	cb.tripReason = reason
	if cb.OnTrip != nil {
		cb.OnTrip(reason)
	}
}

func (cb *CircuitBreaker) reset() {
	cb.state = CircuitClosed
	cb.failures = 0
	cb.tripReason = ""
	if cb.OnReset != nil {
		cb.OnReset()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Do runs fn through the breaker. A rejected call returns an error with
// CodeStoreUnavailable, which Retry does not retry.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.Allow() {
		cb.mu.Lock()
		reason := cb.tripReason
		cb.mu.Unlock()
		return errors.New(errors.CodeStoreUnavailable, "circuit open").WithContext("reason", reason)
	}
	err := fn()
	cb.Record(err)
	return err
}

// RetryPolicy controls Retry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts with exponential backoff from
// 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error (see
// errors.IsRetryable) or the attempts are exhausted.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil || !errors.IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.CodeContextCanceled, "retry canceled").
				WithContext("attempt", attempt)
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

// Recover runs fn and converts a panic into an error with CodePanic.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodePanic, fmt.Sprintf("panic recovered: %v", r)).
				WithContext("stack", string(debug.Stack()))
		}
	}()
	return fn()
}
