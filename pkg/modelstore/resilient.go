package modelstore

import (
	"context"

	"github.com/behaviorflow/behaviorflow/pkg/resilience"
)

// ResilientBackend retries transient failures of a remote backend and
// stops calling it while its circuit is open.
type ResilientBackend struct {
	backend Backend
	policy  resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

// NewResilientBackend wraps b with the given retry policy and breaker. A nil
// breaker gets resilience.NewCircuitBreaker().
func NewResilientBackend(b Backend, policy resilience.RetryPolicy, breaker *resilience.CircuitBreaker) *ResilientBackend {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker()
	}
	return &ResilientBackend{backend: b, policy: policy, breaker: breaker}
}

func (r *ResilientBackend) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return resilience.Retry(ctx, r.policy, func(ctx context.Context) error {
		return r.breaker.Do(func() error { return fn(ctx) })
	})
}

// Save implements Backend.
func (r *ResilientBackend) Save(ctx context.Context, rec *Record) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.backend.Save(ctx, rec)
	})
}

// Load implements Backend.
func (r *ResilientBackend) Load(ctx context.Context, id string) (*Record, error) {
	var rec *Record
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		rec, err = r.backend.Load(ctx, id)
		return err
	})
	return rec, err
}

// Delete implements Backend.
func (r *ResilientBackend) Delete(ctx context.Context, id string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.backend.Delete(ctx, id)
	})
}

// List implements Backend.
func (r *ResilientBackend) List(ctx context.Context, sessionID string) ([]*Record, error) {
	var records []*Record
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		records, err = r.backend.List(ctx, sessionID)
		return err
	})
	return records, err
}

// Name implements Backend.
func (r *ResilientBackend) Name() string {
	return r.backend.Name()
}

// Close implements Backend.
func (r *ResilientBackend) Close() error {
	return r.backend.Close()
}

// Unwrap returns the wrapped backend.
func (r *ResilientBackend) Unwrap() Backend {
	return r.backend
}
