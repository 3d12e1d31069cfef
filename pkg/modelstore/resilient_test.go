package modelstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/resilience"
)

// flakyBackend fails the first n saves with a transient error.
type flakyBackend struct {
	Backend
	failures int
	saves    int
}

func (f *flakyBackend) Save(ctx context.Context, rec *Record) error {
	f.saves++
	if f.saves <= f.failures {
		return errors.New(errors.CodeStoreWrite, "connection reset")
	}
	return f.Backend.Save(ctx, rec)
}

func TestResilientBackend(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalBackend(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatal(err)
	}

	policy := resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	flaky := &flakyBackend{Backend: local, failures: 2}
	b := NewResilientBackend(flaky, policy, resilience.NewCircuitBreaker().WithMaxFailures(5))

	if err := b.Save(ctx, NewRecord(sampleModel("m1", "S1"))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if flaky.saves != 3 {
		t.Errorf("saves = %d, want 3", flaky.saves)
	}

	rec, err := b.Load(ctx, "m1")
	if err != nil || rec.SessionID != "S1" {
		t.Fatalf("Load = %+v, %v", rec, err)
	}

	// not found is returned without retrying and keeps the circuit closed
	if _, err := b.Load(ctx, "missing"); !errors.IsCode(err, errors.CodeModelNotFound) {
		t.Errorf("got %v, want not found", err)
	}

	records, err := b.List(ctx, "")
	if err != nil || len(records) != 1 {
		t.Errorf("List = %d records, %v", len(records), err)
	}
	if err := b.Delete(ctx, "m1"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if b.Name() != "local" || b.Unwrap() != flaky {
		t.Errorf("unexpected wrapper identity %q", b.Name())
	}
}

func TestResilientBackend_OpenCircuit(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalBackend(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatal(err)
	}

	flaky := &flakyBackend{Backend: local, failures: 100}
	breaker := resilience.NewCircuitBreaker().WithMaxFailures(2).WithCooldown(time.Hour)
	b := NewResilientBackend(flaky, resilience.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, breaker)

	err = b.Save(ctx, NewRecord(sampleModel("m1", "S1")))
	if !errors.IsCode(err, errors.CodeStoreUnavailable) {
		t.Fatalf("got %v, want store unavailable", err)
	}
	// two failures trip the breaker; later attempts never reach the backend
	if flaky.saves != 2 {
		t.Errorf("saves = %d, want 2", flaky.saves)
	}
	if breaker.State() != resilience.CircuitOpen {
		t.Errorf("state = %v, want open", breaker.State())
	}
}
