package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Expected errBoom, got %v", err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state open, got %s", cb.GetState())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected fn not to run while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("Expected success after reset timeout, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state closed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	errRejected := errors.New("rejected by guard")

	err := cb.Execute(context.Background(), func() error { return errRejected }, func(err error) bool {
		return !errors.Is(err, errRejected)
	})
	if !errors.Is(err, errRejected) {
		t.Fatalf("Expected errRejected, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state closed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
