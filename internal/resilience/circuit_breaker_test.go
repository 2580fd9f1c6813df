package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var errProvider = errors.New("provider unavailable")

func failing() error    { return errProvider }
func succeeding() error { return nil }

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test-closed", 3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}
	if err := cb.Call(succeeding); err != nil {
		t.Errorf("Expected call to pass, got %v", err)
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-open", 3, time.Second)

	cb.Call(failing)
	cb.Call(failing)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	if err := cb.Call(failing); !errors.Is(err, errProvider) {
		t.Errorf("Expected provider error, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test-reset-count", 2, time.Second)

	cb.Call(failing)
	cb.Call(succeeding)
	cb.Call(failing)
	if cb.GetState() != StateClosed {
		t.Error("Expected non-consecutive failures to keep circuit closed")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	mock := clock.NewMock()
	cb := NewCircuitBreaker("test-half-open", 1, 5*time.Second, WithClock(mock))

	cb.Call(failing)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to open")
	}

	mock.Add(4 * time.Second)
	if err := cb.Call(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected circuit still open before timeout, got %v", err)
	}

	mock.Add(time.Second)
	if err := cb.Call(succeeding); err != nil {
		t.Errorf("Expected probe to pass, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed after successful probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	mock := clock.NewMock()
	cb := NewCircuitBreaker("test-reopen", 1, time.Second, WithClock(mock))

	cb.Call(failing)
	mock.Add(time.Second)
	cb.Call(failing)

	if cb.GetState() != StateOpen {
		t.Errorf("Expected Open after failed probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("test-cancel", 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Error("Expected caller cancellation not to open the circuit")
	}
}

func TestCircuitBreaker_HealthCheck(t *testing.T) {
	cb := NewCircuitBreaker("test-health", 1, time.Minute)
	if ok, err := cb.HealthCheck(context.Background()); !ok || err != nil {
		t.Errorf("Expected healthy, got %v %v", ok, err)
	}

	cb.Call(failing)
	if ok, err := cb.HealthCheck(context.Background()); ok || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected unhealthy with ErrCircuitOpen, got %v %v", ok, err)
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Error("Expected Closed after reset")
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test-stats", 10, time.Second)
	cb.Call(succeeding)
	cb.Call(failing)

	_, requests, failures, rate := cb.GetStats()
	if requests != 2 || failures != 1 || rate != 50 {
		t.Errorf("Expected 2 requests, 1 failure, 50%%, got %d %d %f", requests, failures, rate)
	}
}
