package paycore

import (
	"errors"
	"testing"
	"time"
)

func infraError() error {
	return &StatusError{Code: 503}
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		cb.RecordFailure(infraError())
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed before threshold, got %v", cb.State())
	}

	cb.RecordFailure(infraError())
	if cb.State() != StateOpen {
		t.Fatalf("Expected open after threshold, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to reject while open")
	}
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	for i := 0; i < 10; i++ {
		cb.RecordFailure(errors.New("card declined"))
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after non-infrastructure failures, got %v", cb.State())
	}

	// 4xx other than 429 does not count either.
	for i := 0; i < 10; i++ {
		cb.RecordFailure(&StatusError{Code: 404})
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after 404s, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 2,
	})

	cb.RecordFailure(infraError())
	if cb.Allow() {
		t.Fatal("Expected rejection while open")
	}

	*now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatal("Expected probe to be admitted after recovery timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half_open, got %v", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half_open until success threshold, got %v", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after success threshold, got %v", cb.State())
	}
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(infraError())
	*now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatal("Expected probe admission")
	}

	cb.RecordFailure(infraError())
	if cb.State() != StateOpen {
		t.Fatalf("Expected reopen on probe failure, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected rejection after reopen")
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	cb.RecordFailure(infraError())
	cb.RecordFailure(infraError())
	cb.RecordSuccess()
	cb.RecordFailure(infraError())
	cb.RecordFailure(infraError())

	if cb.State() != StateClosed {
		t.Errorf("Expected closed, success should reset the consecutive count, got %v", cb.State())
	}
}

func TestCircuitBreakerRetryAfter(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	if cb.RetryAfter() != 0 {
		t.Errorf("Expected zero RetryAfter while closed, got %v", cb.RetryAfter())
	}

	cb.RecordFailure(infraError())
	if got := cb.RetryAfter(); got != time.Minute {
		t.Errorf("Expected RetryAfter=1m, got %v", got)
	}

	*now = now.Add(40 * time.Second)
	if got := cb.RetryAfter(); got != 20*time.Second {
		t.Errorf("Expected RetryAfter=20s, got %v", got)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	cb.RecordFailure(infraError())
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %v", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after reset, got %v", cb.State())
	}
	if !cb.Allow() {
		t.Error("Expected Allow() after reset")
	}
}

func TestCircuitBreakerSnapshot(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	cb.RecordFailure(infraError())
	cb.RecordFailure(infraError())
	cb.Allow()
	cb.RecordSuccess()

	snap := cb.Snapshot("square")
	if snap.Service != "square" {
		t.Errorf("Expected service square, got %s", snap.Service)
	}
	if snap.StateName != "open" {
		t.Errorf("Expected state open, got %s", snap.StateName)
	}
	if snap.TotalFailures != 2 {
		t.Errorf("Expected 2 total failures, got %d", snap.TotalFailures)
	}
	if snap.TotalTrips != 1 {
		t.Errorf("Expected 1 trip, got %d", snap.TotalTrips)
	}
	if snap.TotalRejected != 1 {
		t.Errorf("Expected 1 rejection, got %d", snap.TotalRejected)
	}
}

func TestCircuitStateString(t *testing.T) {
	cases := map[CircuitState]string{
		StateClosed:       "closed",
		StateOpen:         "open",
		StateHalfOpen:     "half_open",
		CircuitState(127): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State %d: expected %s, got %s", state, want, got)
		}
	}
}

func TestBreakerRegistry(t *testing.T) {
	reg := NewBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1})

	if !reg.CanRequest("square") {
		t.Fatal("Expected new breaker to admit")
	}
	reg.RecordFailure("square", infraError())
	if reg.CanRequest("square") {
		t.Error("Expected square to be open")
	}
	if !reg.CanRequest("stripe") {
		t.Error("Expected stripe breaker to be independent")
	}

	if got := reg.Get("square"); got != reg.Get("square") {
		t.Error("Expected Get to return the same breaker instance")
	}

	snaps := reg.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}

	reg.Reset("square")
	if !reg.CanRequest("square") {
		t.Error("Expected square to admit after reset")
	}
}

func TestBreakerOpenError(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
	})
	cb.RecordFailure(infraError())

	err := cb.OpenError("square")
	if err.Type != ErrorTypeCircuitOpen {
		t.Errorf("Expected type %s, got %s", ErrorTypeCircuitOpen, err.Type)
	}
	if err.Service != "square" {
		t.Errorf("Expected service square, got %s", err.Service)
	}
	if err.RetryAfter != 30*time.Second {
		t.Errorf("Expected RetryAfter=30s, got %v", err.RetryAfter)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("Expected OpenError to match ErrCircuitOpen")
	}
}
