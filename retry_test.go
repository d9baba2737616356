package paycore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestExecuteRetriesInfrastructureFailures(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	e := NewExecutor(fastRetryConfig(5))

	declined := errors.New("card declined")
	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return declined
	})

	if !errors.Is(err, declined) {
		t.Fatalf("Expected the original error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for a non-retryable error, got %d", calls)
	}
}

func TestExecuteExhaustionReturnsGatewayError(t *testing.T) {
	e := NewExecutor(fastRetryConfig(3))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &StatusError{Code: 502}
	})

	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("Expected a typed error, got %T: %v", err, err)
	}
	if typed.Type != ErrorTypeGatewayError {
		t.Errorf("Expected type %s, got %s", ErrorTypeGatewayError, typed.Type)
	}
	if typed.Attempt != 3 || typed.MaxAttempts != 3 {
		t.Errorf("Expected attempt 3/3, got %d/%d", typed.Attempt, typed.MaxAttempts)
	}

	var status *StatusError
	if !errors.As(err, &status) || status.Code != 502 {
		t.Error("Expected the last StatusError to be the cause")
	}
}

func TestExecuteExhaustionDistinguishesTimeout(t *testing.T) {
	cfg := fastRetryConfig(2)
	cfg.AttemptTimeout = 5 * time.Millisecond
	e := NewExecutor(cfg)

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("Expected a typed error, got %T: %v", err, err)
	}
	if typed.Type != ErrorTypeGatewayTimeout {
		t.Errorf("Expected type %s, got %s", ErrorTypeGatewayTimeout, typed.Type)
	}
}

func TestExecuteParentCancellationStopsRetries(t *testing.T) {
	e := NewExecutor(fastRetryConfig(10))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := e.Execute(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &StatusError{Code: 503}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestExecutorDefaults(t *testing.T) {
	e := NewExecutor(RetryConfig{})

	if e.config.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts=3, got %d", e.config.MaxAttempts)
	}
	if e.config.BaseDelay != 200*time.Millisecond {
		t.Errorf("Expected BaseDelay=200ms, got %v", e.config.BaseDelay)
	}
	if e.config.MaxDelay != 10*time.Second {
		t.Errorf("Expected MaxDelay=10s, got %v", e.config.MaxDelay)
	}
	if e.config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %f", e.config.Multiplier)
	}
	if e.config.AttemptTimeout != 30*time.Second {
		t.Errorf("Expected AttemptTimeout=30s, got %v", e.config.AttemptTimeout)
	}
	if e.config.Retryable == nil {
		t.Error("Expected a default Retryable classifier")
	}
}
