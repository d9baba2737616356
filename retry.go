package paycore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iradwatkins/stepperslife-stores-sub005/internal/backoff"
)

// RetryConfig governs the retry executor for one admitted attempt sequence.
// The executor is orthogonal to the circuit breaker: the breaker decides
// whether to attempt at all, the executor governs the attempts within.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, first call included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
	// AttemptTimeout bounds each individual attempt. A timed-out attempt is
	// aborted via context cancellation and treated as a retryable failure.
	AttemptTimeout time.Duration
	// Retryable decides whether a failed attempt is worth repeating. The
	// default retries infrastructure failures only; other errors propagate
	// immediately without consuming a retry.
	Retryable func(error) bool
	Strategy  backoff.Strategy
}

// Executor runs an operation with bounded exponential backoff. Safe for
// concurrent use.
type Executor struct {
	config RetryConfig
	calc   *backoff.Calculator
	logger Logger
}

// NewExecutor creates a retry executor. Zero config fields get defaults:
// 3 attempts, 200ms base delay doubling up to 10s, 10% jitter, 30s per
// attempt.
func NewExecutor(config RetryConfig) *Executor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 200 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Jitter == 0 {
		config.Jitter = 0.1
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	if config.Retryable == nil {
		config.Retryable = IsInfrastructureFailure
	}
	if config.Strategy == nil {
		config.Strategy = backoff.ExponentialJitterStrategy{}
	}

	return &Executor{
		config: config,
		calc:   backoff.NewCalculator(config.Strategy),
	}
}

// SetLogger attaches a logger for per-retry diagnostics.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Execute runs op until it succeeds, a non-retryable error occurs, retries
// are exhausted, or ctx is cancelled. Backoff sleeps are cancellation-aware.
// Exhaustion returns a terminal *Error whose Type distinguishes timeout from
// upstream failure so the circuit breaker classifies it correctly.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	timedOut := false

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.calc.Calculate(attempt-1, e.config.BaseDelay, e.config.MaxDelay, e.config.Multiplier, e.config.Jitter)
			if e.logger != nil {
				e.logger.Info("scheduling retry", "attempt", attempt+1, "maxAttempts", e.config.MaxAttempts, "backoff", delay.String())
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.config.AttemptTimeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		lastErr = err
		timedOut = errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil

		if ctx.Err() != nil {
			// Parent cancelled mid-attempt; do not keep going.
			return ctx.Err()
		}

		if !timedOut && !e.config.Retryable(err) {
			return err
		}
	}

	errType := ErrorTypeGatewayError
	msg := fmt.Sprintf("upstream error after %d attempts", e.config.MaxAttempts)
	if timedOut {
		errType = ErrorTypeGatewayTimeout
		msg = fmt.Sprintf("timeout after %d attempts", e.config.MaxAttempts)
	}

	return &Error{
		Type:        errType,
		Message:     msg,
		Cause:       lastErr,
		Attempt:     e.config.MaxAttempts,
		MaxAttempts: e.config.MaxAttempts,
		Timestamp:   time.Now(),
	}
}
