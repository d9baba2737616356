package paycore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Error taxonomy codes surfaced to callers and mapped to HTTP statuses by the
// serving layer.
const (
	ErrorTypeRateLimited       = "RATE_LIMITED"
	ErrorTypeCircuitOpen       = "CIRCUIT_OPEN"
	ErrorTypeVersionConflict   = "VERSION_CONFLICT"
	ErrorTypeInsufficientStock = "INSUFFICIENT_STOCK"
	ErrorTypeGatewayTimeout    = "GATEWAY_TIMEOUT"
	ErrorTypeGatewayError      = "GATEWAY_ERROR"
	ErrorTypeValidation        = "VALIDATION_ERROR"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("paycore: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("paycore: rate limited")

	// ErrRetriesExhausted is returned when the retry executor runs out of attempts
	ErrRetriesExhausted = errors.New("paycore: retries exhausted")
)

// Error is the typed error carried across the resilience layers. It records
// enough context for support traceability (correlation id, service, attempt
// counts) without leaking internal detail to end users.
type Error struct {
	Type          string
	Message       string
	Cause         error
	CorrelationID string
	Service       string
	StatusCode    int
	Attempt       int
	MaxAttempts   int
	RetryAfter    time.Duration
	Timestamp     time.Time
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.CorrelationID != "" {
		msg = fmt.Sprintf("[%s] %s", e.CorrelationID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	switch target {
	case ErrCircuitOpen:
		return e.Type == ErrorTypeCircuitOpen
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimited
	}
	return false
}

// RetryAfterSeconds returns the Retry-After value rounded up to whole
// seconds, suitable for the HTTP header of the same name.
func (e *Error) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// StatusError represents a non-2xx gateway response that was classified as a
// failure (5xx or 429). 4xx responses other than 429 are returned to the
// caller as ordinary responses, never as StatusError.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d", e.Code)
}

// IsInfrastructureFailure reports whether err represents an infrastructure
// level failure: connection refused, timeout, DNS failure, 5xx or 429. Only
// these count toward the circuit breaker threshold and are eligible for
// retry; 4xx client errors (except 429) are the caller's problem and must
// not trip the breaker.
func IsInfrastructureFailure(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == 429
	}

	var typedErr *Error
	if errors.As(err, &typedErr) {
		switch typedErr.Type {
		case ErrorTypeGatewayTimeout, ErrorTypeGatewayError:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection refused / reset and friends.
		return true
	}

	return false
}
