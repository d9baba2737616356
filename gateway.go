package paycore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Middleware wraps an outbound gateway call for cross-cutting concerns
// (auth headers, tracing, request signing).
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the outbound transport interface middleware composes over.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// GatewayRequest describes one logical call to an external payment gateway.
type GatewayRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// OperationID identifies the logical financial operation (order id,
	// purchase id). Together with AmountCents it seeds the idempotency key
	// when IdempotencyKey is not set explicitly.
	OperationID string
	AmountCents int64

	IdempotencyKey string
	CorrelationID  string
}

// GatewayResponse is a fully drained gateway reply, safe to share between
// coalesced callers.
type GatewayResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// GatewayClient is the only path to external payment gateways: every call
// runs through the circuit breaker, the outbound throttle and the retry
// executor, and carries an idempotency key so gateway-side retries never
// double-charge. Safe for concurrent use.
type GatewayClient struct {
	service           string
	httpClient        *http.Client
	breakers          *BreakerRegistry
	retryConfig       RetryConfig
	executor          *Executor
	throttle          *rate.Limiter
	keys              *IdempotencyKeyGenerator
	salt              string
	idempotencyHeader string
	inflight          *InflightGroup
	middleware        []Middleware
	metrics           *MetricsCollector
	logger            Logger
	validationError   error
}

// NewGatewayClient constructs a client for the named external service using
// the provided functional options. A best effort validation is performed;
// call IsValid / ValidationError for errors.
func NewGatewayClient(service string, options ...Option) *GatewayClient {
	c := &GatewayClient{
		service: service,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breakers:          NewBreakerRegistry(CircuitBreakerConfig{}),
		retryConfig:       RetryConfig{},
		keys:              NewIdempotencyKeyGenerator(),
		idempotencyHeader: "Idempotency-Key",
	}

	for _, option := range options {
		option(c)
	}

	c.executor = NewExecutor(c.retryConfig)
	if c.logger != nil {
		c.executor.SetLogger(c.logger)
	}
	if c.metrics != nil {
		c.breakers.SetMetrics(c.metrics)
	}

	if err := c.validateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// IsValid reports whether configuration validation passed at construction.
func (c *GatewayClient) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *GatewayClient) ValidationError() error {
	return c.validationError
}

// Service returns the breaker key this client calls under.
func (c *GatewayClient) Service() string {
	return c.service
}

// Breakers exposes the breaker registry for the admin surface.
func (c *GatewayClient) Breakers() *BreakerRegistry {
	return c.breakers
}

// Do executes the gateway call applying all reliability layers. The response
// body is fully drained before returning. Client-level 4xx replies (other
// than 429) come back as responses, not errors; infrastructure failures come
// back as typed errors after the retry budget is spent.
func (c *GatewayClient) Do(ctx context.Context, req *GatewayRequest) (resp *GatewayResponse, err error) {
	key := req.IdempotencyKey
	if key == "" && req.OperationID != "" {
		key = c.keys.Derive(req.OperationID, req.AmountCents, c.salt)
	}

	if c.inflight != nil && key != "" {
		call, owner := c.inflight.join(key)
		if !owner {
			c.metrics.RecordInflightCoalesced(c.service)
			if c.logger != nil {
				c.logger.Debug("coalesced onto in-flight gateway call", "service", c.service, "idempotencyKey", key, "correlationID", req.CorrelationID)
			}
			return call.wait(ctx)
		}
		// The owner must always release its waiters, even if a middleware
		// panics mid-call; a panic surfaces to waiters as a gateway error
		// and then continues unwinding in the owner.
		defer func() {
			if r := recover(); r != nil {
				c.inflight.complete(key, nil, &Error{
					Type:          ErrorTypeGatewayError,
					Message:       fmt.Sprintf("gateway call panicked: %v", r),
					Service:       c.service,
					CorrelationID: req.CorrelationID,
					Timestamp:     time.Now(),
				})
				panic(r)
			}
			c.inflight.complete(key, resp, err)
		}()
	}

	return c.do(ctx, req, key)
}

func (c *GatewayClient) do(ctx context.Context, req *GatewayRequest, key string) (*GatewayResponse, error) {
	start := time.Now()

	c.metrics.RecordGatewayStart(c.service)
	defer c.metrics.RecordGatewayEnd(c.service)

	breaker := c.breakers.Get(c.service)
	if !breaker.Allow() {
		c.metrics.RecordCircuitBreakerRejection(c.service)
		c.metrics.RecordError(ErrorTypeCircuitOpen)
		if c.logger != nil {
			c.logger.Warn("circuit open, rejecting without outbound call",
				"service", c.service, "correlationID", req.CorrelationID, "retryAfter", breaker.RetryAfter().String())
		}
		openErr := breaker.OpenError(c.service)
		openErr.CorrelationID = req.CorrelationID
		return nil, openErr
	}

	var out *GatewayResponse
	attempt := 0

	err := c.executor.Execute(ctx, func(attemptCtx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.RecordRetry(c.service, attempt-1)
		}

		if c.throttle != nil {
			if err := c.throttle.Wait(attemptCtx); err != nil {
				return err
			}
		}

		resp, err := c.roundTrip(attemptCtx, req, key)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{Code: resp.StatusCode}
		}
		out = resp
		return nil
	})

	duration := time.Since(start)

	if err != nil {
		breaker.RecordFailure(err)
		c.metrics.RecordCircuitBreakerState(c.service, breaker.State())
		c.metrics.RecordGatewayRequest(c.service, req.Method, statusOf(err), duration)
		if typed, ok := err.(*Error); ok {
			typed.Service = c.service
			typed.CorrelationID = req.CorrelationID
			c.metrics.RecordError(typed.Type)
		}
		if c.logger != nil {
			c.logger.Warn("gateway call failed", "service", c.service, "method", req.Method,
				"correlationID", req.CorrelationID, "attempts", attempt, "error", err.Error())
		}
		return nil, err
	}

	breaker.RecordSuccess()
	c.metrics.RecordCircuitBreakerState(c.service, breaker.State())
	c.metrics.RecordGatewayRequest(c.service, req.Method, out.StatusCode, duration)
	if c.logger != nil {
		c.logger.Debug("gateway call completed", "service", c.service, "method", req.Method,
			"correlationID", req.CorrelationID, "status", out.StatusCode, "duration", duration.String())
	}
	return out, nil
}

// roundTrip performs one attempt: build the wire request, run the middleware
// chain, drain the body. Each attempt rebuilds the request so the body reader
// is fresh.
func (c *GatewayClient) roundTrip(ctx context.Context, req *GatewayRequest, key string) (*GatewayResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if key != "" {
		httpReq.Header.Set(c.idempotencyHeader, key)
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}

	httpResp, err := c.executeMiddleware(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &GatewayResponse{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       respBody,
	}, nil
}

func (c *GatewayClient) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func statusOf(err error) int {
	if typed, ok := err.(*Error); ok && typed.StatusCode > 0 {
		return typed.StatusCode
	}
	return 0
}
