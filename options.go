package paycore

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/iradwatkins/stepperslife-stores-sub005/internal/backoff"
)

// Option represents a GatewayClient configuration option.
type Option func(*GatewayClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *GatewayClient) {
		c.httpClient = client
	}
}

// WithTimeout bounds each individual attempt. A hung gateway is aborted at
// this ceiling and the attempt treated as a retryable failure.
func WithTimeout(d time.Duration) Option {
	return func(c *GatewayClient) {
		c.retryConfig.AttemptTimeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxAttempts sets the total attempts per admitted call, first included.
func WithMaxAttempts(n int) Option {
	return func(c *GatewayClient) {
		c.retryConfig.MaxAttempts = n
	}
}

// WithBaseDelay sets the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *GatewayClient) {
		c.retryConfig.BaseDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *GatewayClient) {
		c.retryConfig.MaxDelay = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *GatewayClient) {
		c.retryConfig.Multiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *GatewayClient) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.retryConfig.Jitter = f
	}
}

// WithBackoffStrategy replaces the backoff calculation strategy.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(c *GatewayClient) {
		c.retryConfig.Strategy = s
	}
}

// WithRetryClassifier replaces the retryable-error predicate.
func WithRetryClassifier(fn func(error) bool) Option {
	return func(c *GatewayClient) {
		c.retryConfig.Retryable = fn
	}
}

// WithBreakerConfig sets the circuit breaker configuration for a fresh
// registry owned by this client.
func WithBreakerConfig(config CircuitBreakerConfig) Option {
	return func(c *GatewayClient) {
		c.breakers = NewBreakerRegistry(config)
	}
}

// WithBreakerRegistry shares an existing registry, letting several clients
// report into the same per-service breakers.
func WithBreakerRegistry(registry *BreakerRegistry) Option {
	return func(c *GatewayClient) {
		c.breakers = registry
	}
}

// WithOutboundThrottle applies a token-bucket throttle to outbound calls.
func WithOutboundThrottle(rps float64, burst int) Option {
	return func(c *GatewayClient) {
		c.throttle = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithIdempotencySalt folds a deployment-specific salt into derived keys.
func WithIdempotencySalt(salt string) Option {
	return func(c *GatewayClient) {
		c.salt = salt
	}
}

// WithIdempotencyKeyGenerator replaces the key generator.
func WithIdempotencyKeyGenerator(g *IdempotencyKeyGenerator) Option {
	return func(c *GatewayClient) {
		c.keys = g
	}
}

// WithIdempotencyHeader overrides the header name the key travels in.
func WithIdempotencyHeader(name string) Option {
	return func(c *GatewayClient) {
		c.idempotencyHeader = name
	}
}

// WithInflightCoalescing enables merging of concurrent calls that share an
// idempotency key.
func WithInflightCoalescing() Option {
	return func(c *GatewayClient) {
		c.inflight = NewInflightGroup()
	}
}

// WithMiddleware adds middleware to the outbound chain.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *GatewayClient) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *GatewayClient) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *GatewayClient) {
		c.metrics = collector
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(c *GatewayClient) {
		c.logger = logger
	}
}

func (c *GatewayClient) validateConfiguration() error {
	var problems []string

	if c.service == "" {
		problems = append(problems, "service name must not be empty")
	}
	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}
	if c.retryConfig.MaxAttempts < 0 {
		problems = append(problems, "maxAttempts must be non-negative")
	}
	if c.retryConfig.BaseDelay < 0 {
		problems = append(problems, "baseDelay must be non-negative")
	}
	if c.retryConfig.MaxDelay > 0 && c.retryConfig.MaxDelay < c.retryConfig.BaseDelay {
		problems = append(problems, "maxDelay must be greater than or equal to baseDelay")
	}
	if c.retryConfig.Jitter < 0 || c.retryConfig.Jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if c.retryConfig.MaxAttempts > 10 {
		problems = append(problems, "maxAttempts > 10 may hold requests for too long")
	}
	for i, m := range c.middleware {
		if m == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	if len(problems) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}
