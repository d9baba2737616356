// Package paycore provides the payment resilience primitives for the
// platform's commerce verticals (ticketing, marketplace, food ordering):
//
//   - Circuit breaker per external payment service (closed / open / half-open)
//   - Fixed-window rate limiting with named profiles and pluggable window stores
//   - Bounded retry execution with exponential backoff + jitter
//   - Idempotency key derivation for safe gateway retries
//   - Gateway client composing the above around net/http
//   - Prometheus metrics and lightweight structured logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single client / registry instance
//   - Fail fast instead of cascading: an unhealthy gateway is rejected
//     locally before an outbound call is attempted
//   - Extensibility via user supplied middleware, window stores and classifiers
//
// Typical usage:
//
//	client := paycore.NewGatewayClient("cashapp",
//	    paycore.WithMaxAttempts(3),
//	    paycore.WithBreakerConfig(paycore.CircuitBreakerConfig{}),
//	    paycore.WithOutboundThrottle(10, 20),
//	    paycore.WithMetrics(),
//	)
//	resp, err := client.Do(ctx, &paycore.GatewayRequest{...})
//
// The debt ledger, inventory counter and HTTP surface build on these
// primitives from the internal/ packages.
package paycore
