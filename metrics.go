package paycore

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the resilience layers and
// the ledger engine. It is safe for concurrent use; a nil collector is a
// no-op everywhere.
type MetricsCollector struct {
	gatewayRequestsTotal   *prometheus.CounterVec
	gatewayRequestDuration *prometheus.HistogramVec
	gatewayInFlight        *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState     *prometheus.GaugeVec
	circuitBreakerRejects   *prometheus.CounterVec
	rateLimitRejectsTotal   *prometheus.CounterVec
	inflightCoalescedTotal  *prometheus.CounterVec
	ledgerOperationsTotal   *prometheus.CounterVec
	settlementCentsTotal    *prometheus.CounterVec
	versionConflictsTotal   *prometheus.CounterVec
	errorsTotal             *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		gatewayRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_gateway_requests_total",
				Help: "Total number of outbound gateway requests",
			},
			[]string{"service", "method", "status_code"},
		),
		gatewayRequestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paycore_gateway_request_duration_seconds",
				Help:    "Duration of outbound gateway requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "status_code"},
		),
		gatewayInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paycore_gateway_requests_in_flight",
				Help: "Number of outbound gateway requests currently in flight",
			},
			[]string{"service"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_retries_total",
				Help: "Total number of retry attempts against gateways",
			},
			[]string{"service", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paycore_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),
		circuitBreakerRejects: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_circuit_breaker_rejections_total",
				Help: "Requests rejected fail-fast while a breaker was open",
			},
			[]string{"service"},
		),
		rateLimitRejectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_rate_limit_rejections_total",
				Help: "Requests rejected by the fixed-window rate limiter",
			},
			[]string{"profile"},
		),
		inflightCoalescedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_inflight_coalesced_total",
				Help: "Gateway calls coalesced onto an identical in-flight idempotency key",
			},
			[]string{"service"},
		),
		ledgerOperationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_ledger_operations_total",
				Help: "Ledger engine operations by kind and result",
			},
			[]string{"operation", "result"},
		),
		settlementCentsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_settlement_cents_total",
				Help: "Total debt settled, in cents",
			},
			[]string{"channel"},
		),
		versionConflictsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_version_conflicts_total",
				Help: "Optimistic lock conflicts by component",
			},
			[]string{"component"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paycore_errors_total",
				Help: "Errors by taxonomy type",
			},
			[]string{"type"},
		),
		registry: registry,
	}
}

// RecordGatewayRequest records one completed outbound request.
func (mc *MetricsCollector) RecordGatewayRequest(service, method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.gatewayRequestsTotal.WithLabelValues(service, method, code).Inc()
	mc.gatewayRequestDuration.WithLabelValues(service, method, code).Observe(duration.Seconds())
}

// RecordGatewayStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordGatewayStart(service string) {
	if mc == nil {
		return
	}
	mc.gatewayInFlight.WithLabelValues(service).Inc()
}

// RecordGatewayEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordGatewayEnd(service string) {
	if mc == nil {
		return
	}
	mc.gatewayInFlight.WithLabelValues(service).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(service string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(service, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState gauges the breaker state for a service.
func (mc *MetricsCollector) RecordCircuitBreakerState(service string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerRejection counts a fail-fast rejection.
func (mc *MetricsCollector) RecordCircuitBreakerRejection(service string) {
	if mc == nil {
		return
	}
	mc.circuitBreakerRejects.WithLabelValues(service).Inc()
}

// RecordRateLimitRejection counts a rate limited request.
func (mc *MetricsCollector) RecordRateLimitRejection(profile string) {
	if mc == nil {
		return
	}
	mc.rateLimitRejectsTotal.WithLabelValues(profile).Inc()
}

// RecordInflightCoalesced counts a call served by an in-flight duplicate.
func (mc *MetricsCollector) RecordInflightCoalesced(service string) {
	if mc == nil {
		return
	}
	mc.inflightCoalescedTotal.WithLabelValues(service).Inc()
}

// RecordLedgerOperation counts one engine operation outcome.
func (mc *MetricsCollector) RecordLedgerOperation(operation, result string) {
	if mc == nil {
		return
	}
	mc.ledgerOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordSettlement accumulates settled cents per channel.
func (mc *MetricsCollector) RecordSettlement(channel string, cents int64) {
	if mc == nil || cents <= 0 {
		return
	}
	mc.settlementCentsTotal.WithLabelValues(channel).Add(float64(cents))
}

// RecordVersionConflict counts an optimistic lock loss.
func (mc *MetricsCollector) RecordVersionConflict(component string) {
	if mc == nil {
		return
	}
	mc.versionConflictsTotal.WithLabelValues(component).Inc()
}

// RecordError increments the taxonomy error counter.
func (mc *MetricsCollector) RecordError(errorType string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(errorType).Inc()
}
