package paycore

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsCollectorRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordGatewayStart("square")
	mc.RecordGatewayRequest("square", "POST", 200, 120*time.Millisecond)
	mc.RecordGatewayEnd("square")
	mc.RecordRetry("square", 1)
	mc.RecordCircuitBreakerState("square", StateOpen)
	mc.RecordCircuitBreakerRejection("square")
	mc.RecordRateLimitRejection("payments")
	mc.RecordInflightCoalesced("square")
	mc.RecordLedgerOperation("accrue", "ok")
	mc.RecordSettlement("digital", 529)
	mc.RecordVersionConflict("ledger")
	mc.RecordError(ErrorTypeGatewayError)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Expected gathered metric families")
	}

	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"paycore_gateway_requests_total",
		"paycore_retries_total",
		"paycore_circuit_breaker_state",
		"paycore_rate_limit_rejections_total",
		"paycore_ledger_operations_total",
		"paycore_settlement_cents_total",
		"paycore_version_conflicts_total",
	} {
		if !found[name] {
			t.Errorf("Expected metric family %s to be registered", name)
		}
	}
}

func TestNilMetricsCollectorIsSafe(t *testing.T) {
	var mc *MetricsCollector

	// All record methods must be no-ops on a nil collector.
	mc.RecordGatewayStart("square")
	mc.RecordGatewayRequest("square", "POST", 200, time.Millisecond)
	mc.RecordGatewayEnd("square")
	mc.RecordRetry("square", 1)
	mc.RecordCircuitBreakerState("square", StateClosed)
	mc.RecordCircuitBreakerRejection("square")
	mc.RecordRateLimitRejection("payments")
	mc.RecordInflightCoalesced("square")
	mc.RecordLedgerOperation("accrue", "ok")
	mc.RecordSettlement("digital", 100)
	mc.RecordVersionConflict("ledger")
	mc.RecordError(ErrorTypeValidation)
}
