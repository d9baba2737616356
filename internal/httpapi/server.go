// Package httpapi exposes the debt ledger, inventory counters and the
// gateway charge flow over HTTP, mapping the error taxonomy onto statuses.
package httpapi

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
)

// ItemStore extends the counter's read/update contract with the admin
// upsert used to seed catalog rows.
type ItemStore interface {
	inventory.Store
	UpsertItem(ctx context.Context, rec inventory.Record) error
}

// Deps carries the wired subsystems the server fronts. Gateway and
// ChargeURL are optional: without them POST /v1/payments/charge answers 503.
type Deps struct {
	Engine    *ledger.Engine
	Counter   *inventory.Counter
	Items     ItemStore
	Gateway   *paycore.GatewayClient
	ChargeURL string
	Fees      ledger.FeeSchedule
	Limiter   *paycore.RateLimiter
	Metrics   *paycore.MetricsCollector
	Logger    paycore.Logger
}

// Server is the HTTP surface. Construct with NewServer and mount Handler.
type Server struct {
	engine    *ledger.Engine
	counter   *inventory.Counter
	items     ItemStore
	gateway   *paycore.GatewayClient
	chargeURL string
	fees      ledger.FeeSchedule
	limiter   *paycore.RateLimiter
	metrics   *paycore.MetricsCollector
	logger    paycore.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		engine:    deps.Engine,
		counter:   deps.Counter,
		items:     deps.Items,
		gateway:   deps.Gateway,
		chargeURL: deps.ChargeURL,
		fees:      deps.Fees,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = paycore.NopLogger{}
	}
	return s
}

// Handler builds the routing table. Payment and debt mutations sit behind
// the stricter "payments" profile, reads behind "api".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	payments := func(h http.HandlerFunc) http.Handler { return s.withRateLimit("payments", h) }
	api := func(h http.HandlerFunc) http.Handler { return s.withRateLimit("api", h) }

	mux.Handle("POST /v1/debt/accrue", payments(s.handleAccrue))
	mux.Handle("POST /v1/debt/settle", payments(s.handleSettle))
	mux.Handle("POST /v1/debt/manual-payment", payments(s.handleManualPayment))
	mux.Handle("POST /v1/debt/adjust", payments(s.handleAdjust))
	mux.Handle("GET /v1/debt/{owner}", api(s.handleAccount))
	mux.Handle("GET /v1/debt/{owner}/trail", api(s.handleTrail))
	mux.Handle("GET /v1/debt/{owner}/reconcile", api(s.handleReconcile))
	mux.Handle("GET /v1/debt/{owner}/due", api(s.handleDue))

	mux.Handle("POST /v1/payments/charge", payments(s.handleCharge))

	mux.Handle("POST /v1/inventory/decrement", api(s.handleDecrement))
	mux.Handle("POST /v1/inventory/increment", api(s.handleIncrement))

	mux.Handle("PUT /v1/admin/inventory/{item}", api(s.handleUpsertItem))
	mux.Handle("GET /v1/admin/breakers", api(s.handleBreakers))
	mux.Handle("POST /v1/admin/breakers/{service}/reset", api(s.handleBreakerReset))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withCorrelationID(s.withLogging(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": paycore.Version,
	})
}
