package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
)

type accrueRequest struct {
	OwnerID       string `json:"owner_id"`
	OrderRef      string `json:"order_ref"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" || req.OrderRef == "" {
		s.validationError(w, r, "owner_id and order_ref are required")
		return
	}
	res, err := s.engine.AccrueDebt(r.Context(), req.OwnerID, req.OrderRef, req.SubtotalCents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type settleRequest struct {
	OwnerID     string `json:"owner_id"`
	OrderRef    string `json:"order_ref"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" || req.OrderRef == "" {
		s.validationError(w, r, "owner_id and order_ref are required")
		return
	}
	res, err := s.engine.Settle(r.Context(), req.OwnerID, req.OrderRef, req.AmountCents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleManualPayment(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" || req.OrderRef == "" {
		s.validationError(w, r, "owner_id and order_ref are required")
		return
	}
	res, err := s.engine.RecordManualPayment(r.Context(), req.OwnerID, req.OrderRef, req.AmountCents, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type adjustRequest struct {
	OwnerID     string `json:"owner_id"`
	DeltaCents  int64  `json:"delta_cents"`
	Description string `json:"description"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" {
		s.validationError(w, r, "owner_id is required")
		return
	}
	if req.Description == "" {
		s.validationError(w, r, "description is required for adjustments")
		return
	}
	acct, err := s.engine.AdminAdjustment(r.Context(), req.OwnerID, req.DeltaCents, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.Account(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Trail(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id": r.PathValue("owner"),
		"entries":  entries,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Reconcile(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDue answers how much accrued debt should be collected alongside the
// next digital sale: min(remaining debt, the normal fee for the quoted
// subtotal).
func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	subtotal, err := strconv.ParseInt(r.URL.Query().Get("subtotal_cents"), 10, 64)
	if err != nil || subtotal <= 0 {
		s.validationError(w, r, "subtotal_cents query parameter must be a positive integer")
		return
	}
	normalFee := s.fees.FeeCents(subtotal)
	due, err := s.engine.ComputeSettlementDue(r.Context(), r.PathValue("owner"), normalFee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id":         r.PathValue("owner"),
		"normal_fee_cents": normalFee,
		"due_cents":        due,
	})
}

type chargeRequest struct {
	OwnerID     string `json:"owner_id"`
	OrderRef    string `json:"order_ref"`
	AmountCents int64  `json:"amount_cents"`
	SourceToken string `json:"source_token"`
}

type chargeResponse struct {
	OrderRef           string `json:"order_ref"`
	GatewayStatus      int    `json:"gateway_status"`
	DebtCollectedCents int64  `json:"debt_collected_cents"`
	RemainingDebtCents int64  `json:"remaining_debt_cents"`
}

// handleCharge runs the full digital sale flow: charge the external gateway
// through the resilience stack, then fold any owed debt settlement into the
// ledger once the charge is confirmed.
func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil || s.chargeURL == "" {
		s.writeError(w, r, &paycore.Error{
			Type:    paycore.ErrorTypeGatewayError,
			Message: "no payment gateway configured",
		})
		return
	}

	var req chargeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" || req.OrderRef == "" || req.SourceToken == "" {
		s.validationError(w, r, "owner_id, order_ref and source_token are required")
		return
	}
	if req.AmountCents <= 0 {
		s.validationError(w, r, "amount_cents must be positive")
		return
	}

	body, _ := json.Marshal(map[string]any{
		"order_ref":    req.OrderRef,
		"amount_cents": req.AmountCents,
		"source_token": req.SourceToken,
	})

	resp, err := s.gateway.Do(r.Context(), &paycore.GatewayRequest{
		Method:        http.MethodPost,
		URL:           s.chargeURL,
		Body:          body,
		OperationID:   req.OrderRef,
		AmountCents:   req.AmountCents,
		CorrelationID: CorrelationID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The gateway answered but declined; 4xx replies are the caller's
		// problem (bad card, bad token), not an infrastructure failure.
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":          "CHARGE_DECLINED",
			"gateway_status": resp.StatusCode,
			"correlation_id": CorrelationID(r.Context()),
		})
		return
	}

	out := chargeResponse{OrderRef: req.OrderRef, GatewayStatus: resp.StatusCode}

	normalFee := s.fees.FeeCents(req.AmountCents)
	due, err := s.engine.ComputeSettlementDue(r.Context(), req.OwnerID, normalFee)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if due > 0 {
		settled, err := s.engine.Settle(r.Context(), req.OwnerID, req.OrderRef, due)
		if err != nil {
			// The charge went through; surface the ledger failure but keep
			// the gateway outcome visible for support.
			s.logger.Error("charge succeeded but settlement failed",
				"ownerID", req.OwnerID, "orderRef", req.OrderRef,
				"dueCents", due, "error", err.Error(),
				"correlationID", CorrelationID(r.Context()))
			s.writeError(w, r, err)
			return
		}
		out.DebtCollectedCents = settled.SettledCents
		out.RemainingDebtCents = settled.RemainingCents
	}

	writeJSON(w, http.StatusOK, out)
}

type stockRequest struct {
	ItemRef         string `json:"item_ref"`
	Quantity        int64  `json:"quantity"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.ItemRef == "" {
		s.validationError(w, r, "item_ref is required")
		return
	}
	mut, err := s.counter.Decrement(r.Context(), req.ItemRef, req.Quantity, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mut)
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.ItemRef == "" {
		s.validationError(w, r, "item_ref is required")
		return
	}
	mut, err := s.counter.Increment(r.Context(), req.ItemRef, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mut)
}

type upsertItemRequest struct {
	QuantityOnHand int64 `json:"quantity_on_hand"`
	AllowBackorder bool  `json:"allow_backorder"`
	TrackInventory bool  `json:"track_inventory"`
}

func (s *Server) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	var req upsertItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.validationError(w, r, "invalid request body: "+err.Error())
		return
	}
	if req.QuantityOnHand < 0 {
		s.validationError(w, r, "quantity_on_hand must be non-negative")
		return
	}
	rec := inventory.Record{
		ItemRef:        r.PathValue("item"),
		QuantityOnHand: req.QuantityOnHand,
		AllowBackorder: req.AllowBackorder,
		TrackInventory: req.TrackInventory,
	}
	if err := s.items.UpsertItem(r.Context(), rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeJSON(w, http.StatusOK, map[string]any{"breakers": []paycore.CircuitBreakerSnapshot{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breakers": s.gateway.Breakers().Snapshots(),
	})
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		s.validationError(w, r, "no gateway configured")
		return
	}
	service := r.PathValue("service")
	s.gateway.Breakers().Reset(service)
	s.logger.Warn("circuit breaker manually reset",
		"service", service, "correlationID", CorrelationID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{
		"service": service,
		"state":   paycore.StateClosed.String(),
	})
}
