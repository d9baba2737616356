package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	paycore "github.com/iradwatkins/stepperslife-stores-sub005"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/inventory"
	"github.com/iradwatkins/stepperslife-stores-sub005/internal/ledger"
)

type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RetryAfter    int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Server-side
// failures (5xx) deliberately carry only a generic message and the
// correlation id; the detail stays in the logs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	corrID := CorrelationID(r.Context())

	var pe *paycore.Error
	if errors.As(err, &pe) {
		status, public := statusFor(pe.Type)
		if pe.CorrelationID != "" {
			corrID = pe.CorrelationID
		}
		body := errorBody{Error: pe.Type, CorrelationID: corrID}
		if status >= 500 {
			body.Message = public
		} else {
			body.Message = pe.Message
		}
		if ra := pe.RetryAfterSeconds(); ra > 0 {
			body.RetryAfter = ra
			w.Header().Set("Retry-After", strconv.Itoa(ra))
		}
		if status >= 500 {
			s.logger.Error("request failed", "correlationID", corrID,
				"errorType", pe.Type, "error", pe.Error())
		}
		s.metrics.RecordError(pe.Type)
		writeJSON(w, status, body)
		return
	}

	switch {
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, inventory.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: "NOT_FOUND", Message: err.Error(), CorrelationID: corrID,
		})
	default:
		s.logger.Error("request failed", "correlationID", corrID, "error", err.Error())
		s.metrics.RecordError("INTERNAL")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "INTERNAL", Message: "internal error", CorrelationID: corrID,
		})
	}
}

func statusFor(errorType string) (status int, publicMessage string) {
	switch errorType {
	case paycore.ErrorTypeValidation:
		return http.StatusBadRequest, ""
	case paycore.ErrorTypeVersionConflict:
		return http.StatusConflict, ""
	case paycore.ErrorTypeInsufficientStock:
		return http.StatusUnprocessableEntity, ""
	case paycore.ErrorTypeRateLimited:
		return http.StatusTooManyRequests, ""
	case paycore.ErrorTypeCircuitOpen:
		return http.StatusServiceUnavailable, "payment service temporarily unavailable"
	case paycore.ErrorTypeGatewayTimeout, paycore.ErrorTypeGatewayError:
		return http.StatusBadGateway, "payment gateway unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) validationError(w http.ResponseWriter, r *http.Request, msg string) {
	s.writeError(w, r, &paycore.Error{
		Type:    paycore.ErrorTypeValidation,
		Message: msg,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
