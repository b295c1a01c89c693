package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"procurement-recon/internal/ai"
	"procurement-recon/internal/app"
	"procurement-recon/internal/core"
	"procurement-recon/internal/logger"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	RequestID string          `json:"request_id,omitempty"`
	Details   *authorityError `json:"details,omitempty"`
}

// authorityError is the shortfall reported with INSUFFICIENT_AUTHORITY.
type authorityError struct {
	Role      string   `json:"role"`
	Limit     string   `json:"limit,omitempty"`
	Amount    string   `json:"amount,omitempty"`
	Excess    string   `json:"excess,omitempty"`
	Uncovered []string `json:"uncovered,omitempty"`
	NoRule    bool     `json:"no_rule,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps an application error to its HTTP status and code.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var iae *core.InsufficientAuthorityError
	switch {
	case errors.As(err, &iae):
		details := &authorityError{Role: iae.Role, Uncovered: iae.Uncovered, NoRule: iae.NoRule}
		if !iae.NoRule {
			details.Limit = iae.Limit.StringFixed(2)
			details.Amount = iae.Amount.StringFixed(2)
			if iae.Excess.IsPositive() {
				details.Excess = iae.Excess.StringFixed(2)
			}
		}
		writeErrorResponse(w, http.StatusForbidden, errorResponse{
			Error:     err.Error(),
			Code:      "INSUFFICIENT_AUTHORITY",
			RequestID: requestIDFromContext(r.Context()),
			Details:   details,
		})
	case errors.Is(err, core.ErrInsufficientAuthority):
		writeError(w, r, err.Error(), "INSUFFICIENT_AUTHORITY", http.StatusForbidden)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrInvalidRecord):
		writeError(w, r, err.Error(), "INVALID_RECORD", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrTerminalState):
		writeError(w, r, err.Error(), "TERMINAL_STATE", http.StatusConflict)
	case errors.Is(err, core.ErrInvoiceFrozen):
		writeError(w, r, err.Error(), "INVOICE_FROZEN", http.StatusConflict)
	case errors.Is(err, core.ErrOrderBusy):
		writeError(w, r, err.Error(), "ORDER_BUSY", http.StatusConflict)
	case errors.Is(err, ai.ErrExtraction):
		writeError(w, r, err.Error(), "EXTRACTION_FAILED", http.StatusUnprocessableEntity)
	case errors.Is(err, app.ErrExtractorUnavailable):
		writeError(w, r, err.Error(), "EXTRACTION_UNAVAILABLE", http.StatusServiceUnavailable)
	default:
		logger.FromContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
