package web

import (
	"net/http"
	"strconv"

	"procurement-recon/internal/app"

	"github.com/go-chi/chi/v5"
)

// apiReconcile handles POST /api/purchase-orders/{id}/reconcile.
func (h *Handler) apiReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Reconcile(r.Context(), pathID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiGetMatch handles GET /api/purchase-orders/{id}/match.
func (h *Handler) apiGetMatch(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetMatch(r.Context(), pathID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// apiEligibleApprovers handles GET /api/purchase-orders/{id}/approvers.
func (h *Handler) apiEligibleApprovers(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.EligibleApprovers(r.Context(), pathID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiApprove handles POST /api/purchase-orders/{id}/approve.
// The approver is the authenticated caller.
func (h *Handler) apiApprove(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	rec, err := h.svc.ApproveMatch(r.Context(), app.DecisionRequest{
		PurchaseOrderID: pathID(r),
		Actor:           claims.Actor,
		Role:            claims.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// apiReject handles POST /api/purchase-orders/{id}/reject.
func (h *Handler) apiReject(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	rec, err := h.svc.RejectMatch(r.Context(), app.DecisionRequest{
		PurchaseOrderID: pathID(r),
		Actor:           claims.Actor,
		Role:            claims.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// apiInvoiceLines handles GET /api/invoices/{id}/lines.
func (h *Handler) apiInvoiceLines(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.InvoiceLines(r.Context(), pathID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiOverrideLine handles PUT /api/invoices/{id}/lines/{line}.
func (h *Handler) apiOverrideLine(w http.ResponseWriter, r *http.Request) {
	line, err := strconv.Atoi(chi.URLParam(r, "line"))
	if err != nil || line < 1 {
		writeError(w, r, "line must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var req struct {
		StockItemID string `json:"stock_item_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StockItemID == "" {
		writeError(w, r, "stock_item_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.OverrideInvoiceLine(r.Context(), app.OverrideLineRequest{
		InvoiceID:   pathID(r),
		LineNumber:  line,
		StockItemID: req.StockItemID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// intakeRequest is the body of POST /api/invoices/intake. Image data is base64.
type intakeRequest struct {
	PurchaseOrderID string `json:"purchase_order_id"`
	SupplierID      string `json:"supplier_id"`
	Text            string `json:"text"`
	Image           *struct {
		MimeType string `json:"mime_type"`
		Data     []byte `json:"data"`
	} `json:"image"`
}

// apiIngestInvoice handles POST /api/invoices/intake.
func (h *Handler) apiIngestInvoice(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := app.IngestInvoiceRequest{
		PurchaseOrderID: req.PurchaseOrderID,
		SupplierID:      req.SupplierID,
		Text:            req.Text,
	}
	if req.Image != nil {
		in.Image = &app.Attachment{MimeType: req.Image.MimeType, Data: req.Image.Data}
	}

	result, err := h.svc.IngestInvoice(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}
