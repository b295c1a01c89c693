package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"procurement-recon/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// intakeBodyLimit caps invoice intake requests, which may carry a base64 image.
const intakeBodyLimit = 16 << 20

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, maxBodyBytes int64, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		// Intake carries documents; its body limit is larger.
		r.With(RequestBodyLimit(intakeBodyLimit)).Post("/api/invoices/intake", h.apiIngestInvoice)

		r.Group(func(r chi.Router) {
			r.Use(RequestBodyLimit(maxBodyBytes))

			// ── Reconciliation ────────────────────────────────────────────────
			r.Post("/api/purchase-orders/{id}/reconcile", h.apiReconcile)
			r.Get("/api/purchase-orders/{id}/match", h.apiGetMatch)
			r.Get("/api/purchase-orders/{id}/approvers", h.apiEligibleApprovers)
			r.Post("/api/purchase-orders/{id}/approve", h.apiApprove)
			r.Post("/api/purchase-orders/{id}/reject", h.apiReject)

			// ── Invoice lines ─────────────────────────────────────────────────
			r.Get("/api/invoices/{id}/lines", h.apiInvoiceLines)
			r.Put("/api/invoices/{id}/lines/{line}", h.apiOverrideLine)
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// pathID extracts the {id} URL parameter.
func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
