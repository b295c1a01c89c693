package app

import (
	"context"

	"procurement-recon/internal/core"
)

// Attachment is an uploaded invoice image for extraction.
// Supports JPG, PNG and WEBP.
type Attachment struct {
	MimeType string // "image/jpeg", "image/png", "image/webp"
	Data     []byte // raw file bytes
}

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// Reconcile resolves the order's invoice lines against the catalog, recomputes
	// its match record, keeps any recorded decision, and stores the result.
	Reconcile(ctx context.Context, purchaseOrderID string) (*MatchResult, error)

	// GetMatch returns the stored match record for an order.
	GetMatch(ctx context.Context, purchaseOrderID string) (*core.MatchRecord, error)

	// InvoiceLines returns each invoice line with its resolution and provenance.
	InvoiceLines(ctx context.Context, invoiceID string) (*InvoiceLinesResult, error)

	// OverrideInvoiceLine pins a line to a stock item by hand and re-reconciles
	// the invoice's order, if any.
	OverrideInvoiceLine(ctx context.Context, req OverrideLineRequest) (*InvoiceLinesResult, error)

	// ApproveMatch records an approval if the role's rule covers the invoice
	// total and categories.
	ApproveMatch(ctx context.Context, req DecisionRequest) (*core.MatchRecord, error)

	// RejectMatch records a rejection by any role whose rule covers the invoice categories.
	RejectMatch(ctx context.Context, req DecisionRequest) (*core.MatchRecord, error)

	// EligibleApprovers lists the rules that could approve the order's invoice.
	// It never picks one; escalation is the caller's decision.
	EligibleApprovers(ctx context.Context, purchaseOrderID string) (*ApproversResult, error)

	// IngestInvoice extracts an invoice from text or an image, resolves its lines,
	// stores it, and reconciles the referenced order.
	IngestInvoice(ctx context.Context, req IngestInvoiceRequest) (*IngestResult, error)
}
