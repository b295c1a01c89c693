package app

import (
	"procurement-recon/internal/core"

	"github.com/shopspring/decimal"
)

// MatchResult is returned by Reconcile.
type MatchResult struct {
	Record         core.MatchRecord  `json:"record"`
	LinePercentage int               `json:"line_match_percentage"`
	Lines          []InvoiceLineView `json:"invoice_lines"`
}

// InvoiceLineView is an invoice line with its resolved catalog name.
type InvoiceLineView struct {
	Number        int             `json:"line"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
	StockItemID   *string         `json:"stock_item_id,omitempty"`
	StockItemName string          `json:"stock_item_name,omitempty"`
	Provenance    core.Provenance `json:"provenance"`
}

// InvoiceLinesResult is returned by InvoiceLines and OverrideInvoiceLine.
// Match is set when an override triggered a reconciliation.
type InvoiceLinesResult struct {
	InvoiceID      string             `json:"invoice_id"`
	Approval       core.ApprovalState `json:"approval"`
	LinePercentage int                `json:"line_match_percentage"`
	Lines          []InvoiceLineView  `json:"lines"`
	Match          *core.MatchRecord  `json:"match,omitempty"`
}

// ApproversResult is returned by EligibleApprovers.
type ApproversResult struct {
	PurchaseOrderID string              `json:"purchase_order_id"`
	InvoiceTotal    decimal.Decimal     `json:"invoice_total"`
	Categories      []string            `json:"categories"`
	Approvers       []core.ApprovalRule `json:"approvers"`
}

// IngestResult is returned by IngestInvoice.
type IngestResult struct {
	Invoice        core.Invoice      `json:"invoice"`
	LinePercentage int               `json:"line_match_percentage"`
	Match          *core.MatchRecord `json:"match,omitempty"`
}
