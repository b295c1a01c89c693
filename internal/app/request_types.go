package app

// OverrideLineRequest is the input for OverrideInvoiceLine.
type OverrideLineRequest struct {
	InvoiceID   string
	LineNumber  int // 1-based
	StockItemID string
}

// DecisionRequest is the input for ApproveMatch and RejectMatch.
// Actor and Role come from the authenticated caller, never the request body.
type DecisionRequest struct {
	PurchaseOrderID string
	Actor           string
	Role            string
}

// IngestInvoiceRequest is the input for IngestInvoice. Exactly one of Text or
// Image is set. SupplierID defaults to the order's supplier.
type IngestInvoiceRequest struct {
	PurchaseOrderID string
	SupplierID      string
	Text            string
	Image           *Attachment
}
