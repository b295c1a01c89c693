package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus is the overall outcome of a three-way match.
type MatchStatus string

const (
	StatusNoMatch      MatchStatus = "No Match"
	StatusPartialMatch MatchStatus = "Partial Match"
	StatusMatched      MatchStatus = "Matched"
)

// MatchRecord is the reconciliation of one purchase order with at most one
// receipt and at most one invoice. Everything except the decision fields is a
// pure function of those inputs and the tolerance.
type MatchRecord struct {
	PurchaseOrderID   string        `json:"purchase_order_id"`
	ReceivingRecordID *string       `json:"receiving_record_id,omitempty"`
	InvoiceID         *string       `json:"invoice_id,omitempty"`
	Status            MatchStatus   `json:"status"`
	MatchPercentage   int           `json:"match_percentage"`
	Discrepancies     []Discrepancy `json:"discrepancies"`
	Approval          ApprovalState `json:"approval"`
	DecidedBy         string        `json:"decided_by,omitempty"`
	DecidedRole       string        `json:"decided_role,omitempty"`
	DecidedAt         *time.Time    `json:"decided_at,omitempty"`
}

// Decision returns the recorded decision, or nil while pending.
func (m MatchRecord) Decision() *Decision {
	if m.Approval != ApprovalApproved && m.Approval != ApprovalRejected {
		return nil
	}
	d := &Decision{State: m.Approval, Actor: m.DecidedBy, Role: m.DecidedRole}
	if m.DecidedAt != nil {
		d.At = *m.DecidedAt
	}
	return d
}

// WithDecisionFrom carries a decision from a previously stored record onto a
// freshly computed one, so recomputation never loses an approval. A decision
// belongs to the invoice it was made on: when the invoice changes or is gone
// the fresh record stays Pending.
func (m MatchRecord) WithDecisionFrom(prev *MatchRecord) MatchRecord {
	if prev == nil || prev.Decision() == nil {
		return m
	}
	if prev.InvoiceID == nil || m.InvoiceID == nil || *prev.InvoiceID != *m.InvoiceID {
		return m
	}
	m.Approval = prev.Approval
	m.DecidedBy = prev.DecidedBy
	m.DecidedRole = prev.DecidedRole
	m.DecidedAt = prev.DecidedAt
	return m
}

// Engine derives match records. It holds only configuration and is safe for
// concurrent use.
type Engine struct {
	Tolerance Tolerance
}

// NewEngine returns an Engine with the given price tolerance.
func NewEngine(tol Tolerance) *Engine {
	return &Engine{Tolerance: tol}
}

var hundred = decimal.NewFromInt(100)

// Reconcile computes the match record for an order, its receipt and its invoice.
// Either record may be nil. The order must be internally consistent and both
// records must reference it.
func (e *Engine) Reconcile(po *PurchaseOrder, rr *ReceivingRecord, inv *Invoice) (MatchRecord, error) {
	if err := po.Validate(); err != nil {
		return MatchRecord{}, err
	}
	if rr != nil && rr.PurchaseOrderID != po.ID {
		return MatchRecord{}, invalidRecord("receiving_record", rr.ID,
			"references purchase order %s, not %s", rr.PurchaseOrderID, po.ID)
	}
	if inv != nil && (inv.PurchaseOrderID == nil || *inv.PurchaseOrderID != po.ID) {
		ref := "none"
		if inv.PurchaseOrderID != nil {
			ref = *inv.PurchaseOrderID
		}
		return MatchRecord{}, invalidRecord("invoice", inv.ID,
			"references purchase order %s, not %s", ref, po.ID)
	}

	ds := Analyze(po, rr, inv, e.Tolerance)
	rec := MatchRecord{
		PurchaseOrderID: po.ID,
		Discrepancies:   ds,
		Approval:        ApprovalPending,
	}
	if rec.Discrepancies == nil {
		rec.Discrepancies = []Discrepancy{}
	}
	if rr != nil {
		id := rr.ID
		rec.ReceivingRecordID = &id
	}
	if inv != nil {
		id := inv.ID
		rec.InvoiceID = &id
	}

	rec.Status = matchStatus(po, rr, inv, ds)
	rec.MatchPercentage = MatchPercentage(po, ds)
	return rec, nil
}

func matchStatus(po *PurchaseOrder, rr *ReceivingRecord, inv *Invoice, ds []Discrepancy) MatchStatus {
	if rr == nil || inv == nil {
		return StatusNoMatch
	}
	if len(ds) == 0 {
		return StatusMatched
	}
	for _, d := range ds {
		if d.Kind != DiscrepancyQuantity && d.Kind != DiscrepancyMissingItem {
			continue
		}
		ol, ok := po.Line(d.StockItemID)
		if ok && d.Delta.Abs().GreaterThanOrEqual(ol.Quantity) {
			return StatusNoMatch
		}
	}
	return StatusPartialMatch
}

// MatchPercentage scores a discrepancy set against the order:
// 100 - min(100, round(100 × Σ normalized |delta| / ordered lines)).
// Quantity deltas are normalized by the ordered quantity, price deltas by the
// ordered price, and each extra item counts as one whole line.
func MatchPercentage(po *PurchaseOrder, ds []Discrepancy) int {
	if len(po.Lines) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, d := range ds {
		sum = sum.Add(normalizedDelta(po, d))
	}
	penalty := sum.Mul(hundred).Div(decimal.NewFromInt(int64(len(po.Lines)))).Round(0)
	if penalty.GreaterThan(hundred) {
		penalty = hundred
	}
	return int(hundred.Sub(penalty).IntPart())
}

func normalizedDelta(po *PurchaseOrder, d Discrepancy) decimal.Decimal {
	ol, ok := po.Line(d.StockItemID)
	if !ok || d.Kind == DiscrepancyExtraItem {
		return decimal.NewFromInt(1)
	}
	var base decimal.Decimal
	switch d.Kind {
	case DiscrepancyPrice:
		base = ol.UnitPrice
	default:
		base = ol.Quantity
	}
	if base.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d.Delta.Abs().Div(base)
}
