package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Urgency is the buyer-assigned priority tier of a purchase order.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// PurchaseOrder is a buyer's order to one supplier.
// TotalAmount always equals the sum of the line totals.
type PurchaseOrder struct {
	ID                 string              `json:"id"`
	SupplierID         string              `json:"supplier_id"`
	OrderedAt          time.Time           `json:"ordered_at"`
	ExpectedDeliveryAt *time.Time          `json:"expected_delivery_at,omitempty"`
	OrderedBy          string              `json:"ordered_by"`
	Urgency            Urgency             `json:"urgency"`
	Lines              []PurchaseOrderLine `json:"lines"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
}

// PurchaseOrderLine is one ordered stock item. LineTotal = Quantity × UnitPrice, to the cent.
type PurchaseOrderLine struct {
	StockItemID string          `json:"stock_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// PurchaseOrderLineInput holds the fields a buyer supplies for one order line.
type PurchaseOrderLineInput struct {
	StockItemID string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// ReceivingRecord is the goods receipt recorded against exactly one purchase order.
type ReceivingRecord struct {
	ID              string          `json:"id"`
	PurchaseOrderID string          `json:"purchase_order_id"`
	ReceivedAt      time.Time       `json:"received_at"`
	ReceivedBy      string          `json:"received_by"`
	Lines           []ReceivingLine `json:"lines"`
}

// ReceivingLine is the quantity of one stock item physically received.
type ReceivingLine struct {
	StockItemID string          `json:"stock_item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Condition   string          `json:"condition,omitempty"`
}

// Provenance records how an invoice line was tied to a stock item.
type Provenance string

const (
	ProvenanceUnmatched Provenance = "unmatched"
	ProvenanceAuto      Provenance = "auto"
	ProvenanceManual    Provenance = "manual"
)

// Invoice is a supplier's bill. Line resolutions may change only while the
// invoice is pending approval.
type Invoice struct {
	ID                string          `json:"id"`
	PurchaseOrderID   *string         `json:"purchase_order_id,omitempty"`
	SupplierID        string          `json:"supplier_id"`
	IssuedAt          time.Time       `json:"issued_at"`
	DueAt             *time.Time      `json:"due_at,omitempty"`
	SupplierReference string          `json:"supplier_reference"`
	Lines             []InvoiceLine   `json:"lines"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Approval          ApprovalState   `json:"approval"`
}

// InvoiceLine is a line as issued by the supplier, plus its resolution.
type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	StockItemID *string         `json:"stock_item_id,omitempty"`
	Provenance  Provenance      `json:"provenance"`
}

// NewPurchaseOrder builds an order with line and header totals computed from the inputs.
func NewPurchaseOrder(id, supplierID, orderedBy string, orderedAt time.Time, urgency Urgency, lines []PurchaseOrderLineInput) (*PurchaseOrder, error) {
	po := &PurchaseOrder{
		ID:         id,
		SupplierID: supplierID,
		OrderedAt:  orderedAt,
		OrderedBy:  orderedBy,
		Urgency:    urgency,
	}
	if po.Urgency == "" {
		po.Urgency = UrgencyNormal
	}
	total := decimal.Zero
	for _, in := range lines {
		lt := in.Quantity.Mul(in.UnitPrice).Round(2)
		po.Lines = append(po.Lines, PurchaseOrderLine{
			StockItemID: in.StockItemID,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineTotal:   lt,
		})
		total = total.Add(lt)
	}
	po.TotalAmount = total
	if err := po.Validate(); err != nil {
		return nil, err
	}
	return po, nil
}

// Validate enforces the order's integrity rules. Violations come from upstream
// data and are reported, not repaired.
func (po *PurchaseOrder) Validate() error {
	if strings.TrimSpace(po.ID) == "" {
		return invalidRecord("purchase_order", "", "missing identity")
	}
	if len(po.Lines) == 0 {
		return invalidRecord("purchase_order", po.ID, "order has no lines")
	}

	seen := make(map[string]bool, len(po.Lines))
	sum := decimal.Zero
	for i, l := range po.Lines {
		if l.StockItemID == "" {
			return invalidRecord("purchase_order", po.ID, "line %d has no stock item", i+1)
		}
		if seen[l.StockItemID] {
			return invalidRecord("purchase_order", po.ID, "stock item %s ordered on more than one line", l.StockItemID)
		}
		seen[l.StockItemID] = true
		if !l.Quantity.IsPositive() {
			return invalidRecord("purchase_order", po.ID, "line %d quantity must be > 0, got %s", i+1, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return invalidRecord("purchase_order", po.ID, "line %d unit price must be >= 0, got %s", i+1, l.UnitPrice)
		}
		want := l.Quantity.Mul(l.UnitPrice).Round(2)
		if !l.LineTotal.Round(2).Equal(want) {
			return invalidRecord("purchase_order", po.ID, "line %d total %s != quantity x price %s",
				i+1, l.LineTotal.StringFixed(2), want.StringFixed(2))
		}
		sum = sum.Add(l.LineTotal)
	}
	if !po.TotalAmount.Round(2).Equal(sum.Round(2)) {
		return invalidRecord("purchase_order", po.ID, "total %s != sum of lines %s",
			po.TotalAmount.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

// Line returns the order line for a stock item.
func (po *PurchaseOrder) Line(stockItemID string) (PurchaseOrderLine, bool) {
	for _, l := range po.Lines {
		if l.StockItemID == stockItemID {
			return l, true
		}
	}
	return PurchaseOrderLine{}, false
}

// ReceivedQuantities sums received quantities per stock item.
func (rr *ReceivingRecord) ReceivedQuantities() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rr.Lines))
	for _, l := range rr.Lines {
		out[l.StockItemID] = out[l.StockItemID].Add(l.Quantity)
	}
	return out
}

// Frozen reports whether line resolutions are locked by an approval decision.
func (inv *Invoice) Frozen() bool {
	return inv.Approval == ApprovalApproved || inv.Approval == ApprovalRejected
}

// ResolvedItemIDs returns the distinct stock items referenced by resolved lines, sorted.
func (inv *Invoice) ResolvedItemIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range inv.Lines {
		if l.StockItemID == nil || seen[*l.StockItemID] {
			continue
		}
		seen[*l.StockItemID] = true
		out = append(out, *l.StockItemID)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy; resolution operations never mutate their input.
func (inv *Invoice) Clone() Invoice {
	out := *inv
	out.Lines = make([]InvoiceLine, len(inv.Lines))
	for i, l := range inv.Lines {
		if l.StockItemID != nil {
			id := *l.StockItemID
			l.StockItemID = &id
		}
		out.Lines[i] = l
	}
	if inv.PurchaseOrderID != nil {
		id := *inv.PurchaseOrderID
		out.PurchaseOrderID = &id
	}
	return out
}
