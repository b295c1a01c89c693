package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DiscrepancyKind classifies a difference between order, receipt and invoice.
type DiscrepancyKind string

const (
	DiscrepancyQuantity    DiscrepancyKind = "quantity"
	DiscrepancyPrice       DiscrepancyKind = "price"
	DiscrepancyMissingItem DiscrepancyKind = "missing-item"
	DiscrepancyExtraItem   DiscrepancyKind = "extra-item"
)

func (k DiscrepancyKind) rank() int {
	switch k {
	case DiscrepancyQuantity:
		return 0
	case DiscrepancyPrice:
		return 1
	case DiscrepancyMissingItem:
		return 2
	default:
		return 3
	}
}

// DiscrepancySource is the record the observed value was read from.
type DiscrepancySource string

const (
	SourceReceiving DiscrepancySource = "receiving"
	SourceInvoice   DiscrepancySource = "invoice"
)

// Discrepancy is one detected difference. It is derived from the current line
// data on every pass and never stored on its own.
type Discrepancy struct {
	Kind        DiscrepancyKind   `json:"kind"`
	Source      DiscrepancySource `json:"source"`
	StockItemID string            `json:"stock_item_id"`
	Expected    decimal.Decimal   `json:"expected"`
	Observed    decimal.Decimal   `json:"observed"`
	Delta       decimal.Decimal   `json:"delta"` // Observed - Expected
}

// Tolerance configures how far an invoiced unit price may drift from the
// ordered one before it counts as a discrepancy. The zero value means exact.
type Tolerance struct {
	UnitPrice decimal.Decimal
}

// Analyze compares the order against the receipt and the invoice.
// rr and inv may be nil; an absent record contributes no discrepancies.
// Invoice lines take part only through their resolved stock item.
func Analyze(po *PurchaseOrder, rr *ReceivingRecord, inv *Invoice, tol Tolerance) []Discrepancy {
	var out []Discrepancy

	if rr != nil {
		received := rr.ReceivedQuantities()
		for _, l := range po.Lines {
			got, ok := received[l.StockItemID]
			if !ok {
				out = append(out, Discrepancy{
					Kind:        DiscrepancyMissingItem,
					Source:      SourceReceiving,
					StockItemID: l.StockItemID,
					Expected:    l.Quantity,
					Observed:    decimal.Zero,
					Delta:       l.Quantity.Neg(),
				})
				continue
			}
			if !got.Equal(l.Quantity) {
				out = append(out, Discrepancy{
					Kind:        DiscrepancyQuantity,
					Source:      SourceReceiving,
					StockItemID: l.StockItemID,
					Expected:    l.Quantity,
					Observed:    got,
					Delta:       got.Sub(l.Quantity),
				})
			}
		}
		for itemID, qty := range received {
			if _, onOrder := po.Line(itemID); !onOrder {
				out = append(out, extraItem(SourceReceiving, itemID, qty))
			}
		}
	}

	if inv != nil {
		out = append(out, analyzeInvoice(po, inv, tol)...)
	}

	sortDiscrepancies(out)
	return out
}

func analyzeInvoice(po *PurchaseOrder, inv *Invoice, tol Tolerance) []Discrepancy {
	var out []Discrepancy
	worst := make(map[string]Discrepancy)
	extra := make(map[string]decimal.Decimal)
	var extraOrder []string

	for _, il := range inv.Lines {
		if il.StockItemID == nil {
			continue
		}
		itemID := *il.StockItemID
		ol, onOrder := po.Line(itemID)
		if !onOrder {
			if _, seen := extra[itemID]; !seen {
				extraOrder = append(extraOrder, itemID)
			}
			extra[itemID] = extra[itemID].Add(il.Quantity)
			continue
		}
		delta := il.UnitPrice.Sub(ol.UnitPrice)
		if delta.Abs().LessThanOrEqual(tol.UnitPrice) {
			continue
		}
		// keep the largest deviation per item; first line wins ties
		if prev, ok := worst[itemID]; ok && delta.Abs().LessThanOrEqual(prev.Delta.Abs()) {
			continue
		}
		worst[itemID] = Discrepancy{
			Kind:        DiscrepancyPrice,
			Source:      SourceInvoice,
			StockItemID: itemID,
			Expected:    ol.UnitPrice,
			Observed:    il.UnitPrice,
			Delta:       delta,
		}
	}

	for _, d := range worst {
		out = append(out, d)
	}
	for _, itemID := range extraOrder {
		out = append(out, extraItem(SourceInvoice, itemID, extra[itemID]))
	}
	return out
}

func extraItem(src DiscrepancySource, itemID string, qty decimal.Decimal) Discrepancy {
	return Discrepancy{
		Kind:        DiscrepancyExtraItem,
		Source:      src,
		StockItemID: itemID,
		Expected:    decimal.Zero,
		Observed:    qty,
		Delta:       qty,
	}
}

func sortDiscrepancies(ds []Discrepancy) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.StockItemID != b.StockItemID {
			return a.StockItemID < b.StockItemID
		}
		if a.Kind != b.Kind {
			return a.Kind.rank() < b.Kind.rank()
		}
		return a.Source == SourceReceiving && b.Source == SourceInvoice
	})
}
