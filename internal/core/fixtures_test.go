package core_test

import (
	"testing"
	"time"

	"procurement-recon/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

var orderedAt = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func produceCatalog(t *testing.T) *core.Catalog {
	t.Helper()
	c, err := core.NewCatalog([]core.StockItem{
		{ID: "SI-TOM", Name: "Tomatoes", Unit: "kg", Category: "Produce"},
		{ID: "SI-LET", Name: "Lettuce", Unit: "kg", Category: "Produce"},
		{ID: "SI-RIB", Name: "Ribeye Steak", Unit: "kg", Category: "Meat", SupplierIDs: []string{"SUP-MEAT"}},
		{ID: "SI-STK", Name: "Steak", Unit: "kg", Category: "Meat", SupplierIDs: []string{"SUP-MEAT"}},
		{ID: "SI-MLK", Name: "Whole Milk", Unit: "l", Category: "Dairy"},
	})
	require.NoError(t, err)
	return c
}

// tomatoOrder is 20kg tomatoes @ 2.50 and 15kg lettuce @ 3.20, total 98.00.
func tomatoOrder(t *testing.T) *core.PurchaseOrder {
	t.Helper()
	po, err := core.NewPurchaseOrder("PO-1001", "SUP-VEG", "chef.ana", orderedAt, core.UrgencyNormal,
		[]core.PurchaseOrderLineInput{
			{StockItemID: "SI-TOM", Quantity: dec("20"), UnitPrice: dec("2.50")},
			{StockItemID: "SI-LET", Quantity: dec("15"), UnitPrice: dec("3.20")},
		})
	require.NoError(t, err)
	return po
}

func receipt(lines ...core.ReceivingLine) *core.ReceivingRecord {
	return &core.ReceivingRecord{
		ID:              "RR-1",
		PurchaseOrderID: "PO-1001",
		ReceivedAt:      orderedAt.Add(48 * time.Hour),
		ReceivedBy:      "porter.li",
		Lines:           lines,
	}
}

func rline(item, qty string) core.ReceivingLine {
	return core.ReceivingLine{StockItemID: item, Quantity: dec(qty), Condition: "good"}
}

func invoice(lines ...core.InvoiceLine) *core.Invoice {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return &core.Invoice{
		ID:                "INV-1",
		PurchaseOrderID:   strPtr("PO-1001"),
		SupplierID:        "SUP-VEG",
		IssuedAt:          orderedAt.Add(72 * time.Hour),
		SupplierReference: "FV-2024-118",
		Lines:             lines,
		TotalAmount:       total,
		Approval:          core.ApprovalPending,
	}
}

func iline(item, desc, qty, price string) core.InvoiceLine {
	l := core.InvoiceLine{
		Description: desc,
		Quantity:    dec(qty),
		UnitPrice:   dec(price),
		LineTotal:   dec(qty).Mul(dec(price)).Round(2),
		Provenance:  core.ProvenanceUnmatched,
	}
	if item != "" {
		l.StockItemID = strPtr(item)
		l.Provenance = core.ProvenanceAuto
	}
	return l
}
