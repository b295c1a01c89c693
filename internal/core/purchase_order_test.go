package core_test

import (
	"testing"

	"procurement-recon/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPurchaseOrder_Totals(t *testing.T) {
	tests := []struct {
		name  string
		lines []core.PurchaseOrderLineInput
		total string
	}{
		{
			name: "produce order",
			lines: []core.PurchaseOrderLineInput{
				{StockItemID: "SI-TOM", Quantity: dec("20"), UnitPrice: dec("2.50")},
				{StockItemID: "SI-LET", Quantity: dec("15"), UnitPrice: dec("3.20")},
			},
			total: "98.00",
		},
		{
			name: "fractional quantities round to the cent",
			lines: []core.PurchaseOrderLineInput{
				{StockItemID: "SI-RIB", Quantity: dec("2.333"), UnitPrice: dec("31.99")},
				{StockItemID: "SI-MLK", Quantity: dec("12"), UnitPrice: dec("1.0499")},
			},
			total: "87.23", // 74.63 + 12.60
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po, err := core.NewPurchaseOrder("PO-T", "SUP", "buyer", orderedAt, "", tt.lines)
			require.NoError(t, err)
			assert.Equal(t, core.UrgencyNormal, po.Urgency)
			assert.Equal(t, tt.total, po.TotalAmount.StringFixed(2))

			sum := decimal.Zero
			for _, l := range po.Lines {
				assert.True(t, l.LineTotal.Equal(l.Quantity.Mul(l.UnitPrice).Round(2)))
				sum = sum.Add(l.LineTotal)
			}
			assert.True(t, po.TotalAmount.Equal(sum))
		})
	}
}

func TestPurchaseOrder_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(po *core.PurchaseOrder)
	}{
		{name: "no lines", mutate: func(po *core.PurchaseOrder) { po.Lines = nil }},
		{name: "missing id", mutate: func(po *core.PurchaseOrder) { po.ID = "" }},
		{name: "zero quantity", mutate: func(po *core.PurchaseOrder) {
			po.Lines[0].Quantity = dec("0")
			po.Lines[0].LineTotal = dec("0")
			po.TotalAmount = dec("48")
		}},
		{name: "negative price", mutate: func(po *core.PurchaseOrder) { po.Lines[1].UnitPrice = dec("-3.20") }},
		{name: "header total drift", mutate: func(po *core.PurchaseOrder) { po.TotalAmount = dec("98.01") }},
		{name: "duplicate item", mutate: func(po *core.PurchaseOrder) { po.Lines[1].StockItemID = "SI-TOM" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			po := tomatoOrder(t)
			tt.mutate(po)
			assert.ErrorIs(t, po.Validate(), core.ErrInvalidRecord)
		})
	}

	t.Run("valid order", func(t *testing.T) {
		assert.NoError(t, tomatoOrder(t).Validate())
	})
}

func TestInvoice_ResolvedItemIDs(t *testing.T) {
	inv := invoice(
		iline("SI-TOM", "a", "1", "1"),
		iline("", "b", "1", "1"),
		iline("SI-LET", "c", "1", "1"),
		iline("SI-TOM", "d", "1", "1"),
	)
	assert.Equal(t, []string{"SI-LET", "SI-TOM"}, inv.ResolvedItemIDs())
}
