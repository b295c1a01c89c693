package core_test

import (
	"testing"

	"procurement-recon/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_CleanTripleHasNoDiscrepancies(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "20"), rline("SI-LET", "15"))
	inv := invoice(iline("SI-TOM", "Tomatoes", "20", "2.50"), iline("SI-LET", "Lettuce", "15", "3.20"))

	assert.Empty(t, core.Analyze(po, rr, inv, core.Tolerance{}))
}

func TestAnalyze_Quantity(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "18"), rline("SI-LET", "15"))

	ds := core.Analyze(po, rr, nil, core.Tolerance{})
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(t, core.DiscrepancyQuantity, d.Kind)
	assert.Equal(t, core.SourceReceiving, d.Source)
	assert.Equal(t, "SI-TOM", d.StockItemID)
	assert.True(t, d.Expected.Equal(dec("20")))
	assert.True(t, d.Observed.Equal(dec("18")))
	assert.True(t, d.Delta.Equal(dec("-2")), "delta = received - ordered, got %s", d.Delta)
}

func TestAnalyze_SplitReceivingLinesAreSummed(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "12"), rline("SI-LET", "15"), rline("SI-TOM", "8"))

	assert.Empty(t, core.Analyze(po, rr, nil, core.Tolerance{}))
}

func TestAnalyze_MissingItem(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "20"))

	ds := core.Analyze(po, rr, nil, core.Tolerance{})
	require.Len(t, ds, 1)
	assert.Equal(t, core.DiscrepancyMissingItem, ds[0].Kind)
	assert.Equal(t, "SI-LET", ds[0].StockItemID)
	assert.True(t, ds[0].Observed.IsZero())
	assert.True(t, ds[0].Delta.Equal(dec("-15")))
}

func TestAnalyze_Price(t *testing.T) {
	po := tomatoOrder(t)
	inv := invoice(iline("SI-TOM", "Tomatoes", "20", "2.75"), iline("SI-LET", "Lettuce", "15", "3.20"))

	t.Run("exact by default", func(t *testing.T) {
		ds := core.Analyze(po, nil, inv, core.Tolerance{})
		require.Len(t, ds, 1)
		assert.Equal(t, core.DiscrepancyPrice, ds[0].Kind)
		assert.Equal(t, core.SourceInvoice, ds[0].Source)
		assert.True(t, ds[0].Delta.Equal(dec("0.25")))
	})

	t.Run("within tolerance", func(t *testing.T) {
		assert.Empty(t, core.Analyze(po, nil, inv, core.Tolerance{UnitPrice: dec("0.25")}))
	})

	t.Run("beyond tolerance", func(t *testing.T) {
		assert.Len(t, core.Analyze(po, nil, inv, core.Tolerance{UnitPrice: dec("0.24")}), 1)
	})
}

func TestAnalyze_PriceKeepsLargestDeviationPerItem(t *testing.T) {
	po := tomatoOrder(t)
	inv := invoice(
		iline("SI-TOM", "Tomatoes A", "10", "2.60"),
		iline("SI-TOM", "Tomatoes B", "10", "2.20"),
	)

	ds := core.Analyze(po, nil, inv, core.Tolerance{})
	require.Len(t, ds, 1)
	assert.True(t, ds[0].Observed.Equal(dec("2.20")))
	assert.True(t, ds[0].Delta.Equal(dec("-0.30")))
}

func TestAnalyze_UnresolvedInvoiceLinesAreIgnored(t *testing.T) {
	po := tomatoOrder(t)
	inv := invoice(iline("", "Tomatoes but pricier", "20", "9.99"))

	assert.Empty(t, core.Analyze(po, nil, inv, core.Tolerance{}))
}

func TestAnalyze_ExtraItems(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "20"), rline("SI-LET", "15"), rline("SI-MLK", "6"))
	inv := invoice(
		iline("SI-TOM", "Tomatoes", "20", "2.50"),
		iline("SI-LET", "Lettuce", "15", "3.20"),
		iline("SI-MLK", "Milk", "4", "1.10"),
		iline("SI-MLK", "Milk", "2", "1.10"),
	)

	ds := core.Analyze(po, rr, inv, core.Tolerance{})
	require.Len(t, ds, 2)
	for _, d := range ds {
		assert.Equal(t, core.DiscrepancyExtraItem, d.Kind)
		assert.Equal(t, "SI-MLK", d.StockItemID)
		assert.True(t, d.Expected.IsZero())
		assert.True(t, d.Delta.Equal(dec("6")))
	}
	assert.Equal(t, core.SourceReceiving, ds[0].Source)
	assert.Equal(t, core.SourceInvoice, ds[1].Source)
}

func TestAnalyze_AbsentRecordsContributeNothing(t *testing.T) {
	assert.Empty(t, core.Analyze(tomatoOrder(t), nil, nil, core.Tolerance{}))
}

func TestAnalyze_StableOrdering(t *testing.T) {
	po := tomatoOrder(t)
	rr := receipt(rline("SI-TOM", "19"), rline("SI-MLK", "1"))
	inv := invoice(iline("SI-TOM", "Tomatoes", "19", "2.60"), iline("SI-LET", "Lettuce", "15", "3.00"))

	ds := core.Analyze(po, rr, inv, core.Tolerance{})

	type key struct {
		item string
		kind core.DiscrepancyKind
	}
	var got []key
	for _, d := range ds {
		got = append(got, key{d.StockItemID, d.Kind})
	}
	assert.Equal(t, []key{
		{"SI-LET", core.DiscrepancyPrice},
		{"SI-LET", core.DiscrepancyMissingItem},
		{"SI-MLK", core.DiscrepancyExtraItem},
		{"SI-TOM", core.DiscrepancyQuantity},
		{"SI-TOM", core.DiscrepancyPrice},
	}, got)

	for i := 0; i < 5; i++ {
		assert.Equal(t, ds, core.Analyze(po, rr, inv, core.Tolerance{}))
	}
}
