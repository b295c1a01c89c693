package core_test

import (
	"errors"
	"testing"

	"procurement-recon/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Lookup(t *testing.T) {
	c := produceCatalog(t)

	t.Run("known item", func(t *testing.T) {
		it, err := c.Lookup("SI-TOM")
		require.NoError(t, err)
		assert.Equal(t, "Tomatoes", it.Name)
		assert.Equal(t, "kg", it.Unit)
	})

	t.Run("unknown item is NotFound", func(t *testing.T) {
		_, err := c.Lookup("SI-NOPE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestNewCatalog_RejectsBadIdentities(t *testing.T) {
	_, err := core.NewCatalog([]core.StockItem{{ID: "A", Name: "x"}, {ID: "A", Name: "y"}})
	assert.ErrorIs(t, err, core.ErrInvalidRecord)

	_, err = core.NewCatalog([]core.StockItem{{ID: "  ", Name: "blank"}})
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func TestCatalog_ItemsSortedByID(t *testing.T) {
	items := produceCatalog(t).Items()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"SI-LET", "SI-MLK", "SI-RIB", "SI-STK", "SI-TOM"}, ids)
}

func TestCatalog_ForSupplier(t *testing.T) {
	c := produceCatalog(t)

	veg := c.ForSupplier("SUP-VEG")
	for _, it := range veg {
		assert.NotEqual(t, "Meat", it.Category, "meat is restricted to SUP-MEAT")
	}
	assert.Len(t, veg, 3)
	assert.Len(t, c.ForSupplier("SUP-MEAT"), 5)
}

func TestCatalog_Categories(t *testing.T) {
	c := produceCatalog(t)

	cats, err := c.Categories([]string{"SI-TOM", "SI-RIB", "SI-LET"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Meat", "Produce"}, cats)

	_, err = c.Categories([]string{"SI-TOM", "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
