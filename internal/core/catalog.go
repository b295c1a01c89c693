package core

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is an immutable, identity-indexed view over stock items.
// A Catalog is safe for concurrent use once constructed.
type Catalog struct {
	byID  map[string]StockItem
	items []StockItem // sorted by ID
}

// NewCatalog indexes items by ID. Blank or duplicate IDs are invalid records.
func NewCatalog(items []StockItem) (*Catalog, error) {
	c := &Catalog{
		byID:  make(map[string]StockItem, len(items)),
		items: make([]StockItem, 0, len(items)),
	}
	for _, it := range items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return nil, invalidRecord("catalog", "", "stock item %q has no identity", it.Name)
		}
		if _, dup := c.byID[id]; dup {
			return nil, invalidRecord("catalog", id, "duplicate stock item identity")
		}
		it.ID = id
		c.byID[id] = it
		c.items = append(c.items, it)
	}
	sort.Slice(c.items, func(i, j int) bool { return c.items[i].ID < c.items[j].ID })
	return c, nil
}

// Lookup returns the canonical record for id.
func (c *Catalog) Lookup(id string) (StockItem, error) {
	it, ok := c.byID[id]
	if !ok {
		return StockItem{}, fmt.Errorf("stock item %q: %w", id, ErrNotFound)
	}
	return it, nil
}

// Items returns every stock item ordered by ID.
func (c *Catalog) Items() []StockItem {
	out := make([]StockItem, len(c.items))
	copy(out, c.items)
	return out
}

// ForSupplier returns the items that supplierID may deliver, ordered by ID.
func (c *Catalog) ForSupplier(supplierID string) []StockItem {
	var out []StockItem
	for _, it := range c.items {
		if it.SuppliedBy(supplierID) {
			out = append(out, it)
		}
	}
	return out
}

// Categories returns the distinct, sorted categories of the given items.
func (c *Catalog) Categories(ids []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		it, err := c.Lookup(id)
		if err != nil {
			return nil, err
		}
		if !seen[it.Category] {
			seen[it.Category] = true
			out = append(out, it.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}
