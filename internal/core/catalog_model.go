package core

// StockItem is canonical reference data for something the kitchen buys.
// Records are owned by catalog management and are read-only here.
type StockItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Unit        string   `json:"unit"`
	Category    string   `json:"category"`
	SupplierIDs []string `json:"supplier_ids,omitempty"` // empty = any supplier
}

// SuppliedBy reports whether the item may be bought from supplierID.
func (s StockItem) SuppliedBy(supplierID string) bool {
	if len(s.SupplierIDs) == 0 {
		return true
	}
	for _, id := range s.SupplierIDs {
		if id == supplierID {
			return true
		}
	}
	return false
}
