package core

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeText case-folds s, trims it and collapses inner whitespace runs.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// MatchLine picks the stock item a free-text invoice description refers to.
//
// An item is a candidate when either normalized string contains the other.
// This is a plain substring test, not fuzzy matching. The longest candidate
// name wins and ties go to the smallest ID, so the result does not depend on
// the order of items.
func MatchLine(description string, items []StockItem) (*string, Provenance) {
	desc := NormalizeText(description)
	if desc == "" {
		return nil, ProvenanceUnmatched
	}

	var best *StockItem
	bestLen := 0
	for i := range items {
		name := NormalizeText(items[i].Name)
		if name == "" {
			continue
		}
		if !strings.Contains(desc, name) && !strings.Contains(name, desc) {
			continue
		}
		n := len([]rune(name))
		if best == nil || n > bestLen || (n == bestLen && items[i].ID < best.ID) {
			best = &items[i]
			bestLen = n
		}
	}
	if best == nil {
		return nil, ProvenanceUnmatched
	}
	id := best.ID
	return &id, ProvenanceAuto
}

// AutoResolve runs MatchLine over every line that was not resolved by hand.
// The input invoice is left untouched.
func AutoResolve(inv *Invoice, items []StockItem) (Invoice, error) {
	if inv.Frozen() {
		return Invoice{}, fmt.Errorf("auto-resolve invoice %s: %w", inv.ID, ErrInvoiceFrozen)
	}
	out := inv.Clone()
	for i := range out.Lines {
		if out.Lines[i].Provenance == ProvenanceManual {
			continue
		}
		out.Lines[i].StockItemID, out.Lines[i].Provenance = MatchLine(out.Lines[i].Description, items)
	}
	return out, nil
}

// OverrideLine pins line lineIndex to stockItemID. Manual resolutions survive
// later automatic passes.
func OverrideLine(inv *Invoice, lineIndex int, stockItemID string, catalog *Catalog) (Invoice, error) {
	if inv.Frozen() {
		return Invoice{}, fmt.Errorf("override line on invoice %s: %w", inv.ID, ErrInvoiceFrozen)
	}
	if lineIndex < 0 || lineIndex >= len(inv.Lines) {
		return Invoice{}, invalidRecord("invoice", inv.ID, "line %d out of range (%d lines)", lineIndex+1, len(inv.Lines))
	}
	item, err := catalog.Lookup(stockItemID)
	if err != nil {
		return Invoice{}, err
	}
	out := inv.Clone()
	id := item.ID
	out.Lines[lineIndex].StockItemID = &id
	out.Lines[lineIndex].Provenance = ProvenanceManual
	return out, nil
}

// LineMatchPercentage is the share of invoice lines with a resolution, 0–100.
// An invoice without lines scores 0.
func LineMatchPercentage(inv *Invoice) int {
	total := len(inv.Lines)
	if total == 0 {
		return 0
	}
	resolved := 0
	for _, l := range inv.Lines {
		if l.StockItemID != nil {
			resolved++
		}
	}
	return (resolved*100*2 + total) / (total * 2)
}
