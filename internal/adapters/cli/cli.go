package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"procurement-recon/internal/app"
	"procurement-recon/internal/core"
)

// Usage lists the one-shot commands.
const Usage = `Usage: recon [--json] <command> [args]

Commands:
  reconcile <po>                      recompute and store the match record
  match <po>                          show the stored match record
  approvers <po>                      list roles that could approve the invoice
  approve <po> <actor> <role>         approve the match
  reject <po> <actor> <role>          reject the match
  lines <invoice>                     show invoice line resolutions
  override <invoice> <line> <item>    pin invoice line (1-based) to a stock item`

// Run executes a one-shot CLI command, writing its result to out.
// args is os.Args[1:]; a leading --json switches output to JSON.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	asJSON := false
	if len(args) > 0 && args[0] == "--json" {
		asJSON = true
		args = args[1:]
	}
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", Usage)
	}

	emit := func(v any, text func()) error {
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		text()
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "reconcile", "rec", "r":
		if len(rest) != 1 {
			return usageError("reconcile <po>")
		}
		result, err := svc.Reconcile(ctx, rest[0])
		if err != nil {
			return fmt.Errorf("reconcile failed: %w", err)
		}
		return emit(result, func() {
			printMatch(out, &result.Record)
			if len(result.Lines) > 0 {
				fmt.Fprintf(out, "\n  Invoice lines resolved: %d%%\n", result.LinePercentage)
				printLines(out, result.Lines)
			}
		})

	case "match", "m":
		if len(rest) != 1 {
			return usageError("match <po>")
		}
		rec, err := svc.GetMatch(ctx, rest[0])
		if err != nil {
			return fmt.Errorf("get match failed: %w", err)
		}
		return emit(rec, func() { printMatch(out, rec) })

	case "approvers":
		if len(rest) != 1 {
			return usageError("approvers <po>")
		}
		result, err := svc.EligibleApprovers(ctx, rest[0])
		if err != nil {
			return fmt.Errorf("list approvers failed: %w", err)
		}
		return emit(result, func() { printApprovers(out, result) })

	case "approve", "reject":
		if len(rest) != 3 {
			return usageError(cmd + " <po> <actor> <role>")
		}
		req := app.DecisionRequest{PurchaseOrderID: rest[0], Actor: rest[1], Role: rest[2]}
		decide := svc.ApproveMatch
		if cmd == "reject" {
			decide = svc.RejectMatch
		}
		rec, err := decide(ctx, req)
		if err != nil {
			return fmt.Errorf("%s failed: %w", cmd, err)
		}
		return emit(rec, func() { printMatch(out, rec) })

	case "lines":
		if len(rest) != 1 {
			return usageError("lines <invoice>")
		}
		result, err := svc.InvoiceLines(ctx, rest[0])
		if err != nil {
			return fmt.Errorf("get invoice lines failed: %w", err)
		}
		return emit(result, func() { printInvoiceLines(out, result) })

	case "override":
		if len(rest) != 3 {
			return usageError("override <invoice> <line> <item>")
		}
		line, err := strconv.Atoi(rest[1])
		if err != nil || line < 1 {
			return fmt.Errorf("line must be a positive integer, got %q", rest[1])
		}
		result, err := svc.OverrideInvoiceLine(ctx, app.OverrideLineRequest{
			InvoiceID:   rest[0],
			LineNumber:  line,
			StockItemID: rest[2],
		})
		if err != nil {
			return fmt.Errorf("override failed: %w", err)
		}
		return emit(result, func() {
			printInvoiceLines(out, result)
			if result.Match != nil {
				fmt.Fprintln(out)
				printMatch(out, result.Match)
			}
		})

	default:
		return fmt.Errorf("unknown command: %s\n%s", cmd, Usage)
	}
}

func usageError(form string) error {
	return fmt.Errorf("usage: recon %s", form)
}

func printMatch(out io.Writer, rec *core.MatchRecord) {
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  Purchase order : %s\n", rec.PurchaseOrderID)
	fmt.Fprintf(out, "  Status         : %s (%d%%)\n", rec.Status, rec.MatchPercentage)
	fmt.Fprintf(out, "  Approval       : %s", rec.Approval)
	if d := rec.Decision(); d != nil {
		fmt.Fprintf(out, " by %s (%s)", d.Actor, d.Role)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	if len(rec.Discrepancies) == 0 {
		fmt.Fprintln(out, "  No discrepancies.")
		return
	}
	fmt.Fprintf(out, "  %-12s %-10s %-12s %10s %10s %10s\n", "KIND", "SOURCE", "ITEM", "EXPECTED", "OBSERVED", "DELTA")
	for _, d := range rec.Discrepancies {
		fmt.Fprintf(out, "  %-12s %-10s %-12s %10s %10s %10s\n",
			d.Kind, d.Source, d.StockItemID, d.Expected.String(), d.Observed.String(), d.Delta.String())
	}
}

func printApprovers(out io.Writer, result *app.ApproversResult) {
	fmt.Fprintf(out, "  Invoice total : %s\n", result.InvoiceTotal.StringFixed(2))
	fmt.Fprintf(out, "  Categories    : %s\n", strings.Join(result.Categories, ", "))
	if len(result.Approvers) == 0 {
		fmt.Fprintln(out, "  No role can approve this invoice.")
		return
	}
	fmt.Fprintf(out, "  %-20s %12s  %s\n", "ROLE", "LIMIT", "CATEGORIES")
	for _, r := range result.Approvers {
		scope := core.AllCategories
		if !r.CoversAll() {
			scope = strings.Join(r.Categories, ", ")
		}
		fmt.Fprintf(out, "  %-20s %12s  %s\n", r.Role, r.SpendLimit.StringFixed(2), scope)
	}
}

func printInvoiceLines(out io.Writer, result *app.InvoiceLinesResult) {
	fmt.Fprintf(out, "  Invoice %s (%s), %d%% of lines resolved\n", result.InvoiceID, result.Approval, result.LinePercentage)
	printLines(out, result.Lines)
}

func printLines(out io.Writer, lines []app.InvoiceLineView) {
	fmt.Fprintf(out, "  %-4s %-28s %8s %10s  %-12s %s\n", "#", "DESCRIPTION", "QTY", "PRICE", "ITEM", "VIA")
	for _, l := range lines {
		item := "-"
		if l.StockItemID != nil {
			item = *l.StockItemID
		}
		fmt.Fprintf(out, "  %-4d %-28s %8s %10s  %-12s %s\n",
			l.Number, truncate(l.Description, 28), l.Quantity.String(), l.UnitPrice.StringFixed(2), item, l.Provenance)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
