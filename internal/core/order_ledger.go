package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderLedger is the persistence boundary of reconciliation: reads of the
// source records and writes of computed results and decisions.
type OrderLedger interface {
	// GetPurchaseOrder returns an order with its lines, or ErrNotFound.
	GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error)

	// GetReceivingRecord returns the latest receipt for an order, or nil if none exists.
	GetReceivingRecord(ctx context.Context, purchaseOrderID string) (*ReceivingRecord, error)

	// GetInvoiceForOrder returns the latest invoice referencing an order, or nil if none exists.
	GetInvoiceForOrder(ctx context.Context, purchaseOrderID string) (*Invoice, error)

	// GetInvoice returns an invoice with its lines, or ErrNotFound.
	GetInvoice(ctx context.Context, id string) (*Invoice, error)

	// GetStockItems returns the full catalog.
	GetStockItems(ctx context.Context) ([]StockItem, error)

	// GetApprovalMatrix returns the approval rules in matrix order.
	GetApprovalMatrix(ctx context.Context) (ApprovalMatrix, error)

	// SaveInvoice inserts a new invoice and its lines.
	SaveInvoice(ctx context.Context, inv *Invoice) error

	// SaveInvoiceResolutions stores each line's stock item and provenance.
	// Returns ErrInvoiceFrozen once the invoice has been decided.
	SaveInvoiceResolutions(ctx context.Context, inv *Invoice) error

	// GetMatchRecord returns the stored record for an order, or ErrNotFound.
	GetMatchRecord(ctx context.Context, purchaseOrderID string) (*MatchRecord, error)

	// SaveMatchRecord upserts the computed part of a record. Decision fields are
	// never touched by this call.
	SaveMatchRecord(ctx context.Context, rec MatchRecord) error

	// SaveDecision records an approval or rejection and freezes the invoice.
	// Returns ErrTerminalState if the stored record was already decided.
	SaveDecision(ctx context.Context, rec MatchRecord) error
}

type orderLedger struct {
	pool *pgxpool.Pool
}

// NewOrderLedger constructs an OrderLedger backed by PostgreSQL.
func NewOrderLedger(pool *pgxpool.Pool) OrderLedger {
	return &orderLedger{pool: pool}
}

// GetPurchaseOrder returns an order by ID including all lines.
func (l *orderLedger) GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	po := &PurchaseOrder{}
	var urgency string
	err := l.pool.QueryRow(ctx, `
		SELECT id, supplier_id, ordered_at, expected_delivery_at, ordered_by, urgency, total_amount
		FROM purchase_orders
		WHERE id = $1`,
		id,
	).Scan(&po.ID, &po.SupplierID, &po.OrderedAt, &po.ExpectedDeliveryAt, &po.OrderedBy, &urgency, &po.TotalAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch purchase order %s: %w", id, err)
	}
	po.Urgency = Urgency(urgency)

	rows, err := l.pool.Query(ctx, `
		SELECT stock_item_id, quantity, unit_price, line_total
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY line_number`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch purchase order lines %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line PurchaseOrderLine
		if err := rows.Scan(&line.StockItemID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, fmt.Errorf("scan purchase order line: %w", err)
		}
		po.Lines = append(po.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase order lines: %w", err)
	}
	return po, nil
}

// GetReceivingRecord returns the most recent receipt recorded against an order.
func (l *orderLedger) GetReceivingRecord(ctx context.Context, purchaseOrderID string) (*ReceivingRecord, error) {
	rr := &ReceivingRecord{}
	err := l.pool.QueryRow(ctx, `
		SELECT id, purchase_order_id, received_at, received_by
		FROM receiving_records
		WHERE purchase_order_id = $1
		ORDER BY received_at DESC, id
		LIMIT 1`,
		purchaseOrderID,
	).Scan(&rr.ID, &rr.PurchaseOrderID, &rr.ReceivedAt, &rr.ReceivedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch receiving record for %s: %w", purchaseOrderID, err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT stock_item_id, quantity, condition
		FROM receiving_lines
		WHERE receiving_record_id = $1
		ORDER BY line_number`,
		rr.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch receiving lines %s: %w", rr.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line ReceivingLine
		if err := rows.Scan(&line.StockItemID, &line.Quantity, &line.Condition); err != nil {
			return nil, fmt.Errorf("scan receiving line: %w", err)
		}
		rr.Lines = append(rr.Lines, line)
	}
	return rr, rows.Err()
}

// GetInvoiceForOrder returns the most recently created invoice for an order.
func (l *orderLedger) GetInvoiceForOrder(ctx context.Context, purchaseOrderID string) (*Invoice, error) {
	var id string
	err := l.pool.QueryRow(ctx, `
		SELECT id FROM invoices
		WHERE purchase_order_id = $1
		ORDER BY created_at DESC, id
		LIMIT 1`,
		purchaseOrderID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invoice for %s: %w", purchaseOrderID, err)
	}
	return l.GetInvoice(ctx, id)
}

// GetInvoice returns an invoice by ID including all lines.
func (l *orderLedger) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv := &Invoice{}
	var approval string
	err := l.pool.QueryRow(ctx, `
		SELECT id, purchase_order_id, supplier_id, issued_at, due_at, supplier_reference,
		       total_amount, approval_state
		FROM invoices
		WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.PurchaseOrderID, &inv.SupplierID, &inv.IssuedAt, &inv.DueAt,
		&inv.SupplierReference, &inv.TotalAmount, &approval)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch invoice %s: %w", id, err)
	}
	inv.Approval = ApprovalState(approval)

	rows, err := l.pool.Query(ctx, `
		SELECT description, quantity, unit_price, line_total, stock_item_id, provenance
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_number`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice lines %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line InvoiceLine
		var provenance string
		if err := rows.Scan(&line.Description, &line.Quantity, &line.UnitPrice, &line.LineTotal,
			&line.StockItemID, &provenance); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		line.Provenance = Provenance(provenance)
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// GetStockItems returns every stock item ordered by ID.
func (l *orderLedger) GetStockItems(ctx context.Context) ([]StockItem, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, name, unit, category, supplier_ids
		FROM stock_items
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get stock items: %w", err)
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		var it StockItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Unit, &it.Category, &it.SupplierIDs); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetApprovalMatrix returns the rules ordered by position.
func (l *orderLedger) GetApprovalMatrix(ctx context.Context) (ApprovalMatrix, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT role, spend_limit, categories
		FROM approval_rules
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("get approval matrix: %w", err)
	}
	defer rows.Close()

	var matrix ApprovalMatrix
	for rows.Next() {
		var rule ApprovalRule
		if err := rows.Scan(&rule.Role, &rule.SpendLimit, &rule.Categories); err != nil {
			return nil, fmt.Errorf("scan approval rule: %w", err)
		}
		matrix = append(matrix, rule)
	}
	return matrix, rows.Err()
}

// SaveInvoice inserts the invoice header and its lines in one transaction.
func (l *orderLedger) SaveInvoice(ctx context.Context, inv *Invoice) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	approval := inv.Approval
	if approval == "" {
		approval = ApprovalPending
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO invoices (id, purchase_order_id, supplier_id, issued_at, due_at,
		                      supplier_reference, total_amount, approval_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.PurchaseOrderID, inv.SupplierID, inv.IssuedAt, inv.DueAt,
		inv.SupplierReference, inv.TotalAmount, string(approval),
	); err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.ID, err)
	}

	for i, line := range inv.Lines {
		provenance := line.Provenance
		if provenance == "" {
			provenance = ProvenanceUnmatched
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_number, description, quantity, unit_price,
			                           line_total, stock_item_id, provenance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inv.ID, i+1, line.Description, line.Quantity, line.UnitPrice, line.LineTotal,
			line.StockItemID, string(provenance),
		); err != nil {
			return fmt.Errorf("insert invoice line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invoice %s: %w", inv.ID, err)
	}
	return nil
}

// SaveInvoiceResolutions rewrites line resolutions while the invoice is pending.
func (l *orderLedger) SaveInvoiceResolutions(ctx context.Context, inv *Invoice) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var approval string
	if err := tx.QueryRow(ctx,
		"SELECT approval_state FROM invoices WHERE id = $1 FOR UPDATE", inv.ID,
	).Scan(&approval); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("invoice %s: %w", inv.ID, ErrNotFound)
		}
		return fmt.Errorf("lock invoice %s: %w", inv.ID, err)
	}
	if ApprovalState(approval) != ApprovalPending {
		return fmt.Errorf("invoice %s is %s: %w", inv.ID, approval, ErrInvoiceFrozen)
	}

	for i, line := range inv.Lines {
		if _, err := tx.Exec(ctx, `
			UPDATE invoice_lines
			SET stock_item_id = $3, provenance = $4
			WHERE invoice_id = $1 AND line_number = $2`,
			inv.ID, i+1, line.StockItemID, string(line.Provenance),
		); err != nil {
			return fmt.Errorf("update invoice line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invoice resolutions %s: %w", inv.ID, err)
	}
	return nil
}

// GetMatchRecord returns the stored record for an order.
func (l *orderLedger) GetMatchRecord(ctx context.Context, purchaseOrderID string) (*MatchRecord, error) {
	rec := &MatchRecord{}
	var status, approval string
	var discrepancies []byte
	var decidedBy, decidedRole *string
	err := l.pool.QueryRow(ctx, `
		SELECT purchase_order_id, receiving_record_id, invoice_id, status, match_percentage,
		       discrepancies, approval_state, decided_by, decided_role, decided_at
		FROM match_records
		WHERE purchase_order_id = $1`,
		purchaseOrderID,
	).Scan(&rec.PurchaseOrderID, &rec.ReceivingRecordID, &rec.InvoiceID, &status, &rec.MatchPercentage,
		&discrepancies, &approval, &decidedBy, &decidedRole, &rec.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("match record %s: %w", purchaseOrderID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch match record %s: %w", purchaseOrderID, err)
	}
	rec.Status = MatchStatus(status)
	rec.Approval = ApprovalState(approval)
	if decidedBy != nil {
		rec.DecidedBy = *decidedBy
	}
	if decidedRole != nil {
		rec.DecidedRole = *decidedRole
	}
	if err := json.Unmarshal(discrepancies, &rec.Discrepancies); err != nil {
		return nil, fmt.Errorf("decode discrepancies for %s: %w", purchaseOrderID, err)
	}
	return rec, nil
}

// SaveMatchRecord upserts status, percentage and discrepancies. A stored
// decision survives only while the record still points at the same invoice.
func (l *orderLedger) SaveMatchRecord(ctx context.Context, rec MatchRecord) error {
	ds, err := json.Marshal(rec.Discrepancies)
	if err != nil {
		return fmt.Errorf("encode discrepancies: %w", err)
	}
	if _, err := l.pool.Exec(ctx, `
		INSERT INTO match_records (purchase_order_id, receiving_record_id, invoice_id, status,
		                           match_percentage, discrepancies, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (purchase_order_id) DO UPDATE
		SET receiving_record_id = EXCLUDED.receiving_record_id,
		    invoice_id          = EXCLUDED.invoice_id,
		    status              = EXCLUDED.status,
		    match_percentage    = EXCLUDED.match_percentage,
		    discrepancies       = EXCLUDED.discrepancies,
		    computed_at         = EXCLUDED.computed_at,
		    approval_state      = CASE WHEN match_records.invoice_id = EXCLUDED.invoice_id
		                               THEN match_records.approval_state ELSE 'Pending' END,
		    decided_by          = CASE WHEN match_records.invoice_id = EXCLUDED.invoice_id
		                               THEN match_records.decided_by END,
		    decided_role        = CASE WHEN match_records.invoice_id = EXCLUDED.invoice_id
		                               THEN match_records.decided_role END,
		    decided_at          = CASE WHEN match_records.invoice_id = EXCLUDED.invoice_id
		                               THEN match_records.decided_at END`,
		rec.PurchaseOrderID, rec.ReceivingRecordID, rec.InvoiceID, string(rec.Status),
		rec.MatchPercentage, string(ds), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("save match record %s: %w", rec.PurchaseOrderID, err)
	}
	return nil
}

// SaveDecision applies a decision only if the stored record is still pending,
// so two concurrent approvers cannot both succeed.
func (l *orderLedger) SaveDecision(ctx context.Context, rec MatchRecord) error {
	d := rec.Decision()
	if d == nil {
		return fmt.Errorf("save decision for %s: record has no decision", rec.PurchaseOrderID)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE match_records
		SET approval_state = $2, decided_by = $3, decided_role = $4, decided_at = $5
		WHERE purchase_order_id = $1 AND approval_state = 'Pending'`,
		rec.PurchaseOrderID, string(d.State), d.Actor, d.Role, d.At,
	)
	if err != nil {
		return fmt.Errorf("update match record %s: %w", rec.PurchaseOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", rec.PurchaseOrderID, ErrTerminalState)
	}

	if rec.InvoiceID != nil {
		if _, err := tx.Exec(ctx,
			"UPDATE invoices SET approval_state = $2 WHERE id = $1",
			*rec.InvoiceID, string(d.State),
		); err != nil {
			return fmt.Errorf("freeze invoice %s: %w", *rec.InvoiceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit decision %s: %w", rec.PurchaseOrderID, err)
	}
	return nil
}
