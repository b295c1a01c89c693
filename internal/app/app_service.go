package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement-recon/internal/ai"
	"procurement-recon/internal/core"
	"procurement-recon/internal/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrExtractorUnavailable is returned by IngestInvoice when no extractor is configured.
var ErrExtractorUnavailable = errors.New("invoice extraction is not configured")

type appService struct {
	ledger         core.OrderLedger
	engine         *core.Engine
	locker         db.OrderLocker
	extractor      ai.Extractor
	fallbackMatrix core.ApprovalMatrix
	log            *zap.Logger
	now            func() time.Time
}

// NewAppService constructs an appService that satisfies ApplicationService.
// extractor may be nil, which disables IngestInvoice. fallbackMatrix is used
// when the ledger holds no approval rules.
func NewAppService(
	ledger core.OrderLedger,
	engine *core.Engine,
	locker db.OrderLocker,
	extractor ai.Extractor,
	fallbackMatrix core.ApprovalMatrix,
	log *zap.Logger,
) ApplicationService {
	if locker == nil {
		locker = db.NoopLocker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &appService{
		ledger:         ledger,
		engine:         engine,
		locker:         locker,
		extractor:      extractor,
		fallbackMatrix: fallbackMatrix,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile recomputes and stores the match record for an order.
func (s *appService) Reconcile(ctx context.Context, purchaseOrderID string) (*MatchResult, error) {
	unlock, err := s.locker.Lock(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.reconcileLocked(ctx, purchaseOrderID)
}

// reconcileLocked must be called with the order's lock held.
func (s *appService) reconcileLocked(ctx context.Context, purchaseOrderID string) (*MatchResult, error) {
	po, err := s.ledger.GetPurchaseOrder(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	rr, err := s.ledger.GetReceivingRecord(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	inv, err := s.ledger.GetInvoiceForOrder(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}

	if inv != nil && !inv.Frozen() {
		resolved, err := core.AutoResolve(inv, catalog.ForSupplier(inv.SupplierID))
		if err != nil {
			return nil, err
		}
		if resolutionsChanged(inv, &resolved) {
			if err := s.ledger.SaveInvoiceResolutions(ctx, &resolved); err != nil {
				return nil, err
			}
		}
		inv = &resolved
	}

	rec, err := s.engine.Reconcile(po, rr, inv)
	if err != nil {
		return nil, err
	}
	prev, err := s.ledger.GetMatchRecord(ctx, purchaseOrderID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	rec = rec.WithDecisionFrom(prev)
	if err := s.ledger.SaveMatchRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info("purchase order reconciled",
		zap.String("purchase_order_id", purchaseOrderID),
		zap.String("status", string(rec.Status)),
		zap.Int("match_percentage", rec.MatchPercentage),
		zap.Int("discrepancies", len(rec.Discrepancies)),
	)

	result := &MatchResult{Record: rec}
	if inv != nil {
		result.LinePercentage = core.LineMatchPercentage(inv)
		result.Lines = lineViews(inv, catalog)
	}
	return result, nil
}

func resolutionsChanged(before, after *core.Invoice) bool {
	for i := range before.Lines {
		b, a := before.Lines[i], after.Lines[i]
		if b.Provenance != a.Provenance {
			return true
		}
		if (b.StockItemID == nil) != (a.StockItemID == nil) {
			return true
		}
		if b.StockItemID != nil && *b.StockItemID != *a.StockItemID {
			return true
		}
	}
	return false
}

// GetMatch returns the stored match record.
func (s *appService) GetMatch(ctx context.Context, purchaseOrderID string) (*core.MatchRecord, error) {
	return s.ledger.GetMatchRecord(ctx, purchaseOrderID)
}

// InvoiceLines returns an invoice's lines with catalog names.
func (s *appService) InvoiceLines(ctx context.Context, invoiceID string) (*InvoiceLinesResult, error) {
	inv, err := s.ledger.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return invoiceLinesResult(inv, catalog), nil
}

// OverrideInvoiceLine applies a manual resolution and re-reconciles the order.
func (s *appService) OverrideInvoiceLine(ctx context.Context, req OverrideLineRequest) (*InvoiceLinesResult, error) {
	inv, err := s.ledger.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PurchaseOrderID != nil {
		unlock, err := s.locker.Lock(ctx, *inv.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		defer unlock()
		// re-read under the lock
		if inv, err = s.ledger.GetInvoice(ctx, req.InvoiceID); err != nil {
			return nil, err
		}
	}

	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := core.OverrideLine(inv, req.LineNumber-1, req.StockItemID, catalog)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.SaveInvoiceResolutions(ctx, &updated); err != nil {
		return nil, err
	}
	s.log.Info("invoice line overridden",
		zap.String("invoice_id", updated.ID),
		zap.Int("line", req.LineNumber),
		zap.String("stock_item_id", req.StockItemID),
	)

	result := invoiceLinesResult(&updated, catalog)
	if updated.PurchaseOrderID != nil {
		match, err := s.reconcileLocked(ctx, *updated.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		result.Match = &match.Record
	}
	return result, nil
}

// ApproveMatch records an approval after checking the role's authority.
func (s *appService) ApproveMatch(ctx context.Context, req DecisionRequest) (*core.MatchRecord, error) {
	return s.decide(ctx, req, core.ApprovalApproved)
}

// RejectMatch records a rejection after checking the role's category scope.
func (s *appService) RejectMatch(ctx context.Context, req DecisionRequest) (*core.MatchRecord, error) {
	return s.decide(ctx, req, core.ApprovalRejected)
}

func (s *appService) decide(ctx context.Context, req DecisionRequest, state core.ApprovalState) (*core.MatchRecord, error) {
	if req.Actor == "" || req.Role == "" {
		return nil, fmt.Errorf("decision on %s: actor and role are required: %w", req.PurchaseOrderID, core.ErrInsufficientAuthority)
	}

	unlock, err := s.locker.Lock(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.ledger.GetMatchRecord(ctx, req.PurchaseOrderID)
	if errors.Is(err, core.ErrNotFound) {
		result, rerr := s.reconcileLocked(ctx, req.PurchaseOrderID)
		if rerr != nil {
			return nil, rerr
		}
		rec, err = &result.Record, nil
	}
	if err != nil {
		return nil, err
	}

	subject, err := s.approvalSubject(ctx, rec)
	if err != nil {
		return nil, err
	}
	router, err := s.router(ctx)
	if err != nil {
		return nil, err
	}

	var decided core.MatchRecord
	if state == core.ApprovalApproved {
		decided, err = router.Approve(*rec, req.Actor, req.Role, subject.total(), subject.Categories, s.now())
	} else {
		decided, err = router.Reject(*rec, req.Actor, req.Role, subject.Categories, s.now())
	}
	if err != nil {
		s.log.Warn("match decision refused",
			zap.String("purchase_order_id", req.PurchaseOrderID),
			zap.String("actor", req.Actor),
			zap.String("role", req.Role),
			zap.String("decision", string(state)),
			zap.Error(err),
		)
		return nil, err
	}
	if err := s.ledger.SaveDecision(ctx, decided); err != nil {
		return nil, err
	}

	s.log.Info("match decided",
		zap.String("purchase_order_id", req.PurchaseOrderID),
		zap.String("actor", req.Actor),
		zap.String("role", req.Role),
		zap.String("decision", string(state)),
		zap.String("invoice_total", subject.total().StringFixed(2)),
	)
	return &decided, nil
}

// EligibleApprovers lists the rules that could approve the order's invoice.
func (s *appService) EligibleApprovers(ctx context.Context, purchaseOrderID string) (*ApproversResult, error) {
	rec, err := s.ledger.GetMatchRecord(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	subject, err := s.approvalSubject(ctx, rec)
	if err != nil {
		return nil, err
	}
	router, err := s.router(ctx)
	if err != nil {
		return nil, err
	}
	approvers := router.EligibleApprovers(subject.total(), subject.Categories)
	if approvers == nil {
		approvers = []core.ApprovalRule{}
	}
	return &ApproversResult{
		PurchaseOrderID: purchaseOrderID,
		InvoiceTotal:    subject.total(),
		Categories:      subject.Categories,
		Approvers:       approvers,
	}, nil
}

// approvalSubject is what a decision is measured against: the invoice total
// and the categories of every item on the order and the invoice.
type approvalSubject struct {
	Invoice    *core.Invoice
	Categories []string
}

func (a approvalSubject) total() decimal.Decimal { return a.Invoice.TotalAmount }

func (s *appService) approvalSubject(ctx context.Context, rec *core.MatchRecord) (approvalSubject, error) {
	if rec.InvoiceID == nil {
		return approvalSubject{}, fmt.Errorf("match %s has no invoice to decide on: %w", rec.PurchaseOrderID, core.ErrInvalidRecord)
	}
	inv, err := s.ledger.GetInvoice(ctx, *rec.InvoiceID)
	if err != nil {
		return approvalSubject{}, err
	}
	po, err := s.ledger.GetPurchaseOrder(ctx, rec.PurchaseOrderID)
	if err != nil {
		return approvalSubject{}, err
	}
	catalog, err := s.catalog(ctx)
	if err != nil {
		return approvalSubject{}, err
	}

	ids := inv.ResolvedItemIDs()
	for _, l := range po.Lines {
		ids = append(ids, l.StockItemID)
	}
	categories, err := catalog.Categories(ids)
	if err != nil {
		return approvalSubject{}, err
	}
	return approvalSubject{Invoice: inv, Categories: categories}, nil
}

// IngestInvoice extracts, resolves and stores a supplier invoice.
func (s *appService) IngestInvoice(ctx context.Context, req IngestInvoiceRequest) (*IngestResult, error) {
	if s.extractor == nil {
		return nil, ErrExtractorUnavailable
	}
	if (req.Text == "") == (req.Image == nil) {
		return nil, fmt.Errorf("provide exactly one of invoice text or image: %w", core.ErrInvalidRecord)
	}

	var poID *string
	supplierID := req.SupplierID
	if req.PurchaseOrderID != "" {
		po, err := s.ledger.GetPurchaseOrder(ctx, req.PurchaseOrderID)
		if err != nil {
			return nil, err
		}
		if supplierID == "" {
			supplierID = po.SupplierID
		}
		if supplierID != po.SupplierID {
			return nil, fmt.Errorf("invoice supplier %s does not match order %s supplier %s: %w",
				supplierID, po.ID, po.SupplierID, core.ErrInvalidRecord)
		}
		id := po.ID
		poID = &id
	}
	if supplierID == "" {
		return nil, fmt.Errorf("supplier is required when no purchase order is given: %w", core.ErrInvalidRecord)
	}

	var extracted *ai.ExtractedInvoice
	var err error
	if req.Image != nil {
		extracted, err = s.extractor.ExtractImage(ctx, req.Image.MimeType, req.Image.Data)
	} else {
		extracted, err = s.extractor.ExtractText(ctx, req.Text)
	}
	if err != nil {
		return nil, err
	}

	raw, err := extracted.ToInvoice(uuid.NewString(), poID, supplierID, s.now())
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := core.AutoResolve(raw, catalog.ForSupplier(supplierID))
	if err != nil {
		return nil, err
	}

	// The order stays locked from storing the invoice until its match is saved.
	if poID != nil {
		unlock, err := s.locker.Lock(ctx, *poID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	if err := s.ledger.SaveInvoice(ctx, &inv); err != nil {
		return nil, err
	}
	s.log.Info("invoice ingested",
		zap.String("invoice_id", inv.ID),
		zap.String("supplier_id", supplierID),
		zap.Int("lines", len(inv.Lines)),
		zap.Int("line_match_percentage", core.LineMatchPercentage(&inv)),
	)

	result := &IngestResult{Invoice: inv, LinePercentage: core.LineMatchPercentage(&inv)}
	if poID != nil {
		match, err := s.reconcileLocked(ctx, *poID)
		if err != nil {
			return nil, err
		}
		result.Match = &match.Record
	}
	return result, nil
}

func (s *appService) catalog(ctx context.Context) (*core.Catalog, error) {
	items, err := s.ledger.GetStockItems(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewCatalog(items)
}

func (s *appService) router(ctx context.Context) (*core.Router, error) {
	matrix, err := s.ledger.GetApprovalMatrix(ctx)
	if err != nil {
		return nil, err
	}
	if len(matrix) == 0 {
		matrix = s.fallbackMatrix
	}
	return core.NewRouter(matrix), nil
}

func invoiceLinesResult(inv *core.Invoice, catalog *core.Catalog) *InvoiceLinesResult {
	return &InvoiceLinesResult{
		InvoiceID:      inv.ID,
		Approval:       inv.Approval,
		LinePercentage: core.LineMatchPercentage(inv),
		Lines:          lineViews(inv, catalog),
	}
}

func lineViews(inv *core.Invoice, catalog *core.Catalog) []InvoiceLineView {
	out := make([]InvoiceLineView, 0, len(inv.Lines))
	for i, l := range inv.Lines {
		v := InvoiceLineView{
			Number:      i + 1,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
			StockItemID: l.StockItemID,
			Provenance:  l.Provenance,
		}
		if l.StockItemID != nil {
			if item, err := catalog.Lookup(*l.StockItemID); err == nil {
				v.StockItemName = item.Name
			}
		}
		out = append(out, v)
	}
	return out
}
