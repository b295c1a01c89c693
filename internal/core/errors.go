package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an identity does not resolve to a record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord marks upstream data that violates a record invariant.
	// It is never corrected silently.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInsufficientAuthority is returned when an approver's rule does not cover an invoice.
	ErrInsufficientAuthority = errors.New("insufficient authority")

	// ErrTerminalState is returned when a decision is attempted on an already decided match.
	ErrTerminalState = errors.New("match already decided")

	// ErrInvoiceFrozen is returned when line resolutions change after an invoice was decided.
	ErrInvoiceFrozen = errors.New("invoice is frozen")

	// ErrOrderBusy is returned when another operation holds the order's lock.
	ErrOrderBusy = errors.New("purchase order is busy")
)

// InvalidRecordError describes a data-integrity violation in a named record.
type InvalidRecordError struct {
	Record string // "purchase_order", "invoice", "catalog", ...
	ID     string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Record, e.ID, e.Reason)
}

func (e *InvalidRecordError) Unwrap() error { return ErrInvalidRecord }

func invalidRecord(record, id, format string, args ...any) error {
	return &InvalidRecordError{Record: record, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientAuthorityError names the shortfall between an approver's rule and an invoice.
// Excess is positive when the amount is over the limit; Uncovered lists categories
// outside the rule's scope. NoRule is set when the role has no rule at all.
type InsufficientAuthorityError struct {
	Role      string
	Limit     decimal.Decimal
	Amount    decimal.Decimal
	Excess    decimal.Decimal
	Uncovered []string
	NoRule    bool
}

func (e *InsufficientAuthorityError) Error() string {
	if e.NoRule {
		return fmt.Sprintf("insufficient authority: role %q has no approval rule", e.Role)
	}
	var reasons []string
	if e.Excess.IsPositive() {
		reasons = append(reasons, fmt.Sprintf("amount %s exceeds limit %s by %s",
			e.Amount.StringFixed(2), e.Limit.StringFixed(2), e.Excess.StringFixed(2)))
	}
	if len(e.Uncovered) > 0 {
		reasons = append(reasons, "categories not covered: "+strings.Join(e.Uncovered, ", "))
	}
	return fmt.Sprintf("insufficient authority for role %q: %s", e.Role, strings.Join(reasons, "; "))
}

func (e *InsufficientAuthorityError) Unwrap() error { return ErrInsufficientAuthority }
