package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Router gates the Pending -> Approved / Rejected transition of a match record.
// It never escalates on its own; choosing a higher approver is up to the caller.
type Router struct {
	Matrix ApprovalMatrix
}

// NewRouter returns a Router over a read-only approval matrix.
func NewRouter(matrix ApprovalMatrix) *Router {
	return &Router{Matrix: matrix}
}

// RulesFor returns the role's rules in matrix order.
func (r *Router) RulesFor(role string) []ApprovalRule {
	var out []ApprovalRule
	for _, rule := range r.Matrix {
		if rule.Role == role {
			out = append(out, rule)
		}
	}
	return out
}

// CheckEligibility returns the first rule of role that covers the amount and
// every category. When none does, the shortfall is measured against the role's
// first rule.
func (r *Router) CheckEligibility(role string, total decimal.Decimal, categories []string) (ApprovalRule, error) {
	rules := r.RulesFor(role)
	if len(rules) == 0 {
		return ApprovalRule{}, &InsufficientAuthorityError{Role: role, Amount: total, NoRule: true}
	}
	for _, rule := range rules {
		if eligible(rule, total, categories) {
			return rule, nil
		}
	}

	first := rules[0]
	e := &InsufficientAuthorityError{
		Role:      role,
		Limit:     first.SpendLimit,
		Amount:    total,
		Excess:    decimal.Zero,
		Uncovered: first.Uncovered(categories),
	}
	if total.GreaterThan(first.SpendLimit) {
		e.Excess = total.Sub(first.SpendLimit)
	}
	return ApprovalRule{}, e
}

// EligibleApprovers lists every rule that could approve the invoice, in matrix order.
func (r *Router) EligibleApprovers(total decimal.Decimal, categories []string) []ApprovalRule {
	var out []ApprovalRule
	for _, rule := range r.Matrix {
		if eligible(rule, total, categories) {
			out = append(out, rule)
		}
	}
	return out
}

func eligible(rule ApprovalRule, total decimal.Decimal, categories []string) bool {
	return rule.SpendLimit.GreaterThanOrEqual(total) && len(rule.Uncovered(categories)) == 0
}

// Approve records an approval by actor if role has authority over the invoice
// total and categories. Decided records cannot be approved again.
func (r *Router) Approve(rec MatchRecord, actor, role string, total decimal.Decimal, categories []string, at time.Time) (MatchRecord, error) {
	if err := requirePending(rec); err != nil {
		return rec, err
	}
	if _, err := r.CheckEligibility(role, total, categories); err != nil {
		return rec, fmt.Errorf("approve match %s: %w", rec.PurchaseOrderID, err)
	}
	return decide(rec, ApprovalApproved, actor, role, at), nil
}

// Reject records a rejection. Any role holding a rule whose scope covers the
// invoice categories may reject, whatever its spend limit.
func (r *Router) Reject(rec MatchRecord, actor, role string, categories []string, at time.Time) (MatchRecord, error) {
	if err := requirePending(rec); err != nil {
		return rec, err
	}
	rules := r.RulesFor(role)
	if len(rules) == 0 {
		return rec, fmt.Errorf("reject match %s: %w", rec.PurchaseOrderID,
			&InsufficientAuthorityError{Role: role, NoRule: true})
	}
	for _, rule := range rules {
		if len(rule.Uncovered(categories)) == 0 {
			return decide(rec, ApprovalRejected, actor, role, at), nil
		}
	}
	return rec, fmt.Errorf("reject match %s: %w", rec.PurchaseOrderID, &InsufficientAuthorityError{
		Role:      role,
		Limit:     rules[0].SpendLimit,
		Uncovered: rules[0].Uncovered(categories),
	})
}

func requirePending(rec MatchRecord) error {
	if rec.Approval == ApprovalApproved || rec.Approval == ApprovalRejected {
		return fmt.Errorf("match %s is %s: %w", rec.PurchaseOrderID, rec.Approval, ErrTerminalState)
	}
	return nil
}

func decide(rec MatchRecord, state ApprovalState, actor, role string, at time.Time) MatchRecord {
	rec.Approval = state
	rec.DecidedBy = actor
	rec.DecidedRole = role
	rec.DecidedAt = &at
	return rec
}
