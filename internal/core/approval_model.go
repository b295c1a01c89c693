package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalState is the decision state of a match / invoice pair.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "Pending"
	ApprovalApproved ApprovalState = "Approved"
	ApprovalRejected ApprovalState = "Rejected"
)

// AllCategories is the wildcard category scope.
const AllCategories = "All"

// ApprovalRule grants a role authority up to SpendLimit over a set of categories.
// An empty Categories list, or one containing "All", covers every category.
type ApprovalRule struct {
	Role       string          `json:"role"`
	SpendLimit decimal.Decimal `json:"spend_limit"`
	Categories []string        `json:"categories"`
}

// ApprovalMatrix is the ordered list of rules. It is configuration and is never
// modified here.
type ApprovalMatrix []ApprovalRule

// CoversAll reports whether the rule's scope is the wildcard.
func (r ApprovalRule) CoversAll() bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == AllCategories {
			return true
		}
	}
	return false
}

// Uncovered returns the categories outside the rule's scope, in input order.
func (r ApprovalRule) Uncovered(categories []string) []string {
	if r.CoversAll() {
		return nil
	}
	scope := make(map[string]bool, len(r.Categories))
	for _, c := range r.Categories {
		scope[c] = true
	}
	var out []string
	for _, c := range categories {
		if !scope[c] {
			out = append(out, c)
		}
	}
	return out
}

// Decision is an approver's recorded verdict on a match record.
type Decision struct {
	State ApprovalState `json:"state"`
	Actor string        `json:"actor"`
	Role  string        `json:"role"`
	At    time.Time     `json:"at"`
}
