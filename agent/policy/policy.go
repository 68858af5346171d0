// Package policy is the single source of truth for eligibility and refund
// decisions. Everything here is a pure function of its arguments; callers pass
// the evaluation time explicitly.
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

// Policy holds the per-category, per-reason return parameters. It is computed
// on demand and never persisted.
type Policy struct {
	ReturnWindowDays        int                `json:"return_window_days"`
	RefundShipping          bool               `json:"refund_shipping"`
	RequiresEvidenceFor     []contractx.Reason `json:"requires_evidence_for"`
	NonReturnableCategories []string           `json:"non_returnable_categories"`
}

// Verdict is the eligibility determination for one (order, reason, policy)
// triple. It is recomputed on every evaluation.
type Verdict struct {
	Eligible         bool     `json:"eligible"`
	MissingInfo      []string `json:"missing_info"`
	RequiredEvidence []string `json:"required_evidence"`
	DecisionReason   string   `json:"decision_reason"`
}

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
	RefundNone    RefundType = "none"
)

// Refund is the decimal-exact refund computation.
type Refund struct {
	Amount     decimal.Decimal            `json:"amount"`
	Breakdown  map[string]decimal.Decimal `json:"breakdown"`
	RefundType RefundType                 `json:"refund_type"`
}

const (
	baseReturnWindowDays        = 30
	electronicsReturnWindowDays = 15
)

func evidenceReasons() []contractx.Reason {
	return []contractx.Reason{
		contractx.ReasonDamaged,
		contractx.ReasonDefective,
		contractx.ReasonWrongItem,
	}
}

func nonReturnableCategories() []string {
	return []string{"perishable", "personal_care"}
}

// RequiresEvidence reports whether a reason needs photographic proof before
// any write tool may run.
func RequiresEvidence(reason contractx.Reason) bool {
	for _, r := range evidenceReasons() {
		if r == reason {
			return true
		}
	}
	return false
}

// GetPolicy narrows the base policy for a category, reason and delivery state.
// An undelivered order (no delivery date) has a zero-day window unless the
// claim is late delivery.
func GetPolicy(itemCategory string, reason contractx.Reason, deliveryDate *time.Time) Policy {
	p := Policy{
		ReturnWindowDays:        baseReturnWindowDays,
		RefundShipping:          false,
		RequiresEvidenceFor:     evidenceReasons(),
		NonReturnableCategories: nonReturnableCategories(),
	}

	if itemCategory == "electronics" {
		p.ReturnWindowDays = electronicsReturnWindowDays
	}
	if RequiresEvidence(reason) {
		p.RefundShipping = true
	}
	if deliveryDate == nil && reason != contractx.ReasonLateDelivery {
		p.ReturnWindowDays = 0
	}
	return p
}

// CheckEligibility evaluates rules in fixed precedence; the first match wins.
// Damaged claims are exempt from the window cutoff. That carve-out is
// intentional and applies to damaged only, not defective or wrong_item.
func CheckEligibility(order contractx.OrderSnapshot, p Policy, reason contractx.Reason, now time.Time) Verdict {
	if order.DeliveryDate == nil && reason != contractx.ReasonLateDelivery {
		return Verdict{
			Eligible:         false,
			MissingInfo:      []string{"delivery_date"},
			RequiredEvidence: []string{},
			DecisionReason:   "Order not delivered yet",
		}
	}

	for _, cat := range p.NonReturnableCategories {
		if order.ItemCategory == cat {
			return Verdict{
				Eligible:         false,
				MissingInfo:      []string{},
				RequiredEvidence: []string{},
				DecisionReason:   "Category is non-returnable",
			}
		}
	}

	if order.DeliveryDate != nil {
		daysSinceDelivery := int(now.UTC().Sub(order.DeliveryDate.UTC()).Hours() / 24)
		if daysSinceDelivery > p.ReturnWindowDays && reason != contractx.ReasonDamaged {
			return Verdict{
				Eligible:         false,
				MissingInfo:      []string{},
				RequiredEvidence: []string{},
				DecisionReason:   "Outside return window",
			}
		}
	}

	verdict := Verdict{
		Eligible:         true,
		MissingInfo:      []string{},
		RequiredEvidence: []string{},
		DecisionReason:   "Eligible under policy",
	}
	if RequiresEvidence(reason) {
		verdict.MissingInfo = []string{"photo_proof"}
		verdict.RequiredEvidence = []string{"photo_proof"}
	}
	return verdict
}

// ComputeRefund derives the refund amount and breakdown. Shipping is refunded
// only for quality claims and only when the policy allows it.
func ComputeRefund(order contractx.OrderSnapshot, p Policy, reason contractx.Reason) Refund {
	zero := decimal.NewFromInt(0)

	switch reason {
	case contractx.ReasonDamaged, contractx.ReasonDefective, contractx.ReasonWrongItem, contractx.ReasonNotAsDescribed:
		shipping := zero
		if p.RefundShipping {
			shipping = order.ShippingFee
		}
		refundType := RefundPartial
		if shipping.GreaterThan(zero) {
			refundType = RefundFull
		}
		return Refund{
			Amount: order.ItemPrice.Add(shipping),
			Breakdown: map[string]decimal.Decimal{
				"item":     order.ItemPrice,
				"shipping": shipping,
			},
			RefundType: refundType,
		}
	default:
		// changed_mind, late_delivery and anything else: item price only.
		return Refund{
			Amount: order.ItemPrice,
			Breakdown: map[string]decimal.Decimal{
				"item":     order.ItemPrice,
				"shipping": zero,
			},
			RefundType: RefundPartial,
		}
	}
}
