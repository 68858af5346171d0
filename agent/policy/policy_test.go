package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

func deliveredOrder(category string, daysAgo int, price, shipping string) contractx.OrderSnapshot {
	d := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return contractx.OrderSnapshot{
		OrderID:      "ORD-1001",
		ItemID:       "ITM-2001",
		ItemCategory: category,
		DeliveryDate: &d,
		ItemPrice:    decimal.RequireFromString(price),
		ShippingFee:  decimal.RequireFromString(shipping),
	}
}

func TestGetPolicyBase(t *testing.T) {
	t.Parallel()

	d := time.Now().UTC()
	p := GetPolicy("fashion", contractx.ReasonChangedMind, &d)
	if p.ReturnWindowDays != 30 {
		t.Fatalf("base window = %d, want 30", p.ReturnWindowDays)
	}
	if p.RefundShipping {
		t.Fatal("changed_mind must not refund shipping")
	}
}

func TestGetPolicyElectronicsWindow(t *testing.T) {
	t.Parallel()

	d := time.Now().UTC()
	p := GetPolicy("electronics", contractx.ReasonChangedMind, &d)
	if p.ReturnWindowDays != 15 {
		t.Fatalf("electronics window = %d, want 15", p.ReturnWindowDays)
	}
}

func TestGetPolicyQualityReasonRefundsShipping(t *testing.T) {
	t.Parallel()

	d := time.Now().UTC()
	for _, reason := range []contractx.Reason{contractx.ReasonDamaged, contractx.ReasonDefective, contractx.ReasonWrongItem} {
		p := GetPolicy("fashion", reason, &d)
		if !p.RefundShipping {
			t.Fatalf("reason %s must refund shipping", reason)
		}
	}
}

func TestGetPolicyUndeliveredCollapsesWindow(t *testing.T) {
	t.Parallel()

	p := GetPolicy("fashion", contractx.ReasonChangedMind, nil)
	if p.ReturnWindowDays != 0 {
		t.Fatalf("undelivered window = %d, want 0", p.ReturnWindowDays)
	}

	p = GetPolicy("fashion", contractx.ReasonLateDelivery, nil)
	if p.ReturnWindowDays != 30 {
		t.Fatalf("late_delivery window = %d, want 30", p.ReturnWindowDays)
	}
}

func TestCheckEligibilityNotDelivered(t *testing.T) {
	t.Parallel()

	order := contractx.OrderSnapshot{OrderID: "ORD-1002", ItemCategory: "fashion"}
	p := GetPolicy(order.ItemCategory, contractx.ReasonChangedMind, nil)

	v := CheckEligibility(order, p, contractx.ReasonChangedMind, time.Now())
	if v.Eligible {
		t.Fatal("undelivered order must not be eligible")
	}
	if len(v.MissingInfo) != 1 || v.MissingInfo[0] != "delivery_date" {
		t.Fatalf("missing info = %v, want [delivery_date]", v.MissingInfo)
	}
}

func TestCheckEligibilityNonReturnableCategory(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("perishable", 2, "20.00", "3.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonChangedMind, order.DeliveryDate)

	v := CheckEligibility(order, p, contractx.ReasonChangedMind, time.Now())
	if v.Eligible {
		t.Fatal("non-returnable category must not be eligible")
	}
	if v.DecisionReason != "Category is non-returnable" {
		t.Fatalf("decision reason = %q", v.DecisionReason)
	}
}

func TestCheckEligibilityOutsideWindow(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("electronics", 20, "120.00", "10.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonDefective, order.DeliveryDate)

	v := CheckEligibility(order, p, contractx.ReasonDefective, time.Now())
	if v.Eligible {
		t.Fatal("20 days past a 15-day window must not be eligible")
	}
	if v.DecisionReason != "Outside return window" {
		t.Fatalf("decision reason = %q", v.DecisionReason)
	}
}

func TestCheckEligibilityDamagedExemptFromWindow(t *testing.T) {
	t.Parallel()

	// Same 20-day-old electronics order, but a damaged claim is exempt from
	// the window cutoff where defective is not.
	order := deliveredOrder("electronics", 20, "120.00", "10.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonDamaged, order.DeliveryDate)

	v := CheckEligibility(order, p, contractx.ReasonDamaged, time.Now())
	if !v.Eligible {
		t.Fatalf("damaged claim must stay eligible past the window, got %q", v.DecisionReason)
	}
	if len(v.MissingInfo) != 1 || v.MissingInfo[0] != "photo_proof" {
		t.Fatalf("missing info = %v, want [photo_proof]", v.MissingInfo)
	}
}

func TestCheckEligibilityCleanApproval(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("fashion", 5, "55.00", "5.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonChangedMind, order.DeliveryDate)

	v := CheckEligibility(order, p, contractx.ReasonChangedMind, time.Now())
	if !v.Eligible {
		t.Fatalf("expected eligible, got %q", v.DecisionReason)
	}
	if len(v.MissingInfo) != 0 || len(v.RequiredEvidence) != 0 {
		t.Fatalf("expected nothing missing, got %v / %v", v.MissingInfo, v.RequiredEvidence)
	}
}

func TestComputeRefundQualityReasonIncludesShipping(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("electronics", 5, "120.00", "10.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonDamaged, order.DeliveryDate)

	r := ComputeRefund(order, p, contractx.ReasonDamaged)
	if r.Amount.StringFixed(2) != "130.00" {
		t.Fatalf("amount = %s, want 130.00", r.Amount.StringFixed(2))
	}
	if r.RefundType != RefundFull {
		t.Fatalf("refund type = %s, want full", r.RefundType)
	}
	if r.Breakdown["shipping"].StringFixed(2) != "10.00" {
		t.Fatalf("shipping breakdown = %s", r.Breakdown["shipping"].StringFixed(2))
	}
}

func TestComputeRefundQualityReasonZeroShipping(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("electronics", 5, "120.00", "0.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonDefective, order.DeliveryDate)

	r := ComputeRefund(order, p, contractx.ReasonDefective)
	if r.Amount.StringFixed(2) != "120.00" {
		t.Fatalf("amount = %s, want 120.00", r.Amount.StringFixed(2))
	}
	if r.RefundType != RefundPartial {
		t.Fatalf("refund type = %s, want partial when no shipping refunded", r.RefundType)
	}
}

func TestComputeRefundItemOnly(t *testing.T) {
	t.Parallel()

	order := deliveredOrder("fashion", 5, "55.00", "5.00")
	p := GetPolicy(order.ItemCategory, contractx.ReasonChangedMind, order.DeliveryDate)

	r := ComputeRefund(order, p, contractx.ReasonChangedMind)
	if r.Amount.StringFixed(2) != "55.00" {
		t.Fatalf("amount = %s, want 55.00", r.Amount.StringFixed(2))
	}
	if r.RefundType != RefundPartial {
		t.Fatalf("refund type = %s, want partial", r.RefundType)
	}
	if !r.Breakdown["shipping"].IsZero() {
		t.Fatalf("shipping breakdown = %s, want 0", r.Breakdown["shipping"])
	}
}

func TestRequiresEvidence(t *testing.T) {
	t.Parallel()

	for _, reason := range []contractx.Reason{contractx.ReasonDamaged, contractx.ReasonDefective, contractx.ReasonWrongItem} {
		if !RequiresEvidence(reason) {
			t.Fatalf("reason %s must require evidence", reason)
		}
	}
	for _, reason := range []contractx.Reason{contractx.ReasonChangedMind, contractx.ReasonLateDelivery, contractx.ReasonNotAsDescribed} {
		if RequiresEvidence(reason) {
			t.Fatalf("reason %s must not require evidence", reason)
		}
	}
}
