package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reason is the customer's claimed cause for the refund/return request.
type Reason string

const (
	ReasonDamaged        Reason = "damaged"
	ReasonDefective      Reason = "defective"
	ReasonWrongItem      Reason = "wrong_item"
	ReasonNotAsDescribed Reason = "not_as_described"
	ReasonChangedMind    Reason = "changed_mind"
	ReasonLateDelivery   Reason = "late_delivery"
)

// AllowedReasons lists every reason the system classifies into.
func AllowedReasons() []Reason {
	return []Reason{
		ReasonDamaged,
		ReasonDefective,
		ReasonWrongItem,
		ReasonNotAsDescribed,
		ReasonChangedMind,
		ReasonLateDelivery,
	}
}

// ValidReason reports whether r is one of the allowed reasons.
func ValidReason(r Reason) bool {
	for _, allowed := range AllowedReasons() {
		if r == allowed {
			return true
		}
	}
	return false
}

// FinalAction is the terminal decision of one case evaluation.
type FinalAction string

const (
	ActionApproveReturnAndRefund FinalAction = "approve_return_and_refund"
	ActionApproveRefund          FinalAction = "approve_refund"
	ActionRequestInfo            FinalAction = "request_info"
	ActionDeny                   FinalAction = "deny"
	ActionEscalate               FinalAction = "escalate"
	ActionRefuse                 FinalAction = "refuse"
)

type ConversationTurn struct {
	Role      string     `json:"role"` // "customer" | "agent"
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type AttachmentMeta struct {
	Name      string `json:"name"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// CaseRequest is a single-shot evaluation request. At most one of OrderID,
// Email, PhoneLast4 may be set.
type CaseRequest struct {
	CaseID          string             `json:"case_id"`
	CustomerMessage string             `json:"customer_message"`
	Conversation    []ConversationTurn `json:"conversation,omitempty"`
	Attachments     []AttachmentMeta   `json:"attachments,omitempty"`
	OrderID         string             `json:"order_id,omitempty"`
	Email           string             `json:"email,omitempty"`
	PhoneLast4      string             `json:"phone_last4,omitempty"`
	Reason          Reason             `json:"reason,omitempty"`
}

// Identifier returns the single caller-supplied customer identifier, or ok=false
// when none is present.
func (r CaseRequest) Identifier() (Identifier, bool) {
	switch {
	case r.OrderID != "":
		return Identifier{Kind: IdentifierOrderID, Value: r.OrderID}, true
	case r.Email != "":
		return Identifier{Kind: IdentifierEmail, Value: r.Email}, true
	case r.PhoneLast4 != "":
		return Identifier{Kind: IdentifierPhoneLast4, Value: r.PhoneLast4}, true
	default:
		return Identifier{}, false
	}
}

type IdentifierKind string

const (
	IdentifierOrderID    IdentifierKind = "order_id"
	IdentifierEmail      IdentifierKind = "email"
	IdentifierPhoneLast4 IdentifierKind = "phone_last4"
)

type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// ToolStatus tags one trace entry's outcome.
type ToolStatus string

const (
	ToolStatusOK      ToolStatus = "ok"
	ToolStatusError   ToolStatus = "error"
	ToolStatusSkipped ToolStatus = "skipped"
)

// TraceEntry records a single tool invocation within one case evaluation.
// The trace is append-only and returned whole to the caller.
type TraceEntry struct {
	ToolName string     `json:"tool_name"`
	Request  any        `json:"request"`
	Response any        `json:"response,omitempty"`
	Status   ToolStatus `json:"status"`
	Note     string     `json:"note,omitempty"`
}

// CaseResponse is the full, auditable outcome of one evaluation.
type CaseResponse struct {
	CustomerReply       string       `json:"customer_reply"`
	InternalCaseSummary string       `json:"internal_case_summary"`
	NextActionPlan      string       `json:"next_action_plan"`
	FinalAction         FinalAction  `json:"final_action"`
	ToolTrace           []TraceEntry `json:"tool_trace"`
}

// OrderSnapshot is a read-only view of an order with contact fields masked.
type OrderSnapshot struct {
	OrderID             string          `json:"order_id"`
	MerchantID          string          `json:"merchant_id"`
	CustomerEmailMasked string          `json:"customer_email_masked"`
	CustomerPhoneLast4  string          `json:"customer_phone_last4"`
	ItemID              string          `json:"item_id"`
	ItemCategory        string          `json:"item_category"`
	OrderDate           time.Time       `json:"order_date"`
	DeliveryDate        *time.Time      `json:"delivery_date,omitempty"`
	ItemPrice           decimal.Decimal `json:"item_price"`
	ShippingFee         decimal.Decimal `json:"shipping_fee"`
	Status              string          `json:"status"`
}

// OrderItem is a selectable line item of an order.
type OrderItem struct {
	ItemID       string `json:"item_id"`
	ItemCategory string `json:"item_category"`
}
