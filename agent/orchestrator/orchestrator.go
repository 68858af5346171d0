// Package orchestrator runs one case evaluation end to end. It enforces the
// read-before-write protocol: the write tools are only reachable after the
// read tools have produced an eligible, complete verdict in this same
// evaluation, and guardrail hits short-circuit before any tool at all.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	"github.com/pakornv/refund-returns-agent/agent/guardrail"
	toolx "github.com/pakornv/refund-returns-agent/agent/tool"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
)

var (
	ErrInvalidCase    = errors.New("case id is empty")
	ErrInvalidMessage = errors.New("customer message is empty")
)

type Orchestrator struct {
	tools   *toolx.Gateway
	advisor contractx.Advisor
	logger  zerolog.Logger
	now     func() time.Time
}

func New(tools *toolx.Gateway, advisor contractx.Advisor) (*Orchestrator, error) {
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if advisor == nil {
		advisor = noopAdvisor{}
	}
	return &Orchestrator{
		tools:   tools,
		advisor: advisor,
		logger:  logx.Component("orchestrator"),
		now:     time.Now,
	}, nil
}

// Run evaluates one case. The returned response always carries the complete
// tool trace for audit; the error return is reserved for malformed requests.
func (o *Orchestrator) Run(ctx context.Context, req contractx.CaseRequest) (contractx.CaseResponse, error) {
	if strings.TrimSpace(req.CaseID) == "" {
		return contractx.CaseResponse{}, ErrInvalidCase
	}
	message := strings.TrimSpace(req.CustomerMessage)
	if message == "" {
		return contractx.CaseResponse{}, ErrInvalidMessage
	}

	resp := o.evaluate(ctx, req, message)
	resp = sanitize(resp)
	o.logger.Info().
		Str("case_id", req.CaseID).
		Str("final_action", string(resp.FinalAction)).
		Int("tool_calls", len(resp.ToolTrace)).
		Msg("case evaluated")
	return resp, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, req contractx.CaseRequest, message string) contractx.CaseResponse {
	trace := make([]contractx.TraceEntry, 0, 8)
	maskedMsg := guardrail.Mask(message)

	// Step 1: guardrails. Violations never reach a tool, so adversarial
	// payloads stay out of the trace and the call log.
	switch guardrail.Classify(message) {
	case guardrail.ViolationFraudOrExfiltration:
		o.logger.Warn().Str("case_id", req.CaseID).Str("violation", "fraud_or_exfiltration").Msg("guardrail hit")
		return contractx.CaseResponse{
			CustomerReply: "I can't help with requests that bypass policy, expose sensitive data, " +
				"or involve fraud. I can assist with a legitimate refund/return request.",
			InternalCaseSummary: fmt.Sprintf("Fraud/exfiltration pattern detected. message=%s", maskedMsg),
			NextActionPlan:      "Refuse request and keep case for manual review if repeated.",
			FinalAction:         contractx.ActionRefuse,
			ToolTrace:           trace,
		}
	case guardrail.ViolationInjection:
		o.logger.Warn().Str("case_id", req.CaseID).Str("violation", "injection").Msg("guardrail hit")
		return contractx.CaseResponse{
			CustomerReply: "I can help with your refund/return, but I need a normal request format. " +
				"Please share your order ID (or account email) and the issue with the item.",
			InternalCaseSummary: fmt.Sprintf("Prompt-injection pattern detected. message=%s", maskedMsg),
			NextActionPlan:      "Restrict to read-only path on next turn; request clean details.",
			FinalAction:         contractx.ActionRequestInfo,
			ToolTrace:           trace,
		}
	}

	// Step 2: exactly one identifier.
	identifier, ok := req.Identifier()
	if !ok {
		return contractx.CaseResponse{
			CustomerReply: "Please share your order ID, account email, or phone last 4 digits so I can " +
				"check eligibility.",
			InternalCaseSummary: "Missing order identifier; cannot proceed with tool lookup.",
			NextActionPlan:      "Ask customer for one valid identifier.",
			FinalAction:         contractx.ActionRequestInfo,
			ToolTrace:           trace,
		}
	}

	// Step 3: resolve the reason. Caller assertion wins; the advisor is
	// best-effort and the keyword table is the floor.
	reason := req.Reason
	if reason == "" || !contractx.ValidReason(reason) {
		if suggested, ok := o.advisor.ExtractReason(ctx, message, contractx.AllowedReasons()); ok {
			reason = suggested
		} else {
			reason = InferReason(message)
		}
	}

	// Step 4: lookup_order.
	lookup, err := o.tools.LookupOrder(ctx, identifier)
	if err != nil {
		trace = append(trace, contractx.TraceEntry{
			ToolName: toolx.ToolLookupOrder,
			Request:  identifier,
			Status:   contractx.ToolStatusError,
			Note:     err.Error(),
		})
		return contractx.CaseResponse{
			CustomerReply:       "I'm having trouble reaching the order system right now. Please try again shortly.",
			InternalCaseSummary: "Order lookup failed; sequence aborted before policy evaluation.",
			NextActionPlan:      "Retry lookup on next contact.",
			FinalAction:         contractx.ActionRequestInfo,
			ToolTrace:           trace,
		}
	}
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolLookupOrder,
		Request:  identifier,
		Response: lookup,
		Status:   contractx.ToolStatusOK,
	})
	if !lookup.Found || lookup.Order == nil {
		return contractx.CaseResponse{
			CustomerReply:       "I couldn't find the order with those details. Please confirm the identifier.",
			InternalCaseSummary: "Order lookup returned not found.",
			NextActionPlan:      "Request corrected order identifier.",
			FinalAction:         contractx.ActionRequestInfo,
			ToolTrace:           trace,
		}
	}
	order := *lookup.Order

	// Step 5: get_policy, check_eligibility, compute_refund, in that order.
	policyReq := toolx.PolicyRequest{
		ItemCategory: order.ItemCategory,
		Reason:       reason,
		DeliveryDate: order.DeliveryDate,
	}
	pol := o.tools.GetPolicy(ctx, policyReq)
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolGetPolicy,
		Request:  policyReq,
		Response: pol,
		Status:   contractx.ToolStatusOK,
	})

	verdict := o.tools.CheckEligibility(ctx, order, pol, reason, o.now())
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolCheckEligibility,
		Request:  map[string]any{"reason": reason},
		Response: verdict,
		Status:   contractx.ToolStatusOK,
	})

	refund := o.tools.ComputeRefund(ctx, order, pol, reason)
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolComputeRefund,
		Request:  map[string]any{"reason": reason},
		Response: refund,
		Status:   contractx.ToolStatusOK,
	})

	// Step 6: policy-authoritative deny. No write tool runs past this point
	// on the ineligible path.
	if !verdict.Eligible {
		reply := fmt.Sprintf(
			"Thanks for your request. Based on policy, this case is not eligible for refund/return: %s.",
			verdict.DecisionReason,
		)
		if drafted, ok := o.advisor.DraftReply(ctx, "deny_refund", map[string]any{
			"reason":          reason,
			"decision_reason": verdict.DecisionReason,
		}); ok {
			reply = drafted
		}
		return contractx.CaseResponse{
			CustomerReply: reply,
			InternalCaseSummary: fmt.Sprintf(
				"Policy-authoritative deny. order_id=%s reason=%s decision=%s",
				order.OrderID, reason, verdict.DecisionReason,
			),
			NextActionPlan: "Deny automatically; offer escalation if customer disputes.",
			FinalAction:    contractx.ActionDeny,
			ToolTrace:      trace,
		}
	}

	// Step 7: eligible but incomplete.
	if len(verdict.MissingInfo) > 0 {
		reply := fmt.Sprintf(
			"I can continue, but I still need the following information/evidence: %s.",
			strings.Join(verdict.MissingInfo, ", "),
		)
		if drafted, ok := o.advisor.DraftReply(ctx, "request_missing_info", map[string]any{
			"reason":       reason,
			"missing_info": verdict.MissingInfo,
		}); ok {
			reply = drafted
		}
		return contractx.CaseResponse{
			CustomerReply: reply,
			InternalCaseSummary: fmt.Sprintf(
				"Eligible conditionally; waiting for required evidence. missing=%v order=%s",
				verdict.MissingInfo, order.OrderID,
			),
			NextActionPlan: "Collect missing evidence before any write tools.",
			FinalAction:    contractx.ActionRequestInfo,
			ToolTrace:      trace,
		}
	}

	// Step 8: writes, through the idempotent gateway only.
	ret, err := o.tools.CreateReturn(ctx, order.OrderID, order.ItemID, toolx.ReturnMethod)
	if err != nil {
		trace = append(trace, contractx.TraceEntry{
			ToolName: toolx.ToolCreateReturn,
			Request:  map[string]any{"order_id": order.OrderID, "item_id": order.ItemID, "method": toolx.ReturnMethod},
			Status:   contractx.ToolStatusError,
			Note:     err.Error(),
		})
		return writeFailureResponse(order.OrderID, reason, trace)
	}
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolCreateReturn,
		Request:  map[string]any{"order_id": order.OrderID, "item_id": order.ItemID, "method": toolx.ReturnMethod},
		Response: ret,
		Status:   contractx.ToolStatusOK,
	})

	label, err := o.tools.CreateLabel(ctx, ret.RMAID)
	if err != nil {
		trace = append(trace, contractx.TraceEntry{
			ToolName: toolx.ToolCreateLabel,
			Request:  map[string]any{"rma_id": ret.RMAID},
			Status:   contractx.ToolStatusError,
			Note:     err.Error(),
		})
		return writeFailureResponse(order.OrderID, reason, trace)
	}
	trace = append(trace, contractx.TraceEntry{
		ToolName: toolx.ToolCreateLabel,
		Request:  map[string]any{"rma_id": ret.RMAID},
		Response: label,
		Status:   contractx.ToolStatusOK,
	})

	reply := fmt.Sprintf(
		"Your return/refund is approved under policy. Refund amount: %s. RMA: %s. Label: %s",
		refund.Amount.StringFixed(2), ret.RMAID, label.URL,
	)
	if drafted, ok := o.advisor.DraftReply(ctx, "approve_return_and_refund", map[string]any{
		"reason":        reason,
		"refund_amount": refund.Amount.StringFixed(2),
		"rma_id":        ret.RMAID,
		"label_url":     label.URL,
	}); ok {
		reply = drafted
	}
	return contractx.CaseResponse{
		CustomerReply: reply,
		InternalCaseSummary: fmt.Sprintf(
			"Approved with tool-grounded workflow. order_id=%s reason=%s refund=%s rma=%s",
			order.OrderID, reason, refund.Amount.StringFixed(2), ret.RMAID,
		),
		NextActionPlan: "Return created, label issued, refund to be processed.",
		FinalAction:    contractx.ActionApproveReturnAndRefund,
		ToolTrace:      trace,
	}
}

// writeFailureResponse surfaces a write-tool failure without retrying. Effects
// already created stay intact; the idempotency keys make resubmission safe.
func writeFailureResponse(orderID string, reason contractx.Reason, trace []contractx.TraceEntry) contractx.CaseResponse {
	return contractx.CaseResponse{
		CustomerReply: "Your request is eligible, but I hit an issue completing the return paperwork. " +
			"A support agent will finish this for you.",
		InternalCaseSummary: fmt.Sprintf(
			"Write tool failed after eligible verdict. order_id=%s reason=%s; created effects are intact.",
			orderID, reason,
		),
		NextActionPlan: "Escalate for manual completion; resubmission is idempotent.",
		FinalAction:    contractx.ActionEscalate,
		ToolTrace:      trace,
	}
}

// sanitize enforces the outbound PII post-condition on every response field
// that leaves the system, regardless of how it was produced.
func sanitize(resp contractx.CaseResponse) contractx.CaseResponse {
	if guardrail.ContainsLeak(resp.CustomerReply) {
		resp.CustomerReply = guardrail.Mask(resp.CustomerReply)
	}
	if guardrail.ContainsLeak(resp.InternalCaseSummary) {
		resp.InternalCaseSummary = guardrail.Mask(resp.InternalCaseSummary)
	}
	return resp
}

type noopAdvisor struct{}

func (noopAdvisor) ExtractReason(context.Context, string, []contractx.Reason) (contractx.Reason, bool) {
	return "", false
}

func (noopAdvisor) DraftReply(context.Context, string, map[string]any) (string, bool) {
	return "", false
}
