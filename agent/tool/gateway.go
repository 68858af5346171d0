// Package tool executes the named read and write tools over the order, policy
// and effect boundaries. Every execution is measured and written to the tool
// call log; outcomes are values, not panics, so the sequencer can record each
// one in its trace uniformly.
package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	policyx "github.com/pakornv/refund-returns-agent/agent/policy"
)

// Tool names as they appear in traces and the call log.
const (
	ToolLookupOrder      = "lookup_order"
	ToolListOrders       = "list_orders"
	ToolListOrderItems   = "list_order_items"
	ToolGetPolicy        = "get_policy"
	ToolCheckEligibility = "check_eligibility"
	ToolComputeRefund    = "compute_refund"
	ToolCreateReturn     = "create_return"
	ToolCreateLabel      = "create_label"
	ToolCreateEscalation = "create_escalation"
)

// ReturnMethod is the only return channel currently offered.
const ReturnMethod = "dropoff"

type Gateway struct {
	orders  contractx.OrderStore
	effects contractx.EffectStore
	log     contractx.ToolCallLogger
	now     func() time.Time
}

func NewGateway(orders contractx.OrderStore, effects contractx.EffectStore, log contractx.ToolCallLogger) (*Gateway, error) {
	if orders == nil {
		return nil, errors.New("order store is required")
	}
	if effects == nil {
		return nil, errors.New("effect store is required")
	}
	if log == nil {
		log = NopLogger{}
	}
	return &Gateway{orders: orders, effects: effects, log: log, now: time.Now}, nil
}

// NopLogger discards tool call records.
type NopLogger struct{}

func (NopLogger) LogToolCall(context.Context, string, any, any, string, int64) {}

func (g *Gateway) record(ctx context.Context, tool string, request, response any, err error, started time.Time) {
	latency := g.now().Sub(started).Milliseconds()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	g.log.LogToolCall(ctx, tool, request, response, msg, latency)
}

type LookupOrderResult struct {
	Found bool                     `json:"found"`
	Order *contractx.OrderSnapshot `json:"order,omitempty"`
}

// LookupOrder resolves an identifier to a masked order snapshot. A missing
// order is a result, not an error.
func (g *Gateway) LookupOrder(ctx context.Context, id contractx.Identifier) (LookupOrderResult, error) {
	started := g.now()
	snap, err := g.orders.LookupOrder(ctx, id)
	if errors.Is(err, contractx.ErrOrderNotFound) {
		result := LookupOrderResult{Found: false}
		g.record(ctx, ToolLookupOrder, id, result, nil, started)
		return result, nil
	}
	if err != nil {
		g.record(ctx, ToolLookupOrder, id, nil, err, started)
		return LookupOrderResult{}, err
	}
	result := LookupOrderResult{Found: true, Order: snap}
	g.record(ctx, ToolLookupOrder, id, result, nil, started)
	return result, nil
}

func (g *Gateway) ListOrders(ctx context.Context, id contractx.Identifier) ([]contractx.OrderSnapshot, error) {
	started := g.now()
	orders, err := g.orders.ListOrders(ctx, id)
	g.record(ctx, ToolListOrders, id, orders, err, started)
	return orders, err
}

func (g *Gateway) ListOrderItems(ctx context.Context, orderID string) ([]contractx.OrderItem, error) {
	started := g.now()
	items, err := g.orders.ListOrderItems(ctx, orderID)
	g.record(ctx, ToolListOrderItems, orderID, items, err, started)
	return items, err
}

type PolicyRequest struct {
	ItemCategory string           `json:"item_category"`
	Reason       contractx.Reason `json:"reason"`
	DeliveryDate *time.Time       `json:"delivery_date,omitempty"`
}

func (g *Gateway) GetPolicy(ctx context.Context, req PolicyRequest) policyx.Policy {
	started := g.now()
	p := policyx.GetPolicy(req.ItemCategory, req.Reason, req.DeliveryDate)
	g.record(ctx, ToolGetPolicy, req, p, nil, started)
	return p
}

func (g *Gateway) CheckEligibility(ctx context.Context, order contractx.OrderSnapshot, p policyx.Policy, reason contractx.Reason, now time.Time) policyx.Verdict {
	started := g.now()
	verdict := policyx.CheckEligibility(order, p, reason, now)
	g.record(ctx, ToolCheckEligibility, map[string]any{"order_id": order.OrderID, "reason": reason}, verdict, nil, started)
	return verdict
}

func (g *Gateway) ComputeRefund(ctx context.Context, order contractx.OrderSnapshot, p policyx.Policy, reason contractx.Reason) policyx.Refund {
	started := g.now()
	refund := policyx.ComputeRefund(order, p, reason)
	g.record(ctx, ToolComputeRefund, map[string]any{"order_id": order.OrderID, "reason": reason}, refund, nil, started)
	return refund
}

type CreateReturnResult struct {
	RMAID string `json:"rma_id"`
}

func (g *Gateway) CreateReturn(ctx context.Context, orderID, itemID, method string) (CreateReturnResult, error) {
	started := g.now()
	req := map[string]any{"order_id": orderID, "item_id": itemID, "method": method}
	rmaID, err := g.effects.CreateReturn(ctx, orderID, itemID, method)
	if err != nil {
		g.record(ctx, ToolCreateReturn, req, nil, err, started)
		return CreateReturnResult{}, fmt.Errorf("%w: %w", contractx.ErrToolFailed, err)
	}
	result := CreateReturnResult{RMAID: rmaID}
	g.record(ctx, ToolCreateReturn, req, result, nil, started)
	return result, nil
}

type CreateLabelResult struct {
	LabelID string `json:"label_id"`
	URL     string `json:"url"`
}

func (g *Gateway) CreateLabel(ctx context.Context, rmaID string) (CreateLabelResult, error) {
	started := g.now()
	req := map[string]any{"rma_id": rmaID}
	labelID, url, err := g.effects.CreateLabel(ctx, rmaID)
	if err != nil {
		g.record(ctx, ToolCreateLabel, req, nil, err, started)
		return CreateLabelResult{}, fmt.Errorf("%w: %w", contractx.ErrToolFailed, err)
	}
	result := CreateLabelResult{LabelID: labelID, URL: url}
	g.record(ctx, ToolCreateLabel, req, result, nil, started)
	return result, nil
}

type CreateEscalationResult struct {
	TicketID string `json:"ticket_id"`
}

func (g *Gateway) CreateEscalation(ctx context.Context, caseID string, reason contractx.Reason, evidence map[string]any) (CreateEscalationResult, error) {
	started := g.now()
	req := map[string]any{"case_id": caseID, "reason": reason}
	ticketID, err := g.effects.CreateEscalation(ctx, caseID, reason, evidence)
	if err != nil {
		g.record(ctx, ToolCreateEscalation, req, nil, err, started)
		return CreateEscalationResult{}, fmt.Errorf("%w: %w", contractx.ErrToolFailed, err)
	}
	result := CreateEscalationResult{TicketID: ticketID}
	g.record(ctx, ToolCreateEscalation, req, result, nil, started)
	return result, nil
}
