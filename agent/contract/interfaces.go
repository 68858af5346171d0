package contract

import "context"

// OrderStore is the read-only boundary to the external order system.
// Lookups return ErrOrderNotFound when nothing matches.
type OrderStore interface {
	LookupOrder(ctx context.Context, id Identifier) (*OrderSnapshot, error)
	ListOrders(ctx context.Context, id Identifier) ([]OrderSnapshot, error)
	ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
}

// EffectStore is the write-tool boundary. Every operation is idempotent per
// its semantic arguments: repeats return the originally created artifact id.
type EffectStore interface {
	CreateReturn(ctx context.Context, orderID, itemID, method string) (rmaID string, err error)
	CreateLabel(ctx context.Context, rmaID string) (labelID, url string, err error)
	CreateEscalation(ctx context.Context, caseID string, reason Reason, evidence map[string]any) (ticketID string, err error)
}

// Advisor may propose a reason classification or a customer-facing sentence.
// Its output is never authoritative; nil/error results are always recoverable.
type Advisor interface {
	ExtractReason(ctx context.Context, text string, allowed []Reason) (Reason, bool)
	DraftReply(ctx context.Context, objective string, context map[string]any) (string, bool)
}

// ToolCallLogger persists one record per executed tool, mirroring the trace
// for offline audit. Implementations must never fail the calling sequence.
type ToolCallLogger interface {
	LogToolCall(ctx context.Context, toolName string, request, response any, errMsg string, latencyMillis int64)
}
