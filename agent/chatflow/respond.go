package chatflow

import (
	"context"
	"sort"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	statex "github.com/pakornv/refund-returns-agent/agent/state"
)

// respond renders the session into the caller-facing view. Controls are
// rebuilt from persisted context plus read tools only, so the same session
// always renders the same response; terminal sessions carry no controls.
func (f *Flow) respond(ctx context.Context, s *statex.Session) Response {
	resp := Response{
		SessionID:        s.SessionID,
		CaseID:           s.CaseID,
		AssistantMessage: s.LastAssistantMessage(),
		StatusChip:       s.Status.StatusChip(),
		Controls:         []Control{},
		Timeline:         append([]statex.TimelineEvent(nil), s.Timeline...),
		Messages:         append([]statex.Message(nil), s.Messages...),
	}
	if s.Status.Terminal() {
		resp.FinalAction = s.FinalAction
		return resp
	}
	resp.Controls = f.controlsFor(ctx, s)
	return resp
}

func (f *Flow) controlsFor(ctx context.Context, s *statex.Session) []Control {
	switch s.Status {
	case statex.StateSelectingOrder:
		if s.Context.Identifier == nil {
			return []Control{}
		}
		orders, err := f.tools.ListOrders(ctx, *s.Context.Identifier)
		if err != nil || len(orders) == 0 {
			return []Control{}
		}
		options := make([]ControlOption, 0, len(orders))
		for _, o := range orders {
			options = append(options, ControlOption{
				Label: o.OrderID + " (" + o.ItemCategory + ")",
				Value: o.OrderID,
			})
		}
		sort.Slice(options, func(i, j int) bool { return options[i].Value < options[j].Value })
		return []Control{{
			ControlType: "dropdown",
			Field:       "selected_order_id",
			Label:       "Select your order",
			Options:     options,
		}}

	case statex.StateSelectingItems:
		items, err := f.tools.ListOrderItems(ctx, s.Context.SelectedOrderID)
		if err != nil || len(items) == 0 {
			return []Control{}
		}
		options := make([]ControlOption, 0, len(items))
		for _, it := range items {
			options = append(options, ControlOption{Label: it.ItemID + " (" + it.ItemCategory + ")", Value: it.ItemID})
		}
		return []Control{{
			ControlType: "multiselect",
			Field:       "selected_item_ids",
			Label:       "Select the item(s)",
			Options:     options,
		}}

	case statex.StateCollectingReason:
		return []Control{{
			ControlType: "dropdown",
			Field:       "reason",
			Label:       "What's the issue?",
			Options:     reasonOptions(),
		}}

	case statex.StateAwaitingResolution:
		return []Control{{
			ControlType: "dropdown",
			Field:       "preferred_resolution",
			Label:       "Preferred resolution",
			Options: []ControlOption{
				{Label: "Refund", Value: ResolutionRefund},
				{Label: "Return & refund", Value: ResolutionReturn},
				{Label: "Replacement", Value: ResolutionReplacement},
				{Label: "Store credit", Value: ResolutionStoreCredit},
			},
		}}

	default:
		return []Control{}
	}
}

func reasonOptions() []ControlOption {
	labels := map[contractx.Reason]string{
		contractx.ReasonDamaged:        "Arrived damaged",
		contractx.ReasonDefective:      "Defective / not working",
		contractx.ReasonWrongItem:      "Wrong item received",
		contractx.ReasonNotAsDescribed: "Not as described",
		contractx.ReasonChangedMind:    "Changed my mind",
		contractx.ReasonLateDelivery:   "Late delivery",
	}
	options := make([]ControlOption, 0, len(labels))
	for _, r := range contractx.AllowedReasons() {
		options = append(options, ControlOption{Label: labels[r], Value: string(r)})
	}
	return options
}
