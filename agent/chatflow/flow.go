// Package chatflow drives the resumable, server-authoritative refund/return
// conversation. The persisted session is the complete source of truth: resume
// rebuilds transcript, status and controls from the store alone, and write
// tools run only after the policy tools returned an eligible, complete
// verdict inside the same evaluation.
package chatflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	"github.com/pakornv/refund-returns-agent/agent/guardrail"
	"github.com/pakornv/refund-returns-agent/agent/orchestrator"
	policyx "github.com/pakornv/refund-returns-agent/agent/policy"
	statex "github.com/pakornv/refund-returns-agent/agent/state"
	toolx "github.com/pakornv/refund-returns-agent/agent/tool"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
)

var ErrInvalidSessionID = errors.New("session id is empty")

type Flow struct {
	store   statex.Store
	tools   *toolx.Gateway
	advisor contractx.Advisor
	logger  zerolog.Logger
	now     func() time.Time

	// locks linearizes transitions per session id.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store statex.Store, tools *toolx.Gateway, advisor contractx.Advisor) (*Flow, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if advisor == nil {
		advisor = advisorNoop{}
	}
	return &Flow{
		store:   store,
		tools:   tools,
		advisor: advisor,
		logger:  logx.Component("chatflow"),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (f *Flow) sessionLock(sessionID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		f.locks[sessionID] = l
	}
	return l
}

// Start opens a session. When the customer identifier is already known the
// flow skips straight to order selection.
func (f *Flow) Start(ctx context.Context, req StartRequest) (Response, error) {
	now := f.now()
	sessionID := "SES-" + uuid.NewString()
	caseID := "CASE-" + uuid.NewString()
	s := statex.NewSession(sessionID, caseID, now)
	s.AppendEvent("Session started", "", now)

	identifier := strings.TrimSpace(req.CustomerIdentifier)
	if identifier == "" {
		s.AppendMessage("assistant",
			"Hi! I can help with refunds and returns. Please share your order ID, account email, or the last 4 digits of your phone number.",
			now)
		if err := f.store.Save(ctx, s); err != nil {
			return Response{}, err
		}
		return f.respond(ctx, s), nil
	}

	if err := f.collectIdentifier(ctx, s, identifier, now); err != nil {
		return Response{}, err
	}
	if err := f.store.Save(ctx, s); err != nil {
		return Response{}, err
	}
	return f.respond(ctx, s), nil
}

// Message applies one inbound turn. A terminal session replays its snapshot
// verbatim; a message carrying the wrong field re-prompts without advancing.
func (f *Flow) Message(ctx context.Context, req MessageRequest) (Response, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return Response{}, ErrInvalidSessionID
	}

	lock := f.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s, err := f.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			return Response{}, contractx.ErrSessionNotFound
		}
		return Response{}, err
	}
	if s.Status.Terminal() {
		return f.respond(ctx, s), nil
	}

	now := f.now()
	text := strings.TrimSpace(req.Text)
	if text != "" {
		s.AppendMessage("customer", guardrail.Mask(text), now)

		switch guardrail.Classify(text) {
		case guardrail.ViolationFraudOrExfiltration:
			f.logger.Warn().Str("session_id", s.SessionID).Str("violation", "fraud_or_exfiltration").Msg("guardrail hit")
			s.FinalAction = contractx.ActionRefuse
			if err := s.Advance(statex.StateCancelled, now); err != nil {
				return Response{}, err
			}
			s.AppendEvent("Session cancelled", "guardrail=fraud_or_exfiltration", now)
			s.AppendMessage("assistant",
				"I can't help with requests that bypass policy, expose sensitive data, or involve fraud. This conversation is closed.",
				now)
			if err := f.store.Save(ctx, s); err != nil {
				return Response{}, err
			}
			return f.respond(ctx, s), nil
		case guardrail.ViolationInjection:
			f.logger.Warn().Str("session_id", s.SessionID).Str("violation", "injection").Msg("guardrail hit")
			s.AppendEvent("Message rejected", "guardrail=injection", now)
			s.AppendMessage("assistant",
				"I can only help with a normal refund/return request. "+f.promptFor(s),
				now)
			if err := f.store.Save(ctx, s); err != nil {
				return Response{}, err
			}
			return f.respond(ctx, s), nil
		}
	}

	if err := f.advance(ctx, s, req, text, now); err != nil {
		return Response{}, err
	}
	if err := f.store.Save(ctx, s); err != nil {
		return Response{}, err
	}
	return f.respond(ctx, s), nil
}

// Resume rebuilds the session view from persisted state only. No transition
// runs and nothing is saved, so resuming a terminal session is a pure read.
func (f *Flow) Resume(ctx context.Context, sessionID string) (Response, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Response{}, ErrInvalidSessionID
	}
	s, err := f.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			return Response{}, contractx.ErrSessionNotFound
		}
		return Response{}, err
	}
	return f.respond(ctx, s), nil
}

func (f *Flow) advance(ctx context.Context, s *statex.Session, req MessageRequest, text string, now time.Time) error {
	switch s.Status {
	case statex.StateCollectingIdentifier:
		if text == "" {
			return f.reprompt(s, now)
		}
		return f.collectIdentifier(ctx, s, text, now)

	case statex.StateSelectingOrder:
		orderID := strings.TrimSpace(req.SelectedOrderID)
		if orderID == "" {
			return f.reprompt(s, now)
		}
		return f.selectOrder(ctx, s, orderID, now)

	case statex.StateSelectingItems:
		if len(req.SelectedItemIDs) == 0 {
			return f.reprompt(s, now)
		}
		return f.selectItems(s, req.SelectedItemIDs, now)

	case statex.StateCollectingReason:
		reason := req.Reason
		if reason != "" && !contractx.ValidReason(reason) {
			return f.reprompt(s, now)
		}
		if reason == "" {
			if text == "" {
				return f.reprompt(s, now)
			}
			if suggested, ok := f.advisor.ExtractReason(ctx, text, contractx.AllowedReasons()); ok {
				reason = suggested
			} else {
				reason = orchestrator.InferReason(text)
			}
		}
		return f.collectReason(s, reason, now)

	case statex.StateAwaitingResolution:
		pref := strings.TrimSpace(req.PreferredResolution)
		if !validResolution(pref) {
			return f.reprompt(s, now)
		}
		return f.collectResolution(ctx, s, pref, now)

	case statex.StateAwaitingEvidence:
		meta, ok := validateEvidence(req)
		if !ok {
			s.AppendEvent("Evidence rejected", "malformed or too small", now)
			return f.reprompt(s, now)
		}
		s.Context.Evidence = &meta
		if err := s.Advance(statex.StateEvidenceValidated, now); err != nil {
			return err
		}
		s.AppendEvent("Evidence validated", fmt.Sprintf("file=%s size=%d", meta.FileName, meta.SizeBytes), now)
		return f.evaluate(ctx, s, now)

	default:
		return fmt.Errorf("%w: unexpected state %s", statex.ErrInvalidTransition, s.Status)
	}
}

func (f *Flow) collectIdentifier(ctx context.Context, s *statex.Session, raw string, now time.Time) error {
	id := parseIdentifier(raw)
	orders, err := f.tools.ListOrders(ctx, id)
	if err != nil {
		s.AppendMessage("assistant",
			"I'm having trouble reaching the order system right now. Please try again in a moment.",
			now)
		return nil
	}
	if len(orders) == 0 {
		s.AppendMessage("assistant",
			"I couldn't find any orders with those details. Please double-check your order ID, email, or phone last 4 digits.",
			now)
		return nil
	}

	s.Context.Identifier = &id
	if err := s.Advance(statex.StateSelectingOrder, now); err != nil {
		return err
	}
	s.AppendEvent("Listed orders", fmt.Sprintf("count=%d", len(orders)), now)
	s.AppendMessage("assistant", "Select your order.", now)
	return nil
}

func (f *Flow) selectOrder(ctx context.Context, s *statex.Session, orderID string, now time.Time) error {
	items, err := f.tools.ListOrderItems(ctx, orderID)
	if err != nil || len(items) == 0 {
		s.AppendMessage("assistant",
			"I couldn't load the items for that order. Please pick an order again.",
			now)
		return nil
	}

	s.Context.SelectedOrderID = orderID
	if err := s.Advance(statex.StateSelectingItems, now); err != nil {
		return err
	}
	s.AppendEvent("Order selected", "order_id="+orderID, now)
	s.AppendMessage("assistant", "Select the item(s) you want to return or refund.", now)
	return nil
}

func (f *Flow) selectItems(s *statex.Session, itemIDs []string, now time.Time) error {
	s.Context.SelectedItemIDs = append([]string(nil), itemIDs...)
	if err := s.Advance(statex.StateCollectingReason, now); err != nil {
		return err
	}
	s.AppendEvent("Items selected", fmt.Sprintf("count=%d", len(itemIDs)), now)
	s.AppendMessage("assistant", "What's the issue with your item?", now)
	return nil
}

func (f *Flow) collectReason(s *statex.Session, reason contractx.Reason, now time.Time) error {
	s.Context.Reason = reason
	if err := s.Advance(statex.StateAwaitingResolution, now); err != nil {
		return err
	}
	s.AppendEvent("Reason recorded", "reason="+string(reason), now)
	s.AppendMessage("assistant", "How would you like this resolved?", now)
	return nil
}

func (f *Flow) collectResolution(ctx context.Context, s *statex.Session, pref string, now time.Time) error {
	s.Context.PreferredResolution = pref
	s.AppendEvent("Resolution preference recorded", "preference="+pref, now)

	if policyx.RequiresEvidence(s.Context.Reason) {
		if err := s.Advance(statex.StateAwaitingEvidence, now); err != nil {
			return err
		}
		s.AppendMessage("assistant",
			"Please upload a photo of the issue (JPEG or PNG) so I can verify the claim.",
			now)
		return nil
	}
	if err := s.Advance(statex.StateEvidenceValidated, now); err != nil {
		return err
	}
	return f.evaluate(ctx, s, now)
}

// evaluate runs the read tools and, only on an eligible and complete verdict,
// the write path chosen by the customer's resolution preference.
func (f *Flow) evaluate(ctx context.Context, s *statex.Session, now time.Time) error {
	orderID := s.Context.SelectedOrderID
	reason := s.Context.Reason

	lookup, err := f.tools.LookupOrder(ctx, contractx.Identifier{
		Kind:  contractx.IdentifierOrderID,
		Value: orderID,
	})
	if err != nil || !lookup.Found || lookup.Order == nil {
		s.AppendEvent("Evaluation aborted", "order lookup failed", now)
		s.AppendMessage("assistant",
			"I couldn't load your order to finish the evaluation. Please try again shortly.",
			now)
		// Roll back to evidence/resolution intake so the customer can retry.
		s.Status = statex.StateAwaitingResolution
		s.Touch(now)
		return nil
	}
	order := *lookup.Order

	pol := f.tools.GetPolicy(ctx, toolx.PolicyRequest{
		ItemCategory: order.ItemCategory,
		Reason:       reason,
		DeliveryDate: order.DeliveryDate,
	})
	verdict := f.tools.CheckEligibility(ctx, order, pol, reason, now)
	refund := f.tools.ComputeRefund(ctx, order, pol, reason)
	s.AppendEvent("Policy evaluated", "decision="+verdict.DecisionReason, now)

	if !verdict.Eligible {
		s.FinalAction = contractx.ActionDeny
		if err := s.Advance(statex.StateDenied, now); err != nil {
			return err
		}
		reply := fmt.Sprintf("Based on policy, this case is not eligible for refund/return: %s.", verdict.DecisionReason)
		if drafted, ok := f.advisor.DraftReply(ctx, "deny_refund", map[string]any{
			"reason":          reason,
			"decision_reason": verdict.DecisionReason,
		}); ok && !guardrail.ContainsLeak(drafted) {
			reply = drafted
		}
		s.AppendMessage("assistant", reply, now)
		return nil
	}

	if missingBeyondEvidence(verdict, s.Context.Evidence) {
		// Eligible but incomplete and the missing item is not something this
		// flow can collect; leave it to a human.
		return f.escalate(ctx, s, "missing "+strings.Join(verdict.MissingInfo, ","), now)
	}

	switch s.Context.PreferredResolution {
	case ResolutionReplacement, ResolutionStoreCredit:
		return f.escalate(ctx, s, "preference="+s.Context.PreferredResolution, now)

	case ResolutionRefund:
		if reason == contractx.ReasonLateDelivery {
			// Nothing to ship back: refund only.
			s.FinalAction = contractx.ActionApproveRefund
			if err := s.Advance(statex.StateResolved, now); err != nil {
				return err
			}
			s.AppendEvent("Refund approved", "amount="+refund.Amount.StringFixed(2), now)
			s.AppendMessage("assistant", fmt.Sprintf(
				"Your refund of %s is approved and will be processed to your original payment method.",
				refund.Amount.StringFixed(2)), now)
			return nil
		}
		fallthrough

	case ResolutionReturn:
		itemID := order.ItemID
		if len(s.Context.SelectedItemIDs) > 0 {
			itemID = s.Context.SelectedItemIDs[0]
		}
		ret, err := f.tools.CreateReturn(ctx, order.OrderID, itemID, toolx.ReturnMethod)
		if err != nil {
			return f.escalate(ctx, s, "create_return failed", now)
		}
		label, err := f.tools.CreateLabel(ctx, ret.RMAID)
		if err != nil {
			return f.escalate(ctx, s, "create_label failed", now)
		}

		s.FinalAction = contractx.ActionApproveReturnAndRefund
		if err := s.Advance(statex.StateResolved, now); err != nil {
			return err
		}
		s.AppendEvent("Return approved", fmt.Sprintf("rma=%s refund=%s", ret.RMAID, refund.Amount.StringFixed(2)), now)
		reply := fmt.Sprintf(
			"Your return is approved. Refund amount: %s. RMA: %s. Shipping label: %s",
			refund.Amount.StringFixed(2), ret.RMAID, label.URL,
		)
		if drafted, ok := f.advisor.DraftReply(ctx, "approve_return_and_refund", map[string]any{
			"reason":        reason,
			"refund_amount": refund.Amount.StringFixed(2),
			"rma_id":        ret.RMAID,
			"label_url":     label.URL,
		}); ok && !guardrail.ContainsLeak(drafted) {
			reply = drafted
		}
		s.AppendMessage("assistant", reply, now)
		return nil

	default:
		return f.escalate(ctx, s, "unknown preference", now)
	}
}

func (f *Flow) escalate(ctx context.Context, s *statex.Session, detail string, now time.Time) error {
	evidence := map[string]any{"detail": detail}
	if s.Context.Evidence != nil {
		evidence["evidence_file"] = s.Context.Evidence.FileName
	}
	ticket, err := f.tools.CreateEscalation(ctx, s.CaseID, s.Context.Reason, evidence)

	s.FinalAction = contractx.ActionEscalate
	if advErr := s.Advance(statex.StateEscalated, now); advErr != nil {
		return advErr
	}
	if err != nil {
		s.AppendEvent("Escalated", "ticket creation failed; manual follow-up", now)
		s.AppendMessage("assistant",
			"I've flagged your case for a support agent. They will follow up shortly.",
			now)
		return nil
	}
	s.AppendEvent("Escalated", "ticket="+ticket.TicketID, now)
	s.AppendMessage("assistant", fmt.Sprintf(
		"I've escalated your case to a support agent (ticket %s). They will follow up shortly.",
		ticket.TicketID), now)
	return nil
}

// reprompt repeats the current state's ask without advancing.
func (f *Flow) reprompt(s *statex.Session, now time.Time) error {
	s.AppendMessage("assistant", f.promptFor(s), now)
	return nil
}

func (f *Flow) promptFor(s *statex.Session) string {
	switch s.Status {
	case statex.StateCollectingIdentifier:
		return "Please share your order ID, account email, or the last 4 digits of your phone number."
	case statex.StateSelectingOrder:
		return "Select your order."
	case statex.StateSelectingItems:
		return "Select the item(s) you want to return or refund."
	case statex.StateCollectingReason:
		return "What's the issue with your item?"
	case statex.StateAwaitingResolution:
		return "How would you like this resolved?"
	case statex.StateAwaitingEvidence:
		return "Please upload a photo of the issue (JPEG or PNG) so I can verify the claim."
	default:
		return "How can I help with your refund or return?"
	}
}

func validateEvidence(req MessageRequest) (statex.EvidenceMeta, bool) {
	if !req.EvidenceUploaded {
		return statex.EvidenceMeta{}, false
	}
	if strings.TrimSpace(req.EvidenceFileName) == "" {
		return statex.EvidenceMeta{}, false
	}
	if !strings.HasPrefix(req.EvidenceMimeType, "image/") {
		return statex.EvidenceMeta{}, false
	}
	if req.EvidenceSizeBytes < MinEvidenceBytes {
		return statex.EvidenceMeta{}, false
	}
	if req.EvidenceContentBase64 == "" {
		return statex.EvidenceMeta{}, false
	}
	return statex.EvidenceMeta{
		Uploaded:  true,
		FileName:  req.EvidenceFileName,
		MimeType:  req.EvidenceMimeType,
		SizeBytes: req.EvidenceSizeBytes,
	}, true
}

// missingBeyondEvidence reports whether the verdict still needs something the
// validated upload does not satisfy.
func missingBeyondEvidence(verdict policyx.Verdict, evidence *statex.EvidenceMeta) bool {
	for _, item := range verdict.MissingInfo {
		if item == "photo_proof" && evidence != nil && evidence.Uploaded {
			continue
		}
		return true
	}
	return false
}

func parseIdentifier(raw string) contractx.Identifier {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.Contains(raw, "@"):
		return contractx.Identifier{Kind: contractx.IdentifierEmail, Value: raw}
	case len(raw) == 4 && isDigits(raw):
		return contractx.Identifier{Kind: contractx.IdentifierPhoneLast4, Value: raw}
	default:
		return contractx.Identifier{Kind: contractx.IdentifierOrderID, Value: raw}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

type advisorNoop struct{}

func (advisorNoop) ExtractReason(context.Context, string, []contractx.Reason) (contractx.Reason, bool) {
	return "", false
}

func (advisorNoop) DraftReply(context.Context, string, map[string]any) (string, bool) {
	return "", false
}
