package state

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

func TestAdvanceRefusesLeavingTerminal(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("SES-1", "CASE-1", now)
	if err := s.Advance(StateResolved, now); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if err := s.Advance(StateCollectingReason, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if s.Status != StateResolved {
		t.Fatalf("terminal status changed to %s", s.Status)
	}
}

func TestTerminalStates(t *testing.T) {
	t.Parallel()

	terminal := []SessionStatus{StateResolved, StateDenied, StateEscalated, StateCancelled}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Fatalf("%s must be terminal", st)
		}
	}
	open := []SessionStatus{
		StateCollectingIdentifier, StateSelectingOrder, StateSelectingItems,
		StateCollectingReason, StateAwaitingResolution, StateAwaitingEvidence,
		StateEvidenceValidated,
	}
	for _, st := range open {
		if st.Terminal() {
			t.Fatalf("%s must not be terminal", st)
		}
	}
}

func TestStatusChips(t *testing.T) {
	t.Parallel()

	tests := map[SessionStatus]string{
		StateCollectingIdentifier: "Awaiting Details",
		StateSelectingOrder:       "Awaiting User Choice",
		StateAwaitingEvidence:     "Awaiting Evidence",
		StateEvidenceValidated:    "Validating",
		StateResolved:             "Resolved",
		StateDenied:               "Denied",
		StateEscalated:            "Escalated",
		StateCancelled:            "Cancelled",
	}
	for st, want := range tests {
		if got := st.StatusChip(); got != want {
			t.Fatalf("StatusChip(%s) = %q, want %q", st, got, want)
		}
	}
}

func TestLastAssistantMessage(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("SES-1", "CASE-1", now)
	if got := s.LastAssistantMessage(); got != "" {
		t.Fatalf("empty session returned %q", got)
	}
	s.AppendMessage("assistant", "first", now)
	s.AppendMessage("customer", "hi", now)
	s.AppendMessage("assistant", "second", now)
	if got := s.LastAssistantMessage(); got != "second" {
		t.Fatalf("LastAssistantMessage() = %q, want second", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("SES-1", "CASE-1", now)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	s.SessionID = ""
	if err := s.Validate(); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	s = NewSession("SES-2", "CASE-2", now)
	s.Status = StateResolved
	if err := s.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("terminal session without final action: got %v", err)
	}
	s.FinalAction = contractx.ActionApproveReturnAndRefund
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
