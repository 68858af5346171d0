// Package state holds the persisted conversation session. The session row is
// the complete source of truth: resume must work from the store alone, with no
// process-memory dependency.
package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

// SessionStatus enumerates the conversation states. One variant per state;
// everything after the arrow in the flow is driven by these values.
type SessionStatus string

const (
	StateCollectingIdentifier SessionStatus = "collecting_identifier"
	StateSelectingOrder       SessionStatus = "selecting_order"
	StateSelectingItems       SessionStatus = "selecting_items"
	StateCollectingReason     SessionStatus = "collecting_reason"
	StateAwaitingResolution   SessionStatus = "awaiting_resolution_preference"
	StateAwaitingEvidence     SessionStatus = "awaiting_evidence"
	StateEvidenceValidated    SessionStatus = "evidence_validated"
	StateResolved             SessionStatus = "resolved"
	StateDenied               SessionStatus = "denied"
	StateEscalated            SessionStatus = "escalated"
	StateCancelled            SessionStatus = "cancelled"
)

// Terminal reports whether the state accepts no further messages.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StateResolved, StateDenied, StateEscalated, StateCancelled:
		return true
	}
	return false
}

// StatusChip is the caller-facing label for a state.
func (s SessionStatus) StatusChip() string {
	switch s {
	case StateCollectingIdentifier:
		return "Awaiting Details"
	case StateSelectingOrder, StateSelectingItems, StateCollectingReason, StateAwaitingResolution:
		return "Awaiting User Choice"
	case StateAwaitingEvidence:
		return "Awaiting Evidence"
	case StateEvidenceValidated:
		return "Validating"
	case StateResolved:
		return "Resolved"
	case StateDenied:
		return "Denied"
	case StateEscalated:
		return "Escalated"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// EvidenceMeta describes the uploaded proof. Content itself is not retained,
// only enough to re-validate shape on resume.
type EvidenceMeta struct {
	Uploaded  bool   `json:"uploaded"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Context accumulates the facts collected so far.
type Context struct {
	Identifier          *contractx.Identifier `json:"identifier,omitempty"`
	SelectedOrderID     string                `json:"selected_order_id,omitempty"`
	SelectedItemIDs     []string              `json:"selected_item_ids,omitempty"`
	Reason              contractx.Reason      `json:"reason,omitempty"`
	PreferredResolution string                `json:"preferred_resolution,omitempty"`
	Evidence            *EvidenceMeta         `json:"evidence,omitempty"`
}

type Message struct {
	Role      string    `json:"role"` // "customer" | "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type TimelineEvent struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

type Session struct {
	SessionID string        `json:"session_id"`
	CaseID    string        `json:"case_id"`
	Status    SessionStatus `json:"status"`
	Context   Context       `json:"context"`

	Messages []Message       `json:"messages,omitempty"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`

	// FinalAction is set once the session reaches a terminal state.
	FinalAction contractx.FinalAction `json:"final_action,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

var (
	ErrInvalidSession    = errors.New("session id is empty")
	ErrInvalidTransition = errors.New("invalid session transition")
)

func NewSession(sessionID, caseID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		CaseID:    caseID,
		Status:    StateCollectingIdentifier,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
		Version:   1,
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Advance moves the session to the next state. Moving out of a terminal state
// is refused: terminal sessions only ever replay.
func (s *Session) Advance(next SessionStatus, now time.Time) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: session %s already terminal in %s", ErrInvalidTransition, s.SessionID, s.Status)
	}
	s.Status = next
	s.Touch(now)
	return nil
}

func (s *Session) AppendMessage(role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
	})
	s.Touch(now)
}

func (s *Session) AppendEvent(event, detail string, now time.Time) {
	s.Timeline = append(s.Timeline, TimelineEvent{
		Time:   now.UTC(),
		Event:  event,
		Detail: detail,
	})
}

// LastAssistantMessage returns the most recent assistant turn, used verbatim
// by resume.
func (s *Session) LastAssistantMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content
		}
	}
	return ""
}

func (s *Session) Validate() error {
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	if s.CaseID == "" {
		return fmt.Errorf("%w: case id is empty", contractx.ErrValidation)
	}
	if s.Status.Terminal() && s.FinalAction == "" {
		return fmt.Errorf("%w: terminal session %s missing final action", contractx.ErrValidation, s.SessionID)
	}
	return nil
}
