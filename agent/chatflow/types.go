package chatflow

import (
	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	statex "github.com/pakornv/refund-returns-agent/agent/state"
)

type StartRequest struct {
	CustomerIdentifier string `json:"customer_identifier,omitempty"`
}

// MessageRequest carries one inbound turn. Only the fields relevant to the
// session's current state are read; anything else is ignored.
type MessageRequest struct {
	SessionID           string           `json:"session_id"`
	Text                string           `json:"text"`
	SelectedOrderID     string           `json:"selected_order_id,omitempty"`
	SelectedItemIDs     []string         `json:"selected_item_ids,omitempty"`
	Reason              contractx.Reason `json:"reason,omitempty"`
	PreferredResolution string           `json:"preferred_resolution,omitempty"`

	EvidenceUploaded      bool   `json:"evidence_uploaded,omitempty"`
	EvidenceFileName      string `json:"evidence_file_name,omitempty"`
	EvidenceMimeType      string `json:"evidence_mime_type,omitempty"`
	EvidenceSizeBytes     int64  `json:"evidence_size_bytes,omitempty"`
	EvidenceContentBase64 string `json:"evidence_content_base64,omitempty"`
}

type ControlOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Control describes one UI input the customer should use next.
type Control struct {
	ControlType string          `json:"control_type"` // "dropdown" | "multiselect"
	Field       string          `json:"field"`
	Label       string          `json:"label"`
	Options     []ControlOption `json:"options"`
}

type Response struct {
	SessionID        string                 `json:"session_id"`
	CaseID           string                 `json:"case_id"`
	AssistantMessage string                 `json:"assistant_message"`
	StatusChip       string                 `json:"status_chip"`
	Controls         []Control              `json:"controls"`
	Timeline         []statex.TimelineEvent `json:"timeline"`
	Messages         []statex.Message       `json:"messages"`
	FinalAction      contractx.FinalAction  `json:"final_action,omitempty"`
}

// Resolution preferences the customer may pick.
const (
	ResolutionRefund      = "refund"
	ResolutionReturn      = "return"
	ResolutionReplacement = "replacement"
	ResolutionStoreCredit = "store_credit"
)

func validResolution(v string) bool {
	switch v {
	case ResolutionRefund, ResolutionReturn, ResolutionReplacement, ResolutionStoreCredit:
		return true
	}
	return false
}

// MinEvidenceBytes is the smallest payload accepted as photographic proof.
const MinEvidenceBytes int64 = 1024
