package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/extract_reason.txt
	extractReasonRaw string

	//go:embed template/draft_reply.txt
	draftReplyRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	ExtractReason string
	DraftReply    string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		ExtractReason: strings.TrimSpace(extractReasonRaw),
		DraftReply:    strings.TrimSpace(draftReplyRaw),
	}
}
