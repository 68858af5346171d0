package orchestrator

import (
	"strings"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

// InferReason is the deterministic fallback when the caller asserted nothing
// and the advisor had no usable suggestion. First matching bucket wins.
func InferReason(text string) contractx.Reason {
	t := strings.ToLower(text)

	switch {
	case containsAny(t, "damaged", "broken", "cracked"):
		return contractx.ReasonDamaged
	case containsAny(t, "defective", "not working", "won't turn on"):
		return contractx.ReasonDefective
	case strings.Contains(t, "wrong item"):
		return contractx.ReasonWrongItem
	case strings.Contains(t, "not as described"):
		return contractx.ReasonNotAsDescribed
	case containsAny(t, "late", "delayed", "where is my order"):
		return contractx.ReasonLateDelivery
	default:
		return contractx.ReasonChangedMind
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
