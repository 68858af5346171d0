// Package store implements the order read boundary and the idempotent
// write-effect boundary. Every write derives a deterministic key from its
// semantic arguments; the key row is the action of record, so a retried call
// can only ever return the artifact the first call created.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pakornv/refund-returns-agent/agent/guardrail"
)

// ReturnKey identifies one logical return creation.
func ReturnKey(orderID, itemID, method string) string {
	return fmt.Sprintf("%s:%s:%s", orderID, itemID, method)
}

// EscalationKey identifies one logical escalation.
func EscalationKey(caseID, reason string) string {
	return fmt.Sprintf("%s:%s", caseID, reason)
}

// artifactID derives a stable id from an idempotency key: prefix plus the
// first twelve hex chars of sha256(key), uppercased.
func artifactID(prefix, key string) string {
	digest := sha256.Sum256([]byte(key))
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(digest[:])[:12])
}

// LabelURL is the stable download location for an issued label.
func LabelURL(labelID string) string {
	return fmt.Sprintf("https://labels.local/%s.pdf", labelID)
}

// maskEmail reduces a stored address to xx***@domain before it leaves the
// store. Raw contact data never appears in an OrderSnapshot.
func maskEmail(email string) string {
	return guardrail.MaskEmail(email)
}
