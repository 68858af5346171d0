// Package guardrail screens inbound text before any tool runs and masks PII
// on everything that leaves the system.
package guardrail

import (
	"regexp"
	"strings"
)

// Violation classifies adversarial input. Fraud/exfiltration outranks
// injection when both match.
type Violation string

const (
	ViolationNone                Violation = "none"
	ViolationInjection           Violation = "injection"
	ViolationFraudOrExfiltration Violation = "fraud_or_exfiltration"
)

const RedactedCardToken = "[REDACTED_CARD]"

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|previous|prior) instructions`),
	regexp.MustCompile(`(?i)disregard (all|previous|prior) instructions`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)developer message`),
	regexp.MustCompile(`(?i)tool command`),
	regexp.MustCompile(`(?i)sudo|rm -rf|drop table|; *--|union select`),
}

var fraudPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)refund without return`),
	regexp.MustCompile(`(?i)don'?t follow policy|bypass policy|skip the policy`),
	regexp.MustCompile(`(?i)pretend it was damaged`),
}

var exfilPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)dump (the )?database`),
	regexp.MustCompile(`(?i)show (me )?(all )?(customer|payment) data`),
	regexp.MustCompile(`(?i)(every|all) customers?'? (emails?|addresses|cards?)`),
	regexp.MustCompile(`(?i)full card number|cvv|social security`),
}

var (
	emailPattern = regexp.MustCompile(`([A-Za-z0-9_.+-]{1,2})[A-Za-z0-9_.+-]*(@[A-Za-z0-9-]+\.[A-Za-z0-9-.]+)`)
	cardPattern  = regexp.MustCompile(`\b\d{12,19}\b`)
)

// Classify scans text against the maintained pattern lists. The result decides
// whether the sequencer may touch any tool at all.
func Classify(text string) Violation {
	for _, p := range fraudPatterns {
		if p.MatchString(text) {
			return ViolationFraudOrExfiltration
		}
	}
	for _, p := range exfilPatterns {
		if p.MatchString(text) {
			return ViolationFraudOrExfiltration
		}
	}
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return ViolationInjection
		}
	}
	return ViolationNone
}

// Mask redacts emails to their first two local characters plus domain, and any
// 12-19 digit run to a fixed token. This is the only form allowed in internal
// summaries and logs.
func Mask(text string) string {
	text = emailPattern.ReplaceAllString(text, `$1***$2`)
	return cardPattern.ReplaceAllString(text, RedactedCardToken)
}

// MaskEmail reduces an address to xx***@domain.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + domain
}

// ContainsLeak reports whether outbound text still carries an unmasked email
// or a 12-19 digit run. Any true result is a defect in the producing path.
func ContainsLeak(text string) bool {
	if cardPattern.MatchString(text) {
		return true
	}
	for _, m := range emailPattern.FindAllString(text, -1) {
		if !strings.Contains(m, "***") {
			return true
		}
	}
	return false
}
