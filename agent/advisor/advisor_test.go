package advisor

import (
	"context"
	"testing"
	"time"
)

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{}, false},
		{"key only", Config{APIKey: "sk-test"}, false},
		{"model only", Config{Model: "gpt-4o-mini"}, false},
		{"both", Config{APIKey: "sk-test", Model: "gpt-4o-mini"}, true},
		{"whitespace key", Config{APIKey: "   ", Model: "gpt-4o-mini"}, false},
	}
	for _, tc := range tests {
		if got := tc.cfg.Enabled(); got != tc.want {
			t.Fatalf("%s: Enabled() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	t.Parallel()

	a := New(Config{})
	if _, ok := a.(Noop); !ok {
		t.Fatalf("New(empty config) = %T, want Noop", a)
	}
}

func TestNewReturnsLLMAdvisorWhenEnabled(t *testing.T) {
	t.Parallel()

	a := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: time.Second})
	if _, ok := a.(*LLMAdvisor); !ok {
		t.Fatalf("New(enabled config) = %T, want *LLMAdvisor", a)
	}
}

func TestNoopNeverProposes(t *testing.T) {
	t.Parallel()

	var n Noop
	if _, ok := n.ExtractReason(context.Background(), "it arrived broken", nil); ok {
		t.Fatal("Noop.ExtractReason must report not-ok")
	}
	if _, ok := n.DraftReply(context.Background(), "deny_refund", nil); ok {
		t.Fatal("Noop.DraftReply must report not-ok")
	}
}

func TestJSONObjectPatternExtraction(t *testing.T) {
	t.Parallel()

	content := "Sure, here is the result:\n```json\n{\"reason\": \"damaged\"}\n```"
	match := jsonObjectPattern.FindString(content)
	if match != `{"reason": "damaged"}` {
		t.Fatalf("extracted %q", match)
	}

	if jsonObjectPattern.FindString("no json here") != "" {
		t.Fatal("expected no match")
	}
}
