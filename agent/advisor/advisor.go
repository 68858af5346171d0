// Package advisor is the non-authoritative drafting collaborator. It may
// suggest a reason classification or phrase a customer reply; it never decides
// eligibility, refund amounts or the terminal action, and every failure path
// degrades to the caller's deterministic fallback.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
	promptx "github.com/pakornv/refund-returns-agent/agent/prompt"
	logx "github.com/pakornv/refund-returns-agent/pkg/logger"
)

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true"`
	MaxTokens   int64         `envconfig:"MAX_TOKENS" split_words:"true" default:"200"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// Enabled reports whether the config carries enough to call a model at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

// Noop is the advisor selected when no model is configured. Both capabilities
// report not-ok, so callers always take their deterministic path.
type Noop struct{}

func (Noop) ExtractReason(context.Context, string, []contractx.Reason) (contractx.Reason, bool) {
	return "", false
}

func (Noop) DraftReply(context.Context, string, map[string]any) (string, bool) {
	return "", false
}

// LLMAdvisor talks to any OpenAI-compatible chat endpoint.
type LLMAdvisor struct {
	client  *openaisdk.Client
	model   string
	max     int64
	temp    float64
	timeout time.Duration
	prompts promptx.PromptSet
	logger  zerolog.Logger
}

var (
	_ contractx.Advisor = (*LLMAdvisor)(nil)
	_ contractx.Advisor = Noop{}
)

// New builds an advisor from config. A config without key or model yields the
// Noop advisor; selection is by configuration, not runtime type inspection.
func New(cfg Config) contractx.Advisor {
	if !cfg.Enabled() {
		return Noop{}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	client := openaisdk.NewClient(opts...)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &LLMAdvisor{
		client:  &client,
		model:   strings.TrimSpace(cfg.Model),
		max:     cfg.MaxTokens,
		temp:    cfg.Temperature,
		timeout: timeout,
		prompts: promptx.LoadPromptSet(),
		logger:  logx.Component("advisor"),
	}
}

func (a *LLMAdvisor) ExtractReason(ctx context.Context, text string, allowed []contractx.Reason) (contractx.Reason, bool) {
	names := make([]string, 0, len(allowed))
	for _, r := range allowed {
		names = append(names, string(r))
	}
	prompt := fmt.Sprintf(a.prompts.ExtractReason, strings.Join(names, ", "), text)

	payload, ok := a.generateJSON(ctx, prompt)
	if !ok {
		return "", false
	}
	raw, ok := payload["reason"].(string)
	if !ok {
		return "", false
	}
	reason := contractx.Reason(strings.TrimSpace(raw))
	for _, r := range allowed {
		if reason == r {
			return reason, true
		}
	}
	return "", false
}

func (a *LLMAdvisor) DraftReply(ctx context.Context, objective string, replyContext map[string]any) (string, bool) {
	encoded, err := json.Marshal(replyContext)
	if err != nil {
		return "", false
	}
	prompt := fmt.Sprintf(a.prompts.DraftReply, objective, string(encoded))

	payload, ok := a.generateJSON(ctx, prompt)
	if !ok {
		return "", false
	}
	reply, ok := payload["reply"].(string)
	if !ok || strings.TrimSpace(reply) == "" {
		return "", false
	}
	return strings.TrimSpace(reply), true
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

func (a *LLMAdvisor) generateJSON(ctx context.Context, prompt string) (map[string]any, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(a.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		MaxTokens:   openaisdk.Int(a.max),
		Temperature: openaisdk.Float(a.temp),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("advisor generation failed")
		return nil, false
	}
	if len(resp.Choices) == 0 {
		return nil, false
	}

	match := jsonObjectPattern.FindString(resp.Choices[0].Message.Content)
	if match == "" {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		a.logger.Warn().Err(err).Msg("advisor returned malformed json")
		return nil, false
	}
	return payload, true
}
