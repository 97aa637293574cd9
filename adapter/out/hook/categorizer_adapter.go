package hook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	openai "github.com/sashabaranov/go-openai"
)

const (
	categorizerModel   = "gpt-4o-mini"
	categorizerTimeout = 10 * time.Second
)

const categorizerSystemPrompt = `You are an email categorizer. Given an email envelope,
respond with a JSON object {"category": "..."} where category is one of:
primary, newsletter, notification, other.
primary = personal or work mail written by a human for this recipient.
newsletter = bulk mailing list or marketing content.
notification = automated service notification (receipts, alerts, CI, social).
other = anything that fits none of the above.`

// =============================================================================
// CategorizerAdapter - LLM 기반 메일 분류
// =============================================================================

// CategorizerAdapter categorizes messages with an LLM. Only used on
// auto-triggered syncs; callers fall back to folder-derived categories when
// this returns an error, so failures here never block ingestion.
type CategorizerAdapter struct {
	client *openai.Client
	model  string
}

func NewCategorizerAdapter(apiKey, model string) *CategorizerAdapter {
	if model == "" {
		model = categorizerModel
	}
	return &CategorizerAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (a *CategorizerAdapter) Categorize(ctx context.Context, msg *domain.Message, userID string) (domain.EmailCategory, error) {
	ctx, cancel := context.WithTimeout(ctx, categorizerTimeout)
	defer cancel()

	userPrompt := fmt.Sprintf("From: %s <%s>\nSubject: %s\nSnippet: %s",
		msg.FromName, msg.FromEmail, msg.Subject, msg.Snippet)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: categorizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("categorizer request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("categorizer returned no choices")
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return "", fmt.Errorf("categorizer returned invalid JSON: %w", err)
	}

	switch domain.EmailCategory(strings.ToLower(parsed.Category)) {
	case domain.CategoryPrimary, domain.CategoryNewsletter, domain.CategoryNotification, domain.CategoryOther:
		return domain.EmailCategory(strings.ToLower(parsed.Category)), nil
	}
	return "", fmt.Errorf("categorizer returned unknown category: %s", parsed.Category)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.CategorizerPort = (*CategorizerAdapter)(nil)
