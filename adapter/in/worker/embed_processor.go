package worker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"mailsync_server/adapter/out/messaging"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// 임베딩 입력 길이 제한 (토큰 한도 방어)
const embedMaxChars = 8000

// =============================================================================
// EmbedProcessor - mail.embed 작업 처리
// =============================================================================

// EmbedProcessor generates an embedding for a freshly ingested message and
// marks it embedded. Jobs arrive from the insert-only ingestion hook.
type EmbedProcessor struct {
	messageRepo out.MessageRepository
	bodyStore   out.MessageBodyStore
	embedStore  out.EmbeddingStore
	client      *openai.Client
}

func NewEmbedProcessor(
	messageRepo out.MessageRepository,
	bodyStore out.MessageBodyStore,
	embedStore out.EmbeddingStore,
	apiKey string,
) *EmbedProcessor {
	return &EmbedProcessor{
		messageRepo: messageRepo,
		bodyStore:   bodyStore,
		embedStore:  embedStore,
		client:      openai.NewClient(apiKey),
	}
}

func (p *EmbedProcessor) ProcessEmbed(ctx context.Context, job *domain.SyncJob) error {
	payload, err := ParsePayload[messaging.EmbedPayload](job)
	if err != nil {
		return fmt.Errorf("invalid embed payload: %w", err)
	}

	msg, err := p.messageRepo.GetByID(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("failed to load message %d: %w", payload.MessageID, err)
	}
	if msg.HasEmbedding {
		return nil // 이미 처리됨 (재전달된 작업)
	}

	text := p.buildInput(ctx, msg)
	if text == "" {
		logger.Debug("[EmbedProcessor] Message %d has no embeddable content", msg.ID)
		return nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.AdaEmbeddingV2,
		Input: []string{text},
	})
	if err != nil {
		return fmt.Errorf("embedding request failed for message %d: %w", msg.ID, err)
	}
	if len(resp.Data) == 0 {
		return fmt.Errorf("embedding response empty for message %d", msg.ID)
	}

	if err := p.embedStore.SaveEmbedding(ctx, msg.ID, resp.Data[0].Embedding); err != nil {
		return err
	}
	if err := p.messageRepo.MarkEmbedded(ctx, msg.ID); err != nil {
		return err
	}

	logger.Debug("[EmbedProcessor] Embedded message %d", msg.ID)
	return nil
}

// buildInput assembles the embedding input from the envelope and, when
// available, the stored body text.
func (p *EmbedProcessor) buildInput(ctx context.Context, msg *domain.Message) string {
	var sb strings.Builder
	sb.WriteString(msg.Subject)
	sb.WriteString("\n")
	sb.WriteString(msg.Snippet)

	body, err := p.bodyStore.Get(ctx, msg.ID)
	if err != nil {
		logger.Warn("[EmbedProcessor] Failed to load body for message %d: %v", msg.ID, err)
	} else if body != nil && body.Text != "" {
		sb.WriteString("\n")
		sb.WriteString(body.Text)
	}

	text := strings.TrimSpace(sb.String())
	return truncateUTF8(text, embedMaxChars)
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
