// Package messaging provides Redis-backed job dispatch adapters.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/internal/stream"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// SchedulerAdapter - 동기화 작업 발행
// =============================================================================

// SchedulerAdapter publishes sync jobs to the mail:sync stream. The job ID
// doubles as the run ID callers hand back to polling clients.
type SchedulerAdapter struct {
	stream *stream.RedisStream
}

func NewSchedulerAdapter(s *stream.RedisStream) *SchedulerAdapter {
	return &SchedulerAdapter{stream: s}
}

func (a *SchedulerAdapter) Schedule(ctx context.Context, job *domain.SyncJob) (string, error) {
	if _, err := a.stream.Publish(ctx, stream.StreamMailSync, job); err != nil {
		return "", fmt.Errorf("failed to publish sync job: %w", err)
	}
	return job.ID, nil
}

// =============================================================================
// EmbedQueueAdapter - 임베딩 작업 발행 (insert-only hook)
// =============================================================================

// EmbedPayload is the payload of a mail.embed job.
type EmbedPayload struct {
	AccountID int64 `json:"account_id"`
	MessageID int64 `json:"message_id"`
}

type EmbedQueueAdapter struct {
	stream *stream.RedisStream
}

func NewEmbedQueueAdapter(s *stream.RedisStream) *EmbedQueueAdapter {
	return &EmbedQueueAdapter{stream: s}
}

func (a *EmbedQueueAdapter) Enqueue(ctx context.Context, accountID, messageID int64) error {
	payload, err := json.Marshal(&EmbedPayload{AccountID: accountID, MessageID: messageID})
	if err != nil {
		return err
	}
	_, err = a.stream.Publish(ctx, stream.StreamMailEmbed, &domain.SyncJob{
		ID:        uuid.New().String(),
		Type:      domain.JobMailEmbed,
		AccountID: accountID,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return err
}

// =============================================================================
// SyncLockAdapter - 계정별 트리거 직렬화
// =============================================================================

const syncLockKeyPrefix = "sync:lock:"

// SyncLockAdapter serializes racing triggers per account with SET NX. The TTL
// bounds how long a crashed trigger can hold the lock.
type SyncLockAdapter struct {
	client *redis.Client
}

func NewSyncLockAdapter(client *redis.Client) *SyncLockAdapter {
	return &SyncLockAdapter{client: client}
}

func (a *SyncLockAdapter) TryAcquire(ctx context.Context, accountID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%d", syncLockKeyPrefix, accountID)
	return a.client.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
}

func (a *SyncLockAdapter) Release(ctx context.Context, accountID int64) error {
	key := fmt.Sprintf("%s%d", syncLockKeyPrefix, accountID)
	return a.client.Del(ctx, key).Err()
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.JobSchedulerPort = (*SchedulerAdapter)(nil)
var _ out.EmbedQueuePort = (*EmbedQueueAdapter)(nil)
var _ out.SyncLockPort = (*SyncLockAdapter)(nil)
