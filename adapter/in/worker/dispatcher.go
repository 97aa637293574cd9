// Package worker hosts the stream consumers and background schedulers.
package worker

import (
	"context"

	"github.com/goccy/go-json"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// Handler - 스트림 메시지 라우팅
// =============================================================================

type Handler struct {
	syncService    in.SyncUseCase
	embedProcessor *EmbedProcessor
}

func NewHandler(syncService in.SyncUseCase, embedProcessor *EmbedProcessor) *Handler {
	return &Handler{
		syncService:    syncService,
		embedProcessor: embedProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, job *domain.SyncJob) error {
	logger.Debug("Processing job: %s (%s)", job.ID, job.Type)

	switch job.Type {
	case domain.JobMailSync:
		return h.syncService.RunSync(ctx, job)
	case domain.JobMailEmbed:
		if h.embedProcessor == nil {
			logger.Warn("Embed processor not configured, dropping job %s", job.ID)
			return nil
		}
		return h.embedProcessor.ProcessEmbed(ctx, job)
	default:
		logger.Warn("Unknown job type: %s", job.Type)
		return nil
	}
}

// DecodeJob unmarshals a raw stream message into a SyncJob.
func DecodeJob(data []byte) (*domain.SyncJob, error) {
	var job domain.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func ParsePayload[T any](job *domain.SyncJob) (*T, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
