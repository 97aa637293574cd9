package worker

import (
	"context"
	"time"

	"mailsync_server/core/port/in"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// RetryScheduler - 동기화 재시도 스케줄러
// =============================================================================
//
// 주기적으로 next_retry_at이 지난 계정을 찾아 동기화를 다시 트리거합니다.

type RetryScheduler struct {
	syncService   in.SyncUseCase
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRetryScheduler creates a new retry scheduler.
func NewRetryScheduler(syncService in.SyncUseCase) *RetryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetryScheduler{
		syncService:   syncService,
		checkInterval: 30 * time.Second, // 30초마다 체크
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the retry scheduler.
func (s *RetryScheduler) Start() {
	logger.Info("[RetryScheduler] Starting with interval %v", s.checkInterval)
	go s.run()
}

// Stop stops the retry scheduler.
func (s *RetryScheduler) Stop() {
	logger.Info("[RetryScheduler] Stopping...")
	s.cancel()
}

func (s *RetryScheduler) run() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// 시작 시 즉시 한 번 체크
	s.processDueRetries()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[RetryScheduler] Stopped")
			return
		case <-ticker.C:
			s.processDueRetries()
		}
	}
}

func (s *RetryScheduler) processDueRetries() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	count, err := s.syncService.RetryDueAccounts(ctx)
	if err != nil {
		logger.Error("[RetryScheduler] Failed to process due retries: %v", err)
		return
	}
	if count > 0 {
		logger.Info("[RetryScheduler] Re-triggered %d accounts", count)
	}
}

// SetCheckInterval sets the check interval (for testing).
func (s *RetryScheduler) SetCheckInterval(interval time.Duration) {
	s.checkInterval = interval
}
