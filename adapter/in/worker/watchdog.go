package worker

import (
	"context"
	"time"

	"mailsync_server/core/port/in"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// SyncWatchdog - syncing 상태에 갇힌 계정 복구
// =============================================================================
//
// 워커 크래시나 배포 중단으로 syncing 상태에 남겨진 계정을 주기적으로 찾아
// active로 되돌립니다. 되돌리지 않으면 해당 계정은 영영 동기화되지 않습니다.

type SyncWatchdog struct {
	syncService   in.SyncUseCase
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewSyncWatchdog creates a new sync watchdog.
func NewSyncWatchdog(syncService in.SyncUseCase) *SyncWatchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncWatchdog{
		syncService:   syncService,
		checkInterval: time.Minute,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the watchdog.
func (w *SyncWatchdog) Start() {
	logger.Info("[SyncWatchdog] Starting with interval %v", w.checkInterval)
	go w.run()
}

// Stop stops the watchdog.
func (w *SyncWatchdog) Stop() {
	logger.Info("[SyncWatchdog] Stopping...")
	w.cancel()
}

func (w *SyncWatchdog) run() {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			logger.Info("[SyncWatchdog] Stopped")
			return
		case <-ticker.C:
			w.resetStuck()
		}
	}
}

func (w *SyncWatchdog) resetStuck() {
	ctx, cancel := context.WithTimeout(w.ctx, time.Minute)
	defer cancel()

	count, err := w.syncService.ResetStuckAccounts(ctx)
	if err != nil {
		logger.Error("[SyncWatchdog] Failed to reset stuck accounts: %v", err)
		return
	}
	if count > 0 {
		logger.Warn("[SyncWatchdog] Reset %d stuck accounts", count)
	}
}

// SetCheckInterval sets the check interval (for testing).
func (w *SyncWatchdog) SetCheckInterval(interval time.Duration) {
	w.checkInterval = interval
}
