package worker

import (
	"context"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// BackgroundSyncScheduler - 주기적 증분 동기화
// =============================================================================
//
// 마지막 동기화가 오래된 active 계정을 찾아 scheduled 트리거로 증분 동기화를
// 발행합니다. 수동/재시도 동기화와의 경합은 TriggerSync의 상호 배제가 막습니다.

const (
	BackgroundSyncInterval = 5 * time.Minute
	BackgroundSyncMinAge   = 10 * time.Minute // 이 시간 안에 동기화된 계정은 스킵
)

type BackgroundSyncScheduler struct {
	accountRepo   out.AccountRepository
	syncService   in.SyncUseCase
	checkInterval time.Duration
	minAge        time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewBackgroundSyncScheduler creates a new background sync scheduler.
func NewBackgroundSyncScheduler(accountRepo out.AccountRepository, syncService in.SyncUseCase) *BackgroundSyncScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundSyncScheduler{
		accountRepo:   accountRepo,
		syncService:   syncService,
		checkInterval: BackgroundSyncInterval,
		minAge:        BackgroundSyncMinAge,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the background sync scheduler.
func (s *BackgroundSyncScheduler) Start() {
	logger.Info("[BackgroundSyncScheduler] Starting...")
	go s.run()
}

// Stop stops the background sync scheduler.
func (s *BackgroundSyncScheduler) Stop() {
	logger.Info("[BackgroundSyncScheduler] Stopping...")
	s.cancel()
}

func (s *BackgroundSyncScheduler) run() {
	// 시작 후 30초 대기 (서버 안정화)
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[BackgroundSyncScheduler] Stopped")
			return
		case <-ticker.C:
			s.triggerDueAccounts()
		}
	}
}

func (s *BackgroundSyncScheduler) triggerDueAccounts() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	accounts, err := s.accountRepo.GetSyncable(ctx, s.minAge)
	if err != nil {
		logger.Error("[BackgroundSyncScheduler] Failed to get syncable accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	logger.Info("[BackgroundSyncScheduler] Found %d accounts due for sync", len(accounts))

	for _, account := range accounts {
		runID, err := s.syncService.TriggerSync(ctx, account.ID, domain.TriggerScheduled)
		if err != nil {
			// 수동 트리거와 겹친 경우는 정상
			if appErr := apperr.AsAppError(err); appErr != nil && appErr.Code == apperr.CodeSyncInProgress {
				continue
			}
			logger.Error("[BackgroundSyncScheduler] Failed to trigger sync for account %d: %v", account.ID, err)
			continue
		}
		logger.Debug("[BackgroundSyncScheduler] Triggered sync for account %d (run %s)", account.ID, runID)
	}
}

// SetCheckInterval sets the check interval (for testing).
func (s *BackgroundSyncScheduler) SetCheckInterval(interval time.Duration) {
	s.checkInterval = interval
}

// SetMinAge overrides how recently synced an account may be before it is
// picked up again.
func (s *BackgroundSyncScheduler) SetMinAge(minAge time.Duration) {
	if minAge > 0 {
		s.minAge = minAge
	}
}
