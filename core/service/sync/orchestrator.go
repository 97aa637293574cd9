// Package mailsync implements the mailbox synchronization engine.
package mailsync

import (
	"context"
	"errors"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"

	"github.com/google/uuid"
)

// =============================================================================
// SyncService - 동기화 오케스트레이터
// =============================================================================

const (
	// StuckSyncThreshold - 이 시간 넘게 syncing이면 watchdog이 복구
	StuckSyncThreshold = 10 * time.Minute

	// ProgressSaveInterval - N개 메시지마다 진행률 저장
	ProgressSaveInterval = 10

	// triggerLockTTL - 트리거 경합 직렬화용 락 TTL
	triggerLockTTL = 30 * time.Second
)

type SyncService struct {
	accountRepo out.AccountRepository
	folderRepo  out.FolderRepository
	messageRepo out.MessageRepository
	bodyStore   out.MessageBodyStore
	runRepo     out.SyncRunRepository

	providers   out.MailProviderFactory
	credentials out.CredentialPort
	categorizer out.CategorizerPort
	embedQueue  out.EmbedQueuePort
	contacts    out.ContactTimelinePort
	scheduler   out.JobSchedulerPort
	syncLock    out.SyncLockPort
}

var _ in.SyncUseCase = (*SyncService)(nil)

func NewSyncService(
	accountRepo out.AccountRepository,
	folderRepo out.FolderRepository,
	messageRepo out.MessageRepository,
	bodyStore out.MessageBodyStore,
	runRepo out.SyncRunRepository,
	providers out.MailProviderFactory,
	credentials out.CredentialPort,
	categorizer out.CategorizerPort,
	embedQueue out.EmbedQueuePort,
	contacts out.ContactTimelinePort,
	scheduler out.JobSchedulerPort,
	syncLock out.SyncLockPort,
) *SyncService {
	return &SyncService{
		accountRepo: accountRepo,
		folderRepo:  folderRepo,
		messageRepo: messageRepo,
		bodyStore:   bodyStore,
		runRepo:     runRepo,
		providers:   providers,
		credentials: credentials,
		categorizer: categorizer,
		embedQueue:  embedQueue,
		contacts:    contacts,
		scheduler:   scheduler,
		syncLock:    syncLock,
	}
}

// =============================================================================
// TriggerSync - 단일 진입점
// =============================================================================

// TriggerSync dispatches a sync job for the account and returns the run ID.
// Non-blocking: the actual sync happens in the worker. The account is marked
// syncing only after dispatch succeeds, so a failed dispatch leaves it
// untouched.
func (s *SyncService) TriggerSync(ctx context.Context, accountID int64, trigger domain.TriggerType) (string, error) {
	logger.Info("[SyncService.TriggerSync] account %d trigger %s", accountID, trigger)

	// Redis 없이 기동하면 dispatch 경로가 없다. panic 대신 설정 오류로 거절.
	if s.scheduler == nil || s.syncLock == nil {
		return "", apperr.ConfigError("sync dispatch is not configured (missing job queue)")
	}

	// 경합하는 트리거 직렬화: check-then-mark 사이의 레이스 차단
	acquired, err := s.syncLock.TryAcquire(ctx, accountID, triggerLockTTL)
	if err != nil {
		return "", apperr.DatabaseError("failed to acquire sync lock", err)
	}
	if !acquired {
		return "", apperr.Conflict("sync already being triggered for this account")
	}
	defer s.syncLock.Release(ctx, accountID)

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", apperr.NotFound("account not found")
	}
	if !account.Provider.IsValid() {
		return "", apperr.BadRequest("unsupported provider: " + string(account.Provider))
	}
	if account.Status == domain.AccountStatusSyncing {
		return "", apperr.SyncInProgress(accountID)
	}

	mode := domain.SyncModeIncremental
	if account.IsFirstSync() {
		mode = domain.SyncModeInitial
	}

	job := &domain.SyncJob{
		ID:        uuid.New().String(),
		Type:      domain.JobMailSync,
		UserID:    account.UserID,
		AccountID: account.ID,
		Trigger:   trigger,
		Mode:      mode,
		CreatedAt: time.Now(),
	}

	runID, err := s.scheduler.Schedule(ctx, job)
	if err != nil {
		logger.Error("[SyncService.TriggerSync] dispatch failed for account %d: %v", accountID, err)
		return "", apperr.DispatchFailed(err)
	}

	// dispatch 성공 후에만 syncing 마킹
	if err := s.accountRepo.SetSyncing(ctx, accountID); err != nil {
		logger.Error("[SyncService.TriggerSync] failed to mark syncing: %v", err)
		return "", apperr.DatabaseError("failed to update account status", err)
	}

	logger.Info("[SyncService.TriggerSync] dispatched run %s (mode=%s)", runID, mode)
	return runID, nil
}

// =============================================================================
// Maintenance - retry & watchdog
// =============================================================================

// RetryDueAccounts re-triggers every account whose scheduled retry time has
// passed. Called by the retry scheduler ticker.
func (s *SyncService) RetryDueAccounts(ctx context.Context) (int, error) {
	accounts, err := s.accountRepo.GetDueRetries(ctx)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, account := range accounts {
		if !account.NeedsRetry() {
			continue
		}
		if _, err := s.TriggerSync(ctx, account.ID, domain.TriggerScheduled); err != nil {
			logger.Warn("[SyncService.RetryDueAccounts] retry trigger failed for account %d: %v", account.ID, err)
			continue
		}
		retried++
	}

	if retried > 0 {
		logger.Info("[SyncService.RetryDueAccounts] re-triggered %d accounts", retried)
	}
	return retried, nil
}

// ResetStuckAccounts recovers accounts wedged in syncing, e.g. after a worker
// crash. They go back to active with a timeout error recorded so the next
// trigger can proceed.
func (s *SyncService) ResetStuckAccounts(ctx context.Context) (int, error) {
	stuck, err := s.accountRepo.GetStuckSyncing(ctx, StuckSyncThreshold)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, account := range stuck {
		if err := s.accountRepo.ResetStuck(ctx, account.ID, "sync timed out after "+StuckSyncThreshold.String()); err != nil {
			logger.Error("[SyncService.ResetStuckAccounts] reset failed for account %d: %v", account.ID, err)
			continue
		}
		logger.Warn("[SyncService.ResetStuckAccounts] reset account %d (stuck since %v)", account.ID, account.SyncStartedAt)
		reset++
	}
	return reset, nil
}

// =============================================================================
// Error handling
// =============================================================================

// classifyError prefers the adapter's own classification over string
// heuristics.
func classifyError(err error) *domain.ClassifiedError {
	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return pe.Classify()
	}
	return domain.ClassifySyncError(err)
}

// handleSyncError records the failure on the account: terminal classes flip
// the account to error immediately, retryable ones schedule the next fixed
// delay attempt, exhaustion goes terminal with the last classified message.
func (s *SyncService) handleSyncError(ctx context.Context, account *domain.Account, err error) *domain.ClassifiedError {
	ce := classifyError(err)
	logger.Error("[SyncService.handleSyncError] account %d class=%s: %v", account.ID, ce.Class, err)

	if ce.Class.Terminal() {
		if dbErr := s.accountRepo.SetError(ctx, account.ID, ce.Error()); dbErr != nil {
			logger.Error("[SyncService.handleSyncError] failed to set error status: %v", dbErr)
		}
		return ce
	}

	if domain.ShouldScheduleRetry(ce.Class, account.RetryCount) {
		attempt := account.RetryCount + 1
		delay := domain.GetRetryDelay(attempt)
		nextRetry := time.Now().Add(delay)
		if dbErr := s.accountRepo.ScheduleRetry(ctx, account.ID, attempt, nextRetry, ce.Error()); dbErr != nil {
			logger.Error("[SyncService.handleSyncError] failed to schedule retry: %v", dbErr)
		}
		logger.Info("[SyncService.handleSyncError] retry %d/%d for account %d in %v",
			attempt, domain.MaxSyncRetries, account.ID, delay)
		return ce
	}

	// 재시도 소진
	if dbErr := s.accountRepo.SetError(ctx, account.ID, ce.Error()); dbErr != nil {
		logger.Error("[SyncService.handleSyncError] failed to set error status: %v", dbErr)
	}
	return ce
}
