package mailsync

import (
	"context"
	"errors"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
)

const (
	// FirstBatchSize - 첫 페이지는 작게 가져와서 빠르게 표시
	FirstBatchSize = 50
	// RemainingBatchSize - 이후 페이지 크기
	RemainingBatchSize = 100
)

// errRunCanceled - 계정 상태 flip으로 런이 중단됨
var errRunCanceled = errors.New("sync run canceled")

// =============================================================================
// RunSync - dispatched job 실행 (worker에서 호출)
// =============================================================================

func (s *SyncService) RunSync(ctx context.Context, job *domain.SyncJob) error {
	startTime := time.Now()
	logger.Info("[SyncService.RunSync] run %s account %d trigger=%s mode=%s",
		job.ID, job.AccountID, job.Trigger, job.Mode)

	account, err := s.accountRepo.GetByID(ctx, job.AccountID)
	if err != nil {
		return apperr.NotFound("account")
	}

	// Trigger는 dispatch 성공 후에 syncing을 마킹한다. worker가 그보다 먼저
	// job을 집으면 첫 취소 체크포인트가 상태 불일치를 취소로 오인하므로
	// 여기서 직접 보정한다.
	if account.Status != domain.AccountStatusSyncing {
		if err := s.accountRepo.SetSyncing(ctx, account.ID); err != nil {
			logger.Warn("[SyncService.RunSync] failed to assert syncing status: %v", err)
		} else {
			account.Status = domain.AccountStatusSyncing
		}
	}

	run := &domain.SyncRun{
		ID:        job.ID,
		AccountID: account.ID,
		Trigger:   job.Trigger,
		Mode:      job.Mode,
		Status:    domain.SyncRunRunning,
		StartedAt: startTime,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		// audit 기록 실패는 동기화를 막지 않는다
		logger.Warn("[SyncService.RunSync] failed to record run: %v", err)
	}

	syncErr := s.syncAccount(ctx, account, job, run)

	run.FinishedAt = time.Now()
	switch {
	case errors.Is(syncErr, errRunCanceled):
		run.Status = domain.SyncRunCanceled
		if err := s.accountRepo.SetActive(ctx, account.ID); err != nil {
			logger.Error("[SyncService.RunSync] failed to restore status after cancel: %v", err)
		}
	case syncErr != nil:
		ce := s.handleSyncError(ctx, account, syncErr)
		run.Status = domain.SyncRunFailed
		run.LastError = ce.Error()
	default:
		if run.FoldersFailed > 0 {
			run.Status = domain.SyncRunPartial
		} else {
			run.Status = domain.SyncRunCompleted
		}
		s.completeSync(ctx, account, job)
	}

	if err := s.runRepo.Finish(ctx, run); err != nil {
		logger.Warn("[SyncService.RunSync] failed to finish run record: %v", err)
	}

	logger.Info("[SyncService.RunSync] run %s done: %s (%d messages, %d/%d folders) in %v",
		run.ID, run.Status, run.MessagesUpsert, run.FoldersSynced, run.FoldersSynced+run.FoldersFailed,
		time.Since(startTime))

	if errors.Is(syncErr, errRunCanceled) {
		return nil
	}
	return syncErr
}

// completeSync finalizes a successful run on the account.
func (s *SyncService) completeSync(ctx context.Context, account *domain.Account, job *domain.SyncJob) {
	if job.Mode == domain.SyncModeInitial {
		if err := s.accountRepo.MarkInitialSyncComplete(ctx, account.ID); err != nil {
			logger.Error("[SyncService.completeSync] failed to mark initial sync complete: %v", err)
		}
	}
	if err := s.accountRepo.ResetRetry(ctx, account.ID); err != nil {
		logger.Error("[SyncService.completeSync] failed to reset retry count: %v", err)
	}
	if err := s.accountRepo.SetActive(ctx, account.ID); err != nil {
		logger.Error("[SyncService.completeSync] failed to set active: %v", err)
	}
}

// =============================================================================
// syncAccount - 어댑터 해석 + 폴더 발견 + 커서 스코프별 실행
// =============================================================================

func (s *SyncService) syncAccount(ctx context.Context, account *domain.Account, job *domain.SyncJob, run *domain.SyncRun) error {
	cred, err := s.credentials.GetValidCredential(ctx, account)
	if err != nil {
		if errors.Is(err, out.ErrNeedsReconnection) {
			return &domain.ClassifiedError{
				Class:   domain.ErrClassPermission,
				Message: "account needs reconnection",
				Err:     err,
			}
		}
		return err
	}

	adapter, err := s.providers.GetProvider(account.Provider)
	if err != nil {
		return domain.NewConfigurationError("no adapter for provider " + string(account.Provider))
	}

	folders, err := s.discoverFolders(ctx, adapter, cred, account)
	if err != nil {
		return err
	}

	policy := domain.ResolveCategoryPolicy(job.Trigger)
	counter := &progressCounter{}

	if adapter.CursorScope() == out.CursorScopeAccount {
		return s.syncAccountCursor(ctx, adapter, cred, account, folders, policy, job, run, counter)
	}
	return s.syncPerFolder(ctx, adapter, cred, account, folders, policy, job, run, counter)
}

// discoverFolders lists provider folders, classifies them, and upserts each
// one. The upsert is idempotent by (accountID, providerFolderID); user-toggled
// enable flags survive rediscovery.
func (s *SyncService) discoverFolders(ctx context.Context, adapter out.MailProviderPort, cred *out.Credential, account *domain.Account) ([]*domain.Folder, error) {
	providerFolders, err := adapter.ListFolders(ctx, cred, account)
	if err != nil {
		return nil, err
	}

	folders := make([]*domain.Folder, 0, len(providerFolders))
	for _, pf := range providerFolders {
		cls := domain.ClassifyFolder(pf.Name, account.Provider)
		stored, err := s.folderRepo.Upsert(ctx, &domain.Folder{
			AccountID:        account.ID,
			ProviderFolderID: pf.ProviderFolderID,
			Name:             pf.Name,
			Type:             cls.Type,
			Confidence:       cls.Confidence,
			NeedsReview:      cls.NeedsReview(),
			SyncEnabled:      cls.AutoEnabled(),
			SyncStatus:       domain.FolderSyncIdle,
		})
		if err != nil {
			return nil, apperr.DatabaseError("upsert folder", err)
		}
		folders = append(folders, stored)
	}

	logger.Info("[SyncService.discoverFolders] account %d: %d folders", account.ID, len(folders))
	return folders, nil
}

// =============================================================================
// Per-folder cursor sync (Outlook delta, IMAP window)
// =============================================================================

func (s *SyncService) syncPerFolder(ctx context.Context, adapter out.MailProviderPort, cred *out.Credential, account *domain.Account, folders []*domain.Folder, policy domain.CategoryPolicy, job *domain.SyncJob, run *domain.SyncRun, counter *progressCounter) error {
	for _, folder := range folders {
		if !folder.SyncEnabled {
			continue
		}

		// 취소 체크포인트 (폴더 사이)
		canceled, err := s.checkCanceled(ctx, account.ID)
		if err != nil {
			return err
		}
		if canceled {
			return errRunCanceled
		}

		if err := s.syncOneFolder(ctx, adapter, cred, account, folder, policy, job, run, counter); err != nil {
			if errors.Is(err, errRunCanceled) {
				return err
			}
			ce := classifyError(err)
			// 권한/설정/레이트리밋은 계정 전체에 영향 - 런 중단
			if ce.Class.Terminal() || ce.Class == domain.ErrClassRateLimit {
				return err
			}
			logger.Warn("[SyncService.syncPerFolder] folder %d (%s) failed, continuing: %v",
				folder.ID, folder.Name, err)
			if dbErr := s.folderRepo.SetSyncStatus(ctx, folder.ID, domain.FolderSyncError, ce.Error()); dbErr != nil {
				logger.Error("[SyncService.syncPerFolder] failed to mark folder error: %v", dbErr)
			}
			run.FoldersFailed++
			continue
		}
		run.FoldersSynced++
	}
	return nil
}

func (s *SyncService) syncOneFolder(ctx context.Context, adapter out.MailProviderPort, cred *out.Credential, account *domain.Account, folder *domain.Folder, policy domain.CategoryPolicy, job *domain.SyncJob, run *domain.SyncRun, counter *progressCounter) error {
	if err := s.folderRepo.SetSyncStatus(ctx, folder.ID, domain.FolderSyncSyncing, ""); err != nil {
		logger.Warn("[SyncService.syncOneFolder] failed to mark folder syncing: %v", err)
	}

	cursor := folder.SyncCursor
	pageMarker := ""
	resyncAttempted := false

	for {
		res, err := adapter.SyncFolder(ctx, cred, &out.SyncFolderRequest{
			Account:    account,
			Folder:     folder,
			Cursor:     cursor,
			PageMarker: pageMarker,
			Mode:       job.Mode,
			Trigger:    job.Trigger,
			MaxResults: s.pageSize(job.Mode, counter),
		})
		if err != nil {
			// 커서가 무효화되면 버리고 처음부터 한 번 재시도
			var pe *out.ProviderError
			if errors.As(err, &pe) && pe.Code == out.ProviderErrSyncRequired && !resyncAttempted {
				logger.Warn("[SyncService.syncOneFolder] cursor invalidated for folder %d, full resync", folder.ID)
				resyncAttempted = true
				cursor, pageMarker = "", ""
				if dbErr := s.folderRepo.SaveCursor(ctx, folder.ID, ""); dbErr != nil {
					return apperr.DatabaseError("clear folder cursor", dbErr)
				}
				continue
			}
			return err
		}

		if err := s.ingestMessages(ctx, account, folder, nil, policy, res.Messages, run, counter); err != nil {
			return err
		}

		// 커서는 해당 페이지가 durable하게 들어간 뒤에만 저장한다.
		// Delta 어댑터는 pagination이 끝나기 전에는 NewCursor를 내지 않는다.
		if res.NewCursor != "" {
			if err := s.folderRepo.SaveCursor(ctx, folder.ID, res.NewCursor); err != nil {
				return apperr.DatabaseError("save folder cursor", err)
			}
		}

		if res.NextPageMarker == "" {
			break
		}
		pageMarker = res.NextPageMarker

		// 취소 체크포인트 (페이지 사이)
		canceled, err := s.checkCanceled(ctx, account.ID)
		if err != nil {
			return err
		}
		if canceled {
			return errRunCanceled
		}
	}

	if err := s.folderRepo.SetSyncStatus(ctx, folder.ID, domain.FolderSyncIdle, ""); err != nil {
		logger.Warn("[SyncService.syncOneFolder] failed to mark folder idle: %v", err)
	}
	if err := s.folderRepo.TouchLastSync(ctx, folder.ID); err != nil {
		logger.Warn("[SyncService.syncOneFolder] failed to touch last sync: %v", err)
	}
	return nil
}

// =============================================================================
// Account-level cursor sync (Gmail page token sweep)
// =============================================================================

func (s *SyncService) syncAccountCursor(ctx context.Context, adapter out.MailProviderPort, cred *out.Credential, account *domain.Account, folders []*domain.Folder, policy domain.CategoryPolicy, job *domain.SyncJob, run *domain.SyncRun, counter *progressCounter) error {
	// 메시지별 폴더 해석용 인덱스 (어댑터가 라벨에서 canonical 타입을 뽑는다)
	folderIndex := make(map[domain.CanonicalFolder]*domain.Folder, len(folders))
	for _, f := range folders {
		folderIndex[f.Type] = f
	}

	// 아카이브된 메일은 시스템 라벨이 하나도 없어서 all_mail로 떨어지는데,
	// Gmail labels.list에는 All Mail 항목이 없다. sink 폴더가 발견되지 않았으면
	// 직접 만들어 둔다. Upsert는 사용자가 끈 토글을 되살리지 않는다.
	if folderIndex[domain.FolderAllMail] == nil {
		stored, err := s.folderRepo.Upsert(ctx, &domain.Folder{
			AccountID:        account.ID,
			ProviderFolderID: "ALL_MAIL",
			Name:             "All Mail",
			Type:             domain.FolderAllMail,
			Confidence:       1.0,
			SyncEnabled:      true,
			SyncStatus:       domain.FolderSyncIdle,
		})
		if err != nil {
			return apperr.DatabaseError("upsert all mail folder", err)
		}
		folderIndex[domain.FolderAllMail] = stored
	}

	cursor := account.SyncCursor
	pageMarker := ""
	resyncAttempted := false

	for {
		res, err := adapter.SyncFolder(ctx, cred, &out.SyncFolderRequest{
			Account:    account,
			Cursor:     cursor,
			PageMarker: pageMarker,
			Mode:       job.Mode,
			Trigger:    job.Trigger,
			MaxResults: s.pageSize(job.Mode, counter),
		})
		if err != nil {
			var pe *out.ProviderError
			if errors.As(err, &pe) && pe.Code == out.ProviderErrSyncRequired && !resyncAttempted {
				logger.Warn("[SyncService.syncAccountCursor] cursor invalidated for account %d, full resync", account.ID)
				resyncAttempted = true
				cursor, pageMarker = "", ""
				if dbErr := s.accountRepo.SaveCursor(ctx, account.ID, ""); dbErr != nil {
					return apperr.DatabaseError("clear account cursor", dbErr)
				}
				continue
			}
			return err
		}

		if err := s.ingestMessages(ctx, account, nil, folderIndex, policy, res.Messages, run, counter); err != nil {
			return err
		}

		// Sweep 진행: 페이지 ingest 후 커서 저장. 마지막 페이지는 NewCursor가
		// 비어 있으므로 커서가 지워진다.
		if err := s.accountRepo.SaveCursor(ctx, account.ID, res.NewCursor); err != nil {
			return apperr.DatabaseError("save account cursor", err)
		}

		if res.NextPageMarker == "" {
			break
		}
		pageMarker = res.NextPageMarker
		cursor = res.NewCursor

		canceled, err := s.checkCanceled(ctx, account.ID)
		if err != nil {
			return err
		}
		if canceled {
			return errRunCanceled
		}
	}

	run.FoldersSynced = len(folderIndex)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// pageSize keeps the first page of an initial sync small so fresh accounts
// show mail quickly.
func (s *SyncService) pageSize(mode domain.SyncMode, counter *progressCounter) int {
	if mode == domain.SyncModeInitial && counter.total == 0 {
		return FirstBatchSize
	}
	return RemainingBatchSize
}

// checkCanceled observes a status flip on the account. The run holds no
// locks; a user (or the watchdog) flipping the account out of syncing stops
// the run at the next checkpoint.
func (s *SyncService) checkCanceled(ctx context.Context, accountID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, nil
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return false, apperr.DatabaseError("reload account", err)
	}
	return account.Status != domain.AccountStatusSyncing, nil
}
