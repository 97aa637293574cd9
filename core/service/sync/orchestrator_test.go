package mailsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/apperr"
)

func TestTriggerSync(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches job and marks syncing after dispatch", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})

		runID, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual)
		if err != nil {
			t.Fatalf("TriggerSync: %v", err)
		}
		if runID == "" {
			t.Error("expected non-empty run ID")
		}
		if h.scheduler.lastJob == nil {
			t.Fatal("job was not scheduled")
		}
		if h.scheduler.lastJob.Type != domain.JobMailSync {
			t.Errorf("job type = %s, want %s", h.scheduler.lastJob.Type, domain.JobMailSync)
		}
		if h.scheduler.lastJob.Mode != domain.SyncModeIncremental {
			t.Errorf("mode = %s, want incremental for already-synced account", h.scheduler.lastJob.Mode)
		}

		// 마킹은 반드시 디스패치 이후
		schedIdx := h.rec.indexOf("scheduler.Schedule")
		markIdx := h.rec.indexOf("account.SetSyncing")
		if markIdx < 0 {
			t.Fatal("account was never marked syncing")
		}
		if markIdx < schedIdx {
			t.Errorf("SetSyncing at %d before Schedule at %d", markIdx, schedIdx)
		}
	})

	t.Run("first sync dispatches initial mode", func(t *testing.T) {
		account := testAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})

		if _, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual); err != nil {
			t.Fatalf("TriggerSync: %v", err)
		}
		if h.scheduler.lastJob.Mode != domain.SyncModeInitial {
			t.Errorf("mode = %s, want initial", h.scheduler.lastJob.Mode)
		}
	})

	t.Run("rejects while already syncing", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusSyncing)
		h := newHarness(account, &fakeProvider{})

		_, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeSyncInProgress {
			t.Fatalf("err = %v, want %s", err, apperr.CodeSyncInProgress)
		}
		if h.scheduler.lastJob != nil {
			t.Error("job must not be scheduled for a syncing account")
		}
	})

	t.Run("rejects on lock contention", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})
		h.lock.acquired = false

		_, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeConflict {
			t.Fatalf("err = %v, want %s", err, apperr.CodeConflict)
		}
	})

	t.Run("dispatch failure leaves account unmarked", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})
		h.scheduler.err = errors.New("stream unavailable")

		_, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeDispatchFailed {
			t.Fatalf("err = %v, want %s", err, apperr.CodeDispatchFailed)
		}
		if h.rec.indexOf("account.SetSyncing") >= 0 {
			t.Error("account marked syncing even though dispatch failed")
		}
		if account.Status != domain.AccountStatusActive {
			t.Errorf("status = %s, want active", account.Status)
		}
	})

	t.Run("rejects cleanly when dispatch is not configured", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})

		// Redis 없이 기동된 구성: scheduler와 lock이 비어 있다
		svc := NewSyncService(
			h.accountRepo,
			h.folderRepo,
			h.messageRepo,
			h.bodyStore,
			h.runRepo,
			&fakeFactory{provider: h.provider},
			h.credentials,
			h.categorizer,
			h.embedQueue,
			h.contacts,
			nil,
			nil,
		)

		_, err := svc.TriggerSync(ctx, account.ID, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeConfigError {
			t.Fatalf("err = %v, want %s", err, apperr.CodeConfigError)
		}
		if account.Status != domain.AccountStatusActive {
			t.Errorf("status = %s, want untouched", account.Status)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})

		_, err := h.service.TriggerSync(ctx, 999, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeNotFound {
			t.Fatalf("err = %v, want %s", err, apperr.CodeNotFound)
		}
	})

	t.Run("invalid provider", func(t *testing.T) {
		account := syncedAccount(domain.Provider("fastmail"), domain.AccountStatusActive)
		h := newHarness(account, &fakeProvider{})

		_, err := h.service.TriggerSync(ctx, account.ID, domain.TriggerManual)
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeBadRequest {
			t.Fatalf("err = %v, want %s", err, apperr.CodeBadRequest)
		}
	})
}

func TestRetryDueAccounts(t *testing.T) {
	ctx := context.Background()

	account := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
	account.RetryCount = 1
	account.NextRetryAt = time.Now().Add(-time.Minute)

	notDue := syncedAccount(domain.ProviderGmail, domain.AccountStatusActive)
	notDue.ID = 2
	notDue.RetryCount = 1
	notDue.NextRetryAt = time.Now().Add(time.Hour)

	h := newHarness(account, &fakeProvider{})
	h.accountRepo.dueRetries = []*domain.Account{account, notDue}

	triggered, err := h.service.RetryDueAccounts(ctx)
	if err != nil {
		t.Fatalf("RetryDueAccounts: %v", err)
	}
	if triggered != 1 {
		t.Errorf("triggered = %d, want 1", triggered)
	}
	if h.scheduler.lastJob == nil || h.scheduler.lastJob.AccountID != account.ID {
		t.Error("due account was not dispatched")
	}
	if h.scheduler.lastJob.Trigger != domain.TriggerScheduled {
		t.Errorf("trigger = %s, want scheduled", h.scheduler.lastJob.Trigger)
	}
}

func TestResetStuckAccounts(t *testing.T) {
	ctx := context.Background()

	stuck := syncedAccount(domain.ProviderGmail, domain.AccountStatusSyncing)
	stuck.SyncStartedAt = time.Now().Add(-time.Hour)

	h := newHarness(stuck, &fakeProvider{})
	h.accountRepo.stuck = []*domain.Account{stuck}

	reset, err := h.service.ResetStuckAccounts(ctx)
	if err != nil {
		t.Fatalf("ResetStuckAccounts: %v", err)
	}
	if reset != 1 {
		t.Errorf("reset = %d, want 1", reset)
	}
	if h.rec.count("account.ResetStuck(1)") != 1 {
		t.Error("stuck account was not reset")
	}
}
