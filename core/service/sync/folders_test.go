package mailsync

import (
	"context"
	"testing"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/apperr"
)

func TestListFolders(t *testing.T) {
	ctx := context.Background()
	account := syncedAccount(domain.ProviderOutlook, domain.AccountStatusActive)
	h := newHarness(account, &fakeProvider{})
	h.folderRepo.folders[1] = &domain.Folder{
		ID: 1, AccountID: account.ID, ProviderFolderID: "f-inbox",
		Name: "Inbox", Type: domain.FolderInbox, SyncEnabled: true,
	}

	folders, err := h.service.ListFolders(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 1 {
		t.Errorf("folders = %d, want 1", len(folders))
	}

	_, err = h.service.ListFolders(ctx, 999)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("err = %v, want %s", err, apperr.CodeNotFound)
	}
}

func TestSetFolderEnabled(t *testing.T) {
	ctx := context.Background()
	account := syncedAccount(domain.ProviderOutlook, domain.AccountStatusActive)
	h := newHarness(account, &fakeProvider{})
	h.folderRepo.folders[1] = &domain.Folder{
		ID: 1, AccountID: account.ID, ProviderFolderID: "f-spam",
		Name: "Junk Email", Type: domain.FolderSpam, SyncEnabled: false,
	}

	if err := h.service.SetFolderEnabled(ctx, 1, true); err != nil {
		t.Fatalf("SetFolderEnabled: %v", err)
	}
	if !h.folderRepo.folders[1].SyncEnabled {
		t.Error("folder was not enabled")
	}

	err := h.service.SetFolderEnabled(ctx, 999, true)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("err = %v, want %s", err, apperr.CodeNotFound)
	}
}
