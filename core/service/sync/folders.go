package mailsync

import (
	"context"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/pkg/apperr"
)

var _ in.FolderUseCase = (*SyncService)(nil)

// ListFolders returns the account's discovered folders with their
// classification and review state.
func (s *SyncService) ListFolders(ctx context.Context, accountID int64) ([]*domain.Folder, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, apperr.NotFound("account")
	}
	return s.folderRepo.GetByAccount(ctx, accountID)
}

// SetFolderEnabled toggles sync for one folder. The flag survives folder
// rediscovery.
func (s *SyncService) SetFolderEnabled(ctx context.Context, folderID int64, enabled bool) error {
	if _, err := s.folderRepo.GetByID(ctx, folderID); err != nil {
		return apperr.NotFound("folder")
	}
	return s.folderRepo.SetEnabled(ctx, folderID, enabled)
}
