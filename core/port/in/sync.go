// Package in defines inbound ports (driving adapters call these).
package in

import (
	"context"

	"mailsync_server/core/domain"
)

// SyncUseCase is the single entry point for mailbox synchronization.
type SyncUseCase interface {
	// TriggerSync validates the account, resolves mode from the first-sync
	// flag, dispatches the job, and returns the run ID without blocking.
	// Rejects accounts that are already syncing.
	TriggerSync(ctx context.Context, accountID int64, trigger domain.TriggerType) (string, error)

	// RunSync executes a dispatched sync job. Called by the worker
	// dispatcher, not by API handlers.
	RunSync(ctx context.Context, job *domain.SyncJob) error

	// RetryDueAccounts re-triggers accounts whose retry window has arrived.
	RetryDueAccounts(ctx context.Context) (int, error)

	// ResetStuckAccounts flips accounts stuck in syncing back to active
	// with a timeout error recorded. Returns how many were reset.
	ResetStuckAccounts(ctx context.Context) (int, error)
}

// FolderUseCase exposes folder listing and the enable toggle to the API.
type FolderUseCase interface {
	ListFolders(ctx context.Context, accountID int64) ([]*domain.Folder, error)
	SetFolderEnabled(ctx context.Context, folderID int64, enabled bool) error
}
