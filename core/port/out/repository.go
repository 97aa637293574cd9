package out

import (
	"context"
	"time"

	"mailsync_server/core/domain"
)

// =============================================================================
// Account Repository
// =============================================================================

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error

	// Status transitions
	SetSyncing(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64) error
	SetError(ctx context.Context, id int64, lastError string) error

	// Cursor & progress. SaveCursor runs only after the page behind the
	// cursor is durably ingested.
	SaveCursor(ctx context.Context, id int64, cursor string) error
	UpdateProgress(ctx context.Context, id int64, syncedCount int64) error
	MarkInitialSyncComplete(ctx context.Context, id int64) error

	// Retry management
	ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error
	ResetRetry(ctx context.Context, id int64) error
	GetDueRetries(ctx context.Context) ([]*domain.Account, error)

	// Watchdog: accounts stuck in syncing longer than threshold.
	GetStuckSyncing(ctx context.Context, threshold time.Duration) ([]*domain.Account, error)
	ResetStuck(ctx context.Context, id int64, lastError string) error

	// Background scheduler: accounts eligible for a scheduled sync pass.
	GetSyncable(ctx context.Context, olderThan time.Duration) ([]*domain.Account, error)
}

// =============================================================================
// Folder Repository
// =============================================================================

type FolderRepository interface {
	// Upsert by (accountID, providerFolderID). Re-discovery updates the
	// name and classification but never clobbers a user-toggled
	// sync_enabled flag.
	Upsert(ctx context.Context, folder *domain.Folder) (*domain.Folder, error)

	GetByID(ctx context.Context, id int64) (*domain.Folder, error)
	GetByAccount(ctx context.Context, accountID int64) ([]*domain.Folder, error)
	GetEnabled(ctx context.Context, accountID int64) ([]*domain.Folder, error)

	SaveCursor(ctx context.Context, id int64, cursor string) error
	SetSyncStatus(ctx context.Context, id int64, status domain.FolderSyncStatus, lastError string) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	TouchLastSync(ctx context.Context, id int64) error
}

// =============================================================================
// Message Repository
// =============================================================================

type MessageRepository interface {
	// Upsert by (accountID, providerMessageID). Updates touch only
	// sync-owned fields; is_read/is_starred stay as the user left them.
	// Returns the stored message and whether a new row was inserted.
	Upsert(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error)

	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	GetByProviderID(ctx context.Context, accountID int64, providerMessageID string) (*domain.Message, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
	MarkEmbedded(ctx context.Context, id int64) error
}

// =============================================================================
// Sync Run Repository
// =============================================================================

type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Finish(ctx context.Context, run *domain.SyncRun) error
	GetByID(ctx context.Context, id string) (*domain.SyncRun, error)
	GetRecentByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.SyncRun, error)
}

// =============================================================================
// Message Body Store (document store)
// =============================================================================

type MessageBody struct {
	MessageID  int64
	AccountID  int64
	ExternalID string
	HTML       string
	Text       string
}

type MessageBodyStore interface {
	Save(ctx context.Context, body *MessageBody) error
	Get(ctx context.Context, messageID int64) (*MessageBody, error)
	DeleteByAccount(ctx context.Context, accountID int64) (int64, error)
}

// EmbeddingStore persists message embeddings for semantic search.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, messageID int64, vector []float32) error
}
