package persistence

import (
	"context"
	"database/sql"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// FolderAdapter
// =============================================================================

type FolderAdapter struct {
	db *sqlx.DB
}

func NewFolderAdapter(db *sqlx.DB) *FolderAdapter {
	return &FolderAdapter{db: db}
}

type folderEntity struct {
	ID               int64   `db:"id"`
	AccountID        int64   `db:"account_id"`
	ProviderFolderID string  `db:"provider_folder_id"`
	Name             string  `db:"name"`
	Type             string  `db:"type"`
	Confidence       float64 `db:"confidence"`
	NeedsReview      bool    `db:"needs_review"`

	SyncEnabled bool           `db:"sync_enabled"`
	SyncStatus  string         `db:"sync_status"`
	LastError   sql.NullString `db:"last_error"`

	SyncCursor sql.NullString `db:"sync_cursor"`
	LastSyncAt sql.NullTime   `db:"last_sync_at"`

	MessageCount int `db:"message_count"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (e *folderEntity) toDomain() *domain.Folder {
	folder := &domain.Folder{
		ID:               e.ID,
		AccountID:        e.AccountID,
		ProviderFolderID: e.ProviderFolderID,
		Name:             e.Name,
		Type:             domain.CanonicalFolder(e.Type),
		Confidence:       e.Confidence,
		NeedsReview:      e.NeedsReview,
		SyncEnabled:      e.SyncEnabled,
		SyncStatus:       domain.FolderSyncStatus(e.SyncStatus),
		MessageCount:     e.MessageCount,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if e.LastError.Valid {
		folder.LastError = e.LastError.String
	}
	if e.SyncCursor.Valid {
		folder.SyncCursor = e.SyncCursor.String
	}
	if e.LastSyncAt.Valid {
		folder.LastSyncAt = e.LastSyncAt.Time
	}
	return folder
}

const folderColumns = `
	id, account_id, provider_folder_id, name, type, confidence, needs_review,
	sync_enabled, sync_status, last_error, sync_cursor, last_sync_at,
	message_count, created_at, updated_at`

// =============================================================================
// Upsert - (account_id, provider_folder_id) 키, 재발견 시 갱신
// =============================================================================

// Upsert inserts the folder or refreshes its name and classification.
// sync_enabled and sync_cursor are only written on insert: rediscovery must
// not undo a user toggle or drop a resume point.
func (a *FolderAdapter) Upsert(ctx context.Context, folder *domain.Folder) (*domain.Folder, error) {
	var entity folderEntity
	query := `
		INSERT INTO mail_folders (
			account_id, provider_folder_id, name, type, confidence, needs_review,
			sync_enabled, sync_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (account_id, provider_folder_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			confidence = EXCLUDED.confidence,
			needs_review = EXCLUDED.needs_review,
			updated_at = NOW()
		RETURNING ` + folderColumns
	err := a.db.GetContext(ctx, &entity, query,
		folder.AccountID, folder.ProviderFolderID, folder.Name,
		string(folder.Type), folder.Confidence, folder.NeedsReview,
		folder.SyncEnabled, string(domain.FolderSyncIdle))
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

// =============================================================================
// Queries
// =============================================================================

func (a *FolderAdapter) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	var entity folderEntity
	err := a.db.GetContext(ctx, &entity,
		`SELECT `+folderColumns+` FROM mail_folders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *FolderAdapter) GetByAccount(ctx context.Context, accountID int64) ([]*domain.Folder, error) {
	return a.selectFolders(ctx,
		`SELECT `+folderColumns+` FROM mail_folders WHERE account_id = $1 ORDER BY id`, accountID)
}

func (a *FolderAdapter) GetEnabled(ctx context.Context, accountID int64) ([]*domain.Folder, error) {
	return a.selectFolders(ctx,
		`SELECT `+folderColumns+` FROM mail_folders WHERE account_id = $1 AND sync_enabled ORDER BY id`, accountID)
}

func (a *FolderAdapter) selectFolders(ctx context.Context, query string, args ...interface{}) ([]*domain.Folder, error) {
	var entities []folderEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, err
	}
	folders := make([]*domain.Folder, len(entities))
	for i := range entities {
		folders[i] = entities[i].toDomain()
	}
	return folders, nil
}

// =============================================================================
// Updates
// =============================================================================

func (a *FolderAdapter) SaveCursor(ctx context.Context, id int64, cursor string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_folders SET sync_cursor = $2, updated_at = NOW() WHERE id = $1`,
		id, toNullableString(cursor))
	return err
}

func (a *FolderAdapter) SetSyncStatus(ctx context.Context, id int64, status domain.FolderSyncStatus, lastError string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_folders
		SET sync_status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, string(status), toNullableString(lastError))
	return err
}

func (a *FolderAdapter) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_folders SET sync_enabled = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled)
	return err
}

func (a *FolderAdapter) TouchLastSync(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_folders SET last_sync_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id)
	return err
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.FolderRepository = (*FolderAdapter)(nil)
