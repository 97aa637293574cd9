// Package persistence implements the Postgres repositories.
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
// AccountAdapter
// =============================================================================

type AccountAdapter struct {
	db *sqlx.DB
}

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

// =============================================================================
// Entity
// =============================================================================

type accountEntity struct {
	ID       int64  `db:"id"`
	UserID   string `db:"user_id"`
	Email    string `db:"email"`
	Provider string `db:"provider"`
	Status   string `db:"status"`

	LastSyncError sql.NullString `db:"last_sync_error"`
	LastSyncAt    sql.NullTime   `db:"last_sync_at"`
	SyncStartedAt sql.NullTime   `db:"sync_started_at"`
	SyncCursor    sql.NullString `db:"sync_cursor"`

	SyncedCount int64 `db:"synced_count"`
	TotalSynced int64 `db:"total_synced"`

	RetryCount  int          `db:"retry_count"`
	NextRetryAt sql.NullTime `db:"next_retry_at"`

	InitialSyncCompletedAt sql.NullTime `db:"initial_sync_completed_at"`

	IMAPHost     sql.NullString `db:"imap_host"`
	IMAPPort     sql.NullInt32  `db:"imap_port"`
	IMAPUsername sql.NullString `db:"imap_username"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (e *accountEntity) toDomain() *domain.Account {
	account := &domain.Account{
		ID:          e.ID,
		UserID:      e.UserID,
		Email:       e.Email,
		Provider:    domain.Provider(e.Provider),
		Status:      domain.AccountStatus(e.Status),
		SyncedCount: e.SyncedCount,
		TotalSynced: e.TotalSynced,
		RetryCount:  e.RetryCount,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}

	// Nullable fields
	if e.LastSyncError.Valid {
		account.LastSyncError = e.LastSyncError.String
	}
	if e.LastSyncAt.Valid {
		account.LastSyncAt = e.LastSyncAt.Time
	}
	if e.SyncStartedAt.Valid {
		account.SyncStartedAt = e.SyncStartedAt.Time
	}
	if e.SyncCursor.Valid {
		account.SyncCursor = e.SyncCursor.String
	}
	if e.NextRetryAt.Valid {
		account.NextRetryAt = e.NextRetryAt.Time
	}
	if e.InitialSyncCompletedAt.Valid {
		account.InitialSyncCompletedAt = e.InitialSyncCompletedAt.Time
	}
	if e.IMAPHost.Valid {
		account.IMAPHost = e.IMAPHost.String
	}
	if e.IMAPPort.Valid {
		account.IMAPPort = int(e.IMAPPort.Int32)
	}
	if e.IMAPUsername.Valid {
		account.IMAPUsername = e.IMAPUsername.String
	}

	return account
}

const accountColumns = `
	id, user_id, email, provider, status,
	last_sync_error, last_sync_at, sync_started_at, sync_cursor,
	synced_count, total_synced, retry_count, next_retry_at,
	initial_sync_completed_at, imap_host, imap_port, imap_username,
	created_at, updated_at`

// =============================================================================
// CRUD
// =============================================================================

func (a *AccountAdapter) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var entity accountEntity
	err := a.db.GetContext(ctx, &entity,
		`SELECT `+accountColumns+` FROM mail_accounts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *AccountAdapter) GetByUserID(ctx context.Context, userID string) ([]*domain.Account, error) {
	var entities []accountEntity
	err := a.db.SelectContext(ctx, &entities,
		`SELECT `+accountColumns+` FROM mail_accounts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return entitiesToAccounts(entities), nil
}

func (a *AccountAdapter) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO mail_accounts (
			user_id, email, provider, status,
			imap_host, imap_port, imap_username,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id`
	return a.db.QueryRowContext(ctx, query,
		account.UserID, account.Email, string(account.Provider), string(domain.AccountStatusActive),
		toNullableString(account.IMAPHost), toNullableInt32(account.IMAPPort), toNullableString(account.IMAPUsername),
	).Scan(&account.ID)
}

// =============================================================================
// Status transitions
// =============================================================================

func (a *AccountAdapter) SetSyncing(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET status = $2, sync_started_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.AccountStatusSyncing))
	return err
}

func (a *AccountAdapter) SetActive(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET status = $2, last_sync_error = NULL, last_sync_at = NOW(),
		    sync_started_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.AccountStatusActive))
	return err
}

func (a *AccountAdapter) SetError(ctx context.Context, id int64, lastError string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET status = $2, last_sync_error = $3, sync_started_at = NULL,
		    next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.AccountStatusError), lastError)
	return err
}

// =============================================================================
// Cursor & progress
// =============================================================================

func (a *AccountAdapter) SaveCursor(ctx context.Context, id int64, cursor string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts SET sync_cursor = $2, updated_at = NOW() WHERE id = $1`,
		id, toNullableString(cursor))
	return err
}

func (a *AccountAdapter) UpdateProgress(ctx context.Context, id int64, syncedCount int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET synced_count = $2, total_synced = GREATEST(total_synced, $2), updated_at = NOW()
		WHERE id = $1`,
		id, syncedCount)
	return err
}

func (a *AccountAdapter) MarkInitialSyncComplete(ctx context.Context, id int64) error {
	// 이미 완료된 계정은 건드리지 않는다
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET initial_sync_completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND initial_sync_completed_at IS NULL`,
		id)
	return err
}

// =============================================================================
// Retry management
// =============================================================================

func (a *AccountAdapter) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET status = $2, retry_count = $3, next_retry_at = $4,
		    last_sync_error = $5, sync_started_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.AccountStatusActive), retryCount, nextRetryAt, lastError)
	return err
}

func (a *AccountAdapter) ResetRetry(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET retry_count = 0, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		id)
	return err
}

func (a *AccountAdapter) GetDueRetries(ctx context.Context) ([]*domain.Account, error) {
	var entities []accountEntity
	err := a.db.SelectContext(ctx, &entities, `
		SELECT `+accountColumns+`
		FROM mail_accounts
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= NOW()
		ORDER BY next_retry_at`,
		string(domain.AccountStatusActive))
	if err != nil {
		return nil, err
	}
	return entitiesToAccounts(entities), nil
}

// =============================================================================
// Watchdog & scheduler queries
// =============================================================================

func (a *AccountAdapter) GetStuckSyncing(ctx context.Context, threshold time.Duration) ([]*domain.Account, error) {
	var entities []accountEntity
	err := a.db.SelectContext(ctx, &entities, `
		SELECT `+accountColumns+`
		FROM mail_accounts
		WHERE status = $1
		  AND sync_started_at IS NOT NULL
		  AND sync_started_at < NOW() - ($2 || ' seconds')::interval`,
		string(domain.AccountStatusSyncing), int64(threshold.Seconds()))
	if err != nil {
		return nil, err
	}
	return entitiesToAccounts(entities), nil
}

func (a *AccountAdapter) ResetStuck(ctx context.Context, id int64, lastError string) error {
	// syncing인 행만 되돌린다. 그 사이 끝난 런과 경합하지 않도록.
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET status = $2, last_sync_error = $3, sync_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, string(domain.AccountStatusActive), lastError, string(domain.AccountStatusSyncing))
	return err
}

func (a *AccountAdapter) GetSyncable(ctx context.Context, olderThan time.Duration) ([]*domain.Account, error) {
	var entities []accountEntity
	err := a.db.SelectContext(ctx, &entities, `
		SELECT `+accountColumns+`
		FROM mail_accounts
		WHERE status = $1
		  AND (last_sync_at IS NULL OR last_sync_at < NOW() - ($2 || ' seconds')::interval)
		ORDER BY last_sync_at NULLS FIRST`,
		string(domain.AccountStatusActive), int64(olderThan.Seconds()))
	if err != nil {
		return nil, err
	}
	return entitiesToAccounts(entities), nil
}

// =============================================================================
// Helpers
// =============================================================================

func entitiesToAccounts(entities []accountEntity) []*domain.Account {
	accounts := make([]*domain.Account, len(entities))
	for i := range entities {
		accounts[i] = entities[i].toDomain()
	}
	return accounts
}

func toNullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullableInt32(n int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(n), Valid: n != 0}
}

func toNullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.AccountRepository = (*AccountAdapter)(nil)
