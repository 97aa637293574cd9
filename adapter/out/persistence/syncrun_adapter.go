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
// SyncRunAdapter - 동기화 실행 audit 기록
// =============================================================================

type SyncRunAdapter struct {
	db *sqlx.DB
}

func NewSyncRunAdapter(db *sqlx.DB) *SyncRunAdapter {
	return &SyncRunAdapter{db: db}
}

type syncRunEntity struct {
	ID             string         `db:"id"`
	AccountID      int64          `db:"account_id"`
	Trigger        string         `db:"trigger"`
	Mode           string         `db:"mode"`
	Status         string         `db:"status"`
	FoldersSynced  int            `db:"folders_synced"`
	FoldersFailed  int            `db:"folders_failed"`
	MessagesUpsert int            `db:"messages_upserted"`
	LastError      sql.NullString `db:"last_error"`
	StartedAt      time.Time      `db:"started_at"`
	FinishedAt     sql.NullTime   `db:"finished_at"`
}

func (e *syncRunEntity) toDomain() *domain.SyncRun {
	run := &domain.SyncRun{
		ID:             e.ID,
		AccountID:      e.AccountID,
		Trigger:        domain.TriggerType(e.Trigger),
		Mode:           domain.SyncMode(e.Mode),
		Status:         domain.SyncRunStatus(e.Status),
		FoldersSynced:  e.FoldersSynced,
		FoldersFailed:  e.FoldersFailed,
		MessagesUpsert: e.MessagesUpsert,
		StartedAt:      e.StartedAt,
	}
	if e.LastError.Valid {
		run.LastError = e.LastError.String
	}
	if e.FinishedAt.Valid {
		run.FinishedAt = e.FinishedAt.Time
	}
	return run
}

const syncRunColumns = `
	id, account_id, trigger, mode, status,
	folders_synced, folders_failed, messages_upserted, last_error,
	started_at, finished_at`

func (a *SyncRunAdapter) Create(ctx context.Context, run *domain.SyncRun) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO mail_sync_runs (id, account_id, trigger, mode, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.AccountID, string(run.Trigger), string(run.Mode),
		string(run.Status), run.StartedAt)
	return err
}

// Finish records the terminal state and the per-run counters in one write.
func (a *SyncRunAdapter) Finish(ctx context.Context, run *domain.SyncRun) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_sync_runs SET
			status = $2,
			folders_synced = $3,
			folders_failed = $4,
			messages_upserted = $5,
			last_error = $6,
			finished_at = NOW()
		WHERE id = $1`,
		run.ID, string(run.Status), run.FoldersSynced, run.FoldersFailed,
		run.MessagesUpsert, toNullableString(run.LastError))
	return err
}

func (a *SyncRunAdapter) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	var entity syncRunEntity
	err := a.db.GetContext(ctx, &entity,
		`SELECT `+syncRunColumns+` FROM mail_sync_runs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *SyncRunAdapter) GetRecentByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.SyncRun, error) {
	var entities []syncRunEntity
	err := a.db.SelectContext(ctx, &entities,
		`SELECT `+syncRunColumns+` FROM mail_sync_runs
		 WHERE account_id = $1 ORDER BY started_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]*domain.SyncRun, len(entities))
	for i := range entities {
		runs[i] = entities[i].toDomain()
	}
	return runs, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.SyncRunRepository = (*SyncRunAdapter)(nil)
