package persistence

import (
	"context"
	"database/sql"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// =============================================================================
// MessageAdapter
// =============================================================================

type MessageAdapter struct {
	db *sqlx.DB
}

func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

type messageEntity struct {
	ID                int64          `db:"id"`
	AccountID         int64          `db:"account_id"`
	FolderID          int64          `db:"folder_id"`
	ProviderMessageID string         `db:"provider_message_id"`
	ThreadID          sql.NullString `db:"thread_id"`

	Subject   string         `db:"subject"`
	FromName  sql.NullString `db:"from_name"`
	FromEmail string         `db:"from_email"`
	ToEmails  pq.StringArray `db:"to_emails"`
	CcEmails  pq.StringArray `db:"cc_emails"`
	Snippet   sql.NullString `db:"snippet"`
	SentAt    sql.NullTime   `db:"sent_at"`

	Category string `db:"category"`

	IsRead       bool `db:"is_read"`
	IsStarred    bool `db:"is_starred"`
	HasEmbedding bool `db:"has_embedding"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// xmax = 0 이면 이번 문장에서 INSERT된 행
	Inserted bool `db:"inserted"`
}

func (e *messageEntity) toDomain() *domain.Message {
	msg := &domain.Message{
		ID:                e.ID,
		AccountID:         e.AccountID,
		FolderID:          e.FolderID,
		ProviderMessageID: e.ProviderMessageID,
		Subject:           e.Subject,
		FromEmail:         e.FromEmail,
		ToEmails:          []string(e.ToEmails),
		CcEmails:          []string(e.CcEmails),
		Category:          domain.EmailCategory(e.Category),
		IsRead:            e.IsRead,
		IsStarred:         e.IsStarred,
		HasEmbedding:      e.HasEmbedding,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
	if e.ThreadID.Valid {
		msg.ThreadID = e.ThreadID.String
	}
	if e.FromName.Valid {
		msg.FromName = e.FromName.String
	}
	if e.Snippet.Valid {
		msg.Snippet = e.Snippet.String
	}
	if e.SentAt.Valid {
		msg.SentAt = e.SentAt.Time
	}
	return msg
}

const messageColumns = `
	id, account_id, folder_id, provider_message_id, thread_id,
	subject, from_name, from_email, to_emails, cc_emails, snippet, sent_at,
	category, is_read, is_starred, has_embedding, created_at, updated_at`

// =============================================================================
// Upsert - (account_id, provider_message_id) 키
// =============================================================================

// Upsert inserts the message or updates the sync-owned fields. is_read and
// is_starred are written only on insert: after that they belong to the user.
// The inserted flag drives the post-insert hooks upstream.
func (a *MessageAdapter) Upsert(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	var entity messageEntity
	query := `
		INSERT INTO mail_messages (
			account_id, folder_id, provider_message_id, thread_id,
			subject, from_name, from_email, to_emails, cc_emails, snippet, sent_at,
			category, is_read, is_starred, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (account_id, provider_message_id) DO UPDATE SET
			folder_id = EXCLUDED.folder_id,
			thread_id = EXCLUDED.thread_id,
			subject = EXCLUDED.subject,
			from_name = EXCLUDED.from_name,
			from_email = EXCLUDED.from_email,
			to_emails = EXCLUDED.to_emails,
			cc_emails = EXCLUDED.cc_emails,
			snippet = EXCLUDED.snippet,
			sent_at = EXCLUDED.sent_at,
			category = EXCLUDED.category,
			updated_at = NOW()
		RETURNING ` + messageColumns + `, (xmax = 0) AS inserted`
	err := a.db.GetContext(ctx, &entity, query,
		msg.AccountID, msg.FolderID, msg.ProviderMessageID, toNullableString(msg.ThreadID),
		msg.Subject, toNullableString(msg.FromName), msg.FromEmail,
		pq.StringArray(msg.ToEmails), pq.StringArray(msg.CcEmails),
		toNullableString(msg.Snippet), toNullableTime(msg.SentAt),
		string(msg.Category), msg.IsRead, msg.IsStarred)
	if err != nil {
		return nil, false, err
	}
	return entity.toDomain(), entity.Inserted, nil
}

// =============================================================================
// Queries
// =============================================================================

func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var entity messageEntity
	err := a.db.GetContext(ctx, &entity,
		`SELECT `+messageColumns+`, false AS inserted FROM mail_messages WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *MessageAdapter) GetByProviderID(ctx context.Context, accountID int64, providerMessageID string) (*domain.Message, error) {
	var entity messageEntity
	err := a.db.GetContext(ctx, &entity,
		`SELECT `+messageColumns+`, false AS inserted
		 FROM mail_messages WHERE account_id = $1 AND provider_message_id = $2`,
		accountID, providerMessageID)
	if err != nil {
		return nil, err
	}
	return entity.toDomain(), nil
}

func (a *MessageAdapter) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := a.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM mail_messages WHERE account_id = $1`, accountID)
	return count, err
}

func (a *MessageAdapter) MarkEmbedded(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `
		UPDATE mail_messages SET has_embedding = true, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MessageRepository = (*MessageAdapter)(nil)
