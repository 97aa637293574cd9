package domain

import "time"

// =============================================================================
// Email Category
// =============================================================================

type EmailCategory string

const (
	CategoryPrimary      EmailCategory = "primary"
	CategorySent         EmailCategory = "sent"
	CategoryDraft        EmailCategory = "draft"
	CategoryArchive      EmailCategory = "archive"
	CategoryNewsletter   EmailCategory = "newsletter"
	CategoryNotification EmailCategory = "notification"
	CategoryOther        EmailCategory = "other"
)

// CategoryFromFolder - 폴더 기반 fast path 분류
func CategoryFromFolder(folder CanonicalFolder) EmailCategory {
	switch folder {
	case FolderSent:
		return CategorySent
	case FolderDrafts:
		return CategoryDraft
	case FolderArchive, FolderAllMail:
		return CategoryArchive
	case FolderInbox, FolderImportant, FolderStarred:
		return CategoryPrimary
	}
	return CategoryOther
}

// =============================================================================
// Message - 동기화된 메일 (envelope 수준)
// =============================================================================

// Message is the normalized envelope stored per synced mail. Unique per
// (AccountID, ProviderMessageID). Bodies live in the document store, not here.
type Message struct {
	ID                int64  `json:"id"`
	AccountID         int64  `json:"account_id"`
	FolderID          int64  `json:"folder_id"`
	ProviderMessageID string `json:"provider_message_id"`
	ThreadID          string `json:"thread_id,omitempty"`

	// Envelope
	Subject   string    `json:"subject"`
	FromName  string    `json:"from_name,omitempty"`
	FromEmail string    `json:"from_email"`
	ToEmails  []string  `json:"to_emails,omitempty"`
	CcEmails  []string  `json:"cc_emails,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
	SentAt    time.Time `json:"sent_at"`

	Category EmailCategory `json:"category"`

	// User-owned state. 동기화 upsert는 절대 덮어쓰지 않는다.
	IsRead    bool `json:"is_read"`
	IsStarred bool `json:"is_starred"`

	// Embedding 완료 여부 (embed job이 세팅)
	HasEmbedding bool `json:"has_embedding"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
