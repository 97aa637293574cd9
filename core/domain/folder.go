package domain

import "time"

// =============================================================================
// Canonical Folder Taxonomy
// =============================================================================

// CanonicalFolder is the closed set of folder roles the rest of the system
// works with. Provider-specific names are normalized into this enum once, at
// folder discovery time.
type CanonicalFolder string

const (
	FolderInbox     CanonicalFolder = "inbox"
	FolderSent      CanonicalFolder = "sent"
	FolderDrafts    CanonicalFolder = "drafts"
	FolderTrash     CanonicalFolder = "trash"
	FolderSpam      CanonicalFolder = "spam"
	FolderArchive   CanonicalFolder = "archive"
	FolderStarred   CanonicalFolder = "starred"
	FolderImportant CanonicalFolder = "important"
	FolderAllMail   CanonicalFolder = "all_mail"
	FolderOutbox    CanonicalFolder = "outbox"
	FolderCustom    CanonicalFolder = "custom"
)

// FolderClassification is the result of normalizing a raw provider folder
// name. Confidence drives the review/enable policy below.
type FolderClassification struct {
	Type       CanonicalFolder `json:"type"`
	Confidence float64         `json:"confidence"`
}

// confidenceThreshold - 이 값 미만이면 자동 활성화하지 않고 리뷰 대상
const confidenceThreshold = 0.8

// NeedsReview reports whether the mapping should be confirmed by the user
// before the folder participates in categorization.
func (c FolderClassification) NeedsReview() bool {
	return c.Confidence < confidenceThreshold || c.Type == FolderCustom
}

// AutoEnabled decides whether a newly discovered folder starts with sync
// enabled. Core folders are always on, spam/trash always off, everything
// else only when we are confident about the mapping.
func (c FolderClassification) AutoEnabled() bool {
	switch c.Type {
	case FolderInbox, FolderSent, FolderDrafts:
		return true
	case FolderSpam, FolderTrash:
		return false
	}
	return !c.NeedsReview()
}

// =============================================================================
// Folder Sync Status
// =============================================================================

type FolderSyncStatus string

const (
	FolderSyncIdle    FolderSyncStatus = "idle"
	FolderSyncSyncing FolderSyncStatus = "syncing"
	FolderSyncError   FolderSyncStatus = "error"
)

// =============================================================================
// Folder - 계정의 메일 폴더
// =============================================================================

// Folder is a provider folder discovered for an account. Unique per
// (AccountID, ProviderFolderID); rediscovery upserts in place.
type Folder struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"account_id"`
	ProviderFolderID string `json:"provider_folder_id"`
	Name             string `json:"name"`

	Type        CanonicalFolder `json:"type"`
	Confidence  float64         `json:"confidence"`
	NeedsReview bool            `json:"needs_review"`

	SyncEnabled bool             `json:"sync_enabled"`
	SyncStatus  FolderSyncStatus `json:"sync_status"`
	LastError   string           `json:"last_error,omitempty"`

	// Per-folder resume cursor (Outlook delta link). Gmail은 계정 레벨
	// 커서를 쓰고, IMAP은 커서가 없다.
	SyncCursor string    `json:"sync_cursor,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`

	MessageCount int `json:"message_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Classification returns the stored classification of the folder.
func (f *Folder) Classification() FolderClassification {
	return FolderClassification{Type: f.Type, Confidence: f.Confidence}
}
