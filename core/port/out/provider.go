// Package out defines outbound ports (driven adapters implement these).
package out

import (
	"context"
	"fmt"
	"time"

	"mailsync_server/core/domain"
)

// =============================================================================
// Mail Provider Port
// =============================================================================

// SyncFolderRequest carries everything an adapter needs for one page-or-run
// of folder sync. Cursor semantics are provider-specific and opaque here.
type SyncFolderRequest struct {
	Account *domain.Account
	Folder  *domain.Folder

	// Cursor is the durable resume point from the last completed run
	// (folder-level for delta providers, account-level for Gmail).
	Cursor string

	// PageMarker continues pagination within the current run. Never
	// persisted.
	PageMarker string

	Mode    domain.SyncMode
	Trigger domain.TriggerType

	MaxResults int
}

// SyncFolderResult is one page of messages plus cursor progression.
// NextPageMarker != "" means the run has more pages; NewCursor != "" means a
// new durable resume point exists. Delta providers only set NewCursor once
// pagination is exhausted, never mid-page.
type SyncFolderResult struct {
	Messages       []*ProviderMessage
	NewCursor      string
	NextPageMarker string
}

// ProviderFolder is a folder as the provider reports it, before taxonomy
// normalization.
type ProviderFolder struct {
	ProviderFolderID string
	Name             string
}

// ProviderMessage is the raw-ish message shape crossing the adapter boundary.
// Adapters map wire responses into this; nothing above the port sees
// provider payloads.
type ProviderMessage struct {
	ProviderMessageID string
	ThreadID          string

	Subject   string
	FromName  string
	FromEmail string
	ToEmails  []string
	CcEmails  []string
	Snippet   string
	SentAt    time.Time

	// Folder the message belongs to, as resolved by the adapter. Gmail
	// derives this per message from labels; Outlook/IMAP sync per folder.
	Folder domain.CanonicalFolder

	IsRead    bool
	IsStarred bool

	// Body (optional, envelope sync may skip it)
	BodyHTML string
	BodyText string
}

// CursorScope tells the sync runner where the adapter's resume cursor lives.
type CursorScope string

const (
	CursorScopeAccount CursorScope = "account" // 계정 단위 커서 (Gmail page token)
	CursorScopeFolder  CursorScope = "folder"  // 폴더 단위 커서 (Outlook delta link)
	CursorScopeNone    CursorScope = "none"    // 커서 없음 (IMAP window)
)

// MailProviderPort is the common contract every provider adapter implements.
// The orchestrator resolves one adapter per account; no provider branching
// exists above this interface.
type MailProviderPort interface {
	// CursorScope declares the adapter's cursor model so the runner can
	// persist resume state at the right level without knowing the provider.
	CursorScope() CursorScope
	// ListFolders returns the account's folders. Callers upsert the result
	// idempotently by (accountID, providerFolderID).
	ListFolders(ctx context.Context, cred *Credential, account *domain.Account) ([]*ProviderFolder, error)

	// SyncFolder fetches one page of messages for the folder.
	SyncFolder(ctx context.Context, cred *Credential, req *SyncFolderRequest) (*SyncFolderResult, error)
}

// MailProviderFactory resolves the adapter for a provider kind.
type MailProviderFactory interface {
	GetProvider(provider domain.Provider) (MailProviderPort, error)
}

// =============================================================================
// Provider Error
// =============================================================================

type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrSyncRequired ProviderErrorCode = "full_sync_required"
	ProviderErrConfig       ProviderErrorCode = "config_error"
)

// ProviderError - 프로바이더 API 오류 (HTTP 상태코드 매핑 결과)
type ProviderError struct {
	Provider   domain.Provider
	Code       ProviderErrorCode
	StatusCode int
	Message    string
	Err        error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider domain.Provider, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// Classify maps the provider error into the domain error taxonomy. Adapter
// level classification wins over string matching downstream.
func (e *ProviderError) Classify() *domain.ClassifiedError {
	class := domain.ErrClassUnknown
	switch e.Code {
	case ProviderErrAuth, ProviderErrTokenExpired:
		class = domain.ErrClassPermission
	case ProviderErrRateLimit:
		class = domain.ErrClassRateLimit
	case ProviderErrNetwork, ProviderErrServer:
		class = domain.ErrClassNetwork
	case ProviderErrConfig, ProviderErrInvalidInput:
		class = domain.ErrClassConfiguration
	}
	return &domain.ClassifiedError{
		Class:      class,
		StatusCode: e.StatusCode,
		Message:    e.Message,
		Err:        e,
	}
}
