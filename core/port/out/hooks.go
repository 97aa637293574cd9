package out

import (
	"context"
	"errors"
	"time"

	"mailsync_server/core/domain"
)

// =============================================================================
// Credential Port
// =============================================================================

// ErrNeedsReconnection - 리프레시 토큰이 무효화되어 사용자가 다시 연결해야 함
var ErrNeedsReconnection = errors.New("account needs reconnection")

// Credential is whatever the adapter needs to talk to the provider. OAuth
// providers fill the token fields; IMAP fills host/password.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
}

// CredentialPort hands out a usable credential for an account, refreshing
// expired tokens transparently. Returns ErrNeedsReconnection when refresh is
// impossible (revoked grant).
type CredentialPort interface {
	GetValidCredential(ctx context.Context, account *domain.Account) (*Credential, error)
}

// =============================================================================
// Ingestion Hooks
// =============================================================================

// CategorizerPort is the external categorization hook used on auto-triggered
// syncs. Failures fall back to folder-derived categories upstream.
type CategorizerPort interface {
	Categorize(ctx context.Context, msg *domain.Message, userID string) (domain.EmailCategory, error)
}

// EmbedQueuePort enqueues a message for embedding generation. Fire-and-forget
// from the ingestion path.
type EmbedQueuePort interface {
	Enqueue(ctx context.Context, accountID, messageID int64) error
}

// ContactTimelinePort records received-mail events on the contact graph.
type ContactTimelinePort interface {
	// FindContact resolves a sender address to a contact ID. Empty ID means
	// the sender is unknown (not an error).
	FindContact(ctx context.Context, userID, email string) (string, error)
	LogReceived(ctx context.Context, contactID, subject, providerMessageID string) error
}

// =============================================================================
// Job Scheduler
// =============================================================================

// JobSchedulerPort dispatches a job for asynchronous execution and returns
// the run ID. Dispatch failure means nothing was enqueued.
type JobSchedulerPort interface {
	Schedule(ctx context.Context, job *domain.SyncJob) (string, error)
}

// =============================================================================
// Sync Lock
// =============================================================================

// SyncLockPort serializes racing sync triggers per account. TryAcquire is
// atomic; the lock self-expires so a crashed holder cannot wedge the account.
type SyncLockPort interface {
	TryAcquire(ctx context.Context, accountID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, accountID int64) error
}
