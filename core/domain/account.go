package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// =============================================================================
// Provider - 지원하는 메일 프로바이더
// =============================================================================

type Provider string

const (
	ProviderGmail   Provider = "gmail"   // page-token 기반 REST
	ProviderOutlook Provider = "outlook" // delta-link 기반 REST
	ProviderIMAP    Provider = "imap"    // cursor 없음, window 기반
)

// IsValid checks the provider is one we have an adapter for.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderIMAP:
		return true
	}
	return false
}

// =============================================================================
// Account Status
// =============================================================================

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"  // 정상 (동기화 가능)
	AccountStatusSyncing AccountStatus = "syncing" // 동기화 진행 중
	AccountStatusError   AccountStatus = "error"   // 터미널 오류 (재연결/수동 개입 필요)
)

// =============================================================================
// Account - 연결된 메일 계정
// =============================================================================

type Account struct {
	ID       int64     `json:"id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Provider Provider  `json:"provider"`
	Status   AccountStatus `json:"status"`

	// 동기화 상태
	LastSyncError string    `json:"last_sync_error,omitempty"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	SyncStartedAt time.Time `json:"sync_started_at,omitempty"`

	// Account-level cursor (Gmail page token sweep). Folder-level cursors
	// live on Folder.
	SyncCursor string `json:"sync_cursor,omitempty"`

	// 진행률
	SyncedCount int64 `json:"synced_count"`
	TotalSynced int64 `json:"total_synced"`

	// 재시도 관련
	RetryCount  int       `json:"retry_count"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`

	// 최초 동기화 완료 시각 (zero = 아직 initial sync 전)
	InitialSyncCompletedAt time.Time `json:"initial_sync_completed_at,omitempty"`

	// IMAP 전용 접속 정보 (OAuth 프로바이더는 비움)
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPUsername string `json:"imap_username,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFirstSync - 최초 동기화인지 확인
func (a *Account) IsFirstSync() bool {
	return a.InitialSyncCompletedAt.IsZero()
}

// CanRetry - 재시도 가능한지 확인
func (a *Account) CanRetry() bool {
	return a.RetryCount < MaxSyncRetries
}

// NeedsRetry - 재시도 시점이 지났는지 확인
func (a *Account) NeedsRetry() bool {
	return !a.NextRetryAt.IsZero() && time.Now().After(a.NextRetryAt)
}

// StuckSyncing reports whether the account has been in syncing state longer
// than the watchdog threshold.
func (a *Account) StuckSyncing(threshold time.Duration) bool {
	if a.Status != AccountStatusSyncing || a.SyncStartedAt.IsZero() {
		return false
	}
	return time.Since(a.SyncStartedAt) > threshold
}

// =============================================================================
// SyncJob - Redis Stream에 발행되는 동기화 작업
// =============================================================================

type SyncJob struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	UserID     string          `json:"user_id"`
	AccountID  int64           `json:"account_id"`
	Trigger    TriggerType     `json:"trigger"`
	Mode       SyncMode        `json:"mode"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
}

type JobType string

const (
	JobMailSync  JobType = "mail.sync"
	JobMailEmbed JobType = "mail.embed"
)
