package domain

import "time"

// =============================================================================
// Trigger & Mode
// =============================================================================

// TriggerType - 동기화를 시작시킨 주체
type TriggerType string

const (
	TriggerOAuth     TriggerType = "oauth"     // 계정 연결 직후
	TriggerManual    TriggerType = "manual"    // 사용자 수동 요청
	TriggerScheduled TriggerType = "scheduled" // 백그라운드 스케줄러
	TriggerWebhook   TriggerType = "webhook"   // 프로바이더 푸시 알림
)

// IsAuto reports whether the trigger is an automatic (background) one.
// oauth/manual은 사용자가 직접 기다리는 동기화.
func (t TriggerType) IsAuto() bool {
	return t == TriggerScheduled || t == TriggerWebhook
}

type SyncMode string

const (
	SyncModeInitial     SyncMode = "initial"     // 첫 전체 동기화
	SyncModeIncremental SyncMode = "incremental" // 커서 기반 증분 동기화
)

// CategoryPolicy decides how ingested messages get their category. Resolved
// once by the orchestrator from the trigger; downstream code never inspects
// trigger strings.
type CategoryPolicy string

const (
	// CategoryPolicyFolder derives the category from the folder the message
	// arrived in. Cheap, used for user-facing syncs.
	CategoryPolicyFolder CategoryPolicy = "folder"
	// CategoryPolicyClassifier calls the external categorizer, falling back
	// to folder derivation when the hook fails.
	CategoryPolicyClassifier CategoryPolicy = "classifier"
)

// ResolveCategoryPolicy maps a trigger to its categorization policy.
func ResolveCategoryPolicy(trigger TriggerType) CategoryPolicy {
	if trigger.IsAuto() {
		return CategoryPolicyClassifier
	}
	return CategoryPolicyFolder
}

// =============================================================================
// SyncRun - 동기화 실행 기록 (audit)
// =============================================================================

type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunCompleted SyncRunStatus = "completed"
	SyncRunPartial   SyncRunStatus = "partial" // 일부 폴더 실패, 나머지 성공
	SyncRunFailed    SyncRunStatus = "failed"
	SyncRunCanceled  SyncRunStatus = "canceled"
)

type SyncRun struct {
	ID        string        `json:"id"` // uuid
	AccountID int64         `json:"account_id"`
	Trigger   TriggerType   `json:"trigger"`
	Mode      SyncMode      `json:"mode"`
	Status    SyncRunStatus `json:"status"`

	FoldersSynced  int    `json:"folders_synced"`
	FoldersFailed  int    `json:"folders_failed"`
	MessagesUpsert int    `json:"messages_upserted"`
	LastError      string `json:"last_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
