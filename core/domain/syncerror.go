package domain

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// =============================================================================
// Sync Error Classification
// =============================================================================

// SyncErrorClass buckets a sync failure for the retry scheduler. Priority
// order matters: permission beats rate-limit beats network beats unknown.
type SyncErrorClass string

const (
	ErrClassPermission    SyncErrorClass = "permission"    // 401/403 - 터미널, 재시도 없음
	ErrClassRateLimit     SyncErrorClass = "rate_limit"    // 429 - 재시도 가능
	ErrClassNetwork       SyncErrorClass = "network"       // 타임아웃/연결 실패 - 재시도 가능
	ErrClassConfiguration SyncErrorClass = "configuration" // 설정 오류 - 즉시 터미널
	ErrClassUnknown       SyncErrorClass = "unknown"       // 1회만 재시도
)

// Retryable reports whether the class allows another attempt at all.
func (c SyncErrorClass) Retryable() bool {
	switch c {
	case ErrClassPermission, ErrClassConfiguration:
		return false
	}
	return true
}

// Terminal reports whether the account should be flipped to error status
// without scheduling a retry.
func (c SyncErrorClass) Terminal() bool {
	return !c.Retryable()
}

// ClassifiedError wraps a sync failure with its class. Adapters attach an
// HTTP status when one exists; string heuristics cover transport errors that
// never had one.
type ClassifiedError struct {
	Class      SyncErrorClass
	StatusCode int
	Message    string
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Class)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewConfigurationError - 설정 누락 등 즉시 터미널인 오류
func NewConfigurationError(message string) *ClassifiedError {
	return &ClassifiedError{Class: ErrClassConfiguration, Message: message}
}

// ClassifySyncError buckets err. Already classified errors pass through
// unchanged so adapter-level classification wins over string matching.
func ClassifySyncError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	// Permission (터미널) - 상태코드/키워드 모두 확인
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(lower, "forbidden") || strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid_grant") {
		return &ClassifiedError{Class: ErrClassPermission, Message: msg, Err: err}
	}

	// Rate limit
	if strings.Contains(msg, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota exceeded") {
		return &ClassifiedError{Class: ErrClassRateLimit, Message: msg, Err: err}
	}

	// Network
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ClassifiedError{Class: ErrClassNetwork, Message: msg, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ClassifiedError{Class: ErrClassNetwork, Message: msg, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "network") {
		return &ClassifiedError{Class: ErrClassNetwork, Message: msg, Err: err}
	}

	return &ClassifiedError{Class: ErrClassUnknown, Message: msg, Err: err}
}

// =============================================================================
// Retry Strategy
// =============================================================================

// MaxSyncRetries - 최대 재시도 횟수
const MaxSyncRetries = 3

// RetryDelays - 고정 재시도 간격 (백오프 아님)
var RetryDelays = []time.Duration{
	5 * time.Second,  // 1차
	15 * time.Second, // 2차
	30 * time.Second, // 3차
}

// GetRetryDelay returns the wait before the given attempt. attempt is
// 1-based; out-of-range values clamp to the edges.
func GetRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(RetryDelays) {
		attempt = len(RetryDelays)
	}
	return RetryDelays[attempt-1]
}

// ShouldScheduleRetry decides whether another attempt is warranted.
// Unknown errors get exactly one retry; retryable classes follow the
// attempt budget.
func ShouldScheduleRetry(class SyncErrorClass, retryCount int) bool {
	if !class.Retryable() {
		return false
	}
	if class == ErrClassUnknown {
		return retryCount < 1
	}
	return retryCount < MaxSyncRetries
}
