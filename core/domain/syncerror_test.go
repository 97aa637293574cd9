package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassifySyncError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass SyncErrorClass
	}{
		{"401 status", errors.New("googleapi: Error 401: Invalid Credentials"), ErrClassPermission},
		{"403 status", errors.New("graph request failed: 403 Forbidden"), ErrClassPermission},
		{"invalid grant", errors.New("oauth2: \"invalid_grant\" token has been revoked"), ErrClassPermission},
		{"access denied", errors.New("imap: access denied for user"), ErrClassPermission},
		{"429 status", errors.New("googleapi: Error 429: Rate Limit Exceeded"), ErrClassRateLimit},
		{"quota exceeded", errors.New("quota exceeded for quota metric"), ErrClassRateLimit},
		{"too many requests", errors.New("HTTP 429 Too Many Requests"), ErrClassRateLimit},
		{"deadline exceeded", context.DeadlineExceeded, ErrClassNetwork},
		{"connection refused", errors.New("dial tcp 10.0.0.1:993: connection refused"), ErrClassNetwork},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "imap.example.com"}, ErrClassNetwork},
		{"timeout string", errors.New("request timed out after 30s"), ErrClassNetwork},
		{"unknown", errors.New("something odd happened"), ErrClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySyncError(tt.err)
			if got.Class != tt.wantClass {
				t.Errorf("ClassifySyncError(%v) class = %v, want %v", tt.err, got.Class, tt.wantClass)
			}
		})
	}
}

func TestClassifySyncError_Nil(t *testing.T) {
	if got := ClassifySyncError(nil); got != nil {
		t.Errorf("ClassifySyncError(nil) = %v, want nil", got)
	}
}

func TestClassifySyncError_PassThrough(t *testing.T) {
	// 어댑터가 이미 분류한 오류는 문자열 매칭보다 우선한다
	orig := &ClassifiedError{Class: ErrClassRateLimit, StatusCode: 429, Message: "slow down"}
	wrapped := fmt.Errorf("folder sync: %w", orig)

	got := ClassifySyncError(wrapped)
	if got != orig {
		t.Errorf("ClassifySyncError did not pass through classified error: got %+v", got)
	}
}

func TestSyncErrorClass_Retryable(t *testing.T) {
	tests := []struct {
		class SyncErrorClass
		want  bool
	}{
		{ErrClassPermission, false},
		{ErrClassConfiguration, false},
		{ErrClassRateLimit, true},
		{ErrClassNetwork, true},
		{ErrClassUnknown, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := tt.class.Retryable(); got != tt.want {
				t.Errorf("%s.Retryable() = %v, want %v", tt.class, got, tt.want)
			}
			if got := tt.class.Terminal(); got == tt.want {
				t.Errorf("%s.Terminal() = %v, want %v", tt.class, got, !tt.want)
			}
		})
	}
}

func TestGetRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 15 * time.Second},
		{3, 30 * time.Second},
		// 범위를 벗어나면 가장자리로 고정
		{0, 5 * time.Second},
		{-1, 5 * time.Second},
		{4, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := GetRetryDelay(tt.attempt); got != tt.want {
				t.Errorf("GetRetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestShouldScheduleRetry(t *testing.T) {
	tests := []struct {
		name       string
		class      SyncErrorClass
		retryCount int
		want       bool
	}{
		{"permission never retries", ErrClassPermission, 0, false},
		{"configuration never retries", ErrClassConfiguration, 0, false},
		{"rate limit first retry", ErrClassRateLimit, 0, true},
		{"rate limit within budget", ErrClassRateLimit, 2, true},
		{"rate limit budget exhausted", ErrClassRateLimit, 3, false},
		{"network within budget", ErrClassNetwork, 1, true},
		{"unknown retries once", ErrClassUnknown, 0, true},
		{"unknown second attempt blocked", ErrClassUnknown, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldScheduleRetry(tt.class, tt.retryCount); got != tt.want {
				t.Errorf("ShouldScheduleRetry(%v, %d) = %v, want %v", tt.class, tt.retryCount, got, tt.want)
			}
		})
	}
}
