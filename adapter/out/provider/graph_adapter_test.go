package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

func graphTestCredential() *out.Credential {
	return &out.Credential{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	}
}

func TestGraphConvertMessage(t *testing.T) {
	a := NewGraphAdapter(&GraphConfig{ClientID: "id"})

	msg := &graphMessage{
		ID:             "AAMk-1",
		ConversationID: "conv-1",
		Subject:        "Invoice attached",
		BodyPreview:    "please find attached",
		Body:           graphBody{ContentType: "HTML", Content: "<p>hi</p>"},
		From: graphRecipient{EmailAddress: graphEmailAddress{
			Name: "Billing", Address: "billing@example.com",
		}},
		ToRecipients: []graphRecipient{
			{EmailAddress: graphEmailAddress{Address: "me@example.com"}},
		},
		IsRead:           true,
		Flag:             graphFlag{FlagStatus: "flagged"},
		ReceivedDateTime: "2026-02-01T09:00:00Z",
	}

	got := a.convertMessage(msg)

	if got.ProviderMessageID != "AAMk-1" || got.ThreadID != "conv-1" {
		t.Errorf("ids = %s/%s", got.ProviderMessageID, got.ThreadID)
	}
	if got.FromEmail != "billing@example.com" || got.FromName != "Billing" {
		t.Errorf("from = %q <%s>", got.FromName, got.FromEmail)
	}
	if len(got.ToEmails) != 1 || got.ToEmails[0] != "me@example.com" {
		t.Errorf("to = %v", got.ToEmails)
	}
	if !got.IsRead || !got.IsStarred {
		t.Errorf("flags read=%v starred=%v, want both true", got.IsRead, got.IsStarred)
	}
	if got.BodyHTML == "" || got.BodyText != "" {
		t.Errorf("html body misrouted: html=%q text=%q", got.BodyHTML, got.BodyText)
	}
	want := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if !got.SentAt.Equal(want) {
		t.Errorf("sent at = %v, want %v", got.SentAt, want)
	}
}

func TestGraphConvertMessage_TextBody(t *testing.T) {
	a := NewGraphAdapter(&GraphConfig{})
	got := a.convertMessage(&graphMessage{
		ID:   "m",
		Body: graphBody{ContentType: "text", Content: "plain"},
	})
	if got.BodyText != "plain" || got.BodyHTML != "" {
		t.Errorf("text body misrouted: html=%q text=%q", got.BodyHTML, got.BodyText)
	}
}

func TestGraphSyncFolder_DeltaPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"value": [
				{"id": "m1", "subject": "hello", "isRead": false,
				 "receivedDateTime": "2026-02-01T09:00:00Z"},
				{"id": "m2", "@removed": {"reason": "deleted"}}
			],
			"@odata.deltaLink": "https://graph.microsoft.com/v1.0/delta?token=abc"
		}`))
	}))
	defer server.Close()

	a := NewGraphAdapter(&GraphConfig{ClientID: "id"})
	res, err := a.SyncFolder(context.Background(), graphTestCredential(), &out.SyncFolderRequest{
		Folder:     &domain.Folder{ID: 1, ProviderFolderID: "folder-1"},
		PageMarker: server.URL + "/delta",
	})
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}

	// @removed 항목은 제외
	if len(res.Messages) != 1 || res.Messages[0].ProviderMessageID != "m1" {
		t.Errorf("messages = %v, want [m1]", res.Messages)
	}
	if res.NewCursor != "https://graph.microsoft.com/v1.0/delta?token=abc" {
		t.Errorf("cursor = %q", res.NewCursor)
	}
	if res.NextPageMarker != "" {
		t.Errorf("page marker = %q, want empty on final page", res.NextPageMarker)
	}
}

func TestGraphSyncFolder_ExpiredDelta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		w.Write([]byte(`{"error":{"code":"resyncRequired"}}`))
	}))
	defer server.Close()

	a := NewGraphAdapter(&GraphConfig{ClientID: "id"})
	_, err := a.SyncFolder(context.Background(), graphTestCredential(), &out.SyncFolderRequest{
		Folder:     &domain.Folder{ID: 1, ProviderFolderID: "folder-1"},
		PageMarker: server.URL + "/delta",
	})

	var pe *out.ProviderError
	if !errors.As(err, &pe) || pe.Code != out.ProviderErrSyncRequired {
		t.Fatalf("err = %v, want %s", err, out.ProviderErrSyncRequired)
	}
}

func TestGraphSyncFolder_RequiresFolder(t *testing.T) {
	a := NewGraphAdapter(&GraphConfig{})
	_, err := a.SyncFolder(context.Background(), graphTestCredential(), &out.SyncFolderRequest{})

	var pe *out.ProviderError
	if !errors.As(err, &pe) || pe.Code != out.ProviderErrInvalidInput {
		t.Fatalf("err = %v, want %s", err, out.ProviderErrInvalidInput)
	}
}

func TestGraphWrapHTTPError(t *testing.T) {
	a := NewGraphAdapter(&GraphConfig{})

	tests := []struct {
		status   int
		wantCode out.ProviderErrorCode
	}{
		{401, out.ProviderErrTokenExpired},
		{403, out.ProviderErrAuth},
		{404, out.ProviderErrNotFound},
		{410, out.ProviderErrSyncRequired},
		{429, out.ProviderErrRateLimit},
		{500, out.ProviderErrServer},
	}

	for _, tt := range tests {
		var pe *out.ProviderError
		if !errors.As(a.wrapHTTPError(tt.status, ""), &pe) || pe.Code != tt.wantCode {
			t.Errorf("status %d: got %s, want %s", tt.status, pe.Code, tt.wantCode)
		}
	}
}
