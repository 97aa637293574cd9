package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"testing"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestFolderFromLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   domain.CanonicalFolder
	}{
		{"inbox", []string{"INBOX", "UNREAD"}, domain.FolderInbox},
		{"sent", []string{"SENT"}, domain.FolderSent},
		{"draft", []string{"DRAFT"}, domain.FolderDrafts},
		{"spam", []string{"SPAM", "UNREAD"}, domain.FolderSpam},
		{"trash over inbox", []string{"INBOX", "TRASH"}, domain.FolderTrash},
		{"spam over inbox", []string{"SPAM", "INBOX"}, domain.FolderSpam},
		{"sent over inbox", []string{"INBOX", "SENT"}, domain.FolderSent},
		{"starred without inbox", []string{"STARRED"}, domain.FolderStarred},
		{"starred with inbox stays inbox", []string{"INBOX", "STARRED"}, domain.FolderInbox},
		{"no labels is all mail", nil, domain.FolderAllMail},
		{"only category labels", []string{"CATEGORY_PROMOTIONS"}, domain.FolderAllMail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := folderFromLabels(tt.labels); got != tt.want {
				t.Errorf("folderFromLabels(%v) = %s, want %s", tt.labels, got, tt.want)
			}
		})
	}
}

func TestLabelDisplayName(t *testing.T) {
	tests := []struct {
		label *gmail.Label
		want  string
	}{
		{&gmail.Label{Id: "INBOX", Type: "system", Name: "INBOX"}, "Inbox"},
		{&gmail.Label{Id: "SENT", Type: "system", Name: "SENT"}, "Sent Mail"},
		{&gmail.Label{Id: "TRASH", Type: "system", Name: "TRASH"}, "Trash"},
		{&gmail.Label{Id: "Label_7", Type: "user", Name: "Receipts"}, "Receipts"},
	}

	for _, tt := range tests {
		if got := labelDisplayName(tt.label); got != tt.want {
			t.Errorf("labelDisplayName(%s) = %q, want %q", tt.label.Id, got, tt.want)
		}
	}
}

func TestGmailConvertMessage(t *testing.T) {
	a := &GmailAdapter{}

	msg := &gmail.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		Snippet:      "preview text",
		LabelIds:     []string{"INBOX", "STARRED"},
		InternalDate: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "From", Value: `"Jamie Park" <jamie@example.com>`},
				{Name: "To", Value: "a@example.com, b@example.com"},
				{Name: "Cc", Value: "c@example.com"},
				{Name: "Date", Value: "Mon, 02 Feb 2026 10:30:00 +0900"},
			},
		},
	}

	got := a.convertMessage(msg)

	if got.ProviderMessageID != "msg-1" || got.ThreadID != "thread-1" {
		t.Errorf("ids = %s/%s", got.ProviderMessageID, got.ThreadID)
	}
	if got.Subject != "Quarterly report" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.FromName != "Jamie Park" || got.FromEmail != "jamie@example.com" {
		t.Errorf("from = %q <%s>", got.FromName, got.FromEmail)
	}
	if len(got.ToEmails) != 2 || got.ToEmails[0] != "a@example.com" {
		t.Errorf("to = %v", got.ToEmails)
	}
	if len(got.CcEmails) != 1 {
		t.Errorf("cc = %v", got.CcEmails)
	}
	if got.Folder != domain.FolderInbox {
		t.Errorf("folder = %s, want inbox", got.Folder)
	}
	// UNREAD 라벨 없음 = 읽음
	if !got.IsRead {
		t.Error("message without UNREAD label should be read")
	}
	if !got.IsStarred {
		t.Error("STARRED label should set starred")
	}
	if got.SentAt.IsZero() {
		t.Error("sent at not parsed from Date header")
	}
}

func TestGmailConvertMessage_InternalDateFallback(t *testing.T) {
	a := &GmailAdapter{}
	internal := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := a.convertMessage(&gmail.Message{
		Id:           "msg-2",
		LabelIds:     []string{"UNREAD", "INBOX"},
		InternalDate: internal.UnixMilli(),
	})

	if got.IsRead {
		t.Error("UNREAD label should mean unread")
	}
	if !got.SentAt.Equal(internal) {
		t.Errorf("sent at = %v, want internal date %v", got.SentAt, internal)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantEmail string
	}{
		{`"Jamie Park" <jamie@example.com>`, "Jamie Park", "jamie@example.com"},
		{"plain@example.com", "", "plain@example.com"},
		{"not an address", "", "not an address"},
	}

	for _, tt := range tests {
		name, email := parseAddress(tt.in)
		if name != tt.wantName || email != tt.wantEmail {
			t.Errorf("parseAddress(%q) = %q/%q, want %q/%q", tt.in, name, email, tt.wantName, tt.wantEmail)
		}
	}
}

func TestGmailWrapError(t *testing.T) {
	a := &GmailAdapter{}

	tests := []struct {
		name     string
		err      error
		wantCode out.ProviderErrorCode
	}{
		{"401", &googleapi.Error{Code: 401}, out.ProviderErrTokenExpired},
		{"403 rate limit", &googleapi.Error{Code: 403, Message: "Rate Limit Exceeded"}, out.ProviderErrRateLimit},
		{"403 denied", &googleapi.Error{Code: 403, Message: "insufficient permissions"}, out.ProviderErrAuth},
		{"404 stale page token", &googleapi.Error{Code: 404}, out.ProviderErrSyncRequired},
		{"429", &googleapi.Error{Code: 429}, out.ProviderErrRateLimit},
		{"503", &googleapi.Error{Code: 503}, out.ProviderErrServer},
		{"transport", errors.New("dial tcp: connection refused"), out.ProviderErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := a.wrapError(tt.err, "request failed")
			var pe *out.ProviderError
			if !errors.As(wrapped, &pe) {
				t.Fatalf("wrapError returned %T", wrapped)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", pe.Code, tt.wantCode)
			}
			if pe.Provider != domain.ProviderGmail {
				t.Errorf("provider = %s", pe.Provider)
			}
		})
	}
}

func newTestGmailService(t *testing.T, handler http.HandlerFunc) *gmail.Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("gmail.NewService: %v", err)
	}
	return svc
}

func TestGmailFetchMessages(t *testing.T) {
	adapter := NewGmailAdapter(&GmailConfig{})

	handler := func(w http.ResponseWriter, r *http.Request) {
		switch path.Base(r.URL.Path) {
		case "m-ok":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(&gmail.Message{
				Id:       "m-ok",
				Snippet:  "hello",
				LabelIds: []string{"INBOX"},
			})
		case "m-gone":
			http.Error(w, `{"error":{"code":404,"message":"Not Found"}}`, http.StatusNotFound)
		case "m-broken":
			http.Error(w, `{"error":{"code":500,"message":"Backend Error"}}`, http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}

	t.Run("message deleted between list and get is skipped", func(t *testing.T) {
		svc := newTestGmailService(t, handler)
		refs := []*gmail.Message{{Id: "m-ok"}, {Id: "m-gone"}}

		msgs, err := adapter.fetchMessagesParallel(context.Background(), svc, refs)
		if err != nil {
			t.Fatalf("fetchMessagesParallel: %v", err)
		}
		if len(msgs) != 1 || msgs[0].ProviderMessageID != "m-ok" {
			t.Errorf("messages = %v, want just m-ok", msgs)
		}
	})

	t.Run("fetch failure fails the whole page", func(t *testing.T) {
		svc := newTestGmailService(t, handler)
		refs := []*gmail.Message{{Id: "m-ok"}, {Id: "m-broken"}}

		_, err := adapter.fetchMessagesParallel(context.Background(), svc, refs)
		if err == nil {
			t.Fatal("expected the page to fail so the cursor does not advance")
		}
		var pe *out.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %T, want provider error", err)
		}
		if pe.Code != out.ProviderErrServer {
			t.Errorf("code = %s, want %s", pe.Code, out.ProviderErrServer)
		}
	})
}
