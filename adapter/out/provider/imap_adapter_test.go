package provider

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"mailsync_server/core/domain"
)

func TestIMAPConvertMessage(t *testing.T) {
	a := NewIMAPAdapter()
	folder := &domain.Folder{ID: 1, ProviderFolderID: "INBOX"}

	t.Run("full envelope", func(t *testing.T) {
		sent := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
		msg := &imap.Message{
			Uid:          42,
			Flags:        []string{imap.SeenFlag, imap.FlaggedFlag},
			InternalDate: sent.Add(time.Minute),
			Envelope: &imap.Envelope{
				MessageId: "<abc@mail.example.com>",
				Subject:   "Weekly digest",
				Date:      sent,
				From: []*imap.Address{
					{PersonalName: "News Bot", MailboxName: "news", HostName: "example.com"},
				},
				To: []*imap.Address{
					{MailboxName: "me", HostName: "example.com"},
				},
			},
		}

		got := a.convertMessage(msg, folder)

		if got.ProviderMessageID != "<abc@mail.example.com>" {
			t.Errorf("id = %q", got.ProviderMessageID)
		}
		if got.Subject != "Weekly digest" {
			t.Errorf("subject = %q", got.Subject)
		}
		if got.FromName != "News Bot" || got.FromEmail != "news@example.com" {
			t.Errorf("from = %q <%s>", got.FromName, got.FromEmail)
		}
		if len(got.ToEmails) != 1 || got.ToEmails[0] != "me@example.com" {
			t.Errorf("to = %v", got.ToEmails)
		}
		if !got.IsRead || !got.IsStarred {
			t.Errorf("flags read=%v starred=%v, want both true", got.IsRead, got.IsStarred)
		}
		// Envelope Date가 internal date보다 우선
		if !got.SentAt.Equal(sent) {
			t.Errorf("sent at = %v, want %v", got.SentAt, sent)
		}
	})

	t.Run("missing message id falls back to uid", func(t *testing.T) {
		msg := &imap.Message{
			Uid:      7,
			Envelope: &imap.Envelope{Subject: "no id"},
		}

		got := a.convertMessage(msg, folder)
		if got.ProviderMessageID != "INBOX:7" {
			t.Errorf("id = %q, want INBOX:7", got.ProviderMessageID)
		}
	})

	t.Run("no envelope", func(t *testing.T) {
		internal := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		got := a.convertMessage(&imap.Message{Uid: 9, InternalDate: internal}, folder)

		if got.ProviderMessageID != "INBOX:9" {
			t.Errorf("id = %q", got.ProviderMessageID)
		}
		if got.IsRead {
			t.Error("no Seen flag should mean unread")
		}
		if !got.SentAt.Equal(internal) {
			t.Errorf("sent at = %v, want internal date", got.SentAt)
		}
	})
}

func TestHasAttr(t *testing.T) {
	attrs := []string{imap.NoSelectAttr, "\\HasChildren"}
	if !hasAttr(attrs, imap.NoSelectAttr) {
		t.Error("NoSelect attr not detected")
	}
	if !hasAttr(attrs, "\\noselect") {
		t.Error("attr match should be case-insensitive")
	}
	if hasAttr(attrs, "\\Drafts") {
		t.Error("unexpected attr match")
	}
}
