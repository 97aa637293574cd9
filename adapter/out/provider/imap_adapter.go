package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// IMAP Adapter - 커서 없음, window 기반
// =============================================================================

const (
	// imapRecentWindow - 자동 트리거 시 가져오는 최근 메시지 수
	imapRecentWindow = 50
	// imapPageSize - 전체 fetch 시 시퀀스 페이지 크기
	imapPageSize = 100
)

// IMAPAdapter implements out.MailProviderPort over plain IMAP. There is no
// server-side cursor: initial and manual syncs walk the whole folder, auto
// syncs fetch a bounded window of the most recent messages.
type IMAPAdapter struct{}

// NewIMAPAdapter creates a new IMAP adapter.
func NewIMAPAdapter() *IMAPAdapter {
	return &IMAPAdapter{}
}

// CursorScope - IMAP은 resume 커서가 없다.
func (a *IMAPAdapter) CursorScope() out.CursorScope {
	return out.CursorScopeNone
}

// connect dials and authenticates. The caller must Logout.
func (a *IMAPAdapter) connect(cred *out.Credential) (*client.Client, error) {
	if cred.IMAPHost == "" || cred.IMAPPort == 0 {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrConfig, "IMAP host not configured", nil, false)
	}

	addr := fmt.Sprintf("%s:%d", cred.IMAPHost, cred.IMAPPort)
	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: cred.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrNetwork, "failed to connect to IMAP server", err, true)
	}

	if err := cl.Login(cred.IMAPUsername, cred.IMAPPassword); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrAuth, "IMAP login failed", err, false)
	}
	return cl, nil
}

// =============================================================================
// ListFolders
// =============================================================================

func (a *IMAPAdapter) ListFolders(ctx context.Context, cred *out.Credential, account *domain.Account) ([]*out.ProviderFolder, error) {
	cl, err := a.connect(cred)
	if err != nil {
		return nil, err
	}
	defer cl.Logout() //nolint:errcheck

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.List("", "*", mailboxes)
	}()

	var folders []*out.ProviderFolder
	for m := range mailboxes {
		if hasAttr(m.Attributes, imap.NoSelectAttr) {
			continue
		}
		folders = append(folders, &out.ProviderFolder{
			// IMAP은 폴더 경로가 곧 식별자
			ProviderFolderID: m.Name,
			Name:             m.Name,
		})
	}

	if err := <-done; err != nil {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrServer, "failed to list folders", err, true)
	}
	return folders, nil
}

func hasAttr(attrs []string, attr string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

// =============================================================================
// SyncFolder
// =============================================================================

// SyncFolder walks the selected mailbox by sequence number. The page marker
// encodes the next sequence to fetch; auto-triggered syncs clamp the range
// to the most recent imapRecentWindow messages.
func (a *IMAPAdapter) SyncFolder(ctx context.Context, cred *out.Credential, req *out.SyncFolderRequest) (*out.SyncFolderResult, error) {
	if req.Folder == nil {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrInvalidInput, "folder required", nil, false)
	}

	cl, err := a.connect(cred)
	if err != nil {
		return nil, err
	}
	defer cl.Logout() //nolint:errcheck

	mbox, err := cl.Select(req.Folder.ProviderFolderID, true)
	if err != nil {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrNotFound, "failed to select folder", err, false)
	}
	if mbox.Messages == 0 {
		return &out.SyncFolderResult{}, nil
	}

	fullFetch := req.Mode == domain.SyncModeInitial || !req.Trigger.IsAuto()

	// 범위의 하한: full fetch는 1부터, window fetch는 최근 N개만
	low := uint32(1)
	if !fullFetch && mbox.Messages > imapRecentWindow {
		low = mbox.Messages - imapRecentWindow + 1
	}

	start := low
	if req.PageMarker != "" {
		marker, err := strconv.ParseUint(req.PageMarker, 10, 32)
		if err != nil {
			return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrInvalidInput, "bad page marker", err, false)
		}
		start = uint32(marker)
	}

	pageSize := uint32(req.MaxResults)
	if pageSize == 0 {
		pageSize = imapPageSize
	}
	end := start + pageSize - 1
	if end > mbox.Messages {
		end = mbox.Messages
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(start, end)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid}
	imapMessages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.Fetch(seqSet, items, imapMessages)
	}()

	var messages []*out.ProviderMessage
	for msg := range imapMessages {
		messages = append(messages, a.convertMessage(msg, req.Folder))
	}
	if err := <-done; err != nil {
		return nil, out.NewProviderError(domain.ProviderIMAP, out.ProviderErrServer, "failed to fetch messages", err, true)
	}

	nextMarker := ""
	if end < mbox.Messages {
		nextMarker = strconv.FormatUint(uint64(end+1), 10)
	}

	logger.Debug("[IMAPAdapter.SyncFolder] %s: fetched %d-%d of %d", req.Folder.Name, start, end, mbox.Messages)
	return &out.SyncFolderResult{
		Messages:       messages,
		NextPageMarker: nextMarker,
	}, nil
}

func (a *IMAPAdapter) convertMessage(msg *imap.Message, folder *domain.Folder) *out.ProviderMessage {
	result := &out.ProviderMessage{
		IsRead:    hasFlag(msg.Flags, imap.SeenFlag),
		IsStarred: hasFlag(msg.Flags, imap.FlaggedFlag),
		SentAt:    msg.InternalDate,
	}

	if msg.Envelope != nil {
		result.Subject = msg.Envelope.Subject
		result.ProviderMessageID = msg.Envelope.MessageId
		if !msg.Envelope.Date.IsZero() {
			result.SentAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			result.FromName = addr.PersonalName
			result.FromEmail = addr.Address()
		}
		for _, to := range msg.Envelope.To {
			result.ToEmails = append(result.ToEmails, to.Address())
		}
		for _, cc := range msg.Envelope.Cc {
			result.CcEmails = append(result.CcEmails, cc.Address())
		}
	}

	// Message-ID 없는 메일은 UID로 식별 (폴더 안에서만 유일)
	if result.ProviderMessageID == "" {
		result.ProviderMessageID = fmt.Sprintf("%s:%d", folder.ProviderFolderID, msg.Uid)
	}
	return result
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailProviderPort = (*IMAPAdapter)(nil)
