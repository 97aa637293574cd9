// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Adapter - 계정 단위 page token sweep
// =============================================================================

const (
	// initialSyncMonths - 최초 동기화 기간
	initialSyncMonths = 3
	// incrementalSyncDays - 커서 없이 시작하는 증분 동기화 윈도우
	incrementalSyncDays = 7

	gmailMaxConcurrency    = 10
	gmailPerMessageTimeout = 15 * time.Second
)

// gmailMetadataHeaders - 메타데이터 조회 시 요청할 헤더
var gmailMetadataHeaders = []string{
	"From", "To", "Cc", "Subject", "Date", "Message-ID",
}

// GmailAdapter implements out.MailProviderPort for Gmail.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
}

// GmailConfig holds Gmail OAuth configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,                // Half-open 상태에서 허용할 요청 수
		Interval:    60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:     30 * time.Second, // Open 상태 유지 시간 (이후 Half-open)
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 또는 60% 이상 실패율 (최소 10회 요청)
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// CursorScope - Gmail은 계정 단위 page token 하나로 sweep한다.
func (a *GmailAdapter) CursorScope() out.CursorScope {
	return out.CursorScopeAccount
}

func (a *GmailAdapter) getService(ctx context.Context, cred *out.Credential) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	return gmail.NewService(ctx, option.WithTokenSource(
		a.config.TokenSource(ctx, token),
	))
}

// =============================================================================
// ListFolders - 라벨을 폴더로 노출
// =============================================================================

func (a *GmailAdapter) ListFolders(ctx context.Context, cred *out.Credential, account *domain.Account) ([]*out.ProviderFolder, error) {
	svc, err := a.getService(ctx, cred)
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}

	resp, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Users.Labels.List("me").Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list labels")
	}

	labels := resp.(*gmail.ListLabelsResponse)
	folders := make([]*out.ProviderFolder, 0, len(labels.Labels))
	for _, label := range labels.Labels {
		// 표시용이 아닌 내부 라벨은 건너뛴다
		if label.Id == "UNREAD" || label.Id == "CHAT" ||
			strings.HasPrefix(label.Id, "CATEGORY_") {
			continue
		}
		folders = append(folders, &out.ProviderFolder{
			ProviderFolderID: label.Id,
			Name:             labelDisplayName(label),
		})
	}
	return folders, nil
}

// labelDisplayName - 시스템 라벨 ID를 사람이 읽는 이름으로
func labelDisplayName(label *gmail.Label) string {
	if label.Type != "system" {
		return label.Name
	}
	switch label.Id {
	case "INBOX":
		return "Inbox"
	case "SENT":
		return "Sent Mail"
	case "DRAFT":
		return "Drafts"
	case "TRASH":
		return "Trash"
	case "SPAM":
		return "Spam"
	case "STARRED":
		return "Starred"
	case "IMPORTANT":
		return "Important"
	}
	return label.Name
}

// =============================================================================
// SyncFolder - page token sweep (폴더 인자는 무시, 라벨에서 폴더 유도)
// =============================================================================

func (a *GmailAdapter) SyncFolder(ctx context.Context, cred *out.Credential, req *out.SyncFolderRequest) (*out.SyncFolderResult, error) {
	svc, err := a.getService(ctx, cred)
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}

	maxResults := int64(req.MaxResults)
	if maxResults <= 0 {
		maxResults = 100
	}

	listReq := svc.Users.Messages.List("me").MaxResults(maxResults)

	// 재개 지점: 같은 런이면 PageMarker, 새 런이면 저장된 커서
	pageToken := req.PageMarker
	if pageToken == "" {
		pageToken = req.Cursor
	}
	if pageToken != "" {
		listReq = listReq.PageToken(pageToken)
	} else {
		// 커서 없는 sweep 시작은 날짜 윈도우로 제한
		window := incrementalSyncDays * 24 * time.Hour
		if req.Mode == domain.SyncModeInitial {
			window = initialSyncMonths * 30 * 24 * time.Hour
		}
		listReq = listReq.Q(fmt.Sprintf("after:%s", time.Now().Add(-window).Format("2006/01/02")))
	}

	resp, err := listReq.Context(ctx).Do()
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}

	messages, err := a.fetchMessagesParallel(ctx, svc, resp.Messages)
	if err != nil {
		return nil, err
	}

	// NextPageToken이 비면 sweep 종료, 커서도 함께 비워진다
	return &out.SyncFolderResult{
		Messages:       messages,
		NewCursor:      resp.NextPageToken,
		NextPageMarker: resp.NextPageToken,
	}, nil
}

// fetchMessagesParallel fetches message metadata with bounded concurrency.
// list와 get 사이에 삭제된 메시지(404)만 건너뛴다. 그 외의 실패는 페이지
// 전체를 실패시킨다: 커서가 못 가져온 메시지를 지나쳐 전진하면 안 된다.
func (a *GmailAdapter) fetchMessagesParallel(ctx context.Context, svc *gmail.Service, msgRefs []*gmail.Message) ([]*out.ProviderMessage, error) {
	if len(msgRefs) == 0 {
		return nil, nil
	}

	type result struct {
		index int
		msg   *out.ProviderMessage
		err   error
	}

	results := make(chan result, len(msgRefs))
	sem := make(chan struct{}, gmailMaxConcurrency)

	for i, msgRef := range msgRefs {
		go func(idx int, id string) {
			// 세마포어 획득 (context 취소 시 빠른 종료)
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, gmailPerMessageTimeout)
			defer cancel()

			metaMsg, err := svc.Users.Messages.Get("me", id).
				Format("metadata").
				MetadataHeaders(gmailMetadataHeaders...).
				Context(msgCtx).Do()
			if err != nil {
				results <- result{index: idx, err: err}
				return
			}
			results <- result{index: idx, msg: a.convertMessage(metaMsg)}
		}(i, msgRef.Id)
	}

	messages := make([]*out.ProviderMessage, len(msgRefs))
	var fetchErr error
	collected := 0
	for collected < len(msgRefs) {
		select {
		case r := <-results:
			collected++
			switch {
			case r.err == nil:
				messages[r.index] = r.msg
			case isMessageGone(r.err):
				logger.Warn("[GmailAdapter.fetchMessagesParallel] message deleted between list and get, skipping: %v", r.err)
			default:
				if fetchErr == nil {
					fetchErr = r.err
				}
			}
		case <-ctx.Done():
			if fetchErr == nil {
				fetchErr = ctx.Err()
			}
			collected = len(msgRefs)
		}
	}

	if fetchErr != nil {
		return nil, a.wrapError(fetchErr, "failed to fetch message metadata")
	}

	// 삭제된 메시지는 제외하고 순서 유지
	filtered := make([]*out.ProviderMessage, 0, len(messages))
	for _, msg := range messages {
		if msg != nil {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}

// isMessageGone - 메시지 단위 404는 커서 무효(SyncRequired)가 아니라 삭제다.
func isMessageGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}

// convertMessage maps a Gmail message into the port shape. The canonical
// folder comes from label IDs; exclusive labels win over INBOX.
func (a *GmailAdapter) convertMessage(msg *gmail.Message) *out.ProviderMessage {
	result := &out.ProviderMessage{
		ProviderMessageID: msg.Id,
		ThreadID:          msg.ThreadId,
		Snippet:           msg.Snippet,
		Folder:            folderFromLabels(msg.LabelIds),
		IsRead:            !hasLabel(msg.LabelIds, "UNREAD"),
		IsStarred:         hasLabel(msg.LabelIds, "STARRED"),
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				result.FromName, result.FromEmail = parseAddress(h.Value)
			case "To":
				result.ToEmails = parseAddressList(h.Value)
			case "Cc":
				result.CcEmails = parseAddressList(h.Value)
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					result.SentAt = t
				}
			}
		}
	}
	if result.SentAt.IsZero() && msg.InternalDate > 0 {
		result.SentAt = time.UnixMilli(msg.InternalDate)
	}
	return result
}

// folderFromLabels - 라벨 ID에서 canonical 폴더 유도
func folderFromLabels(labelIDs []string) domain.CanonicalFolder {
	switch {
	case hasLabel(labelIDs, "TRASH"):
		return domain.FolderTrash
	case hasLabel(labelIDs, "SPAM"):
		return domain.FolderSpam
	case hasLabel(labelIDs, "DRAFT"):
		return domain.FolderDrafts
	case hasLabel(labelIDs, "SENT"):
		return domain.FolderSent
	case hasLabel(labelIDs, "INBOX"):
		return domain.FolderInbox
	case hasLabel(labelIDs, "STARRED"):
		return domain.FolderStarred
	case hasLabel(labelIDs, "IMPORTANT"):
		return domain.FolderImportant
	}
	return domain.FolderAllMail
}

func hasLabel(labelIDs []string, id string) bool {
	for _, l := range labelIDs {
		if l == id {
			return true
		}
	}
	return false
}

func parseAddress(value string) (name, email string) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", strings.TrimSpace(value)
	}
	return addr.Name, addr.Address
}

func parseAddressList(value string) []string {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return nil
	}
	emails := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		emails = append(emails, addr.Address)
	}
	return emails
}

// =============================================================================
// Error mapping
// =============================================================================

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(domain.ProviderGmail, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrSyncRequired, "Cursor no longer valid", err, false)
		case 429:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError(domain.ProviderGmail, out.ProviderErrNetwork, defaultMsg, err, true)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailProviderPort = (*GmailAdapter)(nil)
