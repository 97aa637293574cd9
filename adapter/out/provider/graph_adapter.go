package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// =============================================================================
// Graph Adapter - 폴더 단위 delta link
// =============================================================================

// excludedGraphFolders - 메일이 아닌 시스템 폴더, 이름으로 제외
var excludedGraphFolders = map[string]bool{
	"conversation history": true,
	"sync issues":          true,
	"conflicts":            true,
	"local failures":       true,
	"server failures":      true,
	"journal":              true,
	"notes":                true,
	"rss feeds":            true,
	"quick step settings":  true,
}

// GraphAdapter implements out.MailProviderPort for Microsoft Graph (Outlook).
type GraphAdapter struct {
	config *oauth2.Config
}

// GraphConfig holds Microsoft OAuth configuration.
type GraphConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TenantID     string
}

// NewGraphAdapter creates a new Graph adapter.
func NewGraphAdapter(cfg *GraphConfig) *GraphAdapter {
	tenantID := cfg.TenantID
	if tenantID == "" {
		tenantID = "common"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			"https://graph.microsoft.com/Mail.Read",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		},
		Endpoint: microsoft.AzureADEndpoint(tenantID),
	}

	return &GraphAdapter{config: config}
}

// CursorScope - delta link는 폴더마다 하나씩 유지된다.
func (a *GraphAdapter) CursorScope() out.CursorScope {
	return out.CursorScopeFolder
}

func (a *GraphAdapter) httpClient(ctx context.Context, cred *out.Credential) *http.Client {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	return a.config.Client(ctx, token)
}

// =============================================================================
// ListFolders
// =============================================================================

func (a *GraphAdapter) ListFolders(ctx context.Context, cred *out.Credential, account *domain.Account) ([]*out.ProviderFolder, error) {
	client := a.httpClient(ctx, cred)

	var folders []*out.ProviderFolder
	nextLink := graphBaseURL + "/me/mailFolders?$top=100&$select=id,displayName"

	for nextLink != "" {
		var resp struct {
			Value []struct {
				ID          string `json:"id"`
				DisplayName string `json:"displayName"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := a.doGet(client, nextLink, &resp); err != nil {
			return nil, err
		}

		for _, f := range resp.Value {
			if excludedGraphFolders[strings.ToLower(f.DisplayName)] {
				continue
			}
			folders = append(folders, &out.ProviderFolder{
				ProviderFolderID: f.ID,
				Name:             f.DisplayName,
			})
		}
		nextLink = resp.NextLink
	}

	return folders, nil
}

// =============================================================================
// SyncFolder - delta 페이지 하나씩
// =============================================================================

// SyncFolder fetches one delta page. The runner drives pagination with
// NextPageMarker and persists NewCursor; the deltaLink only appears on the
// final page, so it can never be persisted mid-pagination.
func (a *GraphAdapter) SyncFolder(ctx context.Context, cred *out.Credential, req *out.SyncFolderRequest) (*out.SyncFolderResult, error) {
	if req.Folder == nil {
		return nil, out.NewProviderError(domain.ProviderOutlook, out.ProviderErrInvalidInput, "folder required for delta sync", nil, false)
	}

	client := a.httpClient(ctx, cred)

	// 재개 우선순위: 같은 런의 nextLink > 저장된 deltaLink > delta init
	link := req.PageMarker
	if link == "" {
		link = req.Cursor
	}
	if link == "" {
		top := req.MaxResults
		if top <= 0 {
			top = 100
		}
		params := url.Values{}
		params.Set("$top", fmt.Sprintf("%d", top))
		params.Set("$select", "id,conversationId,subject,bodyPreview,from,toRecipients,ccRecipients,isRead,flag,receivedDateTime")
		link = fmt.Sprintf("%s/me/mailFolders/%s/messages/delta?%s", graphBaseURL, url.PathEscape(req.Folder.ProviderFolderID), params.Encode())
	}

	var resp struct {
		Value     []graphMessage `json:"value"`
		NextLink  string         `json:"@odata.nextLink"`
		DeltaLink string         `json:"@odata.deltaLink"`
	}
	if err := a.doGet(client, link, &resp); err != nil {
		// deltaLink가 만료되면 전체 재동기화 필요
		if strings.Contains(err.Error(), "resyncRequired") || strings.Contains(err.Error(), "410") {
			return nil, out.NewProviderError(domain.ProviderOutlook, out.ProviderErrSyncRequired, "Full sync required", err, false)
		}
		return nil, err
	}

	messages := make([]*out.ProviderMessage, 0, len(resp.Value))
	for i := range resp.Value {
		msg := &resp.Value[i]
		if msg.Removed != nil {
			continue
		}
		messages = append(messages, a.convertMessage(msg))
	}

	return &out.SyncFolderResult{
		Messages:       messages,
		NewCursor:      resp.DeltaLink,
		NextPageMarker: resp.NextLink,
	}, nil
}

func (a *GraphAdapter) convertMessage(msg *graphMessage) *out.ProviderMessage {
	result := &out.ProviderMessage{
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ConversationID,
		Subject:           msg.Subject,
		Snippet:           msg.BodyPreview,
		FromName:          msg.From.EmailAddress.Name,
		FromEmail:         msg.From.EmailAddress.Address,
		IsRead:            msg.IsRead,
		IsStarred:         msg.Flag.FlagStatus == "flagged",
	}
	for _, r := range msg.ToRecipients {
		result.ToEmails = append(result.ToEmails, r.EmailAddress.Address)
	}
	for _, r := range msg.CcRecipients {
		result.CcEmails = append(result.CcEmails, r.EmailAddress.Address)
	}
	if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		result.SentAt = t
	}
	if msg.Body.Content != "" {
		if strings.EqualFold(msg.Body.ContentType, "html") {
			result.BodyHTML = msg.Body.Content
		} else {
			result.BodyText = msg.Body.Content
		}
	}
	return result
}

// =============================================================================
// HTTP helpers
// =============================================================================

func (a *GraphAdapter) doGet(client *http.Client, url string, result interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return a.wrapError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return a.wrapHTTPError(resp.StatusCode, string(body))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (a *GraphAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNetwork, defaultMsg, err, true)
}

func (a *GraphAdapter) wrapHTTPError(statusCode int, body string) error {
	switch statusCode {
	case 401:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrTokenExpired, "Token expired", nil, false)
	case 403:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrAuth, "Access denied", nil, false)
	case 404:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNotFound, "Not found", nil, false)
	case 410:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrSyncRequired, "Full sync required", nil, false)
	case 429:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrRateLimit, "Too many requests", nil, true)
	default:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrServer, fmt.Sprintf("HTTP %d: %s", statusCode, body), nil, true)
	}
}

// Graph API types

type graphMessage struct {
	ID               string            `json:"id"`
	ConversationID   string            `json:"conversationId"`
	Subject          string            `json:"subject"`
	BodyPreview      string            `json:"bodyPreview"`
	Body             graphBody         `json:"body"`
	From             graphRecipient    `json:"from"`
	ToRecipients     []graphRecipient  `json:"toRecipients"`
	CcRecipients     []graphRecipient  `json:"ccRecipients"`
	IsRead           bool              `json:"isRead"`
	Flag             graphFlag         `json:"flag"`
	ReceivedDateTime string            `json:"receivedDateTime"`
	Removed          *graphRemovedInfo `json:"@removed,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphFlag struct {
	FlagStatus string `json:"flagStatus"`
}

type graphRemovedInfo struct {
	Reason string `json:"reason"`
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailProviderPort = (*GraphAdapter)(nil)
