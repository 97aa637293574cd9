package credential

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// refreshSkew - 이 시간 안에 만료될 토큰은 미리 갱신한다
const refreshSkew = 5 * time.Minute

// =============================================================================
// CredentialAdapter
// =============================================================================

// CredentialAdapter hands out usable credentials per account. OAuth tokens are
// stored in mail_credentials and refreshed when near expiry; refreshed tokens
// are written back so the next run skips the refresh round trip.
type CredentialAdapter struct {
	db           *sqlx.DB
	googleConfig *oauth2.Config
	msConfig     *oauth2.Config
}

func NewCredentialAdapter(db *sqlx.DB, googleClientID, googleClientSecret, msClientID, msClientSecret, msTenant string) *CredentialAdapter {
	a := &CredentialAdapter{db: db}
	if googleClientID != "" {
		a.googleConfig = &oauth2.Config{
			ClientID:     googleClientID,
			ClientSecret: googleClientSecret,
			Endpoint:     google.Endpoint,
		}
	}
	if msClientID != "" {
		if msTenant == "" {
			msTenant = "common"
		}
		a.msConfig = &oauth2.Config{
			ClientID:     msClientID,
			ClientSecret: msClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(msTenant),
		}
	}
	return a
}

type credentialEntity struct {
	AccountID    int64          `db:"account_id"`
	AccessToken  sql.NullString `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
	IMAPPassword sql.NullString `db:"imap_password"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (a *CredentialAdapter) GetValidCredential(ctx context.Context, account *domain.Account) (*out.Credential, error) {
	var entity credentialEntity
	err := a.db.GetContext(ctx, &entity, `
		SELECT account_id, access_token, refresh_token, expires_at, imap_password, updated_at
		FROM mail_credentials WHERE account_id = $1`, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for account %d: %w", account.ID, err)
	}

	if account.Provider == domain.ProviderIMAP {
		if !entity.IMAPPassword.Valid || entity.IMAPPassword.String == "" {
			return nil, out.ErrNeedsReconnection
		}
		return &out.Credential{
			IMAPHost:     account.IMAPHost,
			IMAPPort:     account.IMAPPort,
			IMAPUsername: account.IMAPUsername,
			IMAPPassword: entity.IMAPPassword.String,
		}, nil
	}

	cred := &out.Credential{
		AccessToken:  entity.AccessToken.String,
		RefreshToken: entity.RefreshToken.String,
	}
	if entity.ExpiresAt.Valid {
		cred.Expiry = entity.ExpiresAt.Time
	}

	if time.Until(cred.Expiry) >= refreshSkew {
		return cred, nil
	}

	refreshed, err := a.refresh(ctx, account, cred)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (a *CredentialAdapter) refresh(ctx context.Context, account *domain.Account, cred *out.Credential) (*out.Credential, error) {
	config, err := a.configFor(account.Provider)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, out.ErrNeedsReconnection
	}

	source := config.TokenSource(ctx, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	})
	token, err := source.Token()
	if err != nil {
		if isRevokedGrant(err) {
			logger.Warn("[CredentialAdapter.refresh] Grant revoked for account %d: %v", account.ID, err)
			return nil, out.ErrNeedsReconnection
		}
		return nil, fmt.Errorf("failed to refresh token for account %d: %w", account.ID, err)
	}

	// 일부 프로바이더는 refresh 때 새 refresh token을 내려준다
	refreshToken := cred.RefreshToken
	if token.RefreshToken != "" {
		refreshToken = token.RefreshToken
	}
	_, err = a.db.ExecContext(ctx, `
		UPDATE mail_credentials
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()
		WHERE account_id = $1`,
		account.ID, token.AccessToken, refreshToken, token.Expiry)
	if err != nil {
		logger.Error("[CredentialAdapter.refresh] Failed to persist refreshed token for account %d: %v", account.ID, err)
	}

	return &out.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       token.Expiry,
	}, nil
}

func (a *CredentialAdapter) configFor(provider domain.Provider) (*oauth2.Config, error) {
	switch provider {
	case domain.ProviderGmail:
		if a.googleConfig == nil {
			return nil, domain.NewConfigurationError("google oauth not configured")
		}
		return a.googleConfig, nil
	case domain.ProviderOutlook:
		if a.msConfig == nil {
			return nil, domain.NewConfigurationError("microsoft oauth not configured")
		}
		return a.msConfig, nil
	}
	return nil, domain.NewConfigurationError(fmt.Sprintf("no oauth config for provider %s", provider))
}

// isRevokedGrant checks the refresh failure means the grant is permanently
// invalid, as opposed to a transient network or server error.
func isRevokedGrant(err error) bool {
	s := err.Error()
	return strings.Contains(s, "invalid_grant") ||
		strings.Contains(s, "invalid_client") ||
		strings.Contains(s, "Token has been expired or revoked") ||
		strings.Contains(s, "Token has been revoked")
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.CredentialPort = (*CredentialAdapter)(nil)
