// Package auth signs users in to Microsoft Entra ID with the device-code
// flow and keeps the stored access token fresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"copilot-chat/internal/config"
)

// Scope grants access to the Power Platform API that fronts Copilot Studio.
const Scope = "https://api.powerplatform.com/.default"

// OAuthConfig returns the public-client config for a tenant.
func OAuthConfig(authority, tenantID, clientID string) *oauth2.Config {
	if authority == "" {
		authority = config.DefaultAuthority
	}
	base := strings.TrimRight(authority, "/") + "/" + url.PathEscape(tenantID) + "/oauth2/v2.0"
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   []string{Scope, "offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:       base + "/authorize",
			TokenURL:      base + "/token",
			DeviceAuthURL: base + "/devicecode",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// ConfigFor builds the OAuth config from app settings.
func ConfigFor(cfg *config.Config) *oauth2.Config {
	return OAuthConfig(cfg.Authority, cfg.TenantID, cfg.AppClientID)
}

// DeviceLogin runs the device-code flow. prompt is called once with the code
// the user must enter; DeviceLogin then polls until the user finishes, the
// code expires, or ctx is done.
func DeviceLogin(ctx context.Context, conf *oauth2.Config, prompt func(*oauth2.DeviceAuthResponse)) (*oauth2.Token, error) {
	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	if prompt != nil {
		prompt(da)
	}
	tok, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("waiting for sign-in: %w", err)
	}
	return tok, nil
}

// Store copies tok into cfg, along with the username from its claims.
func Store(cfg *config.Config, tok *oauth2.Token) {
	expiry := tok.Expiry
	if id, err := Inspect(tok.AccessToken); err == nil {
		if id.Username != "" {
			cfg.Username = id.Username
		}
		if expiry.IsZero() {
			expiry = id.Expiry
		}
	}
	cfg.SetToken(tok.AccessToken, tok.RefreshToken, expiry)
}

// TokenSource returns a source that refreshes the stored token when it
// expires and writes refreshed tokens back to the config file.
func TokenSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) oauth2.TokenSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	tok := &oauth2.Token{
		AccessToken:  cfg.Token,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cfg.Expiry(),
	}
	if tok.Expiry.IsZero() && tok.AccessToken != "" {
		if id, err := Inspect(tok.AccessToken); err == nil {
			tok.Expiry = id.Expiry
		}
	}
	return &persistingSource{
		src:  ConfigFor(cfg).TokenSource(ctx, tok),
		last: cfg.Token,
		save: func(t *oauth2.Token) error {
			Store(cfg, t)
			return cfg.Save()
		},
		logger: logger,
	}
}

type persistingSource struct {
	src    oauth2.TokenSource
	save   func(*oauth2.Token) error
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token (try: copilot-chat login): %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.save(tok); err != nil {
			p.logger.Warn("could not persist refreshed token", zap.Error(err))
		} else {
			p.logger.Debug("access token refreshed", zap.Time("expiry", tok.Expiry))
		}
	}
	return tok, nil
}

// ─── Token inspection ───

// Identity is what we read from an access token's claims.
type Identity struct {
	Name     string
	Username string
	TenantID string
	Expiry   time.Time
}

// Inspect decodes an access token without verifying its signature. The
// token is only ever sent back to the service that issued it; this is for
// display and expiry bookkeeping.
func Inspect(accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, errors.New("empty access token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	id := &Identity{
		Name:     claimString(claims, "name"),
		Username: claimString(claims, "preferred_username", "upn", "unique_name", "email"),
		TenantID: claimString(claims, "tid"),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.Expiry = exp.Time
	}
	return id, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
