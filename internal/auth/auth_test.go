package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"copilot-chat/internal/config"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestOAuthConfig(t *testing.T) {
	conf := OAuthConfig("", "contoso", "client-1")

	assert.Equal(t, "client-1", conf.ClientID)
	assert.Equal(t, []string{Scope, "offline_access"}, conf.Scopes)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", conf.Endpoint.TokenURL)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/devicecode", conf.Endpoint.DeviceAuthURL)
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{
		"name": "Ada Lovelace",
		"upn":  "ada@contoso.com",
		"tid":  "tenant-1",
		"exp":  exp.Unix(),
	})

	id, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", id.Name)
	assert.Equal(t, "ada@contoso.com", id.Username)
	assert.Equal(t, "tenant-1", id.TenantID)
	assert.True(t, id.Expiry.Equal(exp), "expiry = %v, want %v", id.Expiry, exp)

	_, err = Inspect("not-a-jwt")
	assert.Error(t, err)
	_, err = Inspect("")
	assert.Error(t, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestDeviceLogin(t *testing.T) {
	access := signed(t, jwt.MapClaims{"preferred_username": "ada@contoso.com"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/tenant-1/oauth2/v2.0/devicecode":
			assert.Equal(t, "client-1", r.Form.Get("client_id"))
			writeJSON(w, map[string]any{
				"device_code":      "dev-code",
				"user_code":        "ABCD-1234",
				"verification_uri": "https://microsoft.com/devicelogin",
				"expires_in":       900,
				"interval":         1,
			})
		case "/tenant-1/oauth2/v2.0/token":
			assert.Equal(t, "dev-code", r.Form.Get("device_code"))
			writeJSON(w, map[string]any{
				"access_token":  access,
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var shown *oauth2.DeviceAuthResponse
	tok, err := DeviceLogin(context.Background(), OAuthConfig(srv.URL, "tenant-1", "client-1"),
		func(da *oauth2.DeviceAuthResponse) { shown = da })
	require.NoError(t, err)

	require.NotNil(t, shown)
	assert.Equal(t, "ABCD-1234", shown.UserCode)
	assert.Equal(t, "https://microsoft.com/devicelogin", shown.VerificationURI)
	assert.Equal(t, access, tok.AccessToken)

	var cfg config.Config
	Store(&cfg, tok)
	assert.Equal(t, "ada@contoso.com", cfg.Username)
	assert.Equal(t, "refresh-1", cfg.RefreshToken)
	assert.False(t, cfg.Expiry().IsZero())
}

func TestTokenSource_RefreshesAndPersists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	refreshed := signed(t, jwt.MapClaims{"upn": "ada@contoso.com"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		writeJSON(w, map[string]any{
			"access_token":  refreshed,
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	cfg := &config.Config{
		TenantID:    "tenant-1",
		AppClientID: "client-1",
		Authority:   srv.URL,
	}
	cfg.SetToken("stale", "old-refresh", time.Now().Add(-time.Hour))

	ts := TokenSource(context.Background(), cfg, nil)
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, refreshed, tok.AccessToken)
	assert.Equal(t, refreshed, cfg.Token)
	assert.Equal(t, "new-refresh", cfg.RefreshToken)

	loaded, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, refreshed, loaded.Token)
}

func TestTokenSource_ValidTokenUnchanged(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &config.Config{TenantID: "t", AppClientID: "c", Authority: "http://127.0.0.1:0"}
	cfg.SetToken("still-good", "", time.Now().Add(time.Hour))

	tok, err := TokenSource(context.Background(), cfg, nil).Token()
	require.NoError(t, err)
	assert.Equal(t, "still-good", tok.AccessToken)
}
