package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	return NewManager("client-id", "client-secret", "http://localhost:8089/oauth2/callback", path, opts...), path
}

func writeSession(t *testing.T, path string, sess storedSession) {
	t.Helper()
	data, err := json.Marshal(sess)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func freshToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

// fakeTokenEndpoint serves the OAuth token exchange.
func fakeTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "exchanged-access",
			"refresh_token": "exchanged-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus_NoTokenFile(t *testing.T) {
	m, _ := newTestManager(t)

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
}

func TestExchange_PersistsSession(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	m, path := newTestManager(t, WithEndpoint(oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}))

	require.NoError(t, m.Exchange(context.Background(), "auth-code"))

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.False(t, status.ExpiresAt.IsZero())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStatus_SessionAgedOut(t *testing.T) {
	m, path := newTestManager(t)
	writeSession(t, path, storedSession{
		Token:   freshToken(),
		SavedAt: time.Now().Add(-25 * time.Hour),
	})

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated, "session older than 24h must require re-login")
}

func TestStatus_CustomMaxAge(t *testing.T) {
	m, path := newTestManager(t, WithSessionMaxAge(time.Minute))
	writeSession(t, path, storedSession{
		Token:   freshToken(),
		SavedAt: time.Now().Add(-2 * time.Minute),
	})

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
}

func TestStatus_ExpiredTokenWithoutRefresh(t *testing.T) {
	m, path := newTestManager(t)
	tok := freshToken()
	tok.RefreshToken = ""
	tok.Expiry = time.Now().Add(-time.Hour)
	writeSession(t, path, storedSession{Token: tok, SavedAt: time.Now()})

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
}

func TestStatus_ExpiredTokenWithRefreshStaysAuthenticated(t *testing.T) {
	m, path := newTestManager(t)
	tok := freshToken()
	tok.Expiry = time.Now().Add(-time.Hour)
	writeSession(t, path, storedSession{Token: tok, Email: "me@corp.com", SavedAt: time.Now()})

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "me@corp.com", status.Email)
}

func TestLoginURL(t *testing.T) {
	m, _ := newTestManager(t)

	url := m.LoginURL("csrf-state")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=csrf-state")
	assert.Contains(t, url, "gmail.readonly")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
}

func TestLogout_Idempotent(t *testing.T) {
	m, path := newTestManager(t)
	writeSession(t, path, storedSession{Token: freshToken(), SavedAt: time.Now()})

	require.NoError(t, m.Logout(context.Background()))
	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)

	// Second logout with no token file is fine.
	require.NoError(t, m.Logout(context.Background()))
}

func TestSetEmail(t *testing.T) {
	m, path := newTestManager(t)
	writeSession(t, path, storedSession{Token: freshToken(), SavedAt: time.Now()})

	require.NoError(t, m.SetEmail("owner@corp.com"))

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner@corp.com", status.Email)
}

func TestHTTPClient_NotLoggedIn(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.HTTPClient(context.Background())
	assert.Error(t, err)
}

func TestHTTPClient_PersistsRefreshedToken(t *testing.T) {
	srv := fakeTokenEndpoint(t)
	m, path := newTestManager(t, WithEndpoint(oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}))

	// Stored token is expired but refreshable: first use refreshes it.
	tok := freshToken()
	tok.Expiry = time.Now().Add(-time.Hour)
	writeSession(t, path, storedSession{Token: tok, SavedAt: time.Now()})

	client, err := m.HTTPClient(context.Background())
	require.NoError(t, err)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer exchanged-access", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	sess, err := m.load()
	require.NoError(t, err)
	assert.Equal(t, "exchanged-access", sess.Token.AccessToken)
}
