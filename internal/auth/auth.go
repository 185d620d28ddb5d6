// Package auth manages the Google OAuth session that authorizes Gmail
// access. The token is persisted to a file and a session ages out after
// a configurable maximum, independent of token validity.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	gmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"
	emailScope         = "https://www.googleapis.com/auth/userinfo.email"
)

// DefaultSessionMaxAge is how long a login stays valid before the user
// must re-authenticate, regardless of token refreshability.
const DefaultSessionMaxAge = 24 * time.Hour

// Status reports the current session.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
}

// Service is the session contract consumed by the pipeline gate and
// the commands.
type Service interface {
	Status(ctx context.Context) (Status, error)
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) error
	Logout(ctx context.Context) error
	HTTPClient(ctx context.Context) (*http.Client, error)
}

// storedSession is the on-disk token file shape.
type storedSession struct {
	Token   *oauth2.Token `json:"token"`
	Email   string        `json:"email,omitempty"`
	SavedAt time.Time     `json:"saved_at"`
}

// Manager implements Service over golang.org/x/oauth2 with a
// file-persisted token.
type Manager struct {
	oauth  oauth2.Config
	path   string
	maxAge time.Duration

	mu sync.Mutex
}

// Option configures the Manager.
type Option func(*Manager)

// WithEndpoint overrides the OAuth endpoint (tests).
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(m *Manager) { m.oauth.Endpoint = ep }
}

// WithSessionMaxAge overrides the session expiry window.
func WithSessionMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// NewManager builds a Manager persisting its token to tokenFile.
func NewManager(clientID, clientSecret, redirectURL, tokenFile string, opts ...Option) *Manager {
	m := &Manager{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{gmailReadonlyScope, emailScope},
			Endpoint:     google.Endpoint,
		},
		path:   tokenFile,
		maxAge: DefaultSessionMaxAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status reports whether a usable session exists. A missing token file
// is an unauthenticated state, not an error.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	sess, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return Status{}, nil
		}
		return Status{}, eris.Wrap(err, "auth: load session")
	}

	expires := sess.SavedAt.Add(m.maxAge)
	if time.Now().After(expires) {
		return Status{}, nil
	}
	if sess.Token == nil || (sess.Token.RefreshToken == "" && !sess.Token.Valid()) {
		return Status{}, nil
	}
	return Status{Authenticated: true, Email: sess.Email, ExpiresAt: expires}, nil
}

// LoginURL returns the Google consent URL for the given CSRF state.
func (m *Manager) LoginURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades the authorization code for a token and persists it,
// starting a fresh session window.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return eris.Wrap(err, "auth: exchange code")
	}
	if err := m.save(storedSession{Token: tok, SavedAt: time.Now().UTC()}); err != nil {
		return err
	}
	zap.L().Info("auth: session established")
	return nil
}

// Logout removes the persisted token. Idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "auth: remove token file")
	}
	return nil
}

// SetEmail records the mailbox owner on the stored session. Called
// after login once the Gmail profile is known.
func (m *Manager) SetEmail(email string) error {
	sess, err := m.load()
	if err != nil {
		return eris.Wrap(err, "auth: load session")
	}
	sess.Email = email
	return m.save(sess)
}

// HTTPClient returns an authorized client that transparently refreshes
// the access token, persisting refreshed tokens back to the file.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	sess, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.New("auth: not logged in")
		}
		return nil, eris.Wrap(err, "auth: load session")
	}
	src := &persistingSource{
		mgr:  m,
		src:  m.oauth.TokenSource(ctx, sess.Token),
		last: sess.Token.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}

// persistingSource saves refreshed tokens so the next process start
// does not need a re-login. The session window (SavedAt) is unchanged
// by refreshes.
type persistingSource struct {
	mgr  *Manager
	src  oauth2.TokenSource
	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		sess, loadErr := s.mgr.load()
		if loadErr == nil {
			sess.Token = tok
			if saveErr := s.mgr.save(sess); saveErr != nil {
				zap.L().Warn("auth: persist refreshed token failed", zap.Error(saveErr))
			}
		}
	}
	return tok, nil
}

func (m *Manager) load() (storedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return storedSession{}, err
	}
	var sess storedSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return storedSession{}, eris.Wrap(err, "auth: decode token file")
	}
	return sess, nil
}

func (m *Manager) save(sess storedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return eris.Wrap(err, "auth: encode session")
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return eris.Wrap(err, "auth: create token dir")
		}
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return eris.Wrap(err, "auth: write token file")
	}
	return nil
}
