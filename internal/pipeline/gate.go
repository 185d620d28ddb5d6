package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultAuthTTL is how long a positive auth check stays cached before
// the gate re-verifies against the auth service.
const DefaultAuthTTL = 30 * time.Second

// SessionGate fronts every pipeline transition with an authenticated-
// session check. Positive results are cached for a TTL so a burst of
// transitions costs one status call, not one per transition.
type SessionGate struct {
	auth AuthService
	ttl  time.Duration

	mu            sync.Mutex
	authenticated bool
	checkedAt     time.Time
}

// NewSessionGate builds a gate over the auth service. A non-positive
// ttl falls back to DefaultAuthTTL.
func NewSessionGate(auth AuthService, ttl time.Duration) *SessionGate {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return &SessionGate{auth: auth, ttl: ttl}
}

// Check returns nil when the session is authenticated, refreshing the
// cached flag via the auth service once the TTL lapses. Any other
// outcome, including a status-call failure, yields *AuthRequiredError.
func (g *SessionGate) Check(ctx context.Context) error {
	g.mu.Lock()
	if g.authenticated && time.Since(g.checkedAt) < g.ttl {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	status, err := g.auth.Status(ctx)
	if err != nil {
		zap.L().Warn("gate: auth status check failed", zap.Error(err))
		g.set(false)
		return &AuthRequiredError{}
	}
	g.set(status.Authenticated)
	if !status.Authenticated {
		return &AuthRequiredError{}
	}
	return nil
}

// Invalidate drops the cached flag, forcing the next Check to hit the
// auth service. Call after login or logout.
func (g *SessionGate) Invalidate() {
	g.mu.Lock()
	g.authenticated = false
	g.checkedAt = time.Time{}
	g.mu.Unlock()
}

func (g *SessionGate) set(ok bool) {
	g.mu.Lock()
	g.authenticated = ok
	g.checkedAt = time.Now()
	g.mu.Unlock()
}
