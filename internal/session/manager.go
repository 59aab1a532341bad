package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/serviceerr"
)

// IDSource generates session identifiers.
type IDSource interface {
	SessionID() (string, error)
}

// Manager binds sessions to requests through a cookie and applies the
// session expiry policy.
type Manager struct {
	sessions Repository
	ids      IDSource

	sessionDuration time.Duration
	cookieTemplate  config.CookieTemplate
}

func NewManager(sessions Repository, ids IDSource, sessionDuration time.Duration, cookieTemplate config.CookieTemplate) *Manager {
	return &Manager{
		sessions:        sessions,
		ids:             ids,
		sessionDuration: sessionDuration,
		cookieTemplate:  cookieTemplate,
	}
}

// Get returns the session bound to the request. A request without a valid
// session cookie gets a new unauthenticated session which is only persisted
// once it is saved.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cookieTemplate.Name); err == nil && c.Value != "" {
		s, err := m.sessions.Load(ctx, c.Value)
		switch {
		case err == nil && time.Now().Before(s.Expiry):
			return &s, nil
		case err == nil, errors.Is(err, serviceerr.ErrNotFound):
			slogctx.Debug(ctx, "Session not found or expired, starting a new one")
		default:
			return nil, fmt.Errorf("loading session: %w", err)
		}
	}

	id, err := m.ids.SessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	return &Session{ID: id}, nil
}

// Save extends the session lifetime, persists it and sets the session cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.Expiry = time.Now().Add(m.sessionDuration)

	if err := m.sessions.Store(ctx, *s); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	cookie := m.cookieTemplate.ToCookie(s.ID, s.Expiry)
	if !cookie.Secure {
		slogctx.Debug(ctx, "Session cookie is not marked as Secure; this is not recommended in production environments")
	}
	http.SetCookie(w, cookie)

	return nil
}
