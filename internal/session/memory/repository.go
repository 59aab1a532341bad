// Package sessionmemory keeps sessions in process memory. Expired sessions
// are evicted by the cache janitor.
package sessionmemory

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

var ErrSessionExpired = errors.New("session already expired")

type Repository struct {
	cache *cache.Cache
}

var _ = session.Repository(&Repository{})

func NewRepository(cleanupInterval time.Duration) *Repository {
	return &Repository{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) Load(_ context.Context, sessionID string) (session.Session, error) {
	v, ok := r.cache.Get(sessionID)
	if !ok {
		return session.Session{}, serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return v.(session.Session), nil
}

func (r *Repository) Store(_ context.Context, s session.Session) error {
	ttl := time.Until(s.Expiry)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	r.cache.Set(s.ID, s, ttl)

	return nil
}

func (r *Repository) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}
