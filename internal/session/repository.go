package session

import "context"

// Repository persists sessions. Load returns serviceerr.ErrNotFound for
// unknown or expired sessions. Store keeps a session until its Expiry.
type Repository interface {
	Load(ctx context.Context, sessionID string) (Session, error)
	Store(ctx context.Context, session Session) error
	Delete(ctx context.Context, sessionID string) error
}
