// Package sessionsql keeps sessions in the PostgreSQL database that also
// holds the metadata table.
package sessionsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/metadata-collector/internal/serviceerr"
	"github.com/openkcm/metadata-collector/internal/session"
)

var ErrSessionExpired = errors.New("session already expired")

type Repository struct {
	db *pgxpool.Pool
}

var _ = session.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

// Load returns the session with sessionID. Rows past their expiry are
// treated as missing until DeleteExpired removes them.
func (r *Repository) Load(ctx context.Context, sessionID string) (s session.Session, _ error) {
	if err := r.db.QueryRow(
		ctx, `SELECT id, code_verifier, access_token, instance_url, expiry
FROM sessions
WHERE id = $1
	AND expiry > now();`,
		sessionID,
	).
		Scan(&s.ID, &s.CodeVerifier, &s.AccessToken, &s.InstanceURL, &s.Expiry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("selecting from sessions: %w", err)
	}

	return s, nil
}

func (r *Repository) Store(ctx context.Context, s session.Session) error {
	if !s.Expiry.After(time.Now()) {
		return ErrSessionExpired
	}

	if _, err := r.db.Exec(
		ctx, `INSERT INTO sessions (id, code_verifier, access_token, instance_url, expiry)
VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id)
	DO UPDATE SET (code_verifier, access_token, instance_url, expiry) =
		(EXCLUDED.code_verifier, EXCLUDED.access_token, EXCLUDED.instance_url, EXCLUDED.expiry);`,
		s.ID, s.CodeVerifier, s.AccessToken, s.InstanceURL, s.Expiry,
	); err != nil {
		return fmt.Errorf("inserting into sessions: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, sessionID); err != nil {
		return fmt.Errorf("deleting from sessions: %w", err)
	}

	return nil
}

// DeleteExpired removes every session past its expiry and returns how many
// were removed.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expiry <= now();`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
