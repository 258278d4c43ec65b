package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/facemark/facemark/internal/database"
)

// Session is a server-side login session row. The signed cookie only
// carries the session id; everything else lives here so a session can
// be revoked without waiting for the cookie to expire.
type Session struct {
	ID        string
	UserID    string
	Role      database.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists login sessions.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, role, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.UserID, s.Role, s.CreatedAt, s.ExpiresAt)
	if isPQError(err, codeForeignKeyViolation) {
		return database.ErrMissingIdentity
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get returns a session that has not expired.
func (r *SessionRepository) Get(ctx context.Context, id string, now time.Time) (*Session, error) {
	var s Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, role, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, id, now).Scan(&s.ID, &s.UserID, &s.Role, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Delete drops one session, logging the user out everywhere the cookie
// is presented.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired reaps sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
