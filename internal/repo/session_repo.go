package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
)

// ErrSessionNotLive is returned by RevokeIfLive when the session does not
// exist or was already revoked. It is the signal that another request won
// the rotation race.
var ErrSessionNotLive = errors.New("session not live")

// SessionRepo defines the interface for refresh session repository
// operations. RevokeIfLive must be an atomic conditional update: the
// revoked flag may only flip when it is still false at the moment of the
// update, never via a plain read-then-write.
type SessionRepo interface {
	Create(ctx context.Context, id, userID uuid.UUID, tokenHash string) error
	GetByID(ctx context.Context, id uuid.UUID) (model.RefreshSession, error)
	RevokeIfLive(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a Postgres-backed SessionRepo
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a new refresh session keyed by its jti
func (r *sessionRepo) Create(ctx context.Context, id, userID uuid.UUID, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, user_id, token_hash)
		VALUES ($1, $2, $3)
	`, id, userID, tokenHash)
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}
	return nil
}

// GetByID retrieves a refresh session by its jti, revoked or not
func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.RefreshSession, error) {
	var s model.RefreshSession
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, revoked, created_at
		FROM refresh_sessions
		WHERE id = $1
	`, id).Scan(&idStr, &userIDStr, &s.TokenHash, &s.Revoked, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshSession{}, ErrNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("find session: %w", err)
	}
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.RefreshSession{}, fmt.Errorf("parse session ID: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.RefreshSession{}, fmt.Errorf("parse session user ID: %w", err)
	}
	return s, nil
}

// RevokeIfLive flips revoked to true only if it is still false. The
// WHERE guard makes concurrent rotation attempts on the same session
// resolve to exactly one winner.
func (r *sessionRepo) RevokeIfLive(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE
		WHERE id = $1 AND revoked = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotLive
	}
	return nil
}

// RevokeAllForUser revokes every live session owned by the user. A no-op
// when nothing is live.
func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`, userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions for user: %w", err)
	}
	return nil
}
