package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
	"github.com/otpgate/server/internal/repo"
)

// Ledger is the whitelist of live refresh sessions. It is the trust
// boundary for replay protection: a refresh token with no ledger entry,
// a revoked entry, or a mismatched hash is worthless regardless of its
// signature.
type Ledger struct {
	sessions repo.SessionRepo
}

// NewLedger creates a refresh token ledger over the given session store
func NewLedger(sessions repo.SessionRepo) *Ledger {
	return &Ledger{sessions: sessions}
}

// HashRefreshToken returns the SHA-256 hex of a raw refresh token. The
// ledger never stores the raw value.
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Register whitelists a freshly minted session. Must run after minting
// and before the pair is returned to the caller, so no token is ever
// valid-but-unregistered externally.
func (l *Ledger) Register(ctx context.Context, sessionID uuid.UUID, rawRefreshToken string, userID uuid.UUID) error {
	if err := l.sessions.Create(ctx, sessionID, userID, HashRefreshToken(rawRefreshToken)); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// Lookup fetches a session by its jti.
func (l *Ledger) Lookup(ctx context.Context, sessionID uuid.UUID) (model.RefreshSession, error) {
	return l.sessions.GetByID(ctx, sessionID)
}

// ValidateAndConsume checks that the session exists, is unrevoked, and
// matches the presented token's hash, then revokes it through the
// store's conditional update. Of two concurrent calls on the same live
// session exactly one returns the session; the loser gets
// ErrSessionRotated.
func (l *Ledger) ValidateAndConsume(ctx context.Context, sessionID uuid.UUID, rawRefreshToken string) (model.RefreshSession, error) {
	session, err := l.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.RefreshSession{}, ErrUnauthorized
		}
		return model.RefreshSession{}, fmt.Errorf("lookup session: %w", err)
	}

	if session.Revoked {
		return model.RefreshSession{}, ErrUnauthorized
	}
	if HashRefreshToken(rawRefreshToken) != session.TokenHash {
		return model.RefreshSession{}, ErrUnauthorized
	}

	if err := l.sessions.RevokeIfLive(ctx, sessionID); err != nil {
		if errors.Is(err, repo.ErrSessionNotLive) {
			return model.RefreshSession{}, ErrSessionRotated
		}
		return model.RefreshSession{}, fmt.Errorf("consume session: %w", err)
	}
	return session, nil
}

// RevokeAllForUser revokes every live session the user owns. Idempotent;
// revoking nothing is a success.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	if err := l.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all for user: %w", err)
	}
	return nil
}
