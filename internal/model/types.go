package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system. OTP holds the single currently
// valid challenge code; empty means no live code.
type User struct {
	ID           uuid.UUID
	MobileNumber string
	PasswordHash string
	OTP          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshSession is one whitelisted refresh token. The ID doubles as the
// jti claim of the token pair it belongs to. Revoked only ever goes
// false -> true; rotation creates a new session under a new ID.
type RefreshSession struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Revoked   bool
	CreatedAt time.Time
}

// TokenPair is the minted access/refresh token set. Never persisted;
// the ledger stores only a hash of the refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
