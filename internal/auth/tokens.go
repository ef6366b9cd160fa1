package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
)

// TokenClaims are the claims carried by both tokens of a pair. The
// session id rides in the registered jti claim.
type TokenClaims struct {
	UserID uuid.UUID `json:"userId"`
	jwt.RegisteredClaims
}

// SessionID returns the jti as a uuid.
func (c *TokenClaims) SessionID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse jti: %w", err)
	}
	return id, nil
}

// TokenIssuer mints and verifies the access/refresh token pairs. It is a
// pure function of its inputs and the clock; nothing is persisted here.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates a token issuer. The secret comes from process
// configuration, loaded once at startup.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Mint produces a signed access/refresh pair bound to the same session
// id. Both carry {userId, jti} plus issue and expiry times.
func (i *TokenIssuer) Mint(userID, sessionID uuid.UUID) (model.TokenPair, error) {
	now := time.Now()

	accessToken, err := i.sign(userID, sessionID, now, i.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := i.sign(userID, sessionID, now, i.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (i *TokenIssuer) sign(userID, sessionID uuid.UUID, now time.Time, ttl time.Duration) (string, error) {
	claims := &TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses a token and validates signature and expiry together.
// Callers outside the core treat any failure as one invalid-token
// category; the wrapped cause stays available for logging.
func (i *TokenIssuer) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
