package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testTTL, testTTL)
	userID := uuid.New()
	sessionID := uuid.New()

	pair, err := issuer.Mint(userID, sessionID)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		claims, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		sid, err := claims.SessionID()
		require.NoError(t, err)
		assert.Equal(t, sessionID, sid)
	}
}

func TestMintTokensDifferAcrossCalls(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testTTL, testTTL)
	userID, sessionID := uuid.New(), uuid.New()

	p1, err := issuer.Mint(userID, sessionID)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond) // iat has second granularity
	p2, err := issuer.Mint(userID, sessionID)
	require.NoError(t, err)

	assert.NotEqual(t, p1.AccessToken, p2.AccessToken, "issue time is embedded, signatures must differ")
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testTTL, testTTL)
	other := NewTokenIssuer("a-completely-different-secret-value", testTTL, testTTL)

	pair, err := issuer.Mint(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = other.Verify(pair.AccessToken)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Minute, -time.Minute)

	pair, err := issuer.Mint(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = issuer.Verify(pair.RefreshToken)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, testTTL, testTTL)
	_, err := issuer.Verify("not.a.token")
	assert.Error(t, err)
}
