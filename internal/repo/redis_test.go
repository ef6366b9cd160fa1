package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) *RedisSessionRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionRepo(client, time.Hour)
}

func TestRedisSessionRoundTrip(t *testing.T) {
	r := newRedisRepo(t)
	ctx := context.Background()
	id, userID := uuid.New(), uuid.New()

	require.NoError(t, r.Create(ctx, id, userID, "hash-value"))

	s, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, userID, s.UserID)
	assert.Equal(t, "hash-value", s.TokenHash)
	assert.False(t, s.Revoked)
}

func TestRedisGetUnknownSession(t *testing.T) {
	r := newRedisRepo(t)
	_, err := r.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRevokeIfLiveOnce(t *testing.T) {
	r := newRedisRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, uuid.New(), "h"))

	require.NoError(t, r.RevokeIfLive(ctx, id))

	s, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.Revoked)

	// second attempt loses the guard
	assert.ErrorIs(t, r.RevokeIfLive(ctx, id), ErrSessionNotLive)

	// unknown session is also not live
	assert.ErrorIs(t, r.RevokeIfLive(ctx, uuid.New()), ErrSessionNotLive)
}

func TestRedisRevokeAllForUser(t *testing.T) {
	r := newRedisRepo(t)
	ctx := context.Background()
	userID, otherID := uuid.New(), uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, r.Create(ctx, id, userID, "h"))
	}
	otherSession := uuid.New()
	require.NoError(t, r.Create(ctx, otherSession, otherID, "h"))

	require.NoError(t, r.RevokeAllForUser(ctx, userID))
	for _, id := range ids {
		s, err := r.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.Revoked)
	}

	n, err := r.LiveCountForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s, err := r.GetByID(ctx, otherSession)
	require.NoError(t, err)
	assert.False(t, s.Revoked, "other users' sessions stay live")

	// idempotent, and a no-op for a user with no sessions
	require.NoError(t, r.RevokeAllForUser(ctx, userID))
	require.NoError(t, r.RevokeAllForUser(ctx, uuid.New()))
}

func TestRedisSessionsExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisSessionRepo(client, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, r.Create(ctx, id, uuid.New(), "h"))

	mr.FastForward(2 * time.Minute)

	_, err := r.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
