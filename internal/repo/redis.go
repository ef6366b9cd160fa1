package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "refresh_session:"
	userIndexPrefix   = "user_sessions:"
	fieldUserID       = "user_id"
	fieldTokenHash    = "token_hash"
	fieldRevoked      = "revoked"
	fieldCreatedAtRFC = "created_at"
)

// revokeIfLiveScript flips revoked to 1 only while it is still 0, in a
// single Redis round trip. Returns -1 missing, 0 already revoked,
// 1 revoked now.
var revokeIfLiveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`)

// RedisSessionRepo keeps the refresh ledger in Redis: one hash per
// session keyed by jti plus a per-user index set for bulk revocation.
// Entries carry the refresh TTL so dead sessions age out on their own.
type RedisSessionRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepo creates a Redis-backed SessionRepo. ttl should be
// the refresh token lifetime; 0 disables expiry.
func NewRedisSessionRepo(client *redis.Client, ttl time.Duration) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string   { return sessionKeyPrefix + id.String() }
func userIndexKey(id uuid.UUID) string { return userIndexPrefix + id.String() }

func (r *RedisSessionRepo) Create(ctx context.Context, id, userID uuid.UUID, tokenHash string) error {
	key := sessionKey(id)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		fieldUserID:       userID.String(),
		fieldTokenHash:    tokenHash,
		fieldRevoked:      "0",
		fieldCreatedAtRFC: time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, userIndexKey(userID), id.String())
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, userIndexKey(userID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create redis session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.RefreshSession, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return model.RefreshSession{}, fmt.Errorf("get redis session: %w", err)
	}
	if len(fields) == 0 {
		return model.RefreshSession{}, ErrNotFound
	}
	userID, err := uuid.Parse(fields[fieldUserID])
	if err != nil {
		return model.RefreshSession{}, fmt.Errorf("parse session user ID: %w", err)
	}
	s := model.RefreshSession{
		ID:        id,
		UserID:    userID,
		TokenHash: fields[fieldTokenHash],
		Revoked:   fields[fieldRevoked] == "1",
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAtRFC]); err == nil {
		s.CreatedAt = ts
	}
	return s, nil
}

func (r *RedisSessionRepo) RevokeIfLive(ctx context.Context, id uuid.UUID) error {
	res, err := revokeIfLiveScript.Run(ctx, r.client, []string{sessionKey(id)}).Result()
	if err != nil {
		return fmt.Errorf("revoke redis session: %w", err)
	}
	status, ok := res.(int64)
	if !ok {
		return fmt.Errorf("revoke redis session: unexpected reply %v (%T)", res, res)
	}
	if status != 1 {
		return ErrSessionNotLive
	}
	return nil
}

func (r *RedisSessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	ids, err := r.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list redis sessions for user: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		pipe.HSet(ctx, sessionKey(id), fieldRevoked, "1")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoke all redis sessions: %w", err)
	}
	return nil
}

// LiveCountForUser reports how many unrevoked, still-present sessions
// the user owns. Used by operational checks and tests.
func (r *RedisSessionRepo) LiveCountForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	ids, err := r.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("list redis sessions for user: %w", err)
	}
	n := 0
	for _, raw := range ids {
		revoked, err := r.client.HGet(ctx, sessionKeyPrefix+raw, fieldRevoked).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("check redis session %s: %w", raw, err)
		}
		if revoked == "0" {
			n++
		}
	}
	return n, nil
}

var _ SessionRepo = (*RedisSessionRepo)(nil)

// ParseRedisURL builds a client from a redis:// URL.
func ParseRedisURL(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
