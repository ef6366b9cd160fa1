package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
)

// MemoryUserRepo is an in-memory UserRepo for development and tests.
type MemoryUserRepo struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]model.User
	byMobile map[string]uuid.UUID
}

// NewMemoryUserRepo creates an empty in-memory user repository
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:     make(map[uuid.UUID]model.User),
		byMobile: make(map[string]uuid.UUID),
	}
}

func (r *MemoryUserRepo) GetByMobile(_ context.Context, mobile string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMobile[mobile]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, mobile, passwordHash, otp string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byMobile[mobile]; ok {
		return model.User{}, fmt.Errorf("user with mobile %s already exists", mobile)
	}
	now := time.Now()
	u := model.User{
		ID:           uuid.New(),
		MobileNumber: mobile,
		PasswordHash: passwordHash,
		OTP:          otp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[u.ID] = u
	r.byMobile[mobile] = u.ID
	return u, nil
}

func (r *MemoryUserRepo) UpdateOTP(_ context.Context, id uuid.UUID, otp string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	u.OTP = otp
	u.UpdatedAt = time.Now()
	r.byID[id] = u
	return u, nil
}

// MemorySessionRepo is an in-memory SessionRepo. The mutex held across
// the check-and-set in RevokeIfLive provides the same rotation
// exclusivity the SQL conditional update does.
type MemorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.RefreshSession
}

// NewMemorySessionRepo creates an empty in-memory session repository
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[uuid.UUID]model.RefreshSession)}
}

func (r *MemorySessionRepo) Create(_ context.Context, id, userID uuid.UUID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("session %s already exists", id)
	}
	r.sessions[id] = model.RefreshSession{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *MemorySessionRepo) GetByID(_ context.Context, id uuid.UUID) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return model.RefreshSession{}, ErrNotFound
	}
	return s, nil
}

func (r *MemorySessionRepo) RevokeIfLive(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Revoked {
		return ErrSessionNotLive
	}
	s.Revoked = true
	r.sessions[id] = s
	return nil
}

func (r *MemorySessionRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			r.sessions[id] = s
		}
	}
	return nil
}

// LiveCountForUser reports how many unrevoked sessions the user owns.
// Test helper.
func (r *MemorySessionRepo) LiveCountForUser(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && !s.Revoked {
			n++
		}
	}
	return n
}
