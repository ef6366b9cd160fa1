package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/repo"
	"github.com/otpgate/server/internal/sms"
)

// OTPManager generates, persists, and checks challenge codes. A user has
// at most one live code; issuing a new challenge unconditionally
// replaces the old one. Codes carry no expiry, they live until replaced
// or consumed.
type OTPManager struct {
	users  repo.UserRepo
	sender sms.Sender
}

// NewOTPManager creates an OTP challenge manager
func NewOTPManager(users repo.UserRepo, sender sms.Sender) *OTPManager {
	return &OTPManager{users: users, sender: sender}
}

// GenerateCode returns a uniformly random 4-digit code in [1000, 9999].
func (m *OTPManager) GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// IssueChallenge generates a code for an existing user, persists it, and
// dispatches it. The code is persisted before the dispatch attempt so a
// transient delivery failure does not lose state; on failure the caller
// sees ErrDeliveryFailed but the code stands.
func (m *OTPManager) IssueChallenge(ctx context.Context, mobile string) (string, error) {
	user, err := m.users.GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup user for challenge: %w", err)
	}

	code, err := m.GenerateCode()
	if err != nil {
		return "", err
	}

	if _, err := m.users.UpdateOTP(ctx, user.ID, code); err != nil {
		return "", fmt.Errorf("persist otp: %w", err)
	}

	if err := m.Dispatch(ctx, mobile, code); err != nil {
		return "", err
	}
	return code, nil
}

// Dispatch sends an already-persisted code over the delivery channel.
func (m *OTPManager) Dispatch(ctx context.Context, mobile, code string) error {
	if err := m.sender.Send(ctx, mobile, code); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// CheckChallenge compares the candidate against the persisted code with
// an exact string compare. Fails closed: no user or no live code means
// false. Checking has no side effects; consumption is the caller's call.
func (m *OTPManager) CheckChallenge(ctx context.Context, mobile, candidate string) (bool, error) {
	user, err := m.users.GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup user for otp check: %w", err)
	}
	if user.OTP == "" || candidate == "" {
		return false, nil
	}
	return user.OTP == candidate, nil
}

// ClearChallenge blanks the user's live code after it has been consumed.
func (m *OTPManager) ClearChallenge(ctx context.Context, userID uuid.UUID) error {
	if _, err := m.users.UpdateOTP(ctx, userID, ""); err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	return nil
}
