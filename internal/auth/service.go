package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
	"github.com/otpgate/server/internal/repo"
	"github.com/otpgate/server/internal/sms"
)

// AuthService orchestrates the four authentication flows: register /
// challenge, login / verify, refresh, and revoke-all.
type AuthService struct {
	otp    *OTPManager
	issuer *TokenIssuer
	ledger *Ledger
	users  repo.UserRepo

	// allowRechallengeOnMismatch keeps issuing a fresh OTP to an
	// existing user whose presented password does not match, matching
	// the historical behavior. When false the flow halts with
	// ErrPasswordMismatch.
	allowRechallengeOnMismatch bool
}

// NewAuthService creates the authentication orchestrator
func NewAuthService(
	otp *OTPManager,
	issuer *TokenIssuer,
	ledger *Ledger,
	users repo.UserRepo,
	allowRechallengeOnMismatch bool,
) *AuthService {
	return &AuthService{
		otp:                        otp,
		issuer:                     issuer,
		ledger:                     ledger,
		users:                      users,
		allowRechallengeOnMismatch: allowRechallengeOnMismatch,
	}
}

// Register creates the user on first contact or re-challenges an
// existing one, and leaves a live OTP persisted either way. The code is
// persisted before the dispatch attempt; a delivery failure surfaces as
// ErrDeliveryFailed with the code still valid. Returns the user and
// whether it was created.
func (s *AuthService) Register(ctx context.Context, mobile, password string) (model.User, bool, error) {
	if mobile == "" || password == "" {
		return model.User{}, false, fmt.Errorf("%w: mobile number and password are required", ErrValidation)
	}

	user, err := s.users.GetByMobile(ctx, mobile)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.registerNewUser(ctx, mobile, password)
	case err != nil:
		return model.User{}, false, fmt.Errorf("lookup user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		if !s.allowRechallengeOnMismatch {
			return model.User{}, false, ErrPasswordMismatch
		}
		log.Printf("register: password mismatch for %s, re-challenge allowed by policy", sms.MaskNumber(mobile))
	}

	code, err := s.otp.GenerateCode()
	if err != nil {
		return model.User{}, false, err
	}
	user, err = s.users.UpdateOTP(ctx, user.ID, code)
	if err != nil {
		return model.User{}, false, fmt.Errorf("persist otp: %w", err)
	}
	if err := s.otp.Dispatch(ctx, mobile, code); err != nil {
		return model.User{}, false, err
	}
	return user, false, nil
}

func (s *AuthService) registerNewUser(ctx context.Context, mobile, password string) (model.User, bool, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, false, err
	}
	code, err := s.otp.GenerateCode()
	if err != nil {
		return model.User{}, false, err
	}
	user, err := s.users.Create(ctx, mobile, hash, code)
	if err != nil {
		return model.User{}, false, fmt.Errorf("create user: %w", err)
	}
	if err := s.otp.Dispatch(ctx, mobile, code); err != nil {
		return user, true, err
	}
	return user, true, nil
}

// Login verifies a challenge code and issues a token pair. The matched
// code is cleared so it cannot be replayed; the session is registered in
// the ledger before the pair is returned.
func (s *AuthService) Login(ctx context.Context, mobile, otp string) (model.User, model.TokenPair, error) {
	if mobile == "" || otp == "" {
		return model.User{}, model.TokenPair{}, fmt.Errorf("%w: mobile number and OTP are required", ErrValidation)
	}

	user, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, model.TokenPair{}, ErrNotFound
		}
		return model.User{}, model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.otp.CheckChallenge(ctx, mobile, otp)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	if !ok {
		return model.User{}, model.TokenPair{}, ErrInvalidOTP
	}

	if err := s.otp.ClearChallenge(ctx, user.ID); err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	user.OTP = ""

	pair, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return model.User{}, model.TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: verify, consume the old session
// atomically, mint a new pair under a new jti, register it. Any failure
// collapses to ErrUnauthorized (a lost rotation race surfaces as
// ErrSessionRotated, which the boundary maps to the same 401).
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	if refreshToken == "" {
		return model.TokenPair{}, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	claims, err := s.issuer.Verify(refreshToken)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	sessionID, err := claims.SessionID()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	session, err := s.ledger.ValidateAndConsume(ctx, sessionID, refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}

	if _, err := s.users.GetByID(ctx, session.UserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.TokenPair{}, ErrUnauthorized
		}
		return model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	return s.issueSession(ctx, session.UserID)
}

// RevokeAll revokes every live session the user owns. Always succeeds,
// including for users with nothing live.
func (s *AuthService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.ledger.RevokeAllForUser(ctx, userID)
}

// VerifyAccessToken validates a bearer token and returns its claims.
// Used by the protected-route middleware.
func (s *AuthService) VerifyAccessToken(token string) (*TokenClaims, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}

// issueSession mints a pair under a fresh jti and registers it. The
// order mint -> register -> return is strict: registration completes
// before any response is observable.
func (s *AuthService) issueSession(ctx context.Context, userID uuid.UUID) (model.TokenPair, error) {
	sessionID := uuid.New()
	pair, err := s.issuer.Mint(userID, sessionID)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.ledger.Register(ctx, sessionID, pair.RefreshToken, userID); err != nil {
		return model.TokenPair{}, err
	}
	return pair, nil
}
