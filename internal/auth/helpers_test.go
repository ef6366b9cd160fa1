package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/otpgate/server/internal/repo"
	"github.com/otpgate/server/internal/sms"
)

const (
	testSecret = "test-jwt-secret-at-least-32-characters-long"
	testTTL    = 7 * 24 * time.Hour
)

// recordingSender captures dispatched codes instead of sending them.
type recordingSender struct {
	mu   sync.Mutex
	sent int
	last string
}

func (s *recordingSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.last = code
	return nil
}

func (s *recordingSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *recordingSender) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// failingSender simulates an unreachable gateway.
type failingSender struct{}

func (failingSender) Send(context.Context, string, string) error {
	return errors.New("gateway unreachable")
}

var _ sms.Sender = (*recordingSender)(nil)
var _ sms.Sender = failingSender{}

type testEnv struct {
	users    *repo.MemoryUserRepo
	sessions *repo.MemorySessionRepo
	sender   *recordingSender
	otp      *OTPManager
	issuer   *TokenIssuer
	ledger   *Ledger
	service  *AuthService
}

func newTestEnv() *testEnv {
	users := repo.NewMemoryUserRepo()
	sessions := repo.NewMemorySessionRepo()
	sender := &recordingSender{}
	otp := NewOTPManager(users, sender)
	issuer := NewTokenIssuer(testSecret, testTTL, testTTL)
	ledger := NewLedger(sessions)
	service := NewAuthService(otp, issuer, ledger, users, true)
	return &testEnv{
		users:    users,
		sessions: sessions,
		sender:   sender,
		otp:      otp,
		issuer:   issuer,
		ledger:   ledger,
		service:  service,
	}
}
