// Package tests holds HTTP-level end-to-end tests running against an
// httptest server over the in-memory backend.
package tests

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/otpgate/server/internal/auth"
	httphandler "github.com/otpgate/server/internal/http"
	"github.com/otpgate/server/internal/http/handlers"
	"github.com/otpgate/server/internal/repo"
)

const (
	testJWTSecret = "test-jwt-secret-at-least-32-characters-long"
	testTokenTTL  = 7 * 24 * time.Hour
)

// captureSender records the last dispatched code so tests can log in
// without a real SMS gateway.
type captureSender struct {
	mu   sync.Mutex
	sent int
	last string
}

func (s *captureSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.last = code
	return nil
}

func (s *captureSender) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *captureSender) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// testServer wires the full stack over in-memory stores.
type testServer struct {
	Server   *httptest.Server
	Sender   *captureSender
	Sessions *repo.MemorySessionRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := repo.NewMemoryUserRepo()
	sessions := repo.NewMemorySessionRepo()
	sender := &captureSender{}

	otpManager := auth.NewOTPManager(users, sender)
	issuer := auth.NewTokenIssuer(testJWTSecret, testTokenTTL, testTokenTTL)
	ledger := auth.NewLedger(sessions)
	authService := auth.NewAuthService(otpManager, issuer, ledger, users, true)

	authHandler := handlers.NewAuthHandler(authService)
	router := httphandler.NewRouter(authHandler, authService, users)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, Sender: sender, Sessions: sessions}
}

func (s *testServer) BaseURL() string { return s.Server.URL }
