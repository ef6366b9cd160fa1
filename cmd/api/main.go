package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/otpgate/server/internal/auth"
	"github.com/otpgate/server/internal/config"
	"github.com/otpgate/server/internal/db"
	httphandler "github.com/otpgate/server/internal/http"
	"github.com/otpgate/server/internal/http/handlers"
	"github.com/otpgate/server/internal/repo"
	"github.com/otpgate/server/internal/sms"

	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	userRepo, sessionRepo, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer closeStores()

	var sender sms.Sender
	if cfg.DevMode {
		sender = sms.LogSender{}
	} else {
		sender = sms.NewClient(cfg.SMSAPIKey, cfg.SMSAPIURL)
	}

	otpManager := auth.NewOTPManager(userRepo, sender)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	ledger := auth.NewLedger(sessionRepo)
	authService := auth.NewAuthService(otpManager, issuer, ledger, userRepo, cfg.AllowRechallengeOnMismatch)

	authHandler := handlers.NewAuthHandler(authService)
	router := httphandler.NewRouter(authHandler, authService, userRepo)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// buildStores wires the configured backends: Postgres (with migrations)
// or in-memory for the users, plus an optional Redis session ledger.
func buildStores(ctx context.Context, cfg *config.Config) (repo.UserRepo, repo.SessionRepo, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var userRepo repo.UserRepo
	var sessionRepo repo.SessionRepo

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("Using in-memory store backend")
		userRepo = repo.NewMemoryUserRepo()
		sessionRepo = repo.NewMemorySessionRepo()
	case config.BackendPostgres:
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, func() { database.Close() })

		if err := runMigrations(database); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		userRepo = repo.NewUserRepo(database)
		sessionRepo = repo.NewSessionRepo(database)
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisURL != "" {
		client, err := repo.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		log.Println("Using Redis for the refresh session ledger")
		sessionRepo = repo.NewRedisSessionRepo(client, cfg.RefreshTokenTTL)
	}

	return userRepo, sessionRepo, closeAll, nil
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repository root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
