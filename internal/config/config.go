package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port         string
	StoreBackend string
	DatabaseURL  string
	RedisURL     string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SMSAPIKey string
	SMSAPIURL string

	// AllowRechallengeOnMismatch keeps the legacy behavior of issuing a
	// fresh OTP to an existing user even when the presented password does
	// not match the stored hash. The mismatch is logged server-side.
	AllowRechallengeOnMismatch bool

	DevMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                       getEnv("PORT", "8080"),
		StoreBackend:               getEnv("STORE_BACKEND", BackendPostgres),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisURL:                   os.Getenv("REDIS_URL"),
		SMSAPIKey:                  os.Getenv("SMS_API_KEY"),
		SMSAPIURL:                  getEnv("SMS_API_URL", "https://www.fast2sms.com/dev/bulkV2"),
		AccessTokenTTL:             getDurationEnv("ACCESS_TOKEN_TTL", 7*24*time.Hour),
		RefreshTokenTTL:            getDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		AllowRechallengeOnMismatch: getBoolEnv("ALLOW_RECHALLENGE_ON_PASSWORD_MISMATCH", true),
		DevMode:                    os.Getenv("DEV_MODE") == "true",
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case BackendMemory:
		// no external store needed
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if !cfg.DevMode && cfg.SMSAPIKey == "" {
		return nil, fmt.Errorf("SMS_API_KEY environment variable is required (or set DEV_MODE=true)")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
