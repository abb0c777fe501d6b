// Package config loads service configuration from the environment. A
// local .env file is honored when present; real deployments set the
// variables directly.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

// Config is everything the server binary needs to start.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	MigrationsURL string

	OCRBaseURL string
	OCRAPIKey  string

	Trust trust.Config
}

// Load reads the environment, applying defaults for everything except
// secrets. Missing secrets fail startup, not first use.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: skipping .env: %v", err)
	}

	cfg := &Config{
		Addr:          getEnv("ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		MigrationsURL: getEnv("MIGRATIONS_URL", "file://migrations"),
		OCRBaseURL:    getEnv("OCR_BASE_URL", ""),
		OCRAPIKey:     os.Getenv("OCR_API_KEY"),
		Trust:         trust.DefaultConfig(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	cfg.Trust.Tokens.AccessKey = []byte(os.Getenv("JWT_ACCESS_KEY"))
	cfg.Trust.Tokens.RefreshKey = []byte(os.Getenv("JWT_REFRESH_KEY"))
	cfg.Trust.Tokens.IntermediateKey = []byte(os.Getenv("JWT_INTERMEDIATE_KEY"))
	cfg.Trust.Password.Pepper = []byte(os.Getenv("PASSWORD_PEPPER"))

	cfg.Trust.Tokens.AccessTTL = getEnvDuration("ACCESS_TOKEN_TTL", cfg.Trust.Tokens.AccessTTL)
	cfg.Trust.Tokens.RefreshTTL = getEnvDuration("REFRESH_TOKEN_TTL", cfg.Trust.Tokens.RefreshTTL)
	cfg.Trust.Password.BcryptCost = getEnvInt("BCRYPT_COST", cfg.Trust.Password.BcryptCost)
	cfg.Trust.Anomaly.BlockHighRisk = getEnvBool("BLOCK_HIGH_RISK_REFRESH", cfg.Trust.Anomaly.BlockHighRisk)
	cfg.Trust.RequireAdmin2FA = getEnvBool("REQUIRE_ADMIN_2FA", cfg.Trust.RequireAdmin2FA)

	if err := cfg.Trust.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default", key, v)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default", key, v)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default", key, v)
		return fallback
	}
	return d
}
