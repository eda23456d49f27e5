// Package config reads the closed set of environment variables the
// service recognizes, plus the storage and feature-knob variables the
// domain and risk/permission engines need.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration, sourced entirely from
// environment variables. There is no config file format: env vars are
// read directly and wired in cmd/api/main.go.
type Config struct {
	// JWT / token service
	JWTSecret            string // legacy HS256 transition path; empty disables it
	JWTAccessTTLSeconds  int
	JWTRefreshTTLSeconds int
	JWTIssuer            string
	JWTAudience          string
	JWTClockSkewSeconds  int

	// Key manager
	KeyStoreDir    string
	KeyGraceHours  int

	// Storage
	DatabaseURL string

	// Risk engine shared counters; empty uses the in-memory fallback.
	RiskRedisAddr string

	// Permission engine
	PermissionSeedOnEmpty bool

	// Audit log
	AuditHashChain bool

	// HTTP server
	ListenAddr string

	// Sentry
	SentryDSN string

	Environment string
}

// Load reads configuration from environment variables, applying the same
// defaults states for each one.
func Load() (Config, error) {
	cfg := Config{
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTAccessTTLSeconds:   getEnvAsInt("JWT_ACCESS_TTL_SECONDS", 900),
		JWTRefreshTTLSeconds:  getEnvAsInt("JWT_REFRESH_TTL_SECONDS", 7*24*3600),
		JWTIssuer:             getEnv("JWT_ISSUER", "lavente-auth"),
		JWTAudience:           getEnv("JWT_AUDIENCE", "lavente-auth-clients"),
		JWTClockSkewSeconds:   getEnvAsInt("JWT_CLOCK_SKEW_SECONDS", 60),
		KeyStoreDir:           getEnv("KEY_STORE_DIR", "./keys"),
		KeyGraceHours:         getEnvAsInt("KEY_GRACE_HOURS", 24),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RiskRedisAddr:         os.Getenv("RISK_REDIS_ADDR"),
		PermissionSeedOnEmpty: getEnvAsBool("PERMISSION_SEED_ON_EMPTY", true),
		AuditHashChain:        getEnvAsBool("AUDIT_HASH_CHAIN", false),
		ListenAddr:            getEnv("LISTEN_ADDR", ":8080"),
		SentryDSN:             os.Getenv("SENTRY_DSN"),
		Environment:           getEnv("ENVIRONMENT", "development"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func (c Config) AccessTTL() time.Duration  { return time.Duration(c.JWTAccessTTLSeconds) * time.Second }
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.JWTRefreshTTLSeconds) * time.Second }
func (c Config) ClockSkew() time.Duration  { return time.Duration(c.JWTClockSkewSeconds) * time.Second }
func (c Config) KeyGrace() time.Duration   { return time.Duration(c.KeyGraceHours) * time.Hour }

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
