// Package config loads and validates Librarium configuration from
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds every Librarium setting.
type Config struct {
	// --- Server ---

	// HTTP port
	Port int
	// Log level (debug, info, warn, error)
	LogLevel slog.Level
	// Log format (json, text)
	LogFormat string
	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT ---

	// Issuer written into and expected in access tokens
	JWTIssuer string
	// Access token lifetime
	JWTTTL time.Duration
	// PEM-encoded RSA private key. Empty means an ephemeral key per process.
	JWTPrivateKeyPath string

	// --- Mail ---

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration
	MailFrom     string

	// --- Redis (rate limiting) ---

	// Empty disables rate limiting
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Requests allowed per window for sign-in/sign-up
	RateLimit int
	// Fixed rate limit window
	RateLimitWindow time.Duration

	// --- Book cache ---

	BookCacheSize int
	BookCacheTTL  time.Duration

	// --- Object storage (Supabase) ---

	// Empty disables uploads
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	// --- Dependency health ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load reads the configuration from the environment, validates required
// fields and returns a Config or an error.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Server ---

	cfg.Port, err = getEnvInt("LH_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("LH_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("LH_PORT: value %d out of range 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LH_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("LH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LH_LOG_FORMAT: invalid value %q, allowed: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("LH_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LH_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("LH_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("LH_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("LH_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("LH_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("LH_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("LH_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("LH_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("LH_DB_SSL_MODE: invalid value %q, allowed: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("LH_JWT_ISSUER", "librarium")

	cfg.JWTTTL, err = getEnvDuration("LH_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LH_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL < time.Minute {
		return nil, fmt.Errorf("LH_JWT_TTL: value %v is shorter than 1m", cfg.JWTTTL)
	}

	cfg.JWTPrivateKeyPath = getEnvDefault("LH_JWT_PRIVATE_KEY_PATH", "")

	// --- Mail ---

	cfg.SMTPHost = getEnvDefault("LH_SMTP_HOST", "localhost")
	cfg.SMTPPort, err = getEnvInt("LH_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("LH_SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("LH_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("LH_SMTP_PASSWORD", "")
	cfg.SMTPTimeout, err = getEnvDuration("LH_SMTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LH_SMTP_TIMEOUT: %w", err)
	}
	cfg.MailFrom = getEnvDefault("LH_MAIL_FROM", "Librarium <no-reply@librarium.local>")

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("LH_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("LH_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("LH_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("LH_REDIS_DB: %w", err)
	}

	cfg.RateLimit, err = getEnvInt("LH_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("LH_RATE_LIMIT: %w", err)
	}
	if cfg.RateLimit < 1 {
		return nil, fmt.Errorf("LH_RATE_LIMIT: value %d must be at least 1", cfg.RateLimit)
	}

	cfg.RateLimitWindow, err = getEnvDuration("LH_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LH_RATE_LIMIT_WINDOW: %w", err)
	}

	// --- Book cache ---

	cfg.BookCacheSize, err = getEnvInt("LH_BOOK_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("LH_BOOK_CACHE_SIZE: %w", err)
	}
	if cfg.BookCacheSize < 1 || cfg.BookCacheSize > 1000000 {
		return nil, fmt.Errorf("LH_BOOK_CACHE_SIZE: value %d out of range 1-1000000", cfg.BookCacheSize)
	}

	cfg.BookCacheTTL, err = getEnvDuration("LH_BOOK_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LH_BOOK_CACHE_TTL: %w", err)
	}

	// --- Object storage ---

	cfg.SupabaseURL = strings.TrimRight(getEnvDefault("LH_SUPABASE_URL", ""), "/")
	cfg.SupabaseKey = getEnvDefault("LH_SUPABASE_KEY", "")
	cfg.SupabaseBucket = getEnvDefault("LH_SUPABASE_BUCKET", "library")
	if cfg.SupabaseURL != "" && cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("LH_SUPABASE_KEY: required when LH_SUPABASE_URL is set")
	}

	// --- Dependency health ---

	cfg.DephealthGroup = getEnvDefault("LH_DEPHEALTH_GROUP", "librarium")
	cfg.DephealthCheckInterval, err = getEnvDuration("LH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL returns the connection URL in the pgx5:// scheme used by
// golang-migrate and dephealth.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RateLimitEnabled reports whether a Redis address is configured.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}

// UploadsEnabled reports whether object storage is configured.
func (c *Config) UploadsEnabled() bool {
	return c.SupabaseURL != ""
}

// SetupLogger configures the global slog logger.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Helpers ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: required environment variable is not set", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel maps a level name to slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, allowed: debug, info, warn, error", level)
	}
}
