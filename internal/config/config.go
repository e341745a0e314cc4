// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage settings. DatabaseURL empty means the JSON-file store.
	DataDir     string
	DatabaseURL string

	// Auth settings.
	APIKey            string // API key granting token issuance; empty disables auth.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("KAGAMI_PORT", 8080),
		ReadTimeout:         envDuration("KAGAMI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("KAGAMI_WRITE_TIMEOUT", 30*time.Second),
		DataDir:             envStr("KAGAMI_DATA_DIR", "data"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		APIKey:              envStr("KAGAMI_API_KEY", ""),
		JWTPrivateKeyPath:   envStr("KAGAMI_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("KAGAMI_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("KAGAMI_JWT_EXPIRATION", 24*time.Hour),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "kagami"),
		LogLevel:            envStr("KAGAMI_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("KAGAMI_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.DataDir == "" && c.DatabaseURL == "" {
		return fmt.Errorf("config: KAGAMI_DATA_DIR or DATABASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: KAGAMI_PORT must be a valid port")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: KAGAMI_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

// DecisionsFile is the JSON-file store path under the data directory.
func (c Config) DecisionsFile() string {
	return c.DataDir + "/decisions.json"
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
