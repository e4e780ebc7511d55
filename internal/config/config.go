// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the root of the Authentication API (e.g. https://api.example.com).
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// APITimeout bounds each Authentication API request (e.g. "30s").
	APITimeout string `mapstructure:"API_TIMEOUT"`

	// StorageDriver selects where the session survives between runs: memory, file or postgres.
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	// StoragePath is the session file for the file driver; empty resolves under the user config dir.
	StoragePath string `mapstructure:"STORAGE_PATH"`
	// StorageNamespace partitions rows in the postgres driver (one per local profile).
	StorageNamespace string `mapstructure:"STORAGE_NAMESPACE"`
	// DatabaseURL is the Postgres DSN; required when StorageDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RefreshCookieTTL is how long the refresh token cookie is kept (e.g. "720h").
	RefreshCookieTTL string `mapstructure:"REFRESH_COOKIE_TTL"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the collector address; empty disables exporting.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Dev API only.
	// DevAPIAddr is the address the local Authentication API listens on.
	DevAPIAddr string `mapstructure:"DEVAPI_ADDR"`
	// JWTIssuer is the iss claim on devapi tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on devapi tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the devapi access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the devapi refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTSigningKey is a PEM private key (inline or file path); empty generates an ES256 key per run.
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	// OTPReturnToClient when true exposes issued OTPs on GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8090")
	v.SetDefault("API_TIMEOUT", "30s")
	v.SetDefault("STORAGE_DRIVER", StorageDriverFile)
	v.SetDefault("STORAGE_PATH", "")
	v.SetDefault("STORAGE_NAMESPACE", "default")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REFRESH_COOKIE_TTL", "720h") // 30d
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("DEVAPI_ADDR", ":8090")
	v.SetDefault("JWT_ISSUER", "pickup-devapi")
	v.SetDefault("JWT_AUDIENCE", "pickup-portal")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h")
	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("config: API_BASE_URL must be an absolute http(s) URL, got %q", cfg.APIBaseURL)
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch cfg.StorageDriver {
	case StorageDriverMemory, StorageDriverFile:
	case StorageDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORAGE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.StorageNamespace == "" {
		cfg.StorageNamespace = "default"
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	return &cfg, nil
}

// RequestTimeout parses APITimeout as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.APITimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// CookieTTL parses RefreshCookieTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) CookieTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshCookieTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// SessionFilePath returns StoragePath, or <UserConfigDir>/pickup-portal/session.json when unset.
func (c *Config) SessionFilePath() (string, error) {
	if c.StoragePath != "" {
		return c.StoragePath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "pickup-portal", "session.json"), nil
}
