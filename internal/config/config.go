package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the affitrack server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Session   SessionConfig
	Nonce     NonceConfig
	Tracking  TrackingConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	BaseURL         string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig guards the management surface. Auth lists protected
// paths rather than skipped ones: the public surface includes every
// cloaked short path, which cannot be enumerated. Entries ending in
// "/" protect a whole subtree; the rest match exactly.
type AuthConfig struct {
	Enabled        bool
	MasterKey      string
	ProtectedPaths []string
}

type RateLimitConfig struct {
	Enabled     bool
	PublicRPS   float64
	PublicBurst int
	MgmtRPS     float64
	MgmtBurst   int
	// MgmtPaths are the paths billed against the management bucket
	// (same matching rules as AuthConfig.ProtectedPaths); everything
	// else shares the public bucket.
	MgmtPaths []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SessionConfig configures the visitor session cookie and the
// attribution carrier TTL.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
}

// NonceConfig configures the rotating anti-forgery token for the
// public impression beacon.
type NonceConfig struct {
	Secret   string
	Interval time.Duration
}

// TrackingConfig configures redirect-resolver skip rules.
type TrackingConfig struct {
	// ProbeSignatures are user-agent substrings that identify
	// automated link probes; matching requests are never tracked
	// or redirected.
	ProbeSignatures []string
	// AdminReferer is a referer substring marking requests that
	// originate from the management area.
	AdminReferer string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is honored when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("AFFITRACK_HTTP_ADDR", ":8080"),
			Env:             getEnv("AFFITRACK_ENV", "development"),
			BaseURL:         getEnv("AFFITRACK_BASE_URL", "http://localhost:8080"),
			ShutdownTimeout: getDurationEnv("AFFITRACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("AFFITRACK_DB_HOST", "localhost"),
			Port:     getIntEnv("AFFITRACK_DB_PORT", 5432),
			User:     getEnv("AFFITRACK_DB_USER", "affitrack"),
			Password: getEnv("AFFITRACK_DB_PASSWORD", "affitrack_secret"),
			DBName:   getEnv("AFFITRACK_DB_NAME", "affitrack"),
			SSLMode:  getEnv("AFFITRACK_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("AFFITRACK_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("AFFITRACK_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("AFFITRACK_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("AFFITRACK_REDIS_PASSWORD", ""),
			DB:       getIntEnv("AFFITRACK_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("AFFITRACK_AUTH_ENABLED", true),
			MasterKey: getEnv("AFFITRACK_API_KEY_MASTER", ""),
			ProtectedPaths: getSliceEnv("AFFITRACK_AUTH_PROTECTED_PATHS", []string{
				"/core-stats", "/brands", "/pages", "/links", "/assets", "/entities/",
			}),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("AFFITRACK_RATE_LIMIT_ENABLED", true),
			PublicRPS:   getFloatEnv("AFFITRACK_RATE_LIMIT_PUBLIC_RPS", 1000),
			PublicBurst: getIntEnv("AFFITRACK_RATE_LIMIT_PUBLIC_BURST", 200),
			MgmtRPS:     getFloatEnv("AFFITRACK_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst:   getIntEnv("AFFITRACK_RATE_LIMIT_MGMT_BURST", 20),
			MgmtPaths: getSliceEnv("AFFITRACK_RATE_LIMIT_MGMT_PATHS", []string{
				"/core-stats", "/brands", "/pages", "/links", "/assets", "/entities/",
			}),
		},
		Log: LogConfig{
			Level:  getEnv("AFFITRACK_LOG_LEVEL", "info"),
			Format: getEnv("AFFITRACK_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("AFFITRACK_METRICS_ENABLED", true),
			Path:    getEnv("AFFITRACK_METRICS_PATH", "/metrics"),
		},
		Session: SessionConfig{
			CookieName: getEnv("AFFITRACK_SESSION_COOKIE", "aff_sid"),
			TTL:        getDurationEnv("AFFITRACK_SESSION_TTL", 30*time.Minute),
		},
		Nonce: NonceConfig{
			Secret:   getEnv("AFFITRACK_NONCE_SECRET", ""),
			Interval: getDurationEnv("AFFITRACK_NONCE_INTERVAL", 12*time.Hour),
		},
		Tracking: TrackingConfig{
			ProbeSignatures: getSliceEnv("AFFITRACK_PROBE_SIGNATURES", []string{"URLDetails"}),
			AdminReferer:    getEnv("AFFITRACK_ADMIN_REFERER", "/entities/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("AFFITRACK_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Nonce.Secret == "" {
		return fmt.Errorf("AFFITRACK_NONCE_SECRET is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
