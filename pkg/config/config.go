// Package config loads service configuration from DIRHUB_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dirhub/pkg/kvstore"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig
	Redis  kvstore.Config
	RBAC   RBACConfig
	Auth   AuthConfig
	Log    LogConfig
}

// ServerConfig holds the HTTP listener settings. The ops port serves
// health and metrics separately from the API.
type ServerConfig struct {
	Addr            string
	OpsAddr         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RBACConfig tunes the permission engine.
type RBACConfig struct {
	CacheTTL          time.Duration
	ReconcileSchedule string
	AuditMaxEvents    int64
}

// AuthConfig tunes token validation and abuse controls.
type AuthConfig struct {
	RateLimit        int64
	RateWindow       time.Duration
	LoginMaxFailures int64
	LoginWindow      time.Duration
	LoginLockTTL     time.Duration
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("DIRHUB_ADDR", ":8080"),
			OpsAddr:         getEnv("DIRHUB_OPS_ADDR", ":9090"),
			ReadTimeout:     getEnvDuration("DIRHUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("DIRHUB_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("DIRHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: kvstore.Config{
			URL:        getEnv("DIRHUB_REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("DIRHUB_REDIS_PASSWORD", ""),
			DB:         getEnvInt("DIRHUB_REDIS_DB", 0),
			MaxRetries: getEnvInt("DIRHUB_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("DIRHUB_REDIS_POOL_SIZE", 10),
		},
		RBAC: RBACConfig{
			CacheTTL:          getEnvDuration("DIRHUB_DECISION_CACHE_TTL", 30*time.Second),
			ReconcileSchedule: getEnv("DIRHUB_RECONCILE_SCHEDULE", "@hourly"),
			AuditMaxEvents:    getEnvInt64("DIRHUB_AUDIT_MAX_EVENTS", 1000),
		},
		Auth: AuthConfig{
			RateLimit:        getEnvInt64("DIRHUB_RATE_LIMIT", 300),
			RateWindow:       getEnvDuration("DIRHUB_RATE_WINDOW", time.Minute),
			LoginMaxFailures: getEnvInt64("DIRHUB_LOGIN_MAX_FAILURES", 5),
			LoginWindow:      getEnvDuration("DIRHUB_LOGIN_WINDOW", 15*time.Minute),
			LoginLockTTL:     getEnvDuration("DIRHUB_LOGIN_LOCK_TTL", 15*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("DIRHUB_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.RBAC.CacheTTL < 0 {
		return fmt.Errorf("decision cache TTL cannot be negative")
	}
	if c.RBAC.AuditMaxEvents <= 0 {
		return fmt.Errorf("audit max events must be positive")
	}
	if c.Auth.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Auth.LoginMaxFailures <= 0 {
		return fmt.Errorf("login max failures must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
