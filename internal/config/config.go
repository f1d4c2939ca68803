// Package config loads service configuration from the environment.
//
// An optional .env file in the working directory is read first; values
// already present in the environment win. Every key is read with the DESK_
// prefix and falls back to the bare name, so DESK_PORT and PORT both work.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dtc/client-desk/internal/model"
)

// Prefix is the environment variable prefix.
const Prefix = "DESK"

// Config is the complete service configuration.
type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	JWTSecret             string        `envconfig:"JWT_SECRET"`
	TokenTTL              time.Duration `envconfig:"TOKEN_TTL" default:"12h"`
	RestrictedPermissions []string      `envconfig:"RESTRICTED_PERMISSIONS" default:"manage_users,system_settings"`
	BootstrapAdminEmail   string        `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`

	PhoneRegion    string   `envconfig:"PHONE_REGION" default:"PK"`
	RateLimitRPS   float64  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int      `envconfig:"RATE_LIMIT_BURST" default:"40"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	if _, err := c.Restricted(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Restricted parses RestrictedPermissions. An explicitly empty list is
// returned as an empty, non-nil slice.
func (c *Config) Restricted() ([]model.Permission, error) {
	out := make([]model.Permission, 0, len(c.RestrictedPermissions))
	for _, raw := range c.RestrictedPermissions {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := model.ParsePermission(raw)
		if err != nil {
			return nil, fmt.Errorf("RESTRICTED_PERMISSIONS: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
