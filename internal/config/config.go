// Package config provides configuration loading and validation for the
// gatehouse service. It uses koanf to merge an optional YAML file with
// GATEHOUSE_-prefixed environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are merged
// over file values (GATEHOUSE_PORT -> port).
const EnvPrefix = "GATEHOUSE_"

// Config holds all configuration values for the gatehouse service.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Local store. Empty means in-memory repositories (development and
	// bench setups without Postgres).
	DatabaseURL string `koanf:"database_url"`

	// Redis, for the registry cache and the shared rate-limit window.
	// Empty disables both.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// Admin authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`
	AdminUsername     string `koanf:"admin_username"`
	AdminPassword     string `koanf:"admin_password"`

	// Remote mirror. Empty base URL disables replication entirely.
	MirrorBaseURL string `koanf:"mirror_base_url"`
	MirrorAPIKey  string `koanf:"mirror_api_key"`

	// Capture loop
	CaptureCadenceMS int `koanf:"capture_cadence_ms"`

	// Gate timings, in seconds. Zero means the built-in default.
	HoldOpenSeconds     int `koanf:"hold_open_seconds"`
	EntryTimeoutSeconds int `koanf:"entry_timeout_seconds"`

	// Outbox replication worker
	OutboxIntervalSeconds int `koanf:"outbox_interval_seconds"`
	OutboxMaxAttempts     int `koanf:"outbox_max_attempts"`

	// SimulateHardware swaps the GPIO-backed door, sensor, and buzzer for
	// in-process simulators.
	SimulateHardware bool `koanf:"simulate_hardware"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret     = errors.New("GATEHOUSE_JWT_SECRET is required")
	ErrMissingAdminUser     = errors.New("GATEHOUSE_ADMIN_USERNAME is required")
	ErrMissingAdminPassword = errors.New("GATEHOUSE_ADMIN_PASSWORD is required")
	ErrMissingMirrorAPIKey  = errors.New("GATEHOUSE_MIRROR_API_KEY is required when a mirror base URL is set")
	ErrInvalidPort          = errors.New("port must be between 1 and 65535")
	ErrInvalidCadence       = errors.New("capture cadence must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort             = 8080
	DefaultEnv              = "development"
	DefaultCaptureCadenceMS = 100
	DefaultOutboxInterval   = 10
	DefaultOutboxAttempts   = 8
)

// Load reads configuration from an optional YAML file and the
// environment. Returns the loaded config and a slice of validation errors
// (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Environment variables override file values.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, []error{fmt.Errorf("failed to load environment: %w", err)}
	}

	cfg := &Config{
		Port:                  DefaultPort,
		Env:                   DefaultEnv,
		CaptureCadenceMS:      DefaultCaptureCadenceMS,
		OutboxIntervalSeconds: DefaultOutboxInterval,
		OutboxMaxAttempts:     DefaultOutboxAttempts,
		SimulateHardware:      true,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	return cfg, cfg.Validate()
}

// Validate checks that all required configuration values are present and
// in range. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.AdminUsername == "" {
		errs = append(errs, ErrMissingAdminUser)
	}
	if c.AdminPassword == "" {
		errs = append(errs, ErrMissingAdminPassword)
	}
	if c.MirrorBaseURL != "" && c.MirrorAPIKey == "" {
		errs = append(errs, ErrMissingMirrorAPIKey)
	}
	if c.CaptureCadenceMS <= 0 {
		errs = append(errs, ErrInvalidCadence)
	}

	return errs
}

// CaptureCadence returns the capture loop cadence as a duration.
func (c *Config) CaptureCadence() time.Duration {
	return time.Duration(c.CaptureCadenceMS) * time.Millisecond
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                fmt.Sprintf("%d", c.Port),
		"env":                 c.Env,
		"database_url":        maskDatabaseURL(c.DatabaseURL),
		"redis_addr":          c.RedisAddr,
		"jwt_secret":          maskSecret(c.JWTSecret),
		"admin_username":      c.AdminUsername,
		"admin_password":      maskSecret(c.AdminPassword),
		"mirror_base_url":     c.MirrorBaseURL,
		"mirror_api_key":      maskSecret(c.MirrorAPIKey),
		"capture_cadence_ms":  fmt.Sprintf("%d", c.CaptureCadenceMS),
		"outbox_interval_s":   fmt.Sprintf("%d", c.OutboxIntervalSeconds),
		"outbox_max_attempts": fmt.Sprintf("%d", c.OutboxMaxAttempts),
		"simulate_hardware":   fmt.Sprintf("%t", c.SimulateHardware),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
