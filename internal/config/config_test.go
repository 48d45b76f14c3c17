package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:             8080,
		Env:              "development",
		JWTSecret:        "secret",
		AdminUsername:    "admin",
		AdminPassword:    "hunter2",
		CaptureCadenceMS: 100,
	}
}

func hasError(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, ErrMissingJWTSecret},
		{"missing admin user", func(c *Config) { c.AdminUsername = "" }, ErrMissingAdminUser},
		{"missing admin password", func(c *Config) { c.AdminPassword = "" }, ErrMissingAdminPassword},
		{"mirror without api key", func(c *Config) { c.MirrorBaseURL = "https://mirror.example.co" }, ErrMissingMirrorAPIKey},
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too large", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"cadence zero", func(c *Config) { c.CaptureCadenceMS = 0 }, ErrInvalidCadence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if errs := cfg.Validate(); !hasError(errs, tt.want) {
				t.Errorf("Validate() = %v, want to contain %v", errs, tt.want)
			}
		})
	}
}

func TestValidateOK(t *testing.T) {
	if errs := validConfig().Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}

	withMirror := validConfig()
	withMirror.MirrorBaseURL = "https://mirror.example.co"
	withMirror.MirrorAPIKey = "service-role-key"
	if errs := withMirror.Validate(); len(errs) != 0 {
		t.Errorf("Validate() with mirror = %v, want no errors", errs)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", "env-secret")
	t.Setenv("GATEHOUSE_ADMIN_USERNAME", "admin")
	t.Setenv("GATEHOUSE_ADMIN_PASSWORD", "hunter2")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.CaptureCadenceMS != DefaultCaptureCadenceMS {
		t.Errorf("CaptureCadenceMS = %d, want %d", cfg.CaptureCadenceMS, DefaultCaptureCadenceMS)
	}
	if cfg.OutboxIntervalSeconds != DefaultOutboxInterval {
		t.Errorf("OutboxIntervalSeconds = %d, want %d", cfg.OutboxIntervalSeconds, DefaultOutboxInterval)
	}
	if cfg.OutboxMaxAttempts != DefaultOutboxAttempts {
		t.Errorf("OutboxMaxAttempts = %d, want %d", cfg.OutboxMaxAttempts, DefaultOutboxAttempts)
	}
	if !cfg.SimulateHardware {
		t.Error("SimulateHardware = false, want true by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", "env-secret")
	t.Setenv("GATEHOUSE_ADMIN_USERNAME", "admin")
	t.Setenv("GATEHOUSE_ADMIN_PASSWORD", "hunter2")
	t.Setenv("GATEHOUSE_PORT", "9090")
	t.Setenv("GATEHOUSE_ENV", "production")
	t.Setenv("GATEHOUSE_CAPTURE_CADENCE_MS", "250")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.CaptureCadence() != 250*time.Millisecond {
		t.Errorf("CaptureCadence() = %v, want 250ms", cfg.CaptureCadence())
	}
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatehouse.yaml")
	yaml := "port: 7000\nenv: staging\njwt_secret: file-secret\nadmin_username: admin\nadmin_password: hunter2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GATEHOUSE_PORT", "7100")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want env override 7100", cfg.Port)
	}
	if cfg.Env != "staging" {
		t.Errorf("Env = %q, want staging from file", cfg.Env)
	}
	if cfg.JWTSecret != "file-secret" {
		t.Errorf("JWTSecret = %q, want file-secret", cfg.JWTSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, errs := Load("/no/such/config.yaml"); len(errs) == 0 {
		t.Error("Load(missing file) returned no errors")
	}
}

func TestLoadValidationFailures(t *testing.T) {
	// No secrets anywhere: Load succeeds structurally but validation fails.
	cfg, errs := Load("")
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if !hasError(errs, ErrMissingJWTSecret) {
		t.Errorf("errors = %v, want ErrMissingJWTSecret", errs)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "<not set>"},
		{"short", "****"},
		{"longenoughsecret", "long****"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "<not set>"},
		{"with password", "postgres://gatehouse:s3cret@db:5432/gatehouse", "postgres://gatehouse:****@db:5432/gatehouse"},
		{"no credentials", "postgres://db:5432/gatehouse", "postgres://db:5432/gatehouse"},
		{"user only", "postgres://gatehouse@db:5432/gatehouse", "postgres://gatehouse@db:5432/gatehouse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskDatabaseURL(tt.in); got != tt.want {
				t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogSummaryMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = "supersecretjwtvalue"
	cfg.AdminPassword = "supersecretpassword"
	cfg.MirrorAPIKey = "supersecretapikey"

	summary := cfg.LogSummary()
	for _, key := range []string{"jwt_secret", "admin_password", "mirror_api_key"} {
		v := summary[key]
		if v == "" {
			t.Errorf("summary missing %s", key)
			continue
		}
		if len(v) > 8 && v[4:8] != "****" {
			t.Errorf("summary[%s] = %q looks unmasked", key, v)
		}
	}
}
