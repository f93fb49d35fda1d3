package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "a-perfectly-reasonable-dev-secret")
	t.Setenv("DB_PASSWORD", "postgres")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("MaxAttempts: got %d, want 5", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.BlockDuration != 15*time.Minute {
		t.Errorf("BlockDuration: got %v, want 15m", cfg.Lockout.BlockDuration)
	}
	if cfg.Lockout.PermanentBlockAfter != 10 {
		t.Errorf("PermanentBlockAfter: got %d, want 10", cfg.Lockout.PermanentBlockAfter)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port: got %q, want 8080", cfg.Server.Port)
	}
	if cfg.Auth.AccessTokenExpiry != 15*time.Minute {
		t.Errorf("AccessTokenExpiry: got %v, want 15m", cfg.Auth.AccessTokenExpiry)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_BLOCK_DURATION", "5m")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.org, https://staging.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Lockout.MaxAttempts != 3 {
		t.Errorf("MaxAttempts: got %d, want 3", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.BlockDuration != 5*time.Minute {
		t.Errorf("BlockDuration: got %v, want 5m", cfg.Lockout.BlockDuration)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins: got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.AllowedOrigins[1] != "https://staging.example.org" {
		t.Errorf("AllowedOrigins not trimmed: %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "postgres")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing JWT_SECRET")
	}
}

func TestLoad_RequiresDBPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-perfectly-reasonable-dev-secret")
	t.Setenv("DB_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing DB_PASSWORD")
	}
}

func TestLoad_RejectsBadMFAKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MFA_ENCRYPTION_KEY", "too-short")

	if _, err := Load(); err == nil {
		t.Error("expected error for short MFA_ENCRYPTION_KEY")
	}
}

func TestLoad_RejectsBadLockoutConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for zero LOCKOUT_MAX_ATTEMPTS")
	}
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		env        string
		shouldFail bool
	}{
		{"short secret in development", "short-ish-ok-123", "development", false},
		{"short secret in production", "short-ish-ok-123", "production", true},
		{"long secret in production", "a-very-long-production-secret-value!", "production", false},
		{"weak common value", "changeme", "development", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.shouldFail && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.shouldFail && err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}
