package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SECURITY_KEY", "test-security-key")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
	t.Setenv("JWT_ISSUER", "identityhub")
	t.Setenv("JWT_AUDIENCE", "identityhub-clients")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if cfg.Environment != "development" {
		t.Fatalf("expected development environment, got %q", cfg.Environment)
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Fatalf("expected 24h expiry, got %v", cfg.JWTExpiry)
	}
	if cfg.ScryptCost != 16384 {
		t.Fatalf("expected default scrypt cost, got %d", cfg.ScryptCost)
	}
	if cfg.SigninMaxAttempts != 5 || cfg.SigninWindow != 15*time.Minute {
		t.Fatalf("unexpected throttle defaults: %d / %v", cfg.SigninMaxAttempts, cfg.SigninWindow)
	}
	if cfg.RateLimitRequests != 30 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d / %v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_EXPIRY", "1h")
	t.Setenv("SCRYPT_COST", "32768")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerPort != 9090 {
		t.Fatalf("port override ignored: %d", cfg.ServerPort)
	}
	if cfg.JWTExpiry != time.Hour {
		t.Fatalf("expiry override ignored: %v", cfg.JWTExpiry)
	}
	if cfg.ScryptCost != 32768 {
		t.Fatalf("scrypt cost override ignored: %d", cfg.ScryptCost)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadMissingSecrets(t *testing.T) {
	required := []string{"SECURITY_KEY", "JWT_SECRET", "JWT_ISSUER", "JWT_AUDIENCE"}
	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error when %s is unset", missing)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Fatalf("error should name %s, got %v", missing, err)
			}
		})
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SERVER_PORT": "not-a-port",
		"JWT_EXPIRY":  "soon",
		"SCRYPT_COST": "big",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
