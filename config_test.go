package authcore

import (
	"net/http"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = testAccessSecret
	cfg.JWT.RefreshSecret = testRefreshSecret
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with secrets", mutate: func(*Config) {}, wantValid: true},
		{
			name:      "missing access secret",
			mutate:    func(c *Config) { c.JWT.AccessSecret = nil },
			wantValid: false,
		},
		{
			name:      "short refresh secret",
			mutate:    func(c *Config) { c.JWT.RefreshSecret = []byte("short") },
			wantValid: false,
		},
		{
			name:      "identical secrets",
			mutate:    func(c *Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret },
			wantValid: false,
		},
		{
			name:      "refresh shorter than access",
			mutate:    func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
			wantValid: false,
		},
		{
			name:      "leeway too large",
			mutate:    func(c *Config) { c.JWT.Leeway = 3 * time.Minute },
			wantValid: false,
		},
		{
			name:      "blank audience",
			mutate:    func(c *Config) { c.JWT.Audience = "   " },
			wantValid: false,
		},
		{
			name:      "cookie names collide",
			mutate:    func(c *Config) { c.Cookie.RefreshName = c.Cookie.AccessName },
			wantValid: false,
		},
		{
			name:      "samesite none needs secure",
			mutate:    func(c *Config) { c.Cookie.SameSite = http.SameSiteNoneMode },
			wantValid: false,
		},
		{
			name: "samesite none with secure",
			mutate: func(c *Config) {
				c.Cookie.SameSite = http.SameSiteNoneMode
				c.Cookie.Secure = true
			},
			wantValid: true,
		},
		{
			name:      "weak argon memory",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "zero login attempts",
			mutate:    func(c *Config) { c.Security.MaxLoginAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "production needs secure cookies",
			mutate:    func(c *Config) { c.Security.ProductionMode = true },
			wantValid: false,
		},
		{
			name: "production with secure cookies",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Cookie.Secure = true
			},
			wantValid: true,
		},
		{
			name: "production caps refresh lifetime",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Cookie.Secure = true
				c.JWT.RefreshTTL = 60 * 24 * time.Hour
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuilderRejectsInvalidSetup(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without secrets")
	}
}

func TestBuilderCopiesSecrets(t *testing.T) {
	secret := append([]byte(nil), testAccessSecret...)
	env := newTestEnv(t, func(c *Config, _ *Builder) {
		c.JWT.AccessSecret = secret
	})
	env.register(t, "carol", "carol@example.com", "pw-carol")
	res := env.login(t, "carol", "pw-carol")

	secret[0] ^= 0xff
	if _, err := env.engine.Validate(t.Context(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("engine must not alias the caller's secret: %v", err)
	}
}
