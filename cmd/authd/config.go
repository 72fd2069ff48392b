package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/authcore"
)

// Duration accepts Go durations ("15m") and whole days ("10d").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(time.Duration(n) * 24 * time.Hour)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the process configuration. Values come from defaults, then an
// optional TOML file, then the environment.
type Config struct {
	Port     int    `toml:"port" env:"PORT"`
	Env      string `toml:"env" env:"APP_ENV"`
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	Store       string `toml:"store" env:"AUTHD_STORE"`
	RedisAddr   string `toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPrefix string `toml:"redis_prefix" env:"REDIS_PREFIX"`
	DatabaseDSN string `toml:"database_dsn" env:"DATABASE_DSN"`
	SQLitePath  string `toml:"sqlite_path" env:"SQLITE_PATH"`

	AccessSecret  string   `toml:"access_token_secret" env:"ACCESS_TOKEN_SECRET"`
	AccessExpiry  Duration `toml:"access_token_expiry" env:"ACCESS_TOKEN_EXPIRY"`
	RefreshSecret string   `toml:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET"`
	RefreshExpiry Duration `toml:"refresh_token_expiry" env:"REFRESH_TOKEN_EXPIRY"`
	Issuer        string   `toml:"issuer" env:"TOKEN_ISSUER"`
	RevokeOnReuse bool     `toml:"revoke_on_reuse" env:"REVOKE_ON_REUSE"`

	CookieDomain string `toml:"cookie_domain" env:"COOKIE_DOMAIN"`

	RateLimitPerSecond float64 `toml:"rate_limit_per_second" env:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int     `toml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	AuditLog     bool     `toml:"audit_log" env:"AUDIT_LOG"`
	OTelEndpoint string   `toml:"otel_endpoint" env:"OTEL_ENDPOINT"`
	ShutdownWait Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

func defaultConfig() Config {
	return Config{
		Port:               8000,
		Env:                "development",
		LogLevel:           "info",
		Store:              "memory",
		RedisPrefix:        "authd",
		AccessExpiry:       Duration(15 * time.Minute),
		RefreshExpiry:      Duration(10 * 24 * time.Hour),
		Issuer:             "authd",
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
		ShutdownWait:       Duration(10 * time.Second),
	}
}

// Load reads path (or AUTHD_CONFIG_FILE when path is empty) and then the
// environment.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("AUTHD_CONFIG_FILE")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	switch c.Store {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis store")
		}
	case "postgres":
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres store")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

func (c Config) production() bool {
	return strings.EqualFold(c.Env, "production")
}

// engineConfig maps the process configuration onto the engine's.
func (c Config) engineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	cfg.JWT.AccessTTL = time.Duration(c.AccessExpiry)
	cfg.JWT.RefreshTTL = time.Duration(c.RefreshExpiry)
	cfg.JWT.Issuer = c.Issuer

	cfg.Cookie.Domain = c.CookieDomain
	cfg.Cookie.Secure = c.production()
	cfg.Cookie.SameSite = http.SameSiteStrictMode

	cfg.Security.ProductionMode = c.production()
	cfg.Security.RevokeOnReuse = c.RevokeOnReuse

	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}
