// Package config loads the authd server settings from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	sessionAuth "github.com/MrEthical07/sessionAuth"
)

// Config holds the server configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// RedisAddr is the Redis address; empty starts an in-process miniredis.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWTSecret is the HMAC signing secret, at least 32 bytes.
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	JWTAccessTTLSeconds  int    `mapstructure:"JWT_ACCESS_TTL_SECONDS"`
	JWTRefreshTTLSeconds int    `mapstructure:"JWT_REFRESH_TTL_SECONDS"`
	JWTIssuer            string `mapstructure:"JWT_ISSUER"`
	JWTSigningMethod     string `mapstructure:"JWT_SIGNING_METHOD"`

	// AuthBypassPrefixes is a comma-separated list of path prefixes the gate skips.
	AuthBypassPrefixes string `mapstructure:"AUTH_BYPASS_PREFIXES"`

	// RateLimit is the number of login/refresh calls allowed per client IP
	// per RateWindowSeconds. Zero disables throttling.
	RateLimit         int `mapstructure:"RATE_LIMIT"`
	RateWindowSeconds int `mapstructure:"RATE_WINDOW_SECONDS"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Env is the application environment; "production" switches logs to JSON.
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore missing file

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL_SECONDS", 900)
	v.SetDefault("JWT_REFRESH_TTL_SECONDS", 604800)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_SIGNING_METHOD", "HS256")
	v.SetDefault("AUTH_BYPASS_PREFIXES", strings.Join(sessionAuth.DefaultBypassPrefixes, ","))
	v.SetDefault("RATE_LIMIT", 30)
	v.SetDefault("RATE_WINDOW_SECONDS", 60)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if cfg.JWTAccessTTLSeconds <= 0 || cfg.JWTRefreshTTLSeconds <= 0 {
		return nil, errors.New("config: JWT TTLs must be positive")
	}

	return &cfg, nil
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLSeconds) * time.Second
}

// RefreshTTL returns the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLSeconds) * time.Second
}

// RateWindow returns the throttle window.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// BypassPrefixes splits AuthBypassPrefixes, dropping blanks.
func (c *Config) BypassPrefixes() []string {
	if c == nil || c.AuthBypassPrefixes == "" {
		return nil
	}
	parts := strings.Split(c.AuthBypassPrefixes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ToAuthConfig maps the environment settings onto an authority Config.
// The result still goes through Config.Validate in Build.
func (c *Config) ToAuthConfig() sessionAuth.Config {
	out := sessionAuth.DefaultConfig()
	out.JWT.Secret = c.JWTSecret
	out.JWT.AccessTTL = c.AccessTTL()
	out.JWT.RefreshTTL = c.RefreshTTL()
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.SigningMethod = c.JWTSigningMethod
	out.Gate.BypassPrefixes = c.BypassPrefixes()
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return out
}
