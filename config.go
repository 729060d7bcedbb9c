package sessionAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/sessionAuth/jwt"
)

// Config is the complete authority configuration. Build it with
// [DefaultConfig], override fields, and pass it to [Builder.WithConfig].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT      JWTConfig
	Registry RegistryConfig
	Gate     GateConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing. Secret is the only required field.
type JWTConfig struct {
	Secret        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "HS256" (default), "HS384", "HS512"
	Issuer        string
}

/*
====================================
REGISTRY CONFIG
====================================
*/

// RegistryConfig sets the Redis key namespaces of the refresh registry.
type RegistryConfig struct {
	KeyPrefix   string
	IndexPrefix string
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig controls the request-time authentication gate.
type GateConfig struct {
	// BypassPrefixes are request path prefixes that skip the gate entirely.
	BypassPrefixes []string
	// Authorities are granted to every authenticated principal.
	Authorities []string
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultBypassPrefixes are the public, docs and auth roots left open by default.
var DefaultBypassPrefixes = []string{
	"/api/public",
	"/api/auth",
	"/docs",
	"/swagger-ui",
	"/v3/api-docs",
}

// DefaultConfig returns a Config with every field except JWT.Secret set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: string(jwt.MethodHS256),
		},
		Registry: RegistryConfig{
			KeyPrefix:   "rt",
			IndexPrefix: "rtidx",
		},
		Gate: GateConfig{
			BypassPrefixes: append([]string(nil), DefaultBypassPrefixes...),
			Authorities:    []string{"ROLE_USER"},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Gate.BypassPrefixes = cloneStrings(cfg.Gate.BypassPrefixes)
	out.Gate.Authorities = cloneStrings(cfg.Gate.Authorities)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Validate checks cfg for values the authority cannot run with.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL < time.Second {
		return errors.New("JWT AccessTTL must be >= 1s")
	}
	if c.JWT.RefreshTTL < time.Second {
		return errors.New("JWT RefreshTTL must be >= 1s")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch jwt.SigningMethod(strings.ToUpper(c.JWT.SigningMethod)) {
	case "", jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Registry
	if strings.TrimSpace(c.Registry.KeyPrefix) == "" || strings.TrimSpace(c.Registry.IndexPrefix) == "" {
		return errors.New("Registry prefixes must be non-empty")
	}
	if c.Registry.KeyPrefix == c.Registry.IndexPrefix {
		return errors.New("Registry KeyPrefix and IndexPrefix must differ")
	}

	// Gate
	for _, prefix := range c.Gate.BypassPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return errors.New("Gate BypassPrefixes must start with '/'")
		}
		if prefix == "/" {
			return errors.New("Gate BypassPrefixes must not bypass every path")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
