package sessionAuth

import (
	"errors"
	"time"

	"github.com/MrEthical07/sessionAuth/internal/audit"
	"github.com/MrEthical07/sessionAuth/jwt"
	"github.com/MrEthical07/sessionAuth/refresh"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Authority]. A Builder can be used for one Build only.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the refresh registry. Standalone,
// cluster and failover clients all satisfy redis.UniversalClient.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. A nil logger disables logging.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go. It only matters when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for token issuance, verification and registry
// TTLs. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, derives the signing key once and wires
// the codec, registry, metrics and audit dispatcher.
func (b *Builder) Build() (*Authority, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- KEY + CODEC --------
	key, err := jwt.NewKey(cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		Key:           key,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		Issuer:        cfg.JWT.Issuer,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- REFRESH REGISTRY --------
	registry := refresh.NewRegistry(b.redis, refresh.Options{
		KeyPrefix:   cfg.Registry.KeyPrefix,
		IndexPrefix: cfg.Registry.IndexPrefix,
		Now:         now,
		Logger:      logger,
	})

	a := &Authority{
		config:   cfg,
		tokens:   tokens,
		registry: registry,
		metrics:  NewMetrics(cfg.Metrics),
		log:      logger.Named("authority"),
		now:      now,
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}
	a.audit = audit.New[AuditEvent](audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink.Emit)

	b.built = true

	return a, nil
}
