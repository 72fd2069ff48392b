package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

const tracerName = "github.com/MrEthical07/authcore"

// Builder assembles an [Engine]. A Builder can only be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store          UserStore
	hasher         PasswordHasher
	auditSink      AuditSink
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is cloned.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential and session store. Required.
func (b *Builder) WithStore(store UserStore) *Builder {
	b.store = store
	return b
}

// WithRedis enables failed-login throttling backed by client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPasswordHasher overrides the default Argon2id/bcrypt hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the destination of audit events. It only takes effect
// when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the tracer provider used for operation spans.
// The global provider is used when unset.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithClock overrides the wall clock used for token issuance, verification
// and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login and refresh latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("user store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.New(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	// Unknown identifiers are verified against this hash so a miss costs
	// the same as a wrong password.
	decoyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		store:      b.store,
		hasher:     hasher,
		jwtManager: jm,
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
		now:        now,
		metrics:    NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	warn := func(msg string, args ...any) { logger.Warn(msg, args...) }
	engine.flows = flows.New(flows.Deps{
		Credentials: flows.CredentialDeps{
			FindByUsernameOrEmail: b.store.FindByUsernameOrEmail,
			UpdatePasswordHash:    b.store.UpdatePasswordHash,
			VerifyPassword:        hasher.Verify,
			PasswordNeedsUpgrade:  hasher.NeedsUpgrade,
			HashPassword:          hasher.Hash,
			DecoyHash:             decoyHash,
			UpgradeOnLogin:        cfg.Password.UpgradeOnLogin,
			Warn:                  warn,
		},
		Issue: flows.IssueDeps{
			IssuePair:       jm.IssuePair,
			SetRefreshToken: b.store.SetRefreshToken,
		},
		Refresh: flows.RefreshDeps{
			ParseRefresh:       jm.ParseRefresh,
			FindByID:           b.store.FindByID,
			GetRefreshToken:    b.store.GetRefreshToken,
			RotateRefreshToken: b.store.RotateRefreshToken,
			ClearRefreshToken:  b.store.ClearRefreshToken,
			IssuePair:          jm.IssuePair,
			RevokeOnReuse:      cfg.Security.RevokeOnReuse,
			Warn:               warn,
		},
		Logout: flows.LogoutDeps{
			ClearRefreshToken: b.store.ClearRefreshToken,
		},
		Register: flows.RegisterDeps{
			HashPassword: hasher.Hash,
			Create:       b.store.Create,
		},
		Validate: flows.ValidateDeps{
			ParseAccess: jm.ParseAccess,
		},
	})

	b.built = true

	return engine, nil
}
