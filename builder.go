package goTokens

import (
	"context"
	"errors"
	"io/fs"

	"github.com/MrEthical07/goTokens/keystore"
	"github.com/MrEthical07/goTokens/ledger"
	"github.com/MrEthical07/goTokens/revocation"
	"github.com/MrEthical07/goTokens/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goTokens APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	ledger      ledger.Store
	keyProvider keystore.Provider

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLedger describes the withledger operation and its observable behavior.
//
// WithLedger may return an error when input validation, dependency calls, or security checks fail.
// WithLedger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLedger(store ledger.Store) *Builder {
	b.ledger = store
	return b
}

// WithKeyProvider describes the withkeyprovider operation and its observable behavior.
//
// WithKeyProvider may return an error when input validation, dependency calls, or security checks fail.
// WithKeyProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithKeyProvider(provider keystore.Provider) *Builder {
	b.keyProvider = provider
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
//
// WithUserProvider may return an error when input validation, dependency calls, or security checks fail.
// WithUserProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.ledger == nil {
		return nil, errors.New("token ledger required")
	}
	if b.keyProvider == nil {
		return nil, errors.New("key provider required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- KEYSTORE --------
	keys, err := keystore.New(b.keyProvider, b.redis, keystore.Config{
		RotationPeriod:  cfg.Keys.RotationPeriod,
		RotationOverlap: cfg.Keys.RotationOverlap,
		KeySize:         cfg.Keys.KeySize,
		MetadataKey:     cfg.Keys.MetadataKey,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := keys.Load(ctx); err != nil {
		// Mint the initial pair only when the provider holds no key material
		// at all. Every other load failure must surface: overwriting deployed
		// keys would strand every outstanding token.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		material, genErr := keystore.GenerateKeyPair(cfg.Keys.KeySize)
		if genErr != nil {
			return nil, genErr
		}
		if storeErr := b.keyProvider.Store(material); storeErr != nil {
			return nil, storeErr
		}
		if loadErr := keys.Load(ctx); loadErr != nil {
			return nil, loadErr
		}
	}

	// -------- TOKEN CODEC --------
	codec, err := token.NewCodec(keys, token.Config{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		codec:  codec,
		keys:   keys,
		cache:  revocation.NewStore(b.redis),
		ledger: b.ledger,
	}

	engine.userProvider = b.userProvider
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
