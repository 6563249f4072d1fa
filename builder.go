package guard

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botnev/guard/cryptobox"
	internalaudit "github.com/botnev/guard/internal/audit"
	"github.com/botnev/guard/internal/metrics"
	"github.com/botnev/guard/password"
	"github.com/botnev/guard/ratewindow"
	"github.com/botnev/guard/session"
	"github.com/botnev/guard/spam"
)

// Builder assembles an Engine. A Builder is single-use: Build can be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	secret []byte
	salt   []byte

	accounts AccountStore
	blocks   BlockStore
	messages MessageStore
	captcha  CaptchaVerifier
	mail     MailTransport

	auditSink    AuditSink
	sessionStore session.Store
	windowStore  ratewindow.Store

	built bool
}

// New creates a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing sessions and rate windows.
// Without it the Engine uses in-process stores, which only cover
// single-instance deployments.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionSecret supplies the key material for encrypted session
// tokens. Without it tokens are plain random values, which still
// authenticate but carry no sealed identity.
func (b *Builder) WithSessionSecret(secret, salt []byte) *Builder {
	b.secret = append([]byte(nil), secret...)
	b.salt = append([]byte(nil), salt...)
	return b
}

// WithAccountStore supplies the account lookup collaborator. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithBlockStore supplies the recipient block list. Optional; without it
// block checks are skipped.
func (b *Builder) WithBlockStore(store BlockStore) *Builder {
	b.blocks = store
	return b
}

// WithMessageStore supplies message persistence. Required.
func (b *Builder) WithMessageStore(store MessageStore) *Builder {
	b.messages = store
	return b
}

// WithCaptchaVerifier supplies the CAPTCHA collaborator. Required when
// Login.RequireCaptcha is set.
func (b *Builder) WithCaptchaVerifier(verifier CaptchaVerifier) *Builder {
	b.captcha = verifier
	return b
}

// WithMailTransport supplies message delivery. Optional; without it
// accepted messages are stored but never delivered.
func (b *Builder) WithMailTransport(transport MailTransport) *Builder {
	b.mail = transport
	return b
}

// WithAuditSink supplies the audit event consumer. Defaults to a no-op
// sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSessionStore overrides the session store selected from the Redis
// client. Intended for tests and custom backends.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithWindowStore overrides the rate-window store selected from the
// Redis client. Intended for tests and custom backends.
func (b *Builder) WithWindowStore(store ratewindow.Store) *Builder {
	b.windowStore = store
	return b
}

// WithMetricsEnabled toggles the in-process metrics bank.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.messages == nil {
		return nil, errors.New("message store required")
	}
	if cfg.Login.RequireCaptcha && b.captcha == nil {
		return nil, errors.New("captcha verifier required when Login.RequireCaptcha is set")
	}

	sessionStore := b.sessionStore
	if sessionStore == nil {
		if b.redis != nil {
			sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
		} else {
			sessionStore = session.NewMemoryStore()
		}
	}

	windowStore := b.windowStore
	if windowStore == nil {
		if b.redis != nil {
			windowStore = ratewindow.NewRedisStore(b.redis, cfg.WindowPrefix)
		} else {
			windowStore = ratewindow.NewMemoryStore()
		}
	}

	var codec session.TokenCodec
	if len(b.secret) > 0 {
		box, err := cryptobox.New(b.secret, b.salt)
		if err != nil {
			return nil, err
		}
		codec = box
	}

	hasher, err := password.NewBcrypt(cfg.Login.BcryptCost)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		blocks:   b.blocks,
		messages: b.messages,
		captcha:  b.captcha,
		mail:     b.mail,
		sessions: session.NewManager(sessionStore, codec),
		windows:  ratewindow.New(windowStore),
		hasher:   hasher,
		scorer:   spam.New(cfg.Spam),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		now:     time.Now,
		sleep:   time.Sleep,
	}

	b.built = true

	return engine, nil
}
