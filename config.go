package guard

import (
	"errors"
	"time"

	"github.com/botnev/guard/spam"
)

// SessionConfig controls session issuance and verification.
type SessionConfig struct {
	// TTL is the session lifetime. Defaults to 90 days.
	TTL time.Duration
	// RedisPrefix namespaces session keys when Redis backs the store.
	RedisPrefix string
	// BindFingerprint binds issued sessions to the device fingerprint of
	// the login request. A bound session presented with a different
	// fingerprint is rejected.
	BindFingerprint bool
}

// LoginConfig controls the login policy chain.
type LoginConfig struct {
	// MaxAttempts is the failed-attempt budget per (identity, IP) within
	// AttemptWindow. Successful login resets the counter.
	MaxAttempts   int64
	AttemptWindow time.Duration

	// RequireCaptcha gates every login behind a CAPTCHA assertion. The
	// check fails closed when the verifier is unreachable.
	RequireCaptcha bool
	// RequireVerified rejects logins from unverified accounts.
	RequireVerified bool
	// EnforceFingerprint rejects logins when the request fingerprint
	// differs from the one recorded at the last successful login. Off by
	// default: the recorded fingerprint is normally advisory.
	EnforceFingerprint bool

	// BcryptCost is the bcrypt work factor for credential verification.
	// Zero selects the package default.
	BcryptCost int

	// FailureDelayMin and FailureDelayMax bound the uniform random delay
	// applied to every login failure path, so response timing does not
	// reveal which check rejected the attempt. Set both to zero to
	// disable (tests).
	FailureDelayMin time.Duration
	FailureDelayMax time.Duration
}

// MessageConfig controls message validation and throttling.
type MessageConfig struct {
	// ShortWindow/ShortWindowLimit is the burst limit per sender. The
	// same window also scopes duplicate suppression.
	ShortWindow      time.Duration
	ShortWindowLimit int64

	// LongWindow/LongWindowLimit is the daily-scale limit per sender.
	LongWindow      time.Duration
	LongWindowLimit int64

	// EnableIPThrottle adds a per-source-IP counter over ShortWindow.
	EnableIPThrottle bool
	IPWindowLimit    int64

	// MaxSubjectLength and MaxBodyLength are rune limits on input.
	MaxSubjectLength int
	MaxBodyLength    int

	// DeliveryTimeout bounds the mail transport call. On timeout the
	// message stays stored and the receipt reports Delivered=false.
	DeliveryTimeout time.Duration
}

// CaptchaConfig controls the CAPTCHA verifier call.
type CaptchaConfig struct {
	// Timeout bounds each verification request.
	Timeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is
	// full. Dropped counts are reported by Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics bank.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration.
type Config struct {
	Session SessionConfig
	Login   LoginConfig
	Message MessageConfig
	Spam    spam.Config
	Captcha CaptchaConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// WindowPrefix namespaces rate-window keys when Redis backs them.
	WindowPrefix string
}

// DefaultConfig returns the production defaults: 5 login attempts per 10
// minutes, 90-day fingerprint-bound sessions, 30 messages per 30 minutes
// and 200 per day, and a 500ms-1.5s uniform failure delay.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:             90 * 24 * time.Hour,
			RedisPrefix:     "sess",
			BindFingerprint: true,
		},
		Login: LoginConfig{
			MaxAttempts:     5,
			AttemptWindow:   10 * time.Minute,
			RequireCaptcha:  true,
			RequireVerified: true,
			BcryptCost:      10,
			FailureDelayMin: 500 * time.Millisecond,
			FailureDelayMax: 1500 * time.Millisecond,
		},
		Message: MessageConfig{
			ShortWindow:      30 * time.Minute,
			ShortWindowLimit: 30,
			LongWindow:       24 * time.Hour,
			LongWindowLimit:  200,
			IPWindowLimit:    60,
			MaxSubjectLength: 200,
			MaxBodyLength:    10000,
			DeliveryTimeout:  5 * time.Second,
		},
		Spam: spam.DefaultConfig(),
		Captcha: CaptchaConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		WindowPrefix: "rw",
	}
}

// Validate checks the configuration for values the engine cannot run
// with.
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("Session.TTL must be positive")
	}
	if c.Login.MaxAttempts <= 0 {
		return errors.New("Login.MaxAttempts must be positive")
	}
	if c.Login.AttemptWindow <= 0 {
		return errors.New("Login.AttemptWindow must be positive")
	}
	if c.Login.FailureDelayMin < 0 || c.Login.FailureDelayMax < c.Login.FailureDelayMin {
		return errors.New("Login failure delay bounds invalid")
	}
	if c.Message.ShortWindow <= 0 || c.Message.ShortWindowLimit <= 0 {
		return errors.New("Message short window invalid")
	}
	if c.Message.LongWindow <= 0 || c.Message.LongWindowLimit <= 0 {
		return errors.New("Message long window invalid")
	}
	if c.Message.EnableIPThrottle && c.Message.IPWindowLimit <= 0 {
		return errors.New("Message.IPWindowLimit must be positive when IP throttling is enabled")
	}
	if c.Message.MaxSubjectLength <= 0 || c.Message.MaxBodyLength <= 0 {
		return errors.New("Message length limits must be positive")
	}
	if c.Message.DeliveryTimeout <= 0 {
		return errors.New("Message.DeliveryTimeout must be positive")
	}
	if c.Captcha.Timeout <= 0 {
		return errors.New("Captcha.Timeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.Spam.Phrases) > 0 {
		out.Spam.Phrases = append([]string(nil), cfg.Spam.Phrases...)
	}
	return out
}
