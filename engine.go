package guard

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"github.com/botnev/guard/fingerprint"
	"github.com/botnev/guard/internal/audit"
	"github.com/botnev/guard/internal/metrics"
	"github.com/botnev/guard/password"
	"github.com/botnev/guard/ratewindow"
	"github.com/botnev/guard/session"
	"github.com/botnev/guard/spam"
)

// Engine runs the login and messaging policy chains. Build one with a
// Builder; a built Engine is immutable and safe for concurrent use.
type Engine struct {
	config Config

	accounts AccountStore
	blocks   BlockStore
	messages MessageStore
	captcha  CaptchaVerifier
	mail     MailTransport

	sessions *session.Manager
	windows  *ratewindow.Counter
	hasher   *password.Bcrypt
	scorer   *spam.Scorer
	audit    *audit.Dispatcher
	metrics  *metrics.Metrics

	now   func() time.Time
	sleep func(time.Duration)
}

// Close flushes and stops the audit dispatcher. The Engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// VerifySession resolves a session token to its identity. The request
// fingerprint is derived from context attributes; a bound session
// presented with a different fingerprint is rejected. All rejection
// causes surface as ErrUnauthenticated.
func (e *Engine) VerifySession(ctx context.Context, token string) (string, error) {
	if e == nil || e.sessions == nil {
		return "", ErrEngineNotReady
	}

	identity, err := e.sessions.Verify(ctx, token, e.requestFingerprint(ctx))
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			return "", ErrDependencyUnavailable
		}
		e.metricInc(MetricSessionVerifyFailure)
		e.emitAudit(ctx, auditEventSessionRejected, false, "", e.requestFingerprint(ctx), err, nil)
		return "", ErrUnauthenticated
	}

	return identity, nil
}

// Logout revokes the session for token. Revoking an unknown or already
// expired token succeeds.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	err := e.sessions.Revoke(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		err = nil
	}
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			err = ErrDependencyUnavailable
		}
		e.emitAudit(ctx, auditEventLogout, false, "", "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventLogout, true, "", "", nil, nil)
	return nil
}

// PurgeExpired sweeps expired session records from stores without native
// TTL expiry and returns how many were removed. Intended to run
// periodically from a background task.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.PurgeExpired(ctx)
}

// requestFingerprint derives the device fingerprint from request
// attributes attached to ctx. Missing attributes hash as empty strings,
// which still yields a stable value per client configuration.
func (e *Engine) requestFingerprint(ctx context.Context) string {
	return fingerprint.Derive(
		userAgentFromContext(ctx),
		acceptLanguageFromContext(ctx),
		clientIPFromContext(ctx),
	)
}

// failureDelay sleeps for a uniform random duration inside the configured
// bounds. Every login failure path pays this delay so response timing
// does not reveal which check rejected the attempt.
func (e *Engine) failureDelay() {
	min := e.config.Login.FailureDelayMin
	max := e.config.Login.FailureDelayMax
	if max <= 0 {
		return
	}

	d := min
	if span := max - min; span > 0 {
		d += time.Duration(rand.Int64N(int64(span) + 1))
	}
	e.sleep(d)
}

func logWarn(msg string) {
	log.Print("guard: " + msg)
}
