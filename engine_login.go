package guard

import (
	"context"
	"time"
)

func loginAttemptKey(identity, ip string) string {
	return "login:" + identity + ":" + ip
}

// Login runs the full login policy chain for one credential attempt:
// attempt-window check, CAPTCHA (fail closed), account lookup with a
// dummy bcrypt comparison for unknown identities, password verification,
// account status checks, honeytoken detection, then session issuance.
//
// Every rejected attempt increments the attempt counter, pays the uniform
// failure delay, and returns ErrInvalidCredentials; only rate limiting
// and dependency outages are distinguishable to the caller. The specific
// cause is recorded in audit events.
func (e *Engine) Login(ctx context.Context, identity, secret, captchaResponse string) (*LoginResult, error) {
	if e == nil || e.hasher == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	fp := e.requestFingerprint(ctx)
	scope := loginAttemptKey(identity, ip)

	decision, err := e.windows.Check(ctx, scope, e.config.Login.MaxAttempts, e.config.Login.AttemptWindow)
	if err != nil {
		// Fail closed: an unreachable counter store must not admit
		// unlimited attempts.
		e.emitAudit(ctx, auditEventLoginFailure, false, identity, fp, ErrDependencyUnavailable, func() map[string]string {
			return map[string]string{"reason": "attempt_counter_unavailable"}
		})
		e.failureDelay()
		return nil, ErrDependencyUnavailable
	}
	if !decision.Allowed {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, identity, fp, ErrRateLimited, nil)
		e.failureDelay()
		return nil, &RateLimitError{Scope: "login", RetryAfter: decision.RetryAfter}
	}

	if identity == "" || secret == "" {
		return nil, e.failLogin(ctx, scope, identity, fp, errEmptyCredentials)
	}

	if e.config.Login.RequireCaptcha {
		if e.captcha == nil {
			return nil, ErrEngineNotReady
		}
		cctx, cancel := context.WithTimeout(ctx, e.config.Captcha.Timeout)
		ok, err := e.captcha.Verify(cctx, captchaResponse, ip)
		cancel()
		if err != nil {
			e.emitAudit(ctx, auditEventLoginFailure, false, identity, fp, ErrDependencyUnavailable, func() map[string]string {
				return map[string]string{"reason": "captcha_unavailable"}
			})
			e.failureDelay()
			return nil, ErrDependencyUnavailable
		}
		if !ok {
			e.metricInc(MetricCaptchaRejected)
			return nil, e.failLogin(ctx, scope, identity, fp, errCaptchaRejected)
		}
	}

	account, err := e.accounts.FindByIdentity(ctx, identity)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, identity, fp, ErrDependencyUnavailable, func() map[string]string {
			return map[string]string{"reason": "account_lookup_failed"}
		})
		e.failureDelay()
		return nil, ErrDependencyUnavailable
	}
	if account == nil {
		// Burn a bcrypt comparison so the unknown-identity path costs the
		// same as a wrong password.
		e.hasher.DummyCompare(secret)
		return nil, e.failLogin(ctx, scope, identity, fp, errAccountUnknown)
	}

	ok, err := e.hasher.Verify(secret, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, scope, identity, fp, errPasswordMismatch)
	}

	if account.Honeytoken {
		e.metricInc(MetricHoneytokenAlert)
		e.emitAudit(ctx, auditEventHoneytokenTriggered, false, identity, fp, errHoneytokenAccount, func() map[string]string {
			return map[string]string{"ip": ip}
		})
		return nil, e.failLogin(ctx, scope, identity, fp, errHoneytokenAccount)
	}

	if e.config.Login.RequireVerified && !account.Verified {
		return nil, e.failLogin(ctx, scope, identity, fp, errAccountUnverified)
	}

	if e.config.Login.EnforceFingerprint && account.Fingerprint != "" && account.Fingerprint != fp {
		return nil, e.failLogin(ctx, scope, identity, fp, errFingerprintChanged)
	}

	boundFP := ""
	if e.config.Session.BindFingerprint {
		boundFP = fp
	}
	sess, err := e.sessions.Issue(ctx, identity, e.config.Session.TTL, boundFP)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity, fp, ErrDependencyUnavailable, func() map[string]string {
			return map[string]string{"reason": "session_issue_failed"}
		})
		e.failureDelay()
		return nil, ErrDependencyUnavailable
	}

	if account.Fingerprint != fp {
		// Best-effort: a stale recorded fingerprint must not fail a login
		// that already has a session.
		if err := e.accounts.UpdateFingerprint(ctx, identity, fp); err != nil {
			logWarn("fingerprint update failed after login")
		}
	}

	if err := e.windows.Reset(ctx, scope); err != nil {
		logWarn("login attempt counter reset failed")
	}

	e.metricInc(MetricSessionIssued)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity, fp, nil, nil)

	return &LoginResult{
		Token:     sess.Token,
		IssuedAt:  time.Unix(sess.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// failLogin is the shared rejection path: count the attempt, record the
// cause, pay the delay, return the uniform client error.
func (e *Engine) failLogin(ctx context.Context, scope, identity, fp string, cause error) error {
	if _, err := e.windows.Increment(ctx, scope, e.config.Login.AttemptWindow); err != nil {
		logWarn("login attempt counter increment failed")
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, identity, fp, cause, nil)
	e.failureDelay()
	return ErrInvalidCredentials
}
