package guard

import (
	"errors"
	"time"
)

var (
	// ErrEngineNotReady means the Engine was not built or a required
	// collaborator is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnauthenticated means the presented session token did not resolve
	// to a live session. Covers missing, expired, tampered, and
	// fingerprint-mismatched tokens alike.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is the uniform failure for every rejected
	// login attempt. The cause is recorded in audit events only.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited means a fixed-window limit was hit. Returned wrapped
	// in a RateLimitError carrying a retry hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidationFailed means the request input was malformed or
	// referenced an unknown recipient.
	ErrValidationFailed = errors.New("validation failed")
	// ErrPolicyRejected means the message was refused by an abuse policy:
	// spam score, duplicate suppression, or a recipient block.
	ErrPolicyRejected = errors.New("rejected by policy")
	// ErrDependencyUnavailable means an external collaborator (store,
	// CAPTCHA service, Redis) could not be consulted. Checks fail closed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Internal failure causes. Never returned to callers; they feed audit
// events so operators can tell rejection paths apart.
var (
	errEmptyCredentials   = errors.New("empty credentials")
	errCaptchaRejected    = errors.New("captcha rejected")
	errAccountUnknown     = errors.New("account unknown")
	errPasswordMismatch   = errors.New("password mismatch")
	errAccountUnverified  = errors.New("account unverified")
	errHoneytokenAccount  = errors.New("honeytoken account")
	errFingerprintChanged = errors.New("device fingerprint changed")
	errSenderUnverified   = errors.New("sender unverified")
	errRecipientMalformed = errors.New("recipient malformed")
	errRecipientUnknown   = errors.New("recipient unknown")
	errRecipientBlocked   = errors.New("recipient blocked sender")
	errSubjectTooLong     = errors.New("subject too long")
	errBodyEmpty          = errors.New("body empty")
	errBodyTooLong        = errors.New("body too long")
	errSpamContent        = errors.New("spam content")
	errDuplicateMessage   = errors.New("duplicate message")
	errDeliveryFailed     = errors.New("delivery failed")
)

// RateLimitError is returned when a login or message window is exhausted.
// It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	// Scope names the exhausted window: "login" or "message".
	Scope string
	// RetryAfter is the remaining window time, usable as a client retry
	// hint. Zero when the backing store cannot report it.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Scope
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
