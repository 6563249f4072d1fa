// Package guard is an embeddable login and messaging abuse-prevention
// engine. It authenticates credentials behind a CAPTCHA and a fixed-window
// attempt limiter, issues opaque encrypted session tokens bound to a
// device fingerprint, and gates outbound messages through validation,
// block lists, spam scoring, duplicate suppression, and per-sender rate
// limits.
//
// The Engine is assembled with a Builder and holds no user data itself:
// accounts, block lists, and message persistence are supplied by the host
// application through small store interfaces. Redis backs sessions and
// rate windows in multi-instance deployments; in-process stores cover
// single-instance use and tests.
//
// Client-visible errors are deliberately uniform. A failed login is
// always ErrInvalidCredentials regardless of which check failed, and
// policy rejections share ErrPolicyRejected; the specific cause is
// preserved only in audit events.
package guard
