package guard

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/botnev/guard/internal/audit"
	"github.com/botnev/guard/session"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginRateLimited    = "login_rate_limited"
	auditEventHoneytokenTriggered = "honeytoken_triggered"
	auditEventSessionRejected     = "session_rejected"
	auditEventLogout              = "logout"
	auditEventMessageAccepted     = "message_accepted"
	auditEventMessageRejected     = "message_rejected"
	auditEventMessageRateLimited  = "message_rate_limited"
	auditEventDeliveryDegraded    = "delivery_degraded"
)

// AuditEvent is the record handed to audit sinks. Internal rejection
// causes hidden from clients are preserved in its Error field.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events.
type AuditSink = audit.Sink

// NoOpAuditSink drops all events.
type NoOpAuditSink = audit.NoOpSink

// ChannelAuditSink buffers events in a channel, dropping when the
// buffer is full. Intended for tests and custom fan-out.
type ChannelAuditSink = audit.ChannelSink

// NewChannelAuditSink creates a ChannelAuditSink with the given buffer.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink creates a sink writing one JSON event per line to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// AuditErrorCode is the stable cause identifier carried in audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrValidationFailed   AuditErrorCode = "validation_failed"
	auditErrPolicyRejected     AuditErrorCode = "policy_rejected"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrEmptyCredentials   AuditErrorCode = "empty_credentials"
	auditErrCaptchaRejected    AuditErrorCode = "captcha_rejected"
	auditErrAccountUnknown     AuditErrorCode = "account_unknown"
	auditErrPasswordMismatch   AuditErrorCode = "password_mismatch"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrHoneytoken         AuditErrorCode = "honeytoken_account"
	auditErrFingerprintChanged AuditErrorCode = "fingerprint_changed"
	auditErrSenderUnverified   AuditErrorCode = "sender_unverified"
	auditErrRecipientMalformed AuditErrorCode = "recipient_malformed"
	auditErrRecipientUnknown   AuditErrorCode = "recipient_unknown"
	auditErrRecipientBlocked   AuditErrorCode = "recipient_blocked"
	auditErrSubjectTooLong     AuditErrorCode = "subject_too_long"
	auditErrBodyEmpty          AuditErrorCode = "body_empty"
	auditErrBodyTooLong        AuditErrorCode = "body_too_long"
	auditErrSpamContent        AuditErrorCode = "spam_content"
	auditErrDuplicateMessage   AuditErrorCode = "duplicate_message"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrSessionFingerprint AuditErrorCode = "session_fingerprint_mismatch"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	fingerprint string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		Identity:    identity,
		IP:          clientIPFromContext(ctx),
		Fingerprint: fingerprint,
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, errEmptyCredentials):
		return auditErrEmptyCredentials
	case errors.Is(err, errCaptchaRejected):
		return auditErrCaptchaRejected
	case errors.Is(err, errAccountUnknown):
		return auditErrAccountUnknown
	case errors.Is(err, errPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, errAccountUnverified):
		return auditErrAccountUnverified
	case errors.Is(err, errHoneytokenAccount):
		return auditErrHoneytoken
	case errors.Is(err, errFingerprintChanged):
		return auditErrFingerprintChanged
	case errors.Is(err, errSenderUnverified):
		return auditErrSenderUnverified
	case errors.Is(err, errRecipientMalformed):
		return auditErrRecipientMalformed
	case errors.Is(err, errRecipientUnknown):
		return auditErrRecipientUnknown
	case errors.Is(err, errRecipientBlocked):
		return auditErrRecipientBlocked
	case errors.Is(err, errSubjectTooLong):
		return auditErrSubjectTooLong
	case errors.Is(err, errBodyEmpty):
		return auditErrBodyEmpty
	case errors.Is(err, errBodyTooLong):
		return auditErrBodyTooLong
	case errors.Is(err, errSpamContent):
		return auditErrSpamContent
	case errors.Is(err, errDuplicateMessage):
		return auditErrDuplicateMessage
	case errors.Is(err, errDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, session.ErrNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, session.ErrExpired):
		return auditErrSessionExpired
	case errors.Is(err, session.ErrFingerprintMismatch):
		return auditErrSessionFingerprint
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrValidationFailed):
		return auditErrValidationFailed
	case errors.Is(err, ErrPolicyRejected):
		return auditErrPolicyRejected
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
