package guard

import (
	"context"
	"errors"
	"html"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/botnev/guard/session"
	"github.com/botnev/guard/spam"
)

func messageShortKey(sender string) string {
	return "msg:short:" + sender
}

func messageLongKey(sender string) string {
	return "msg:long:" + sender
}

func messageIPKey(ip string) string {
	return "msg:ip:" + ip
}

func messageDuplicateKey(sender, digest string) string {
	return "msg:dup:" + sender + ":" + digest
}

// SendMessage runs the message policy chain for an authenticated sender:
// session verification, sender and recipient status, input validation,
// recipient block list, spam scoring, duplicate suppression, and the
// short/long rate windows. Every check runs before any side effect; the
// counters are incremented only after the message is durably stored, so a
// rejected or failed send never consumes quota.
//
// Spam scoring and the duplicate digest use the original text. The stored
// and delivered copy is HTML-escaped.
//
// Delivery happens after persistence and fails open: a transport error or
// timeout degrades the receipt (Delivered=false) but the send still
// succeeds.
func (e *Engine) SendMessage(ctx context.Context, token, recipient, subject, body string) (*SendReceipt, error) {
	if e == nil || e.sessions == nil || e.messages == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	fp := e.requestFingerprint(ctx)
	cfg := e.config.Message

	sender, err := e.sessions.Verify(ctx, token, fp)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			return nil, ErrDependencyUnavailable
		}
		e.metricInc(MetricSessionVerifyFailure)
		e.emitAudit(ctx, auditEventSessionRejected, false, "", fp, err, nil)
		return nil, ErrUnauthenticated
	}

	account, err := e.accounts.FindByIdentity(ctx, sender)
	if err != nil {
		return nil, ErrDependencyUnavailable
	}
	if account == nil {
		// The session outlived its account.
		e.metricInc(MetricSessionVerifyFailure)
		e.emitAudit(ctx, auditEventSessionRejected, false, sender, fp, session.ErrNotFound, nil)
		return nil, ErrUnauthenticated
	}
	if !account.Verified {
		e.metricInc(MetricMessageValidationFailure)
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, errSenderUnverified, nil)
		return nil, ErrPolicyRejected
	}

	if cause := validateMessageInput(recipient, subject, body, cfg); cause != nil {
		e.metricInc(MetricMessageValidationFailure)
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, cause, nil)
		return nil, ErrValidationFailed
	}

	rcpt, err := e.accounts.FindByIdentity(ctx, recipient)
	if err != nil {
		return nil, ErrDependencyUnavailable
	}
	if rcpt == nil || !rcpt.Verified {
		e.metricInc(MetricMessageValidationFailure)
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, errRecipientUnknown, nil)
		return nil, ErrValidationFailed
	}

	if e.blocks != nil {
		blocked, err := e.blocks.IsBlocked(ctx, recipient, sender)
		if err != nil {
			return nil, ErrDependencyUnavailable
		}
		if blocked {
			e.metricInc(MetricMessageBlockedRejected)
			e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, errRecipientBlocked, func() map[string]string {
				return map[string]string{"recipient": recipient}
			})
			return nil, ErrPolicyRejected
		}
	}

	score, reasons := e.scorer.Score(subject, body)
	if score >= e.scorer.RejectThreshold() {
		e.metricInc(MetricMessageSpamRejected)
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, errSpamContent, func() map[string]string {
			return map[string]string{
				"score":   strconv.Itoa(score),
				"reasons": strings.Join(reasons, ","),
			}
		})
		return nil, ErrPolicyRejected
	}

	digest := spam.Digest(body)
	dupKey := messageDuplicateKey(sender, digest)
	dup, err := e.windows.Check(ctx, dupKey, 1, cfg.ShortWindow)
	if err != nil {
		return nil, ErrDependencyUnavailable
	}
	if !dup.Allowed {
		e.metricInc(MetricMessageDuplicateRejected)
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, errDuplicateMessage, nil)
		return nil, ErrPolicyRejected
	}

	short, err := e.windows.Check(ctx, messageShortKey(sender), cfg.ShortWindowLimit, cfg.ShortWindow)
	if err != nil {
		return nil, ErrDependencyUnavailable
	}
	long, err := e.windows.Check(ctx, messageLongKey(sender), cfg.LongWindowLimit, cfg.LongWindow)
	if err != nil {
		return nil, ErrDependencyUnavailable
	}
	ipAllowed := true
	retryAfter := short.RetryAfter
	if cfg.EnableIPThrottle && ip != "" {
		ipDecision, err := e.windows.Check(ctx, messageIPKey(ip), cfg.IPWindowLimit, cfg.ShortWindow)
		if err != nil {
			return nil, ErrDependencyUnavailable
		}
		ipAllowed = ipDecision.Allowed
		if ipDecision.RetryAfter > retryAfter {
			retryAfter = ipDecision.RetryAfter
		}
	}
	if !short.Allowed || !long.Allowed || !ipAllowed {
		if long.RetryAfter > retryAfter {
			retryAfter = long.RetryAfter
		}
		e.metricInc(MetricMessageRateLimited)
		e.emitAudit(ctx, auditEventMessageRateLimited, false, sender, fp, ErrRateLimited, nil)
		return nil, &RateLimitError{Scope: "message", RetryAfter: retryAfter}
	}

	record := &MessageRecord{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Subject:   html.EscapeString(subject),
		Body:      html.EscapeString(body),
		Digest:    digest,
		Score:     score,
		SourceIP:  ip,
		SentAt:    e.now().UTC(),
	}
	if err := e.messages.Insert(ctx, record); err != nil {
		e.emitAudit(ctx, auditEventMessageRejected, false, sender, fp, ErrDependencyUnavailable, func() map[string]string {
			return map[string]string{"reason": "message_store_failed"}
		})
		return nil, ErrDependencyUnavailable
	}

	// Quota is consumed only once the message is durably stored.
	e.consumeMessageQuota(ctx, sender, ip, dupKey)

	receipt := &SendReceipt{MessageID: record.ID, Accepted: true}
	if e.mail != nil {
		dctx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
		deliverErr := e.mail.Deliver(dctx, recipient, record.Subject, record.Body)
		cancel()
		if deliverErr == nil {
			receipt.Delivered = true
		} else {
			e.metricInc(MetricDeliveryDegraded)
			e.emitAudit(ctx, auditEventDeliveryDegraded, false, sender, fp, errDeliveryFailed, func() map[string]string {
				return map[string]string{"message_id": record.ID}
			})
		}
	}

	e.metricInc(MetricMessageAccepted)
	e.emitAudit(ctx, auditEventMessageAccepted, true, sender, fp, nil, func() map[string]string {
		return map[string]string{
			"message_id": record.ID,
			"recipient":  recipient,
		}
	})

	return receipt, nil
}

func (e *Engine) consumeMessageQuota(ctx context.Context, sender, ip, dupKey string) {
	cfg := e.config.Message
	if _, err := e.windows.Increment(ctx, messageShortKey(sender), cfg.ShortWindow); err != nil {
		logWarn("message short window increment failed")
	}
	if _, err := e.windows.Increment(ctx, messageLongKey(sender), cfg.LongWindow); err != nil {
		logWarn("message long window increment failed")
	}
	if _, err := e.windows.Increment(ctx, dupKey, cfg.ShortWindow); err != nil {
		logWarn("duplicate digest window increment failed")
	}
	if cfg.EnableIPThrottle && ip != "" {
		if _, err := e.windows.Increment(ctx, messageIPKey(ip), cfg.ShortWindow); err != nil {
			logWarn("message ip window increment failed")
		}
	}
}

// validateMessageInput checks shape only; recipient existence is a store
// lookup done by the caller.
func validateMessageInput(recipient, subject, body string, cfg MessageConfig) error {
	if !validRecipientAddress(recipient) {
		return errRecipientMalformed
	}
	if len([]rune(subject)) > cfg.MaxSubjectLength {
		return errSubjectTooLong
	}
	if strings.TrimSpace(body) == "" {
		return errBodyEmpty
	}
	if len([]rune(body)) > cfg.MaxBodyLength {
		return errBodyTooLong
	}
	return nil
}

func validRecipientAddress(recipient string) bool {
	if recipient == "" || len(recipient) > 254 {
		return false
	}
	at := strings.IndexByte(recipient, '@')
	if at <= 0 || at == len(recipient)-1 {
		return false
	}
	if strings.IndexByte(recipient[at+1:], '@') >= 0 {
		return false
	}
	return !strings.ContainsAny(recipient, " \t\r\n")
}
