package guard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// sessionFor issues a session directly, bound to the fingerprint the
// engine would derive for ctx.
func sessionFor(t *testing.T, fx *engineFixture, ctx context.Context, identity string) string {
	t.Helper()

	sess, err := fx.engine.sessions.Issue(ctx, identity, time.Hour, fx.engine.requestFingerprint(ctx))
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return sess.Token
}

func messagingFixture(t *testing.T, mutate func(*Config)) (*engineFixture, context.Context, string) {
	t.Helper()

	fx := newFixture(t, mutate)
	fx.addAccount(t, "alice@example.com", "s3cret-pass", nil)
	fx.addAccount(t, "bob@example.com", "s3cret-pass", nil)
	ctx := requestContext("203.0.113.7", "ua-1", "en-US")
	token := sessionFor(t, fx, ctx, "alice@example.com")
	return fx, ctx, token
}

func TestSendMessageSuccess(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)

	receipt, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hello", "Just checking in, how are you?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !receipt.Accepted || !receipt.Delivered {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.MessageID == "" {
		t.Fatal("empty message id")
	}

	record := fx.messages.last()
	if record == nil {
		t.Fatal("message not stored")
	}
	if record.Sender != "alice@example.com" || record.Recipient != "bob@example.com" {
		t.Fatalf("wrong endpoints: %+v", record)
	}
	if record.SourceIP != "203.0.113.7" {
		t.Fatalf("source ip not recorded: %q", record.SourceIP)
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricMessageAccepted] != 1 {
		t.Fatalf("accepted counter = %d", snap.Counters[MetricMessageAccepted])
	}
}

func TestSendMessageSanitizesStoredContent(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)

	body := `Hi <script>alert("x")</script>, see you tomorrow`
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", `<b>Hi</b>`, body); err != nil {
		t.Fatalf("send: %v", err)
	}

	record := fx.messages.last()
	if strings.Contains(record.Body, "<script>") || strings.Contains(record.Subject, "<b>") {
		t.Fatalf("markup not escaped: %+v", record)
	}
	if !strings.Contains(record.Body, "&lt;script&gt;") {
		t.Fatalf("expected escaped body, got %q", record.Body)
	}
}

func TestSendMessageRequiresSession(t *testing.T) {
	fx, ctx, _ := messagingFixture(t, nil)

	if _, err := fx.engine.SendMessage(ctx, "bogus-token", "bob@example.com", "Hi", "hello there"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if fx.messages.count() != 0 {
		t.Fatal("message stored without session")
	}
}

func TestSendMessageValidation(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.MaxBodyLength = 50
		cfg.Message.MaxSubjectLength = 10
	})

	cases := []struct {
		name      string
		recipient string
		subject   string
		body      string
	}{
		{"malformed recipient", "not-an-address", "Hi", "hello there"},
		{"recipient with spaces", "a b@example.com", "Hi", "hello there"},
		{"empty body", "bob@example.com", "Hi", "   "},
		{"body too long", "bob@example.com", "Hi", strings.Repeat("x", 51)},
		{"subject too long", "bob@example.com", strings.Repeat("s", 11), "hello there"},
		{"unknown recipient", "ghost@example.com", "Hi", "hello there"},
	}
	for _, tc := range cases {
		if _, err := fx.engine.SendMessage(ctx, token, tc.recipient, tc.subject, tc.body); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("%s: expected ErrValidationFailed, got %v", tc.name, err)
		}
	}
	if fx.messages.count() != 0 {
		t.Fatal("invalid message stored")
	}
}

func TestValidationFailuresDoNotConsumeQuota(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.ShortWindowLimit = 1
	})

	for i := 0; i < 5; i++ {
		if _, err := fx.engine.SendMessage(ctx, token, "not-an-address", "Hi", "hello there"); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// The single-message budget is still intact.
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); err != nil {
		t.Fatalf("valid send after rejections: %v", err)
	}
}

func TestDuplicateMessageSuppressed(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)

	base := time.Now()
	fx.windows.SetClock(func() time.Time { return base })

	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "same body here"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Normalization catches case and whitespace tweaks.
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "  Same   BODY here "); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected for duplicate, got %v", err)
	}

	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "a different body"); err != nil {
		t.Fatalf("distinct body rejected: %v", err)
	}

	// After the short window the same body is allowed again.
	fx.windows.SetClock(func() time.Time { return base.Add(31 * time.Minute) })
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "same body here"); err != nil {
		t.Fatalf("resend after window: %v", err)
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricMessageDuplicateRejected] != 1 {
		t.Fatalf("duplicate counter = %d", snap.Counters[MetricMessageDuplicateRejected])
	}
}

func TestSpamRejectedOnOriginalText(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)

	body := "look: http://a.example http://b.example http://c.example http://d.example"
	_, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "free money click here", body)
	if !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected, got %v", err)
	}
	if fx.messages.count() != 0 {
		t.Fatal("spam stored")
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricMessageSpamRejected] != 1 {
		t.Fatalf("spam counter = %d", snap.Counters[MetricMessageSpamRejected])
	}
}

func TestBlockedRecipientRejectsThenUnblockAdmits(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)

	fx.blocks.set("bob@example.com", "alice@example.com", true)
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected while blocked, got %v", err)
	}

	fx.blocks.set("bob@example.com", "alice@example.com", false)
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); err != nil {
		t.Fatalf("send after unblock: %v", err)
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricMessageBlockedRejected] != 1 {
		t.Fatalf("blocked counter = %d", snap.Counters[MetricMessageBlockedRejected])
	}
}

func TestShortWindowRateLimit(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.ShortWindowLimit = 2
	})

	base := time.Now()
	fx.windows.SetClock(func() time.Time { return base })

	for i := 0; i < 2; i++ {
		body := "message number " + strings.Repeat("a", i+1)
		if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", body); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	_, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "one too many")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.Scope != "message" || rle.RetryAfter <= 0 {
		t.Fatalf("bad retry hint: %v", err)
	}

	// A fresh window admits again.
	fx.windows.SetClock(func() time.Time { return base.Add(31 * time.Minute) })
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "one too many"); err != nil {
		t.Fatalf("send after window: %v", err)
	}
}

func TestLongWindowRateLimit(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.ShortWindowLimit = 10
		cfg.Message.LongWindowLimit = 2
	})

	for i := 0; i < 2; i++ {
		body := "daily message " + strings.Repeat("b", i+1)
		if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", body); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "past the daily cap"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestIPThrottleAcrossSenders(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.EnableIPThrottle = true
		cfg.Message.IPWindowLimit = 1
	})
	fx.addAccount(t, "carol@example.com", "s3cret-pass", nil)
	carolToken := sessionFor(t, fx, ctx, "carol@example.com")

	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello from alice"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Same source IP, different sender: still throttled.
	if _, err := fx.engine.SendMessage(ctx, carolToken, "bob@example.com", "Hi", "hello from carol"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for shared IP, got %v", err)
	}
}

func TestDeliveryFailureDegradesButAccepts(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)
	fx.mail.fail = true

	receipt, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !receipt.Accepted || receipt.Delivered {
		t.Fatalf("expected degraded receipt, got %+v", receipt)
	}
	if fx.messages.count() != 1 {
		t.Fatal("message not stored despite delivery failure")
	}

	snap := fx.engine.MetricsSnapshot()
	if snap.Counters[MetricDeliveryDegraded] != 1 {
		t.Fatalf("degraded counter = %d", snap.Counters[MetricDeliveryDegraded])
	}
	events := fx.drainEvents()
	if !hasEvent(events, auditEventDeliveryDegraded, string(auditErrDeliveryFailed)) {
		t.Fatal("missing delivery_degraded audit event")
	}
}

func TestStoreFailureDoesNotConsumeQuota(t *testing.T) {
	fx, ctx, token := messagingFixture(t, func(cfg *Config) {
		cfg.Message.ShortWindowLimit = 1
	})

	fx.messages.fail = true
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}

	fx.messages.fail = false
	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); err != nil {
		t.Fatalf("send after store recovery: %v", err)
	}
}

func TestUnverifiedSenderRejected(t *testing.T) {
	fx, _, _ := messagingFixture(t, nil)
	fx.addAccount(t, "pending@example.com", "s3cret-pass", func(a *AccountRecord) {
		a.Verified = false
	})
	ctx := requestContext("203.0.113.9", "ua-2", "en-GB")
	token := sessionFor(t, fx, ctx, "pending@example.com")

	if _, err := fx.engine.SendMessage(ctx, token, "bob@example.com", "Hi", "hello there"); !errors.Is(err, ErrPolicyRejected) {
		t.Fatalf("expected ErrPolicyRejected for unverified sender, got %v", err)
	}
}

func TestUnverifiedRecipientRejected(t *testing.T) {
	fx, ctx, token := messagingFixture(t, nil)
	fx.addAccount(t, "pending@example.com", "s3cret-pass", func(a *AccountRecord) {
		a.Verified = false
	})

	if _, err := fx.engine.SendMessage(ctx, token, "pending@example.com", "Hi", "hello there"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for unverified recipient, got %v", err)
	}
}
