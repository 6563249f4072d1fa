package guard

import (
	"context"
	"time"
)

// AccountRecord is the engine's view of one account as supplied by the
// host application's AccountStore.
type AccountRecord struct {
	// Identity is the login identifier, typically an email address.
	Identity string
	// PasswordHash is the stored bcrypt hash.
	PasswordHash string
	// Verified reports whether the account completed verification.
	// Unverified accounts cannot log in or send messages.
	Verified bool
	// Fingerprint is the device fingerprint recorded at the last
	// successful login. Empty for accounts that never logged in.
	Fingerprint string
	// Honeytoken marks a decoy account. Any authentication attempt
	// against it raises a high-priority audit alert and fails uniformly.
	Honeytoken bool
}

// AccountStore resolves and updates accounts. Implemented by the host
// application over its user database.
type AccountStore interface {
	// FindByIdentity returns the account for identity, or (nil, nil) when
	// no such account exists.
	FindByIdentity(ctx context.Context, identity string) (*AccountRecord, error)
	// UpdateFingerprint records the device fingerprint observed at a
	// successful login.
	UpdateFingerprint(ctx context.Context, identity, fingerprint string) error
}

// BlockStore answers recipient block-list lookups.
type BlockStore interface {
	// IsBlocked reports whether owner has blocked other.
	IsBlocked(ctx context.Context, owner, other string) (bool, error)
}

// MessageRecord is a message accepted by the engine, with sanitized
// content and scoring metadata.
type MessageRecord struct {
	ID        string
	Sender    string
	Recipient string
	// Subject and Body are HTML-escaped before persistence. Spam scoring
	// and duplicate digests run over the original text.
	Subject  string
	Body     string
	Digest   string
	Score    int
	SourceIP string
	SentAt   time.Time
}

// MessageStore persists accepted messages.
type MessageStore interface {
	Insert(ctx context.Context, record *MessageRecord) error
}

// CaptchaVerifier checks a client CAPTCHA assertion. Implemented by
// captcha.HCaptcha. A false result means the assertion was rejected; an
// error means the service could not be consulted, which fails the login
// closed.
type CaptchaVerifier interface {
	Verify(ctx context.Context, assertion, clientIP string) (bool, error)
}

// MailTransport delivers an accepted message to its recipient. Delivery
// failures degrade the send but never roll back the stored message.
type MailTransport interface {
	Deliver(ctx context.Context, recipient, subject, body string) error
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	// Token is the opaque session token to hand back to the client.
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SendReceipt is the outcome of an accepted message. Accepted is always
// true on a nil error; Delivered is false when the mail transport failed
// or timed out after the message was already stored.
type SendReceipt struct {
	MessageID string
	Accepted  bool
	Delivered bool
}
