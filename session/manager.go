package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/botnev/guard/internal"
)

var (
	// ErrNotFound means no record exists for the presented token.
	ErrNotFound = errors.New("session not found")
	// ErrExpired means the record exists but its lifetime has elapsed.
	ErrExpired = errors.New("session expired")
	// ErrFingerprintMismatch means the session is bound to a different
	// device fingerprint than the one on the current request.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
)

// TokenCodec seals a session identity into an opaque token and opens it
// again. Implemented by cryptobox.Box.
type TokenCodec interface {
	EncryptIdentity(identity string) (string, error)
	DecryptIdentity(token string) (string, error)
}

// Manager issues sessions after credential verification and verifies them
// on each request, enforcing expiry and fingerprint binding.
type Manager struct {
	store Store
	codec TokenCodec

	now func() time.Time
}

// NewManager creates a Manager. codec may be nil, in which case tokens
// are plain random 256-bit values instead of encrypted identifiers.
func NewManager(store Store, codec TokenCodec) *Manager {
	return &Manager{store: store, codec: codec, now: time.Now}
}

// Issue creates and persists a session for identity with the given
// lifetime. fingerprint may be empty, leaving the session unbound.
func (m *Manager) Issue(ctx context.Context, identity string, ttl time.Duration, fingerprint string) (*Session, error) {
	token, err := m.newToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		Token:       token,
		Identity:    identity,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
		Fingerprint: fingerprint,
	}

	if err := m.store.Create(ctx, sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Verify resolves a token to its subject identity. Returns ErrNotFound,
// ErrExpired, or ErrFingerprintMismatch; callers surface all three as one
// generic unauthenticated outcome and keep the distinction for logs only.
//
// The expiry check is half-open: a session is already invalid at the
// exact ExpiresAt instant.
func (m *Manager) Verify(ctx context.Context, token, fingerprint string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}

	sess, err := m.store.Find(ctx, token)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", ErrNotFound
	}

	if m.now().Unix() >= sess.ExpiresAt {
		return "", ErrExpired
	}

	if sess.Fingerprint != "" && sess.Fingerprint != fingerprint {
		return "", ErrFingerprintMismatch
	}

	return sess.Identity, nil
}

// Revoke deletes the session for token. Revoking an unknown token is not
// an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotFound
	}
	return m.store.Delete(ctx, token)
}

// PurgeExpired removes expired records from the backing store.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// SetClock overrides the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Manager) newToken() (string, error) {
	if m.codec != nil {
		return m.codec.EncryptIdentity(uuid.NewString())
	}
	return internal.NewOpaqueToken()
}
