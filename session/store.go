package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps backing-store failures.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store persists session records keyed by their opaque token.
type Store interface {
	Create(ctx context.Context, s *Session, ttl time.Duration) error
	// Find returns the record for token, or (nil, nil) when absent.
	Find(ctx context.Context, token string) (*Session, error)
	// Delete removes the record for token. Deleting an absent token is not
	// an error.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes records that expired before the given instant
	// and returns how many were removed. Stores with native TTL expiry may
	// report zero.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// RedisStore keeps session records in Redis under a TTL matching the
// session lifetime, so expiry sweeping is handled by the store itself.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Tokens are hashed into the storage key: they can be long, and hashing
// keeps raw credentials out of Redis keyspace listings.
func (s *RedisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	blob, err := encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.Token), blob, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Find implements Store.
func (s *RedisStore) Find(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, err
	}
	sess.Token = token
	return sess, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteExpired implements Store. Redis TTLs already reclaim expired
// records, so there is nothing to sweep.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, sess *Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sess
	s.sessions[sess.Token] = &copied
	return nil
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := before.Unix()
	removed := 0
	for token, sess := range s.sessions {
		if sess.ExpiresAt <= cutoff {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}
