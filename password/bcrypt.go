package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minCost     = bcrypt.MinCost
	defaultCost = 10

	// dummySecret exists only to manufacture a real bcrypt hash for
	// DummyCompare. It is not a credential and never matches anything.
	dummySecret = "guard-dummy-comparison-secret"
)

// Bcrypt hashes and verifies credentials with the bcrypt password-hashing
// function. Safe for concurrent use.
type Bcrypt struct {
	cost      int
	dummyHash []byte
}

// NewBcrypt creates a Bcrypt hasher. cost <= 0 selects the default cost.
// A dummy hash is precomputed once so that verification against a missing
// account costs the same as verification against a real one.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost <= 0 {
		cost = defaultCost
	}
	if cost < minCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummySecret), cost)
	if err != nil {
		return nil, err
	}

	return &Bcrypt{cost: cost, dummyHash: dummy}, nil
}

// Hash returns the bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches encodedHash. A mismatch is
// (false, nil); only a structurally invalid hash yields an error.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// DummyCompare burns one bcrypt verification against the precomputed
// dummy hash. Called on the user-not-found login path so its latency
// matches the found-but-wrong-password path.
func (b *Bcrypt) DummyCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(b.dummyHash, []byte(password))
}
