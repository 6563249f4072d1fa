package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrDecryptFailure is returned for every decryption failure: tampered
// token, wrong key, malformed structure. The cause is deliberately not
// distinguished so the token channel cannot be used as an oracle.
var ErrDecryptFailure = errors.New("decrypt failure")

const (
	keyLength   = 32
	nonceLength = 12
	tagLength   = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// Box performs authenticated encryption of opaque session identifiers
// with AES-256-GCM. The key is derived once from a long-term secret and
// cached for the lifetime of the Box.
//
// Box instances are safe for concurrent use.
type Box struct {
	aead cipher.AEAD
}

// New derives the encryption key from secret via scrypt with the given
// salt and returns a ready Box. Key derivation is intentionally slow and
// happens exactly once, at construction.
func New(secret, salt []byte) (*Box, error) {
	if len(secret) == 0 {
		return nil, errors.New("cryptobox: empty secret")
	}
	if len(salt) == 0 {
		return nil, errors.New("cryptobox: empty salt")
	}

	key, err := scrypt.Key(secret, salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Box{aead: aead}, nil
}

// EncryptIdentity seals the plaintext identity under a fresh random nonce
// and returns an opaque token of the form
//
//	hex(nonce):hex(tag):hex(ciphertext)
//
// Nonce and authentication tag are embedded in the token; no other state
// is needed to decrypt it.
func (b *Box) EncryptIdentity(identity string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nil, nonce, []byte(identity), nil)
	if len(sealed) < tagLength {
		return "", errors.New("cryptobox: sealed payload too short")
	}

	ciphertext := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptIdentity opens an opaque token produced by EncryptIdentity and
// returns the original identity. Any failure returns ErrDecryptFailure.
func (b *Box) DecryptIdentity(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrDecryptFailure
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLength {
		return "", ErrDecryptFailure
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", ErrDecryptFailure
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryptFailure
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailure
	}

	return string(plaintext), nil
}
