// Package fingerprint derives a soft device-binding hash from
// client-identifying request attributes. The hash is a signal, not a
// secret: it binds a session to the device that created it without ever
// blocking a request on its own.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

const separator = "|"

// Derive hashes the user agent, accept-language header, and forwarded IP
// into a stable hex fingerprint. Missing attributes are treated as empty
// strings so fingerprinting degrades gracefully on partial headers.
func Derive(userAgent, acceptLanguage, forwardedIP string) string {
	sum := sha256.Sum256([]byte(userAgent + separator + acceptLanguage + separator + forwardedIP))
	return hex.EncodeToString(sum[:])
}
