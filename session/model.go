package session

// Session is the server-side record behind one opaque client token.
//
// A session is valid only while the current time is before ExpiresAt and,
// when Fingerprint is non-empty, while the request fingerprint matches it
// exactly. Records are never rebound: a fingerprint mismatch rejects the
// request rather than silently updating the binding.
type Session struct {
	Token       string
	Identity    string
	IssuedAt    int64
	ExpiresAt   int64
	Fingerprint string
}
