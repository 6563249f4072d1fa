// Package password wraps bcrypt credential hashing and verification,
// including the dummy comparison used for login timing parity.
package password
