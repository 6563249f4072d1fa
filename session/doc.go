// Package session holds the session record model, pluggable stores, and
// the manager that issues and verifies opaque session tokens.
package session
