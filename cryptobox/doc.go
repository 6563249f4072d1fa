// Package cryptobox seals and opens opaque session identifiers with
// AES-256-GCM under a key derived once from a long-term secret.
package cryptobox
