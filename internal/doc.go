// Package internal holds shared helpers that are not part of the public
// API surface.
package internal
