// Package metrics provides the in-process atomic counter bank behind the
// engine's metrics surface.
package metrics
