// Package ratewindow implements reusable fixed-window rate counters keyed
// by (scope, identity), with pluggable in-memory or Redis backing stores.
package ratewindow
