// Package audit defines the audit event model, sinks, and the async
// dispatcher used by the engine.
package audit
