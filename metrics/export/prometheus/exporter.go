// Package prometheus renders guard metrics in Prometheus text exposition
// format without pulling in the client library.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/botnev/guard"
)

type counterDef struct {
	ID   guard.MetricID
	Name string
	Help string
}

var counterDefs = []counterDef{
	{guard.MetricLoginSuccess, "guard_login_success_total", "Successful logins."},
	{guard.MetricLoginFailure, "guard_login_failure_total", "Rejected login attempts."},
	{guard.MetricLoginRateLimited, "guard_login_rate_limited_total", "Logins denied by the attempt window."},
	{guard.MetricCaptchaRejected, "guard_captcha_rejected_total", "Logins with a rejected CAPTCHA assertion."},
	{guard.MetricHoneytokenAlert, "guard_honeytoken_alert_total", "Authentication attempts against honeytoken accounts."},
	{guard.MetricSessionIssued, "guard_session_issued_total", "Sessions issued."},
	{guard.MetricSessionVerifyFailure, "guard_session_verify_failure_total", "Session verifications rejected."},
	{guard.MetricMessageAccepted, "guard_message_accepted_total", "Messages accepted and stored."},
	{guard.MetricMessageRateLimited, "guard_message_rate_limited_total", "Messages denied by a rate window."},
	{guard.MetricMessageSpamRejected, "guard_message_spam_rejected_total", "Messages rejected by spam scoring."},
	{guard.MetricMessageDuplicateRejected, "guard_message_duplicate_rejected_total", "Messages rejected as duplicates."},
	{guard.MetricMessageBlockedRejected, "guard_message_blocked_rejected_total", "Messages rejected by a recipient block."},
	{guard.MetricMessageValidationFailure, "guard_message_validation_failure_total", "Messages rejected by input validation."},
	{guard.MetricDeliveryDegraded, "guard_delivery_degraded_total", "Accepted messages whose delivery failed."},
}

type metricsSource interface {
	MetricsSnapshot() guard.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders Engine metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an Exporter reading from the given Engine.
func NewExporter(engine *guard.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an Exporter from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the rendered metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render returns the current metrics as Prometheus text.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(4096)

	for _, def := range counterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	writeCounter(&b, "guard_audit_dropped_total", "Audit events dropped under dispatcher backpressure.", e.source.AuditDropped())

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
