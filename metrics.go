package guard

import "github.com/botnev/guard/internal/metrics"

// MetricID indexes one engine counter.
type MetricID = metrics.MetricID

// Metric identifiers exposed for snapshot consumers and exporters.
const (
	MetricLoginSuccess             = metrics.MetricLoginSuccess
	MetricLoginFailure             = metrics.MetricLoginFailure
	MetricLoginRateLimited         = metrics.MetricLoginRateLimited
	MetricCaptchaRejected          = metrics.MetricCaptchaRejected
	MetricHoneytokenAlert          = metrics.MetricHoneytokenAlert
	MetricSessionIssued            = metrics.MetricSessionIssued
	MetricSessionVerifyFailure     = metrics.MetricSessionVerifyFailure
	MetricMessageAccepted          = metrics.MetricMessageAccepted
	MetricMessageRateLimited       = metrics.MetricMessageRateLimited
	MetricMessageSpamRejected      = metrics.MetricMessageSpamRejected
	MetricMessageDuplicateRejected = metrics.MetricMessageDuplicateRejected
	MetricMessageBlockedRejected   = metrics.MetricMessageBlockedRejected
	MetricMessageValidationFailure = metrics.MetricMessageValidationFailure
	MetricDeliveryDegraded         = metrics.MetricDeliveryDegraded
)

// MetricsSnapshot is a point-in-time copy of every engine counter.
type MetricsSnapshot = metrics.Snapshot

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot returns the current counter values. Empty when metrics
// are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}
