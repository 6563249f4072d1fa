package metrics

import "sync/atomic"

// MetricID indexes one counter in the in-process metrics system.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricCaptchaRejected
	MetricHoneytokenAlert
	MetricSessionIssued
	MetricSessionVerifyFailure
	MetricMessageAccepted
	MetricMessageRateLimited
	MetricMessageSpamRejected
	MetricMessageDuplicateRejected
	MetricMessageBlockedRejected
	MetricMessageValidationFailure
	MetricDeliveryDegraded

	MetricIDCount
)

// Config controls whether metric recording is active.
type Config struct {
	Enabled bool
}

// Metrics is a fixed-size bank of atomic counters. All operations are
// no-ops when disabled.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// New creates a Metrics bank.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot deep-copies all counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
