package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/healthseal/crypto"
)

// AlertEvent describes a burst of rejected envelopes.
type AlertEvent struct {
	Message   string
	Count     int
	Threshold int
	Window    time.Duration
	Timestamp time.Time
}

// AlertFunc is the callback invoked when the rejection rate crosses the
// threshold.
type AlertFunc func(AlertEvent)

const (
	DefaultRejectionWindow    = time.Minute
	DefaultRejectionThreshold = 20
)

// RejectionMonitor forwards every event to next and raises an alert when
// too many decryptions are rejected within a sliding window. A burst of
// rejections usually means tampered storage or a replaced data key.
type RejectionMonitor struct {
	next crypto.Recorder

	mu        sync.Mutex
	rejected  []time.Time
	window    time.Duration
	threshold int
	alertFn   AlertFunc
	now       func() time.Time
}

var _ crypto.Recorder = (*RejectionMonitor)(nil)

// NewRejectionMonitor wraps next. A nil next discards events; a
// non-positive window or threshold selects the default.
func NewRejectionMonitor(next crypto.Recorder, window time.Duration, threshold int, alertFn AlertFunc) *RejectionMonitor {
	if next == nil {
		next = NoOp{}
	}
	if window <= 0 {
		window = DefaultRejectionWindow
	}
	if threshold <= 0 {
		threshold = DefaultRejectionThreshold
	}
	return &RejectionMonitor{
		next:      next,
		window:    window,
		threshold: threshold,
		alertFn:   alertFn,
		now:       time.Now,
	}
}

func (m *RejectionMonitor) RecordOperation(ctx context.Context, operation, outcome string) {
	m.next.RecordOperation(ctx, operation, outcome)
	if operation != crypto.OpDecrypt || outcome != crypto.OutcomeRejected || m.alertFn == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rejected = append(m.rejected, now)
	m.rejected = trimWindow(m.rejected, now, m.window)

	if len(m.rejected) >= m.threshold {
		m.alertFn(AlertEvent{
			Message:   "envelope rejection rate exceeds threshold",
			Count:     len(m.rejected),
			Threshold: m.threshold,
			Window:    m.window,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		m.rejected = m.rejected[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
