// ABOUTME: Heartbeat liveness monitor with once-per-episode loss signalling
// ABOUTME: Checked on a fixed cadence by the rotation orchestrator

package heartbeat

import (
	"sync"
	"time"

	"github.com/2389/standin/internal/clock"
)

// Monitor tracks the last heartbeat of the live session.
type Monitor struct {
	clock clock.Clock

	mu        sync.Mutex
	last      time.Time
	signalled bool
}

// New creates a monitor that has never seen a heartbeat.
func New(c clock.Clock) *Monitor {
	return &Monitor{clock: c}
}

// RecordHeartbeat marks the session alive now and closes any offline episode.
func (m *Monitor) RecordHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = m.clock.Now()
	m.signalled = false
}

// LastHeartbeat returns the time of the last heartbeat, or the zero time if
// none was ever recorded.
func (m *Monitor) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Age returns how long ago the last heartbeat was recorded, and false if
// there has never been one.
func (m *Monitor) Age() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last.IsZero() {
		return 0, false
	}
	return m.clock.Now().Sub(m.last), true
}

// Check reports whether the session should be considered lost. It returns
// true at most once per offline episode, and never while a rotation is in
// progress.
func (m *Monitor) Check(timeout time.Duration, inProgress bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inProgress || m.signalled {
		return false
	}
	if m.last.IsZero() || m.clock.Now().Sub(m.last) > timeout {
		m.signalled = true
		return true
	}
	return false
}

// Rearm opens a new offline episode without a heartbeat, so the next Check
// past the timeout signals loss again.
func (m *Monitor) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalled = false
}

