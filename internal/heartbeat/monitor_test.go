// ABOUTME: Tests for the heartbeat monitor
// ABOUTME: Covers timeout detection, episode latching, rearm and reset

package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/standin/internal/clock"
)

var start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCheck_NeverHeartbeatSignalsImmediately(t *testing.T) {
	m := New(clock.NewFake(start))
	assert.True(t, m.Check(10*time.Second, false))
}

func TestCheck_SignalsOncePerEpisode(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)
	m.RecordHeartbeat()

	fired := 0
	for range 30 {
		c.Advance(time.Second)
		if m.Check(10*time.Second, false) {
			fired++
			assert.Equal(t, start.Add(11*time.Second), c.Now(), "loss must be reported on the first tick past the timeout")
		}
	}
	assert.Equal(t, 1, fired)
}

func TestCheck_TimeoutIsExclusive(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)
	m.RecordHeartbeat()

	c.Advance(10 * time.Second)
	assert.False(t, m.Check(10*time.Second, false))
	c.Advance(time.Millisecond)
	assert.True(t, m.Check(10*time.Second, false))
}

func TestCheck_InProgressSuppressesSignal(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)

	assert.False(t, m.Check(10*time.Second, true))
	// The suppressed check must not consume the episode.
	assert.True(t, m.Check(10*time.Second, false))
}

func TestHeartbeatClosesEpisode(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)
	assert.True(t, m.Check(time.Second, false))

	m.RecordHeartbeat()
	c.Advance(2 * time.Second)
	assert.True(t, m.Check(time.Second, false))
}

func TestRearm(t *testing.T) {
	m := New(clock.NewFake(start))
	assert.True(t, m.Check(time.Second, false))
	assert.False(t, m.Check(time.Second, false))

	m.Rearm()
	assert.True(t, m.Check(time.Second, false))
}

func TestRearm_KeepsLastHeartbeat(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)
	m.RecordHeartbeat()
	c.Advance(2 * time.Second)
	assert.True(t, m.Check(time.Second, false))

	m.Rearm()
	assert.Equal(t, start, m.LastHeartbeat())
	assert.True(t, m.Check(time.Second, false), "still stale after rearm")

	m.RecordHeartbeat()
	m.Rearm()
	assert.False(t, m.Check(time.Second, false), "a fresh heartbeat survives rearm")
}

func TestAge(t *testing.T) {
	c := clock.NewFake(start)
	m := New(c)

	_, ok := m.Age()
	assert.False(t, ok)

	m.RecordHeartbeat()
	c.Advance(3 * time.Second)
	age, ok := m.Age()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, age)
	assert.Equal(t, start, m.LastHeartbeat())
}
