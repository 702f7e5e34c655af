// ABOUTME: Timer-driven rotation episode transitions
// ABOUTME: tick -> retiring -> waiting_delay -> activating -> active -> idle

package rotation

import (
	"context"
	"errors"

	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/identity"
	"github.com/2389/standin/internal/session"
)

// activationAttempts is one try plus one immediate retry.
const activationAttempts = 2

func (o *Orchestrator) scheduleTickLocked() {
	epoch := o.epoch
	o.tick = o.clock.AfterFunc(o.tickEvery, func() { o.onTick(epoch) })
}

func (o *Orchestrator) onTick(epoch uint64) {
	o.mu.Lock()
	if epoch != o.epoch || !o.enabled {
		o.mu.Unlock()
		return
	}
	o.scheduleTickLocked()
	lost := o.monitor.Check(o.settings.OfflineTimeout, o.inProgress)
	fallback := o.settings
	o.mu.Unlock()

	if !lost {
		return
	}

	ctx := context.Background()
	settings := o.loadSettings(ctx, fallback)

	var fx effects
	o.mu.Lock()
	if epoch != o.epoch || !o.enabled || o.inProgress {
		o.mu.Unlock()
		return
	}
	o.beginLocked(ctx, settings, &fx)
	o.mu.Unlock()

	o.flush(ctx, &fx)
}

// beginLocked opens an episode: retire whatever is running and wait out a
// randomized delay before activating the next identity.
func (o *Orchestrator) beginLocked(ctx context.Context, settings Settings, fx *effects) {
	o.episode = settings
	o.settings = settings
	o.inProgress = true
	o.state = StateRetiring

	prev := o.current
	if prev == "" {
		prev = o.previous
	}
	if o.current != "" {
		o.previous = o.current
		o.current = ""
	}

	if err := o.sessions.StopFor(ctx, "rotation"); err != nil && !errors.Is(err, session.ErrNotRunning) {
		o.logger.Warn("failed to stop session for rotation", "error", err)
	}

	delay := sample(o.rng, o.episode.Delay, o.episode.DelayVariation)
	o.state = StateWaitingDelay
	epoch := o.epoch
	o.delay = o.clock.AfterFunc(delay, func() { o.activate(epoch) })

	o.logger.Info("rotation started", "previous", prev, "delay", delay)
	fx.record(events.RotationStarted{PreviousIdentity: prev, DelayMS: delay.Milliseconds()})
}

// activate selects an identity and brings it online. The session is started
// outside the lock; the epoch is re-checked afterwards.
func (o *Orchestrator) activate(epoch uint64) {
	ctx := context.Background()

	var fx effects
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.delay = nil
	o.state = StateActivating

	now := o.clock.Now()
	id, err := identity.Select(o.pool, o.history, now, identity.Cooldown, o.rng)
	if err != nil {
		poolSize := len(o.pool)
		o.logger.Warn("no identity available, aborting rotation", "pool_size", poolSize)
		fx.record(events.NoIdentityAvailable{PoolSize: poolSize})
		o.failLocked(&fx)
		o.mu.Unlock()
		o.flush(ctx, &fx)
		return
	}
	o.history[id] = now
	o.activated = id
	o.persistLocked(&fx)
	o.mu.Unlock()
	o.flush(ctx, &fx)

	var startErr error
	attempts := 0
	for attempts < activationAttempts {
		attempts++
		_, startErr = o.sessions.StartAs(ctx, id)
		if startErr == nil {
			break
		}
		o.logger.Warn("activation attempt failed", "identity", id, "attempt", attempts, "error", startErr)
		if errors.Is(startErr, session.ErrAlreadyRunning) {
			_ = o.sessions.StopFor(ctx, "rotation")
		}
		if !o.epochIs(epoch) {
			return
		}
	}

	fx = effects{}
	o.mu.Lock()
	if epoch != o.epoch {
		// Disabled while connecting; the session is left running.
		o.mu.Unlock()
		return
	}
	if startErr != nil {
		fx.record(events.ConnectionFailed{Identity: id, Attempts: attempts, Error: startErr.Error()})
		o.failLocked(&fx)
		o.mu.Unlock()
		o.flush(ctx, &fx)
		return
	}

	o.current = id
	o.state = StateActive
	o.failures = 0
	active := sample(o.rng, o.episode.ActiveTime, o.episode.ActiveTimeVariation)
	o.retire = o.clock.AfterFunc(active, func() { o.retireCurrent(epoch) })
	fx.record(events.RotationCompleted{Identity: id, ActiveForMS: active.Milliseconds(), Attempts: attempts})
	o.mu.Unlock()

	o.logger.Info("rotation completed", "identity", id, "active_for", active, "attempts", attempts)
	o.flush(ctx, &fx)
}

// retireCurrent ends the active window: stop the session, remember the
// identity and go idle until the monitor detects the loss.
func (o *Orchestrator) retireCurrent(epoch uint64) {
	ctx := context.Background()

	var fx effects
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.retire = nil
	id := o.current

	if err := o.sessions.StopFor(ctx, "rotation"); err != nil && !errors.Is(err, session.ErrNotRunning) {
		o.logger.Warn("failed to stop retiring session", "identity", id, "error", err)
	}

	o.recent.Push(id)
	o.previous = id
	o.current = ""
	o.inProgress = false
	o.state = StateIdle
	o.monitor.Rearm()
	o.persistLocked(&fx)
	fx.record(events.RotationRetired{Identity: id, RecentlyUsed: o.recent.Items()})
	o.mu.Unlock()

	o.logger.Info("identity retired", "identity", id)
	o.flush(ctx, &fx)
}

// failLocked ends an episode that could not bring an identity online. After
// too many consecutive failures rotation suspends itself.
func (o *Orchestrator) failLocked(fx *effects) {
	o.inProgress = false
	o.state = StateIdle
	o.failures++
	o.monitor.Rearm()

	if o.failures < o.maxFailures {
		o.persistLocked(fx)
		return
	}

	failures := o.failures
	o.disableLocked(fx)
	o.logger.Error("rotation suspended", "consecutive_failures", failures)
	fx.record(events.RotationSuspended{ConsecutiveFailures: failures})
	fx.record(events.RotationDisabled{Reason: "too many failed rotations"})
}

func (o *Orchestrator) epochIs(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch == epoch
}
