// ABOUTME: Rotation orchestrator state, control operations and persistence
// ABOUTME: Enable, Disable, UpdateSettings, Status, Resume and Close

package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/heartbeat"
	"github.com/2389/standin/internal/identity"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

// ErrEmptyPool is returned by Enable when no identities are given.
var ErrEmptyPool = errors.New("identity pool is empty")

const (
	// DefaultTickInterval is how often the heartbeat monitor is checked.
	DefaultTickInterval = time.Second

	// DefaultMaxFailedEpisodes is how many consecutive failed episodes
	// suspend rotation.
	DefaultMaxFailedEpisodes = 5
)

// State is the orchestrator's position in the rotation cycle.
type State string

const (
	StateDisabled     State = "disabled"
	StateIdle         State = "idle"
	StateRetiring     State = "retiring"
	StateWaitingDelay State = "waiting_delay"
	StateActivating   State = "activating"
	StateActive       State = "active"
)

// Sessions is the part of the lifecycle controller rotation drives.
type Sessions interface {
	StartAs(ctx context.Context, identity string) (*session.Session, error)
	StopFor(ctx context.Context, reason string) error
	SetGovernor(governed func() bool)
}

// Rand is the randomness rotation needs. *rand.Rand from math/rand/v2
// satisfies it. It must not be shared with another component.
type Rand interface {
	IntN(n int) int
	Int64N(n int64) int64
}

// Options holds the orchestrator's collaborators.
type Options struct {
	Store             store.Store
	Sessions          Sessions
	Monitor           *heartbeat.Monitor
	Recorder          *events.Recorder
	Clock             clock.Clock
	Rand              Rand
	TickInterval      time.Duration
	MaxFailedEpisodes int
	Logger            *slog.Logger
}

// Status is the externally visible rotation state.
type Status struct {
	Enabled             bool       `json:"enabled"`
	State               State      `json:"state"`
	RotationInProgress  bool       `json:"rotation_in_progress"`
	CurrentIdentity     string     `json:"current_identity,omitempty"`
	Pool                []string   `json:"pool"`
	RecentlyUsed        []string   `json:"recently_used"`
	LastHeartbeat       *time.Time `json:"last_heartbeat"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Settings            Settings   `json:"settings"`
}

// Orchestrator owns the rotation state machine.
type Orchestrator struct {
	store       store.Store
	sessions    Sessions
	monitor     *heartbeat.Monitor
	recorder    *events.Recorder
	clock       clock.Clock
	tickEvery   time.Duration
	maxFailures int
	logger      *slog.Logger

	// governing mirrors enabled for lock-free reads by the session controller.
	governing atomic.Bool

	mu         sync.Mutex
	rng        Rand
	epoch      uint64
	enabled    bool
	state      State
	pool       identity.Pool
	history    identity.History
	recent     *identity.RecentWindow
	current    string
	previous   string
	inProgress bool
	failures   int
	settings   Settings // latest known; tick reads OfflineTimeout from here
	episode    Settings // snapshot for the running episode
	activated  string   // last identity brought online, persisted as the username
	persistSeq uint64

	// writeMu orders store writes issued after mu is released; written is
	// the newest snapshot stored so far.
	writeMu sync.Mutex
	written uint64

	tick   clock.Timer
	delay  clock.Timer
	retire clock.Timer
}

// New creates a disabled orchestrator and installs it as the session governor.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tickEvery := opts.TickInterval
	if tickEvery <= 0 {
		tickEvery = DefaultTickInterval
	}
	maxFailures := opts.MaxFailedEpisodes
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailedEpisodes
	}

	o := &Orchestrator{
		store:       opts.Store,
		sessions:    opts.Sessions,
		monitor:     opts.Monitor,
		recorder:    opts.Recorder,
		clock:       opts.Clock,
		tickEvery:   tickEvery,
		maxFailures: maxFailures,
		logger:      logger.With("component", "rotation"),
		rng:         opts.Rand,
		state:       StateDisabled,
		history:     identity.History{},
		recent:      identity.NewRecentWindow(identity.RecentWindowSize),
		settings:    DefaultSettings(),
	}
	o.sessions.SetGovernor(o.governing.Load)
	return o
}

// Enable starts governing the session with a fresh pool. Calling it while
// already enabled resets the rotation state.
func (o *Orchestrator) Enable(ctx context.Context, identities []string) (Status, error) {
	if len(identities) == 0 {
		return Status{}, ErrEmptyPool
	}
	pool, err := identity.NewPool(identities)
	if err != nil {
		return Status{}, err
	}
	settings := o.loadSettings(ctx, DefaultSettings())

	var fx effects
	o.mu.Lock()
	o.invalidateLocked()
	o.enabled = true
	o.governing.Store(true)
	o.state = StateIdle
	o.pool = pool
	o.history = identity.History{}
	o.recent.Reset()
	o.current = ""
	o.previous = ""
	o.activated = ""
	o.inProgress = false
	o.failures = 0
	o.settings = settings
	// A live session keeps its last heartbeat; only the loss latch is cleared.
	o.monitor.Rearm()
	o.scheduleTickLocked()
	o.persistLocked(&fx)
	fx.record(events.RotationEnabled{Pool: pool.Clone()})
	status := o.statusLocked()
	o.mu.Unlock()

	o.flush(ctx, &fx)
	o.logger.Info("rotation enabled", "pool_size", len(pool))
	return status, nil
}

// Disable stops governing the session. Pending timers are cancelled and the
// running session, if any, is left alone. Disabling twice is a no-op.
func (o *Orchestrator) Disable(ctx context.Context) Status {
	var fx effects
	o.mu.Lock()
	changed := o.disableLocked(&fx)
	if changed {
		fx.record(events.RotationDisabled{})
	}
	status := o.statusLocked()
	o.mu.Unlock()

	o.flush(ctx, &fx)
	if changed {
		o.logger.Info("rotation disabled")
	}
	return status
}

func (o *Orchestrator) disableLocked(fx *effects) bool {
	if !o.enabled {
		return false
	}
	o.invalidateLocked()
	o.enabled = false
	o.governing.Store(false)
	o.state = StateDisabled
	o.inProgress = false
	o.persistLocked(fx)
	return true
}

// UpdateSettings merges patch into the stored rotation timings. The running
// episode keeps its snapshot; later episodes use the new values.
func (o *Orchestrator) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	o.mu.Lock()
	current := o.settings
	o.mu.Unlock()

	if err := patch.Apply(current).Validate(); err != nil {
		return current, err
	}
	if patch.Empty() {
		return current, nil
	}
	if _, err := o.store.UpdateConfig(ctx, patch.configPatch()); err != nil {
		return current, fmt.Errorf("saving rotation settings: %w", err)
	}

	o.mu.Lock()
	next := patch.Apply(o.settings)
	o.settings = next
	o.mu.Unlock()

	o.logger.Info("rotation settings updated",
		"offline_timeout", next.OfflineTimeout,
		"delay", next.Delay,
		"active_time", next.ActiveTime)
	return next, nil
}

// Status returns a snapshot of the rotation state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() Status {
	st := Status{
		Enabled:             o.enabled,
		State:               o.state,
		RotationInProgress:  o.inProgress,
		CurrentIdentity:     o.current,
		Pool:                o.pool.Clone(),
		RecentlyUsed:        o.recent.Items(),
		ConsecutiveFailures: o.failures,
		Settings:            o.settings,
	}
	if st.Pool == nil {
		st.Pool = []string{}
	}
	if last := o.monitor.LastHeartbeat(); !last.IsZero() {
		st.LastHeartbeat = &last
	}
	return st
}

// Governing reports whether rotation currently governs the session.
func (o *Orchestrator) Governing() bool {
	return o.governing.Load()
}

// Resume restores a rotation that was enabled when the process last exited.
func (o *Orchestrator) Resume(ctx context.Context) error {
	cfg, err := o.store.GetConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.RotationEnabled {
		return nil
	}
	pool, err := identity.NewPool(cfg.IdentityPool)
	if err != nil || len(pool) == 0 {
		o.logger.Warn("stored rotation pool unusable, not resuming", "error", err)
		return nil
	}

	var fx effects
	o.mu.Lock()
	o.invalidateLocked()
	o.enabled = true
	o.governing.Store(true)
	o.state = StateIdle
	o.pool = pool
	o.history = identity.History(cfg.IdentityHistory).Clone()
	o.recent = identity.NewRecentWindow(identity.RecentWindowSize, cfg.RecentlyUsed...)
	o.settings = SettingsFromConfig(*cfg)
	o.monitor.Rearm()
	o.scheduleTickLocked()
	fx.record(events.RotationEnabled{Pool: pool.Clone(), Resumed: true})
	recent := o.recent.Len()
	o.mu.Unlock()

	o.flush(ctx, &fx)
	o.logger.Info("rotation resumed", "pool_size", len(pool), "recently_used", recent)
	return nil
}

// Close cancels every pending timer without changing the persisted state,
// so the next process can Resume.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.invalidateLocked()
	o.governing.Store(false)
}

// invalidateLocked bumps the epoch and stops every timer.
func (o *Orchestrator) invalidateLocked() {
	o.epoch++
	for _, t := range []*clock.Timer{&o.tick, &o.delay, &o.retire} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

// loadSettings reads the stored timings, falling back when there are none
// or the store fails. It must not be called with mu held.
func (o *Orchestrator) loadSettings(ctx context.Context, fallback Settings) Settings {
	cfg, err := o.store.GetConfig(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("failed to load rotation settings", "error", err)
		}
		return fallback
	}
	return SettingsFromConfig(*cfg)
}

// effects are store writes and audit events decided under mu and carried
// out by flush once mu is released.
type effects struct {
	persist *pendingPersist
	records []events.Payload
}

type pendingPersist struct {
	seq   uint64
	patch store.ConfigPatch
}

func (fx *effects) record(p events.Payload) {
	fx.records = append(fx.records, p)
}

// persistLocked snapshots the rotation state for flush to store. A later
// snapshot in the same critical section replaces an earlier one.
func (o *Orchestrator) persistLocked(fx *effects) {
	o.persistSeq++
	patch := store.ConfigPatch{
		RotationEnabled: store.Ptr(o.enabled),
		IdentityPool:    store.Ptr([]string(o.pool.Clone())),
		RecentlyUsed:    store.Ptr(o.recent.Items()),
		IdentityHistory: store.Ptr(map[string]time.Time(o.history.Clone())),
	}
	if o.activated != "" {
		patch.Username = store.Ptr(o.activated)
	}
	fx.persist = &pendingPersist{seq: o.persistSeq, patch: patch}
}

// flush writes the snapshot, unless a newer one already reached the store,
// then records the events in order. Failures are logged only.
func (o *Orchestrator) flush(ctx context.Context, fx *effects) {
	if p := fx.persist; p != nil {
		o.writeMu.Lock()
		if p.seq > o.written {
			o.written = p.seq
			if _, err := o.store.UpdateConfig(ctx, p.patch); err != nil {
				o.logger.Warn("failed to persist rotation state", "error", err)
			}
		}
		o.writeMu.Unlock()
	}
	for _, rec := range fx.records {
		o.recorder.Record(ctx, rec)
	}
}
