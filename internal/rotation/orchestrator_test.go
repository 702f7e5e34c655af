// ABOUTME: Tests for the rotation orchestrator state machine
// ABOUTME: Drives episodes with a fake clock and an in-memory session controller

package rotation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/heartbeat"
	"github.com/2389/standin/internal/identity"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

var t0 = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

// fakeSessions stands in for the lifecycle controller. A started session
// records one heartbeat, like a spawn would.
type fakeSessions struct {
	mu         sync.Mutex
	monitor    *heartbeat.Monitor
	governed   func() bool
	live       string
	starts     []string
	stops      []string
	attempts   int
	failStarts int
	failAll    bool
	overlaps   int
}

func (f *fakeSessions) StartAs(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	f.attempts++
	if f.failAll || f.failStarts > 0 {
		if f.failStarts > 0 {
			f.failStarts--
		}
		f.mu.Unlock()
		return nil, session.ErrConnection
	}
	if f.live != "" {
		f.overlaps++
		f.mu.Unlock()
		return nil, session.ErrAlreadyRunning
	}
	f.live = id
	f.starts = append(f.starts, id)
	f.mu.Unlock()

	f.monitor.RecordHeartbeat()
	return &session.Session{Identity: id, Status: session.StatusConnecting}, nil
}

func (f *fakeSessions) StopFor(ctx context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live == "" {
		return session.ErrNotRunning
	}
	f.stops = append(f.stops, f.live)
	f.live = ""
	return nil
}

func (f *fakeSessions) SetGovernor(governed func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.governed = governed
}

func (f *fakeSessions) liveIdentity() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeSessions) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type harness struct {
	orch     *Orchestrator
	sessions *fakeSessions
	store    *store.MockStore
	clock    *clock.Fake
	monitor  *heartbeat.Monitor
}

func newHarness(t *testing.T, maxFailures int) *harness {
	t.Helper()
	return newHarnessOn(t, maxFailures, nil)
}

// newHarnessOn lets wrap interpose on the store the orchestrator and the
// recorder write to.
func newHarnessOn(t *testing.T, maxFailures int, wrap func(*store.MockStore) store.Store) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := store.NewMockStore()
	var backend store.Store = s
	if wrap != nil {
		backend = wrap(s)
	}
	clk := clock.NewFake(t0)
	monitor := heartbeat.New(clk)
	sessions := &fakeSessions{monitor: monitor}
	b := events.NewBroadcaster(logger)
	t.Cleanup(b.Close)

	orch := New(Options{
		Store:             backend,
		Sessions:          sessions,
		Monitor:           monitor,
		Recorder:          events.NewRecorder(backend, b, clk, logger),
		Clock:             clk,
		Rand:              rand.New(rand.NewPCG(7, 8)),
		MaxFailedEpisodes: maxFailures,
		Logger:            logger,
	})
	t.Cleanup(orch.Close)

	return &harness{orch: orch, sessions: sessions, store: s, clock: clk, monitor: monitor}
}

func (h *harness) enable(t *testing.T, ids ...string) {
	t.Helper()
	_, err := h.orch.Enable(context.Background(), ids)
	require.NoError(t, err)
}

func (h *harness) logs(t *testing.T, kind events.Kind) []*store.ActivityLog {
	t.Helper()
	logs, err := h.store.ListActivityLogs(context.Background(), store.ActivityFilter{Kind: string(kind), Limit: 1000})
	require.NoError(t, err)
	return logs
}

// stepUntil advances one second at a time until cond holds or limit passes.
func (h *harness) stepUntil(t *testing.T, limit time.Duration, cond func() bool) {
	t.Helper()
	for elapsed := time.Duration(0); elapsed <= limit; elapsed += time.Second {
		if cond() {
			return
		}
		h.clock.Advance(time.Second)
	}
	require.True(t, cond(), "condition not reached within %s", limit)
}

func TestEnable_RejectsBadPools(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.orch.Enable(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = h.orch.Enable(ctx, []string{"alpha", "alpha"})
	assert.ErrorIs(t, err, identity.ErrDuplicateIdentity)

	_, err = h.orch.Enable(ctx, []string{"alpha", " "})
	assert.ErrorIs(t, err, identity.ErrEmptyIdentity)

	st := h.orch.Status()
	assert.False(t, st.Enabled)
	assert.Equal(t, StateDisabled, st.State)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestEnable_StatusAndPersistence(t *testing.T) {
	h := newHarness(t, 0)

	st, err := h.orch.Enable(context.Background(), []string{"alpha", "bravo"})
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.RotationInProgress)
	assert.Equal(t, []string{"alpha", "bravo"}, st.Pool)
	assert.Empty(t, st.RecentlyUsed)
	assert.Nil(t, st.LastHeartbeat)
	assert.True(t, h.sessions.governed())

	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.RotationEnabled)
	assert.Equal(t, []string{"alpha", "bravo"}, cfg.IdentityPool)

	assert.Len(t, h.logs(t, events.KindRotationEnabled), 1)
}

func TestEnable_TwiceKeepsSingleTick(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")
	h.enable(t, "alpha", "bravo")

	assert.Equal(t, 1, h.clock.Pending())
	assert.Equal(t, []string{"alpha", "bravo"}, h.orch.Status().Pool)
}

func TestTick_NoHeartbeatSignalsOnFirstTick(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")

	h.clock.Advance(time.Second)

	st := h.orch.Status()
	assert.True(t, st.RotationInProgress)
	assert.Equal(t, StateWaitingDelay, st.State)
	assert.Len(t, h.logs(t, events.KindRotationStarted), 1)
}

func TestEnable_KeepsHealthySessionUntilOfflineTimeout(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.sessions.StartAs(ctx, "manual")
	require.NoError(t, err)
	h.clock.Advance(500 * time.Millisecond)
	h.monitor.RecordHeartbeat()

	st, err := h.orch.Enable(ctx, []string{"alpha", "bravo", "charlie"})
	require.NoError(t, err)
	require.NotNil(t, st.LastHeartbeat, "enabling keeps the last heartbeat")
	assert.Equal(t, t0.Add(500*time.Millisecond), *st.LastHeartbeat)

	// Ticks at +1.5s .. +10.5s see at most 10s since the heartbeat.
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, "manual", h.sessions.liveIdentity())
	assert.Empty(t, h.sessions.stops)
	st = h.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.RotationInProgress)
	assert.Empty(t, h.logs(t, events.KindRotationStarted))

	h.clock.Advance(time.Second)
	assert.Equal(t, []string{"manual"}, h.sessions.stops)
	assert.True(t, h.orch.Status().RotationInProgress)
}

func TestTick_SignalsOnceAfterOfflineTimeout(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")
	h.monitor.RecordHeartbeat()

	h.clock.Advance(10 * time.Second)
	assert.False(t, h.orch.Status().RotationInProgress, "elapsed equal to the timeout is not a loss")

	h.clock.Advance(time.Second)
	assert.True(t, h.orch.Status().RotationInProgress)

	h.clock.Advance(20 * time.Second)
	assert.Len(t, h.logs(t, events.KindRotationStarted), 1, "one signal per offline episode")
}

func TestEpisode_ActivatesAndRetiresWithinActiveWindow(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo", "charlie")

	h.clock.Advance(time.Second)
	h.stepUntil(t, 71*time.Second, func() bool { return h.orch.Status().State == StateActive })

	st := h.orch.Status()
	require.NotEmpty(t, st.CurrentIdentity)
	assert.True(t, st.RotationInProgress)
	assert.Equal(t, st.CurrentIdentity, h.sessions.liveIdentity())
	id := st.CurrentIdentity

	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, cfg.Username)
	assert.Contains(t, cfg.IdentityHistory, id)

	h.clock.Advance(15 * time.Second)

	completed := h.logs(t, events.KindRotationCompleted)
	retired := h.logs(t, events.KindRotationRetired)
	require.Len(t, completed, 1)
	require.Len(t, retired, 1)

	active := retired[0].CreatedAt.Sub(completed[0].CreatedAt)
	assert.GreaterOrEqual(t, active, 10*time.Second)
	assert.LessOrEqual(t, active, 15*time.Second)

	assert.Equal(t, []string{id}, h.orch.Status().RecentlyUsed)
	assert.Equal(t, []string{id}, h.sessions.stops)
}

func TestEpisode_DelayWithinVariation(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")

	h.clock.Advance(time.Second)
	started := h.logs(t, events.KindRotationStarted)
	require.Len(t, started, 1)

	var payload events.RotationStarted
	require.NoError(t, json.Unmarshal([]byte(started[0].Metadata), &payload))
	assert.GreaterOrEqual(t, payload.DelayMS, int64(30_000))
	assert.LessOrEqual(t, payload.DelayMS, int64(70_000))
}

func TestInProgress_SpansWholeEpisode(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo")

	for range 600 {
		h.clock.Advance(time.Second)
		st := h.orch.Status()
		switch st.State {
		case StateIdle:
			assert.False(t, st.RotationInProgress)
		case StateRetiring, StateWaitingDelay, StateActivating, StateActive:
			assert.True(t, st.RotationInProgress, "state %s", st.State)
		default:
			t.Fatalf("unexpected state %s", st.State)
		}
	}

	started := len(h.logs(t, events.KindRotationStarted))
	retired := len(h.logs(t, events.KindRotationRetired))
	assert.GreaterOrEqual(t, started, 5)
	assert.LessOrEqual(t, started-retired, 1, "a new episode only starts after the previous one retired")
}

func TestRotation_NeverOverlapsSessions(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo", "charlie")

	for range 1800 {
		h.clock.Advance(time.Second)
	}

	assert.Zero(t, h.sessions.overlaps)
	assert.GreaterOrEqual(t, h.sessions.startCount(), 15)
	assert.LessOrEqual(t, len(h.orch.Status().RecentlyUsed), identity.RecentWindowSize)
}

func TestRotation_PrefersIdentitiesOutOfCooldown(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo", "charlie")

	h.stepUntil(t, 5*time.Minute, func() bool { return h.sessions.startCount() == 3 })

	// Three episodes fit well inside the cooldown, so all three identities
	// were used before any repeat.
	assert.ElementsMatch(t, []string{"alpha", "bravo", "charlie"}, h.sessions.starts)
}

func TestDisable_IdempotentAndCancelsTimers(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")
	h.clock.Advance(time.Second)
	require.Equal(t, StateWaitingDelay, h.orch.Status().State)

	first := h.orch.Disable(context.Background())
	second := h.orch.Disable(context.Background())

	assert.Equal(t, first, second)
	assert.False(t, first.Enabled)
	assert.False(t, first.RotationInProgress)
	assert.Equal(t, StateDisabled, first.State)
	assert.Equal(t, 0, h.clock.Pending())
	assert.False(t, h.sessions.governed())
	assert.Len(t, h.logs(t, events.KindRotationDisabled), 1)

	h.clock.Advance(10 * time.Minute)
	assert.Zero(t, h.sessions.startCount())

	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.RotationEnabled)
}

func TestDisable_LeavesActiveSessionRunning(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")
	h.stepUntil(t, 2*time.Minute, func() bool { return h.orch.Status().State == StateActive })

	h.orch.Disable(context.Background())
	h.clock.Advance(time.Minute)

	assert.Equal(t, "alpha", h.sessions.liveIdentity())
	assert.Empty(t, h.sessions.stops)
}

// withHalfSecondDelay makes activation land between two ticks, so the idle
// state after a failed episode is observable before the next tick.
func (h *harness) withHalfSecondDelay(t *testing.T) {
	t.Helper()
	_, err := h.orch.UpdateSettings(context.Background(), SettingsPatch{
		Delay:          store.Ptr(50500 * time.Millisecond),
		DelayVariation: store.Ptr(time.Duration(0)),
	})
	require.NoError(t, err)
}

func TestActivation_NoIdentityAbortsToIdle(t *testing.T) {
	h := newHarness(t, 0)
	h.withHalfSecondDelay(t)
	h.enable(t, "alpha")
	h.clock.Advance(time.Second)

	h.orch.mu.Lock()
	h.orch.pool = nil
	h.orch.mu.Unlock()

	h.clock.Advance(50500 * time.Millisecond)

	assert.Len(t, h.logs(t, events.KindNoIdentityAvailable), 1)
	st := h.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.RotationInProgress)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Zero(t, h.sessions.startCount())
}

func TestActivation_RetriesOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.sessions.failStarts = 1
	h.enable(t, "alpha")

	h.stepUntil(t, 2*time.Minute, func() bool { return h.orch.Status().State == StateActive })

	assert.Equal(t, 2, h.sessions.attempts)
	assert.Empty(t, h.logs(t, events.KindConnectionFailed))

	var payload events.RotationCompleted
	completed := h.logs(t, events.KindRotationCompleted)
	require.Len(t, completed, 1)
	require.NoError(t, json.Unmarshal([]byte(completed[0].Metadata), &payload))
	assert.Equal(t, 2, payload.Attempts)
}

func TestActivation_SecondFailureEndsEpisode(t *testing.T) {
	h := newHarness(t, 0)
	h.withHalfSecondDelay(t)
	h.sessions.failAll = true
	h.enable(t, "alpha")

	h.clock.Advance(time.Second)
	h.clock.Advance(50500 * time.Millisecond)

	assert.Len(t, h.logs(t, events.KindConnectionFailed), 1)
	st := h.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.RotationInProgress)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, 2, h.sessions.attempts)

	// The monitor was re-armed, so the next tick opens a new episode.
	h.clock.Advance(500 * time.Millisecond)
	assert.True(t, h.orch.Status().RotationInProgress)
	assert.Len(t, h.logs(t, events.KindRotationStarted), 2)
}

func TestActivation_SuspendsAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, 2)
	h.sessions.failAll = true
	h.enable(t, "alpha")

	h.stepUntil(t, 5*time.Minute, func() bool { return !h.orch.Status().Enabled })

	assert.Len(t, h.logs(t, events.KindConnectionFailed), 2)
	assert.Len(t, h.logs(t, events.KindRotationSuspended), 1)
	assert.Equal(t, 0, h.clock.Pending())

	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.RotationEnabled)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	h := newHarness(t, 0)
	h.sessions.failStarts = 2
	h.enable(t, "alpha")

	h.stepUntil(t, 5*time.Minute, func() bool { return h.orch.Status().State == StateActive })
	assert.Zero(t, h.orch.Status().ConsecutiveFailures)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.orch.UpdateSettings(ctx, SettingsPatch{OfflineTimeout: store.Ptr(time.Duration(0))})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = h.orch.UpdateSettings(ctx, SettingsPatch{Delay: store.Ptr(-time.Second)})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	got, err := h.orch.UpdateSettings(ctx, SettingsPatch{OfflineTimeout: store.Ptr(30 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, got.OfflineTimeout)
	assert.Equal(t, 50*time.Second, got.Delay)

	cfg, err := h.store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.OfflineTimeout)

	h.store.FailWrites(assert.AnError)
	_, err = h.orch.UpdateSettings(ctx, SettingsPatch{Delay: store.Ptr(time.Second)})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 50*time.Second, h.orch.Status().Settings.Delay)
}

func TestUpdateSettings_AppliesToNextEpisode(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo")
	h.clock.Advance(time.Second)

	_, err := h.orch.UpdateSettings(context.Background(), SettingsPatch{
		ActiveTime:          store.Ptr(100 * time.Second),
		ActiveTimeVariation: store.Ptr(time.Duration(0)),
	})
	require.NoError(t, err)

	h.stepUntil(t, 10*time.Minute, func() bool { return len(h.logs(t, events.KindRotationCompleted)) == 2 })

	completed := h.logs(t, events.KindRotationCompleted)
	var first, second events.RotationCompleted
	// Newest first.
	require.NoError(t, json.Unmarshal([]byte(completed[1].Metadata), &first))
	require.NoError(t, json.Unmarshal([]byte(completed[0].Metadata), &second))
	assert.LessOrEqual(t, first.ActiveForMS, int64(15_000), "running episode keeps its snapshot")
	assert.Equal(t, int64(100_000), second.ActiveForMS)
}

func TestResume(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	require.NoError(t, h.orch.Resume(ctx), "no stored config is not an error")
	assert.False(t, h.orch.Status().Enabled)

	used := t0.Add(-time.Minute)
	_, err := h.store.UpdateConfig(ctx, store.ConfigPatch{
		RotationEnabled: store.Ptr(true),
		IdentityPool:    store.Ptr([]string{"alpha", "bravo"}),
		RecentlyUsed:    store.Ptr([]string{"alpha"}),
		IdentityHistory: store.Ptr(map[string]time.Time{"alpha": used}),
		OfflineTimeout:  store.Ptr(20 * time.Second),
	})
	require.NoError(t, err)

	require.NoError(t, h.orch.Resume(ctx))
	st := h.orch.Status()
	assert.True(t, st.Enabled)

	enabled := h.logs(t, events.KindRotationEnabled)
	require.Len(t, enabled, 1)
	var payload events.RotationEnabled
	require.NoError(t, json.Unmarshal([]byte(enabled[0].Metadata), &payload))
	assert.True(t, payload.Resumed)
	assert.Equal(t, []string{"alpha", "bravo"}, payload.Pool)
	assert.Contains(t, enabled[0].Description, "resumed")

	assert.Equal(t, []string{"alpha", "bravo"}, st.Pool)
	assert.Equal(t, []string{"alpha"}, st.RecentlyUsed)
	assert.Equal(t, 20*time.Second, st.Settings.OfflineTimeout)
	assert.Equal(t, 1, h.clock.Pending())

	// alpha is in cooldown, so the first activation picks bravo.
	h.stepUntil(t, 2*time.Minute, func() bool { return h.orch.Status().State == StateActive })
	assert.Equal(t, "bravo", h.orch.Status().CurrentIdentity)
}

func TestClose_StopsTimersButKeepsStoredState(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha")
	h.orch.Close()

	assert.Equal(t, 0, h.clock.Pending())
	assert.False(t, h.orch.Governing())

	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.RotationEnabled)
}

// gatedStore parks the next config or activity write, once armed, until
// release is closed.
type gatedStore struct {
	*store.MockStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(s *store.MockStore) *gatedStore {
	return &gatedStore{MockStore: s}
}

func (g *gatedStore) arm() {
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.armed.Store(true)
}

func (g *gatedStore) gate() {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
}

func (g *gatedStore) UpdateConfig(ctx context.Context, patch store.ConfigPatch) (*store.Config, error) {
	g.gate()
	return g.MockStore.UpdateConfig(ctx, patch)
}

func (g *gatedStore) AddActivityLog(ctx context.Context, entry *store.ActivityLog) error {
	g.gate()
	return g.MockStore.AddActivityLog(ctx, entry)
}

// statusWithin fails the test if Status does not answer in time.
func statusWithin(t *testing.T, o *Orchestrator, d time.Duration) Status {
	t.Helper()
	ch := make(chan Status, 1)
	go func() { ch <- o.Status() }()
	select {
	case st := <-ch:
		return st
	case <-time.After(d):
		t.Fatal("Status blocked behind a store write")
		return Status{}
	}
}

func TestStoreWritesDoNotHoldTheLock(t *testing.T) {
	var gs *gatedStore
	h := newHarnessOn(t, 0, func(s *store.MockStore) store.Store {
		gs = newGatedStore(s)
		return gs
	})
	h.enable(t, "alpha")

	waitEntered := func() {
		t.Helper()
		select {
		case <-gs.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("no store write reached the gate")
		}
	}

	// The tick's rotation_started record.
	gs.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.clock.Advance(time.Second)
	}()
	waitEntered()
	assert.Equal(t, StateWaitingDelay, statusWithin(t, h.orch, time.Second).State)
	close(gs.release)
	<-done

	// The activation's pool snapshot.
	gs.arm()
	done = make(chan struct{})
	go func() {
		defer close(done)
		h.clock.Advance(70 * time.Second)
	}()
	waitEntered()
	st := statusWithin(t, h.orch, time.Second)
	assert.Equal(t, StateActivating, st.State)
	assert.True(t, st.RotationInProgress)
	close(gs.release)
	<-done

	assert.Equal(t, StateActive, h.orch.Status().State)
	cfg, err := h.store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Username)
}

func TestPersist_StaleSnapshotIsDropped(t *testing.T) {
	h := newHarness(t, 0)
	h.enable(t, "alpha", "bravo")

	var older, newer effects
	h.orch.mu.Lock()
	h.orch.persistLocked(&older)
	h.orch.pool = identity.Pool{"bravo"}
	h.orch.persistLocked(&newer)
	h.orch.mu.Unlock()

	ctx := context.Background()
	h.orch.flush(ctx, &newer)
	h.orch.flush(ctx, &older)

	cfg, err := h.store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo"}, cfg.IdentityPool)
}
