// ABOUTME: Lifecycle controller owning the single agent session
// ABOUTME: Starts, stops and restarts sessions and reacts to protocol callbacks

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/standin/internal/clock"
	"github.com/2389/standin/internal/dedupe"
	"github.com/2389/standin/internal/events"
	"github.com/2389/standin/internal/heartbeat"
	"github.com/2389/standin/internal/store"
)

const (
	timerHeartbeat = "heartbeat"
	timerChat      = "chat"
	timerAntiIdle  = "anti_idle"
	timerReconnect = "reconnect"
)

// Settings tune session-local timing. Zero values take defaults.
type Settings struct {
	ReconnectDelay       time.Duration
	ReconnectMaxAttempts int
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	SettleDelay          time.Duration
	AntiIdleMin          time.Duration
	AntiIdleMax          time.Duration
	ChatDedupeWindow     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = 5 * time.Second
	}
	if s.ReconnectMaxAttempts <= 0 {
		s.ReconnectMaxAttempts = 10
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 10 * time.Second
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = 5 * time.Second
	}
	if s.SettleDelay <= 0 {
		s.SettleDelay = time.Second
	}
	if s.AntiIdleMin <= 0 {
		s.AntiIdleMin = 30 * time.Second
	}
	if s.AntiIdleMax < s.AntiIdleMin {
		s.AntiIdleMax = s.AntiIdleMin + 60*time.Second
	}
	if s.ChatDedupeWindow <= 0 {
		s.ChatDedupeWindow = dedupe.DefaultChatWindow
	}
	return s
}

// Rand is the randomness session behaviors need. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Int64N(n int64) int64
}

// Options holds the controller's collaborators.
type Options struct {
	Store     store.Store
	Recorder  *events.Recorder
	Monitor   *heartbeat.Monitor
	Clock     clock.Clock
	Rand      Rand
	NewClient ClientFactory
	Settings  Settings
	Logger    *slog.Logger
}

// Controller owns the agent session.
type Controller struct {
	store     store.Store
	recorder  *events.Recorder
	monitor   *heartbeat.Monitor
	clock     clock.Clock
	newClient ClientFactory
	settings  Settings
	logger    *slog.Logger
	dedupe    *dedupe.Cache

	mu       sync.Mutex
	rng      Rand
	governed func() bool
	current  *live
	last     *Session
}

// live is the controller's private view of the current session.
type live struct {
	info     Session
	client   Client
	cfg      *store.Config
	server   *store.Server
	timers   map[string]clock.Timer
	attempts int // reconnect attempts since the last spawn
	chatNext int
	sneaking bool
}

func (l *live) target() events.SessionTarget {
	return events.SessionTarget{
		Identity:   l.info.Identity,
		ServerID:   l.info.ServerID,
		ServerName: l.info.ServerName,
	}
}

// New creates a controller with no session.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := opts.Settings.withDefaults()
	return &Controller{
		store:     opts.Store,
		recorder:  opts.Recorder,
		monitor:   opts.Monitor,
		clock:     opts.Clock,
		rng:       opts.Rand,
		newClient: opts.NewClient,
		settings:  settings,
		logger:    logger.With("component", "session"),
		dedupe:    dedupe.New(opts.Clock, settings.ChatDedupeWindow, 1024),
		governed:  func() bool { return false },
	}
}

// SetGovernor installs the check that reports whether rotation currently
// governs the session. A governed session is never auto-reconnected.
func (c *Controller) SetGovernor(governed func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.governed = governed
}

// Start brings a session online under the configured username.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	cfg, server, err := c.loadTargets(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("%w: no username configured", ErrConfiguration)
	}
	return c.start(ctx, cfg.Username, cfg, server)
}

// StartAs brings a session online under identity.
func (c *Controller) StartAs(ctx context.Context, identity string) (*Session, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrConfiguration)
	}
	cfg, server, err := c.loadTargets(ctx)
	if err != nil {
		return nil, err
	}
	return c.start(ctx, identity, cfg, server)
}

func (c *Controller) loadTargets(ctx context.Context) (*store.Config, *store.Server, error) {
	cfg, err := c.store.GetConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: no agent config", ErrConfiguration)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	server, err := c.store.GetActiveServer(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: no active server", ErrConfiguration)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading active server: %w", err)
	}
	return cfg, server, nil
}

func (c *Controller) start(ctx context.Context, identity string, cfg *store.Config, server *store.Server) (*Session, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	ls := c.newLiveLocked(identity, cfg, server)
	c.current = ls
	c.mu.Unlock()

	if err := c.connect(ctx, ls); err != nil {
		return nil, err
	}

	c.mu.Lock()
	snap := ls.info
	c.mu.Unlock()
	return &snap, nil
}

func (c *Controller) newLiveLocked(identity string, cfg *store.Config, server *store.Server) *live {
	ls := &live{
		info: Session{
			ID:         uuid.New().String(),
			Identity:   identity,
			ServerID:   server.ID,
			ServerName: server.Name,
			StartedAt:  c.clock.Now(),
			Status:     StatusConnecting,
		},
		client: c.newClient(),
		cfg:    cfg,
		server: server,
		timers: make(map[string]clock.Timer),
	}
	c.wire(ls)
	return ls
}

func (c *Controller) wire(ls *live) {
	ls.client.On(EventSpawn, func(Event) { c.handleSpawn(ls) })
	ls.client.On(EventChat, func(e Event) { c.handleChat(ls, e) })
	ls.client.On(EventError, func(e Event) { c.handleError(ls, e) })
	ls.client.On(EventKicked, func(e Event) { c.handleKicked(ls, e) })
	ls.client.On(EventEnd, func(e Event) { c.handleEnd(ls, e) })
}

// connect dials ls's client. On failure the session ends, unless it is a
// reconnect with attempts left, in which case another attempt is scheduled.
func (c *Controller) connect(ctx context.Context, ls *live) error {
	now := c.clock.Now()
	c.updateStats(ctx, store.StatsPatch{
		Status:          store.Ptr(store.StatusConnecting),
		CurrentServerID: store.Ptr(ls.server.ID),
		LastConnected:   &now,
	})
	c.recorder.Publish(events.StatusChanged{SessionTarget: ls.target(), Status: string(StatusConnecting)})
	c.recorder.Record(ctx, events.SessionStarting{SessionTarget: ls.target(), SessionID: ls.info.ID})

	creds := Credentials{
		Identity: ls.info.Identity,
		Password: ls.cfg.Password,
		AuthType: ls.cfg.AuthType,
	}

	cctx, cancel := context.WithTimeout(ctx, c.settings.ConnectTimeout)
	defer cancel()
	connErr := ls.client.Connect(cctx, creds, ls.server)

	c.mu.Lock()
	if connErr == nil && c.current == ls {
		c.mu.Unlock()
		return nil
	}
	if connErr == nil {
		c.mu.Unlock()
		_ = ls.client.Quit()
		return fmt.Errorf("%w: session stopped while connecting", ErrConnection)
	}

	var retry reconnectPlan
	if c.current == ls {
		if ls.attempts > 0 {
			retry = c.afterLossLocked(ls)
		} else {
			c.endLocked(ls)
			c.current = nil
		}
	}
	c.mu.Unlock()

	c.logger.Warn("connection failed",
		"identity", ls.info.Identity,
		"server", ls.server.Name,
		"error", connErr)

	failed := c.clock.Now()
	c.updateStats(ctx, store.StatsPatch{
		Status:           store.Ptr(store.StatusOffline),
		LastDisconnected: &failed,
	})
	c.recorder.Publish(events.StatusChanged{SessionTarget: ls.target(), Status: string(StatusOffline)})
	c.recorder.Record(ctx, events.SessionError{SessionTarget: ls.target(), SessionID: ls.info.ID, Error: connErr.Error()})
	c.announceReconnect(ctx, ls, retry)

	return fmt.Errorf("%w: %s on %s: %w", ErrConnection, ls.info.Identity, ls.server.Name, connErr)
}

// Stop ends the current session at the user's request.
func (c *Controller) Stop(ctx context.Context) error {
	return c.StopFor(ctx, "stopped by user")
}

// StopFor ends the current session, recording reason.
func (c *Controller) StopFor(ctx context.Context, reason string) error {
	c.mu.Lock()
	ls := c.current
	if ls == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.endLocked(ls)
	c.current = nil
	client := ls.client
	target := ls.target()
	sessionID := ls.info.ID
	c.mu.Unlock()

	if err := client.Quit(); err != nil {
		c.logger.Debug("quit returned error", "identity", target.Identity, "error", err)
	}

	now := c.clock.Now()
	c.updateStats(ctx, store.StatsPatch{
		Status:           store.Ptr(store.StatusOffline),
		LastDisconnected: &now,
	})
	c.recorder.Publish(events.StatusChanged{SessionTarget: target, Status: string(StatusOffline)})
	c.recorder.Record(ctx, events.SessionStopped{SessionTarget: target, SessionID: sessionID, Reason: reason})

	c.logger.Info("session stopped", "identity", target.Identity, "reason", reason)
	return nil
}

// Restart stops the running session, waits the settle delay, and starts a
// new one. If nothing is running it simply starts.
func (c *Controller) Restart(ctx context.Context) (*Session, error) {
	err := c.Stop(ctx)
	switch {
	case err == nil:
		select {
		case <-c.clock.After(c.settings.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case !errors.Is(err, ErrNotRunning):
		return nil, err
	}
	return c.Start(ctx)
}

// SwitchServer activates a server and restarts the session on it if one is running.
func (c *Controller) SwitchServer(ctx context.Context, id int64) (*store.Server, error) {
	server, err := c.store.GetServer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("server %d: %w", id, err)
	}
	if err := c.store.SetActiveServer(ctx, id); err != nil {
		return nil, fmt.Errorf("activating server %d: %w", id, err)
	}
	server.IsActive = true

	if c.Running() {
		if _, err := c.Restart(ctx); err != nil {
			return server, fmt.Errorf("restarting on %s: %w", server.Name, err)
		}
	}
	return server, nil
}

// Running reports whether a session exists, including one waiting to reconnect.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Current returns a snapshot of the current session.
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Session{}, false
	}
	return c.current.info, true
}

// State returns the controller status including uptime of the current session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		st := State{}
		if c.last != nil {
			last := *c.last
			st.Session = &last
		}
		return st
	}
	info := c.current.info
	return State{
		Running: true,
		Session: &info,
		Uptime:  c.clock.Now().Sub(info.StartedAt),
	}
}

// Close stops any running session and releases background resources.
func (c *Controller) Close(ctx context.Context) error {
	err := c.StopFor(ctx, "shutdown")
	c.dedupe.Close()
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// endLocked cancels session-local timers and marks the session ended.
func (c *Controller) endLocked(ls *live) {
	c.cancelTimersLocked(ls)
	now := c.clock.Now()
	ls.info.Status = StatusEnded
	ls.info.EndedAt = &now
	snap := ls.info
	c.last = &snap
}

func (c *Controller) cancelTimersLocked(ls *live) {
	for name, t := range ls.timers {
		t.Stop()
		delete(ls.timers, name)
	}
}

func (c *Controller) updateStats(ctx context.Context, patch store.StatsPatch) {
	if _, err := c.store.UpdateStats(ctx, patch); err != nil {
		c.logger.Warn("failed to update stats", "error", err)
	}
}
