// ABOUTME: In-memory stand-ins for the session controller and rotation orchestrator
// ABOUTME: Lets handler tests choose results and errors per call

package server

import (
	"context"
	"sync"
	"time"

	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/session"
	"github.com/2389/standin/internal/store"
)

type fakeSessions struct {
	mu       sync.Mutex
	state    session.State
	startErr error
	stopErr  error
	switched []int64
	store    store.Store
}

func (f *fakeSessions) Start(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	sess := &session.Session{ID: "sess-1", Identity: "alice", ServerID: 1, ServerName: "alpha", Status: session.StatusConnecting}
	f.state = session.State{Running: true, Session: sess}
	return sess, nil
}

func (f *fakeSessions) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.state.Running {
		return session.ErrNotRunning
	}
	f.state = session.State{}
	return nil
}

func (f *fakeSessions) Restart(ctx context.Context) (*session.Session, error) {
	_ = f.Stop(ctx)
	return f.Start(ctx)
}

func (f *fakeSessions) SwitchServer(ctx context.Context, id int64) (*store.Server, error) {
	srv, err := f.store.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.store.SetActiveServer(ctx, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.switched = append(f.switched, id)
	f.mu.Unlock()
	srv.IsActive = true
	return srv, nil
}

func (f *fakeSessions) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) setOnline(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = session.State{
		Running: true,
		Session: &session.Session{ID: "sess-1", Identity: identity, ServerName: "alpha", Status: session.StatusOnline},
		Uptime:  90 * time.Second,
	}
}

type fakeRotation struct {
	mu       sync.Mutex
	status   rotation.Status
	settings rotation.Settings
	patches  []rotation.SettingsPatch
}

func newFakeRotation() *fakeRotation {
	return &fakeRotation{
		status:   rotation.Status{State: rotation.StateDisabled, Pool: []string{}, RecentlyUsed: []string{}},
		settings: rotation.DefaultSettings(),
	}
}

func (f *fakeRotation) Enable(ctx context.Context, identities []string) (rotation.Status, error) {
	if len(identities) == 0 {
		return rotation.Status{}, rotation.ErrEmptyPool
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Enabled = true
	f.status.State = rotation.StateIdle
	f.status.Pool = identities
	return f.status, nil
}

func (f *fakeRotation) Disable(ctx context.Context) rotation.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Enabled = false
	f.status.State = rotation.StateDisabled
	return f.status
}

func (f *fakeRotation) UpdateSettings(ctx context.Context, patch rotation.SettingsPatch) (rotation.Settings, error) {
	next := patch.Apply(f.settings)
	if err := next.Validate(); err != nil {
		return rotation.Settings{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = next
	f.patches = append(f.patches, patch)
	return next, nil
}

func (f *fakeRotation) Status() rotation.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
