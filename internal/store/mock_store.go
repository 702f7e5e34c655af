// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	config   *Config
	servers  map[int64]*Server
	activity []*ActivityLog
	chat     []*ChatLog
	stats    *Stats
	nextID   int64
	writeErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		servers: make(map[int64]*Server),
	}
}

// FailWrites makes every subsequent write return err. Pass nil to recover.
func (m *MockStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

// GetConfig returns a copy of the stored config.
func (m *MockStore) GetConfig(ctx context.Context) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return nil, ErrNotFound
	}
	return m.config.Clone(), nil
}

// UpdateConfig merges patch into the stored config.
func (m *MockStore) UpdateConfig(ctx context.Context, patch ConfigPatch) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return nil, m.writeErr
	}
	if m.config == nil {
		def := DefaultConfig()
		m.config = &def
	}
	patch.Apply(m.config)
	m.config.UpdatedAt = time.Now().UTC()
	return m.config.Clone(), nil
}

// ListServers returns copies of all servers ordered by ID.
func (m *MockStore) ListServers(ctx context.Context) ([]*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	servers := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		c := *srv
		servers = append(servers, &c)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

// GetServer returns a copy of the server.
func (m *MockStore) GetServer(ctx context.Context, id int64) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	srv, ok := m.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *srv
	return &c, nil
}

// GetActiveServer returns a copy of the active server.
func (m *MockStore) GetActiveServer(ctx context.Context) (*Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active *Server
	for _, srv := range m.servers {
		if srv.IsActive && (active == nil || srv.ID < active.ID) {
			active = srv
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	c := *active
	return &c, nil
}

// CreateServer stores a server, assigning its ID.
func (m *MockStore) CreateServer(ctx context.Context, server *Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if server.IsActive {
		for _, srv := range m.servers {
			srv.IsActive = false
		}
	}
	server.ID = m.id()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}
	c := *server
	m.servers[c.ID] = &c
	return nil
}

// DeleteServer removes a server.
func (m *MockStore) DeleteServer(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.servers[id]; !ok {
		return ErrNotFound
	}
	delete(m.servers, id)
	return nil
}

// SetActiveServer activates one server and deactivates the rest.
func (m *MockStore) SetActiveServer(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.servers[id]; !ok {
		return ErrNotFound
	}
	for sid, srv := range m.servers {
		srv.IsActive = sid == id
	}
	return nil
}

// AddActivityLog appends an audit entry.
func (m *MockStore) AddActivityLog(ctx context.Context, entry *ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	entry.ID = m.id()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	c := *entry
	m.activity = append(m.activity, &c)
	return nil
}

// ListActivityLogs returns matching entries, newest first.
func (m *MockStore) ListActivityLogs(ctx context.Context, filter ActivityFilter) ([]*ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := int(clampLimit(filter.Limit))
	var out []*ActivityLog
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.activity[i]
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.ServerID != nil && (e.ServerID == nil || *e.ServerID != *filter.ServerID) {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// AddChatLog appends a chat line.
func (m *MockStore) AddChatLog(ctx context.Context, entry *ChatLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	entry.ID = m.id()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.MessageType == "" {
		entry.MessageType = MessageTypeChat
	}
	c := *entry
	m.chat = append(m.chat, &c)
	return nil
}

// ListChatLogs returns matching chat lines, newest first.
func (m *MockStore) ListChatLogs(ctx context.Context, filter ChatFilter) ([]*ChatLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := int(clampLimit(filter.Limit))
	var out []*ChatLog
	for i := len(m.chat) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.chat[i]
		if filter.ServerID != nil && (e.ServerID == nil || *e.ServerID != *filter.ServerID) {
			continue
		}
		if filter.Username != "" && e.Username != filter.Username {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// ClearChatLogs removes chat lines, optionally for one server only.
func (m *MockStore) ClearChatLogs(ctx context.Context, serverID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return 0, m.writeErr
	}
	kept := m.chat[:0]
	var removed int64
	for _, e := range m.chat {
		if serverID == nil || (e.ServerID != nil && *e.ServerID == *serverID) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.chat = kept
	return removed, nil
}

// GetStats returns a copy of the stats.
func (m *MockStore) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stats == nil {
		return nil, ErrNotFound
	}
	c := *m.stats
	return &c, nil
}

// UpdateStats applies patch to the stats.
func (m *MockStore) UpdateStats(ctx context.Context, patch StatsPatch) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return nil, m.writeErr
	}
	if m.stats == nil {
		m.stats = &Stats{Status: StatusOffline}
	}
	patch.Apply(m.stats)
	m.stats.UpdatedAt = time.Now().UTC()
	c := *m.stats
	return &c, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time check
var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)
