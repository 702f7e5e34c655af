// ABOUTME: HTTP handlers for servers, agent configuration, logs and stats
// ABOUTME: Converts store records to JSON views and query strings to filters

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/standin/internal/store"
)

// ServerView is the JSON shape of a registered server.
type ServerView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Version   string    `json:"version,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateServerRequest is the body of POST /api/servers.
type CreateServerRequest struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Version string `json:"version"`
	Active  bool   `json:"active"`
}

// ConfigView is the JSON shape of the agent configuration. The password is
// never echoed back.
type ConfigView struct {
	Username        string    `json:"username"`
	AuthType        string    `json:"auth_type"`
	PasswordSet     bool      `json:"password_set"`
	AutoReconnect   bool      `json:"auto_reconnect"`
	AntiIdle        bool      `json:"anti_idle"`
	ChatEnabled     bool      `json:"chat_enabled"`
	ChatRepeat      bool      `json:"chat_repeat"`
	ChatDelay       string    `json:"chat_delay"`
	ChatLines       []string  `json:"chat_lines"`
	AutoAuth        bool      `json:"auto_auth"`
	RotationEnabled bool      `json:"rotation_enabled"`
	IdentityPool    []string  `json:"identity_pool"`
	RecentlyUsed    []string  `json:"recently_used"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ConfigUpdate is the body of PUT /api/config. Absent fields are unchanged.
// Rotation fields go through the rotation endpoints instead.
type ConfigUpdate struct {
	Username         *string   `json:"username"`
	Password         *string   `json:"password"`
	AuthType         *string   `json:"auth_type"`
	AutoReconnect    *bool     `json:"auto_reconnect"`
	AntiIdle         *bool     `json:"anti_idle"`
	ChatEnabled      *bool     `json:"chat_enabled"`
	ChatRepeat       *bool     `json:"chat_repeat"`
	ChatDelay        *string   `json:"chat_delay"`
	ChatLines        *[]string `json:"chat_lines"`
	AutoAuth         *bool     `json:"auto_auth"`
	AutoAuthPassword *string   `json:"auto_auth_password"`
}

// ChatLogView is the JSON shape of a chat line.
type ChatLogView struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	ServerID    *int64    `json:"server_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityLogView is the JSON shape of an activity log entry.
type ActivityLogView struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	ServerID    *int64          `json:"server_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StatsView is the JSON shape of the agent stats.
type StatsView struct {
	Status           string     `json:"status"`
	CurrentServerID  *int64     `json:"current_server_id,omitempty"`
	ChatMessageCount int64      `json:"chat_message_count"`
	ReconnectCount   int64      `json:"reconnect_count"`
	LastConnected    *time.Time `json:"last_connected,omitempty"`
	LastDisconnected *time.Time `json:"last_disconnected,omitempty"`
}

func serverView(srv *store.Server) ServerView {
	return ServerView{
		ID:        srv.ID,
		Name:      srv.Name,
		Host:      srv.Host,
		Port:      srv.Port,
		Version:   srv.Version,
		IsActive:  srv.IsActive,
		CreatedAt: srv.CreatedAt,
	}
}

func configView(cfg *store.Config) ConfigView {
	return ConfigView{
		Username:        cfg.Username,
		AuthType:        cfg.AuthType,
		PasswordSet:     cfg.Password != "",
		AutoReconnect:   cfg.AutoReconnect,
		AntiIdle:        cfg.AntiIdle,
		ChatEnabled:     cfg.ChatEnabled,
		ChatRepeat:      cfg.ChatRepeat,
		ChatDelay:       cfg.ChatDelay.String(),
		ChatLines:       nonNil(cfg.ChatLines),
		AutoAuth:        cfg.AutoAuth,
		RotationEnabled: cfg.RotationEnabled,
		IdentityPool:    nonNil(cfg.IdentityPool),
		RecentlyUsed:    nonNil(cfg.RecentlyUsed),
		UpdatedAt:       cfg.UpdatedAt,
	}
}

func statsView(st *store.Stats) *StatsView {
	return &StatsView{
		Status:           st.Status,
		CurrentServerID:  st.CurrentServerID,
		ChatMessageCount: st.ChatMessageCount,
		ReconnectCount:   st.ReconnectCount,
		LastConnected:    st.LastConnected,
		LastDisconnected: st.LastDisconnected,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// patch validates the update and converts it to a store patch.
func (u ConfigUpdate) patch() (store.ConfigPatch, error) {
	p := store.ConfigPatch{
		Username:         u.Username,
		Password:         u.Password,
		AuthType:         u.AuthType,
		AutoReconnect:    u.AutoReconnect,
		AntiIdle:         u.AntiIdle,
		ChatEnabled:      u.ChatEnabled,
		ChatRepeat:       u.ChatRepeat,
		ChatLines:        u.ChatLines,
		AutoAuth:         u.AutoAuth,
		AutoAuthPassword: u.AutoAuthPassword,
	}
	if u.Username != nil && strings.TrimSpace(*u.Username) == "" {
		return p, badRequest("username must not be empty")
	}
	if u.AuthType != nil && *u.AuthType != store.AuthTypeOffline && *u.AuthType != store.AuthTypeMicrosoft {
		return p, badRequest("auth_type must be %q or %q", store.AuthTypeOffline, store.AuthTypeMicrosoft)
	}
	if u.ChatDelay != nil {
		d, err := time.ParseDuration(*u.ChatDelay)
		if err != nil || d <= 0 {
			return p, badRequest("chat_delay must be a positive duration")
		}
		p.ChatDelay = &d
	}
	return p, nil
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ListServers(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	out := make([]ServerView, 0, len(servers))
	for _, srv := range servers {
		out = append(out, serverView(srv))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"servers": out})
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Host == "" {
		s.sendJSONError(w, http.StatusBadRequest, "name and host are required")
		return
	}
	if req.Port == 0 {
		req.Port = 25565
	}
	if req.Port < 1 || req.Port > 65535 {
		s.sendJSONError(w, http.StatusBadRequest, "port must be between 1 and 65535")
		return
	}

	srv := &store.Server{Name: req.Name, Host: req.Host, Port: req.Port, Version: req.Version}
	if err := s.store.CreateServer(r.Context(), srv); err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Info("server registered", "id", srv.ID, "name", srv.Name)

	if req.Active {
		activated, err := s.sessions.SwitchServer(r.Context(), srv.ID)
		if err != nil {
			s.sendError(w, err)
			return
		}
		srv = activated
	}
	s.writeJSON(w, http.StatusCreated, serverView(srv))
}

func (s *Server) handleActivateServer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.sendJSONError(w, http.StatusBadRequest, "invalid server id")
		return
	}
	srv, err := s.sessions.SwitchServer(r.Context(), id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, serverView(srv))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetConfig(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configView(cfg))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.sendError(w, err)
		return
	}
	cfg, err := s.store.UpdateConfig(r.Context(), patch)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configView(cfg))
}

func (s *Server) handleListChatLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	serverID, err := parseOptionalID(q.Get("server_id"))
	if err != nil {
		s.sendError(w, err)
		return
	}

	logs, err := s.store.ListChatLogs(r.Context(), store.ChatFilter{
		ServerID: serverID,
		Username: q.Get("username"),
		Limit:    limit,
	})
	if err != nil {
		s.sendError(w, err)
		return
	}
	out := make([]ChatLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, ChatLogView{
			ID:          l.ID,
			Username:    l.Username,
			Message:     l.Message,
			MessageType: l.MessageType,
			ServerID:    l.ServerID,
			CreatedAt:   l.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chat_logs": out})
}

func (s *Server) handleClearChatLogs(w http.ResponseWriter, r *http.Request) {
	serverID, err := parseOptionalID(r.URL.Query().Get("server_id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	n, err := s.store.ClearChatLogs(r.Context(), serverID)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleListActivityLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	serverID, err := parseOptionalID(q.Get("server_id"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	filter := store.ActivityFilter{Kind: q.Get("kind"), ServerID: serverID, Limit: limit}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &ts
	}

	logs, err := s.store.ListActivityLogs(r.Context(), filter)
	if err != nil {
		s.sendError(w, err)
		return
	}
	out := make([]ActivityLogView, 0, len(logs))
	for _, l := range logs {
		v := ActivityLogView{
			ID:          l.ID,
			Kind:        l.Kind,
			Description: l.Description,
			ServerID:    l.ServerID,
			CreatedAt:   l.CreatedAt,
		}
		if l.Metadata != "" && json.Valid([]byte(l.Metadata)) {
			v.Metadata = json.RawMessage(l.Metadata)
		}
		out = append(out, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"activity_logs": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStats(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsView(st))
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("limit must be a positive integer")
	}
	return n, nil
}

func parseOptionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, badRequest("server_id must be a positive integer")
	}
	return &id, nil
}
