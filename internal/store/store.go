// ABOUTME: Store interface and data types for standin persistence
// ABOUTME: Defines Config, Server, logs, Stats and their partial-update patches

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Auth types for the agent account.
const (
	AuthTypeOffline   = "offline"
	AuthTypeMicrosoft = "microsoft"
)

// Session status values recorded in Stats.
const (
	StatusConnecting = "connecting"
	StatusOnline     = "online"
	StatusOffline    = "offline"
	StatusKicked     = "kicked"
	StatusEnded      = "ended"
)

// Chat message types
const (
	MessageTypeChat   = "chat"
	MessageTypeSystem = "system"
)

// Config is the persisted agent configuration.
type Config struct {
	Username string
	Password string
	AuthType string

	AutoReconnect bool
	AntiIdle      bool

	ChatEnabled bool
	ChatRepeat  bool
	ChatDelay   time.Duration
	ChatLines   []string

	AutoAuth         bool
	AutoAuthPassword string

	RotationEnabled        bool
	IdentityPool           []string
	RecentlyUsed           []string
	IdentityHistory        map[string]time.Time
	OfflineTimeout         time.Duration
	RotationDelay          time.Duration
	RotationDelayVariation time.Duration
	ActiveTime             time.Duration
	ActiveTimeVariation    time.Duration

	UpdatedAt time.Time
}

// DefaultConfig returns the configuration used before anything is persisted.
func DefaultConfig() Config {
	return Config{
		AuthType:               AuthTypeOffline,
		AutoReconnect:          true,
		AntiIdle:               true,
		ChatRepeat:             true,
		ChatDelay:              60 * time.Second,
		IdentityHistory:        map[string]time.Time{},
		OfflineTimeout:         10 * time.Second,
		RotationDelay:          50 * time.Second,
		RotationDelayVariation: 20 * time.Second,
		ActiveTime:             12500 * time.Millisecond,
		ActiveTimeVariation:    2500 * time.Millisecond,
	}
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	out := *c
	out.ChatLines = append([]string(nil), c.ChatLines...)
	out.IdentityPool = append([]string(nil), c.IdentityPool...)
	out.RecentlyUsed = append([]string(nil), c.RecentlyUsed...)
	out.IdentityHistory = make(map[string]time.Time, len(c.IdentityHistory))
	for k, v := range c.IdentityHistory {
		out.IdentityHistory[k] = v
	}
	return &out
}

// ConfigPatch is a shallow partial update of Config. Nil fields are unchanged.
type ConfigPatch struct {
	Username *string
	Password *string
	AuthType *string

	AutoReconnect *bool
	AntiIdle      *bool

	ChatEnabled *bool
	ChatRepeat  *bool
	ChatDelay   *time.Duration
	ChatLines   *[]string

	AutoAuth         *bool
	AutoAuthPassword *string

	RotationEnabled        *bool
	IdentityPool           *[]string
	RecentlyUsed           *[]string
	IdentityHistory        *map[string]time.Time
	OfflineTimeout         *time.Duration
	RotationDelay          *time.Duration
	RotationDelayVariation *time.Duration
	ActiveTime             *time.Duration
	ActiveTimeVariation    *time.Duration
}

// Apply merges the patch into cfg.
func (p ConfigPatch) Apply(cfg *Config) {
	setIf(&cfg.Username, p.Username)
	setIf(&cfg.Password, p.Password)
	setIf(&cfg.AuthType, p.AuthType)
	setIf(&cfg.AutoReconnect, p.AutoReconnect)
	setIf(&cfg.AntiIdle, p.AntiIdle)
	setIf(&cfg.ChatEnabled, p.ChatEnabled)
	setIf(&cfg.ChatRepeat, p.ChatRepeat)
	setIf(&cfg.ChatDelay, p.ChatDelay)
	if p.ChatLines != nil {
		cfg.ChatLines = append([]string(nil), (*p.ChatLines)...)
	}
	setIf(&cfg.AutoAuth, p.AutoAuth)
	setIf(&cfg.AutoAuthPassword, p.AutoAuthPassword)
	setIf(&cfg.RotationEnabled, p.RotationEnabled)
	if p.IdentityPool != nil {
		cfg.IdentityPool = append([]string(nil), (*p.IdentityPool)...)
	}
	if p.RecentlyUsed != nil {
		cfg.RecentlyUsed = append([]string(nil), (*p.RecentlyUsed)...)
	}
	if p.IdentityHistory != nil {
		cfg.IdentityHistory = make(map[string]time.Time, len(*p.IdentityHistory))
		for k, v := range *p.IdentityHistory {
			cfg.IdentityHistory[k] = v
		}
	}
	setIf(&cfg.OfflineTimeout, p.OfflineTimeout)
	setIf(&cfg.RotationDelay, p.RotationDelay)
	setIf(&cfg.RotationDelayVariation, p.RotationDelayVariation)
	setIf(&cfg.ActiveTime, p.ActiveTime)
	setIf(&cfg.ActiveTimeVariation, p.ActiveTimeVariation)
}

// Server is a remote endpoint the agent can connect to.
type Server struct {
	ID        int64
	Name      string
	Host      string
	Port      int
	Version   string
	IsActive  bool
	CreatedAt time.Time
}

// ActivityLog is an audit trail entry.
type ActivityLog struct {
	ID          int64
	Kind        string
	Description string
	ServerID    *int64
	Metadata    string // JSON, may be empty
	CreatedAt   time.Time
}

// ActivityFilter narrows ListActivityLogs. Zero fields are ignored.
type ActivityFilter struct {
	Kind     string
	ServerID *int64
	Since    *time.Time
	Limit    int
}

// ChatLog is a chat line observed by the live session.
type ChatLog struct {
	ID          int64
	Username    string
	Message     string
	MessageType string
	ServerID    *int64
	CreatedAt   time.Time
}

// ChatFilter narrows ListChatLogs. Zero fields are ignored.
type ChatFilter struct {
	ServerID *int64
	Username string
	Limit    int
}

// Stats is the runtime status of the agent.
type Stats struct {
	Status           string
	CurrentServerID  *int64
	ChatMessageCount int64
	ReconnectCount   int64
	LastConnected    *time.Time
	LastDisconnected *time.Time
	UpdatedAt        time.Time
}

// StatsPatch is a partial update of Stats. Nil fields are unchanged; the
// Add fields are deltas applied to the counters.
type StatsPatch struct {
	Status           *string
	CurrentServerID  *int64
	LastConnected    *time.Time
	LastDisconnected *time.Time
	AddChatMessages  int64
	AddReconnects    int64
}

// Apply merges the patch into stats.
func (p StatsPatch) Apply(stats *Stats) {
	setIf(&stats.Status, p.Status)
	if p.CurrentServerID != nil {
		id := *p.CurrentServerID
		stats.CurrentServerID = &id
	}
	if p.LastConnected != nil {
		ts := *p.LastConnected
		stats.LastConnected = &ts
	}
	if p.LastDisconnected != nil {
		ts := *p.LastDisconnected
		stats.LastDisconnected = &ts
	}
	stats.ChatMessageCount += p.AddChatMessages
	stats.ReconnectCount += p.AddReconnects
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }

// Store defines the persistence operations used by standin.
type Store interface {
	// Config
	GetConfig(ctx context.Context) (*Config, error)
	UpdateConfig(ctx context.Context, patch ConfigPatch) (*Config, error)

	// Servers
	ListServers(ctx context.Context) ([]*Server, error)
	GetServer(ctx context.Context, id int64) (*Server, error)
	GetActiveServer(ctx context.Context) (*Server, error)
	CreateServer(ctx context.Context, server *Server) error
	DeleteServer(ctx context.Context, id int64) error
	SetActiveServer(ctx context.Context, id int64) error

	// Activity logs
	AddActivityLog(ctx context.Context, entry *ActivityLog) error
	ListActivityLogs(ctx context.Context, filter ActivityFilter) ([]*ActivityLog, error)

	// Chat logs
	AddChatLog(ctx context.Context, entry *ChatLog) error
	ListChatLogs(ctx context.Context, filter ChatFilter) ([]*ChatLog, error)
	ClearChatLogs(ctx context.Context, serverID *int64) (int64, error)

	// Stats
	GetStats(ctx context.Context) (*Stats, error)
	UpdateStats(ctx context.Context, patch StatsPatch) (*Stats, error)

	// Close releases any resources held by the store
	Close() error
}
