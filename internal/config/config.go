// ABOUTME: Configuration loading and parsing for standin
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/standin/internal/identity"
	"github.com/2389/standin/internal/store"
)

// Config represents the complete standin configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Agent     AgentConfig     `yaml:"agent"`
	Rotation  RotationConfig  `yaml:"rotation"`
	Servers   []ServerEntry   `yaml:"servers"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AgentConfig holds the agent account and session behavior settings
type AgentConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	AuthType string `yaml:"auth_type"`

	AutoReconnect        *bool `yaml:"auto_reconnect"`
	ReconnectMaxAttempts int   `yaml:"reconnect_max_attempts"`

	ReconnectDelay    time.Duration `yaml:"-"`
	ConnectTimeout    time.Duration `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"-"`
	SettleDelay       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReconnectDelayRaw    string `yaml:"reconnect_delay"`
	ConnectTimeoutRaw    string `yaml:"connect_timeout"`
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	SettleDelayRaw       string `yaml:"settle_delay"`

	AntiIdle     AntiIdleConfig     `yaml:"anti_idle"`
	ChatMessages ChatMessagesConfig `yaml:"chat_messages"`
	AutoAuth     AutoAuthConfig     `yaml:"auto_auth"`
}

// AntiIdleConfig holds the random idle-action settings
type AntiIdleConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	MinInterval time.Duration `yaml:"-"`
	MaxInterval time.Duration `yaml:"-"`

	MinIntervalRaw string `yaml:"min_interval"`
	MaxIntervalRaw string `yaml:"max_interval"`
}

// ChatMessagesConfig holds scripted chat settings
type ChatMessagesConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Repeat   *bool         `yaml:"repeat"`
	Delay    time.Duration `yaml:"-"`
	DelayRaw string        `yaml:"delay"`
	Lines    []string      `yaml:"lines"`
}

// AutoAuthConfig holds the login command sent on spawn
type AutoAuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Password string `yaml:"password"`
}

// RotationConfig holds identity rotation settings
type RotationConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Identities        []string `yaml:"identities"`
	MaxFailedEpisodes int      `yaml:"max_failed_episodes"`

	OfflineTimeout      time.Duration `yaml:"-"`
	Delay               time.Duration `yaml:"-"`
	DelayVariation      time.Duration `yaml:"-"`
	ActiveTime          time.Duration `yaml:"-"`
	ActiveTimeVariation time.Duration `yaml:"-"`

	OfflineTimeoutRaw      string `yaml:"offline_timeout"`
	DelayRaw               string `yaml:"delay"`
	DelayVariationRaw      string `yaml:"delay_variation"`
	ActiveTimeRaw          string `yaml:"active_time"`
	ActiveTimeVariationRaw string `yaml:"active_time_variation"`
}

// ServerEntry is a remote server seeded into the registry on first start
type ServerEntry struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`
	Active  bool   `yaml:"active"`
}

// ProtocolConfig selects the protocol driver
type ProtocolConfig struct {
	Driver string    `yaml:"driver"`
	Sim    SimConfig `yaml:"sim"`
}

// SimConfig tunes the simulated protocol driver
type SimConfig struct {
	SpawnDelay         time.Duration `yaml:"-"`
	ChatterInterval    time.Duration `yaml:"-"`
	SpawnDelayRaw      string        `yaml:"spawn_delay"`
	ChatterIntervalRaw string        `yaml:"chatter_interval"`
	KickChance         float64       `yaml:"kick_chance"`
	FailChance         float64       `yaml:"fail_chance"`
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	Matrix MatrixConfig `yaml:"matrix"`
}

// MatrixConfig holds Matrix notifier configuration
type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	RoomID      string   `yaml:"room_id"`
	Kinds       []string `yaml:"kinds"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func boolOr(v *bool, def bool) *bool {
	if v == nil {
		return &def
	}
	return v
}

// applyDefaults fills everything the file left out.
func (c *Config) applyDefaults() {
	if !c.Tailscale.Enabled {
		if c.Server.HTTPAddr == "" {
			c.Server.HTTPAddr = "127.0.0.1:8080"
		}
		if c.Server.GRPCAddr == "" {
			c.Server.GRPCAddr = "127.0.0.1:50051"
		}
	}
	if c.Tailscale.StateDir == "" && c.Tailscale.Enabled {
		c.Tailscale.StateDir = filepath.Join(DataDir(), "tsnet")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataDir(), "standin.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	a := &c.Agent
	if a.AuthType == "" {
		a.AuthType = store.AuthTypeOffline
	}
	a.AutoReconnect = boolOr(a.AutoReconnect, true)
	if a.ReconnectMaxAttempts == 0 {
		a.ReconnectMaxAttempts = 10
	}
	a.AntiIdle.Enabled = boolOr(a.AntiIdle.Enabled, true)
	a.ChatMessages.Repeat = boolOr(a.ChatMessages.Repeat, true)

	if c.Rotation.MaxFailedEpisodes == 0 {
		c.Rotation.MaxFailedEpisodes = 5
	}

	if c.Protocol.Driver == "" {
		c.Protocol.Driver = "sim"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Rotation.validate(); err != nil {
		return err
	}

	active := 0
	for i, srv := range c.Servers {
		if srv.Name == "" || srv.Host == "" {
			return fmt.Errorf("servers[%d]: name and host are required", i)
		}
		if srv.Port < 1 || srv.Port > 65535 {
			return fmt.Errorf("servers[%d]: port %d out of range", i, srv.Port)
		}
		if srv.Active {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("servers: at most one server may be active (got %d)", active)
	}

	if c.Protocol.Driver != "sim" {
		return fmt.Errorf("protocol.driver %q is not supported", c.Protocol.Driver)
	}
	for name, p := range map[string]float64{"kick_chance": c.Protocol.Sim.KickChance, "fail_chance": c.Protocol.Sim.FailChance} {
		if p < 0 || p > 1 {
			return fmt.Errorf("protocol.sim.%s must be between 0 and 1", name)
		}
	}

	m := c.Notify.Matrix
	if m.Enabled && (m.Homeserver == "" || m.UserID == "" || m.AccessToken == "" || m.RoomID == "") {
		return fmt.Errorf("notify.matrix requires homeserver, user_id, access_token and room_id when enabled")
	}

	return nil
}

func (a *AgentConfig) validate() error {
	switch a.AuthType {
	case store.AuthTypeOffline, store.AuthTypeMicrosoft:
	default:
		return fmt.Errorf("agent.auth_type must be offline or microsoft (got %q)", a.AuthType)
	}
	if a.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("agent.reconnect_max_attempts must not be negative")
	}
	if a.AntiIdle.MaxInterval < a.AntiIdle.MinInterval {
		return fmt.Errorf("agent.anti_idle.max_interval must not be below min_interval")
	}
	if a.AutoAuth.Enabled && a.AutoAuth.Password == "" {
		return fmt.Errorf("agent.auto_auth.password is required when auto_auth is enabled")
	}
	return nil
}

func (r *RotationConfig) validate() error {
	for name, d := range map[string]time.Duration{
		"offline_timeout":       r.OfflineTimeout,
		"delay":                 r.Delay,
		"delay_variation":       r.DelayVariation,
		"active_time":           r.ActiveTime,
		"active_time_variation": r.ActiveTimeVariation,
	} {
		if d < 0 {
			return fmt.Errorf("rotation.%s must not be negative", name)
		}
	}
	if r.OfflineTimeout == 0 || r.ActiveTime == 0 {
		return fmt.Errorf("rotation.offline_timeout and rotation.active_time must be positive")
	}
	if r.MaxFailedEpisodes < 0 {
		return fmt.Errorf("rotation.max_failed_episodes must not be negative")
	}
	if r.Enabled && len(r.Identities) == 0 {
		return fmt.Errorf("rotation.identities is required when rotation is enabled")
	}
	if _, err := identity.NewPool(r.Identities); err != nil {
		return fmt.Errorf("rotation.identities: %w", err)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
// Fields left empty take their default.
func parseDurations(cfg *Config) error {
	def := store.DefaultConfig()
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"agent.reconnect_delay", cfg.Agent.ReconnectDelayRaw, &cfg.Agent.ReconnectDelay, 5 * time.Second},
		{"agent.connect_timeout", cfg.Agent.ConnectTimeoutRaw, &cfg.Agent.ConnectTimeout, 10 * time.Second},
		{"agent.heartbeat_interval", cfg.Agent.HeartbeatIntervalRaw, &cfg.Agent.HeartbeatInterval, 5 * time.Second},
		{"agent.settle_delay", cfg.Agent.SettleDelayRaw, &cfg.Agent.SettleDelay, time.Second},
		{"agent.anti_idle.min_interval", cfg.Agent.AntiIdle.MinIntervalRaw, &cfg.Agent.AntiIdle.MinInterval, 30 * time.Second},
		{"agent.anti_idle.max_interval", cfg.Agent.AntiIdle.MaxIntervalRaw, &cfg.Agent.AntiIdle.MaxInterval, 90 * time.Second},
		{"agent.chat_messages.delay", cfg.Agent.ChatMessages.DelayRaw, &cfg.Agent.ChatMessages.Delay, def.ChatDelay},
		{"rotation.offline_timeout", cfg.Rotation.OfflineTimeoutRaw, &cfg.Rotation.OfflineTimeout, def.OfflineTimeout},
		{"rotation.delay", cfg.Rotation.DelayRaw, &cfg.Rotation.Delay, def.RotationDelay},
		{"rotation.delay_variation", cfg.Rotation.DelayVariationRaw, &cfg.Rotation.DelayVariation, def.RotationDelayVariation},
		{"rotation.active_time", cfg.Rotation.ActiveTimeRaw, &cfg.Rotation.ActiveTime, def.ActiveTime},
		{"rotation.active_time_variation", cfg.Rotation.ActiveTimeVariationRaw, &cfg.Rotation.ActiveTimeVariation, def.ActiveTimeVariation},
		{"protocol.sim.spawn_delay", cfg.Protocol.Sim.SpawnDelayRaw, &cfg.Protocol.Sim.SpawnDelay, 500 * time.Millisecond},
		{"protocol.sim.chatter_interval", cfg.Protocol.Sim.ChatterIntervalRaw, &cfg.Protocol.Sim.ChatterInterval, 45 * time.Second},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
