// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, durations and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/standin/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "standin.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"

agent:
  username: "keeper"
  auth_type: "offline"
  auto_reconnect: false
  reconnect_delay: "3s"
  anti_idle:
    enabled: false
  chat_messages:
    enabled: true
    repeat: false
    delay: "2m"
    lines: ["hello", "still here"]

rotation:
  enabled: true
  identities: ["alpha", "bravo"]
  offline_timeout: "15s"
  delay_variation: "0s"
  max_failed_episodes: 3

servers:
  - name: "survival"
    host: "mc.example.com"
    port: 25565
    version: "1.20.4"
    active: true

notify:
  matrix:
    enabled: true
    homeserver: "https://matrix.org"
    user_id: "@standin:matrix.org"
    access_token: "token"
    room_id: "!ops:matrix.org"
    kinds: ["rotation_suspended"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	if cfg.Agent.Username != "keeper" {
		t.Errorf("Agent.Username = %q, want %q", cfg.Agent.Username, "keeper")
	}
	if *cfg.Agent.AutoReconnect {
		t.Error("Agent.AutoReconnect = true, want false")
	}
	if cfg.Agent.ReconnectDelay != 3*time.Second {
		t.Errorf("Agent.ReconnectDelay = %v, want %v", cfg.Agent.ReconnectDelay, 3*time.Second)
	}
	if *cfg.Agent.AntiIdle.Enabled {
		t.Error("Agent.AntiIdle.Enabled = true, want false")
	}
	if cfg.Agent.ChatMessages.Delay != 2*time.Minute {
		t.Errorf("Agent.ChatMessages.Delay = %v, want %v", cfg.Agent.ChatMessages.Delay, 2*time.Minute)
	}
	if len(cfg.Agent.ChatMessages.Lines) != 2 {
		t.Errorf("Agent.ChatMessages.Lines len = %d, want 2", len(cfg.Agent.ChatMessages.Lines))
	}

	if cfg.Rotation.OfflineTimeout != 15*time.Second {
		t.Errorf("Rotation.OfflineTimeout = %v, want %v", cfg.Rotation.OfflineTimeout, 15*time.Second)
	}
	if cfg.Rotation.DelayVariation != 0 {
		t.Errorf("Rotation.DelayVariation = %v, want 0 (explicit zero is kept)", cfg.Rotation.DelayVariation)
	}
	if cfg.Rotation.Delay != 50*time.Second {
		t.Errorf("Rotation.Delay = %v, want default %v", cfg.Rotation.Delay, 50*time.Second)
	}
	if cfg.Rotation.MaxFailedEpisodes != 3 {
		t.Errorf("Rotation.MaxFailedEpisodes = %d, want 3", cfg.Rotation.MaxFailedEpisodes)
	}

	if len(cfg.Servers) != 1 || cfg.Servers[0].Port != 25565 || !cfg.Servers[0].Active {
		t.Errorf("Servers = %+v, want one active server on 25565", cfg.Servers)
	}
	if !cfg.Notify.Matrix.Enabled || cfg.Notify.Matrix.RoomID != "!ops:matrix.org" {
		t.Errorf("Notify.Matrix = %+v", cfg.Notify.Matrix)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/test")
	configPath := writeConfig(t, "agent:\n  username: keeper\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/var/lib/test/standin/standin.db" {
		t.Errorf("Database.Path = %q, want XDG data path", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Agent.AuthType != store.AuthTypeOffline {
		t.Errorf("Agent.AuthType = %q, want offline", cfg.Agent.AuthType)
	}
	if !*cfg.Agent.AutoReconnect || !*cfg.Agent.AntiIdle.Enabled || !*cfg.Agent.ChatMessages.Repeat {
		t.Error("boolean defaults should be true")
	}
	if cfg.Agent.ReconnectMaxAttempts != 10 {
		t.Errorf("Agent.ReconnectMaxAttempts = %d, want 10", cfg.Agent.ReconnectMaxAttempts)
	}
	if cfg.Agent.AntiIdle.MinInterval != 30*time.Second || cfg.Agent.AntiIdle.MaxInterval != 90*time.Second {
		t.Errorf("AntiIdle intervals = %v..%v, want 30s..90s", cfg.Agent.AntiIdle.MinInterval, cfg.Agent.AntiIdle.MaxInterval)
	}
	if cfg.Rotation.ActiveTime != 12500*time.Millisecond || cfg.Rotation.ActiveTimeVariation != 2500*time.Millisecond {
		t.Errorf("Rotation active time = %v±%v, want 12.5s±2.5s", cfg.Rotation.ActiveTime, cfg.Rotation.ActiveTimeVariation)
	}
	if cfg.Rotation.MaxFailedEpisodes != 5 {
		t.Errorf("Rotation.MaxFailedEpisodes = %d, want 5", cfg.Rotation.MaxFailedEpisodes)
	}
	if cfg.Protocol.Driver != "sim" {
		t.Errorf("Protocol.Driver = %q, want sim", cfg.Protocol.Driver)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "secret-from-env")
	t.Setenv("TEST_AGENT_PASSWORD", "hunter2")

	configPath := writeConfig(t, `
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
agent:
  password: "${TEST_AGENT_PASSWORD}"
  username: "${TEST_UNSET_VARIABLE}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
	if cfg.Agent.Password != "hunter2" {
		t.Errorf("Agent.Password = %q, want %q", cfg.Agent.Password, "hunter2")
	}
	if cfg.Agent.Username != "" {
		t.Errorf("Agent.Username = %q, want empty for unset variable", cfg.Agent.Username)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "rotation:\n  delay: soon\n", "rotation.delay"},
		{"negative duration", "rotation:\n  delay: -5s\n", "must not be negative"},
		{"zero offline timeout", "rotation:\n  offline_timeout: 0s\n", "must be positive"},
		{"enabled without identities", "rotation:\n  enabled: true\n", "rotation.identities is required"},
		{"duplicate identities", "rotation:\n  identities: [a, a]\n", "duplicate"},
		{"bad auth type", "agent:\n  auth_type: mojang\n", "agent.auth_type"},
		{"anti idle inverted", "agent:\n  anti_idle:\n    min_interval: 2m\n    max_interval: 1m\n", "max_interval"},
		{"auto auth without password", "agent:\n  auto_auth:\n    enabled: true\n", "auto_auth.password"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"server without host", "servers:\n  - name: x\n    port: 25565\n", "name and host"},
		{"server port", "servers:\n  - name: x\n    host: h\n    port: 70000\n", "out of range"},
		{"two active servers", "servers:\n  - {name: a, host: h, port: 1, active: true}\n  - {name: b, host: h, port: 2, active: true}\n", "at most one"},
		{"unknown driver", "protocol:\n  driver: real\n", "protocol.driver"},
		{"kick chance", "protocol:\n  sim:\n    kick_chance: 1.5\n", "kick_chance"},
		{"matrix incomplete", "notify:\n  matrix:\n    enabled: true\n", "notify.matrix"},
		{"tailscale hostname", "tailscale:\n  enabled: true\n", "tailscale.hostname"},
		{"invalid yaml", "agent: [", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading config file error", err)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if got := ResolvePath("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("ResolvePath(flag) = %q, want /flag.yaml", got)
	}
	if got := ResolvePath(""); got != "/xdg/standin/standin.yaml" {
		t.Errorf("ResolvePath() = %q, want XDG path", got)
	}

	t.Setenv(EnvConfigPath, "/env.yaml")
	if got := ResolvePath(""); got != "/env.yaml" {
		t.Errorf("ResolvePath() = %q, want env path", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("STANDIN_TEST_FROM_DOTENV=yes\nSTANDIN_TEST_PRESET=file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STANDIN_TEST_PRESET", "process")
	t.Setenv("STANDIN_TEST_FROM_DOTENV", "")
	os.Unsetenv("STANDIN_TEST_FROM_DOTENV")

	if err := LoadDotEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("STANDIN_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("STANDIN_TEST_FROM_DOTENV = %q, want yes", got)
	}
	if got := os.Getenv("STANDIN_TEST_PRESET"); got != "process" {
		t.Errorf("STANDIN_TEST_PRESET = %q, want existing value kept", got)
	}
}

func TestSeedPatch(t *testing.T) {
	cfg, err := Parse([]byte("agent:\n  username: keeper\nrotation:\n  identities: [a, b]\n  active_time: 20s\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	stored := store.DefaultConfig()
	cfg.SeedPatch().Apply(&stored)

	if stored.Username != "keeper" {
		t.Errorf("Username = %q, want keeper", stored.Username)
	}
	if len(stored.IdentityPool) != 2 {
		t.Errorf("IdentityPool = %v, want two identities", stored.IdentityPool)
	}
	if stored.ActiveTime != 20*time.Second {
		t.Errorf("ActiveTime = %v, want 20s", stored.ActiveTime)
	}
	if !stored.AutoReconnect {
		t.Error("AutoReconnect = false, want default true")
	}

	settings := cfg.Agent.SessionSettings()
	if settings.ReconnectMaxAttempts != 10 || settings.AntiIdleMax != 90*time.Second {
		t.Errorf("SessionSettings() = %+v", settings)
	}
	patch := cfg.Rotation.SettingsPatch()
	if patch.ActiveTime == nil || *patch.ActiveTime != 20*time.Second {
		t.Errorf("SettingsPatch().ActiveTime = %v, want 20s", patch.ActiveTime)
	}
}
