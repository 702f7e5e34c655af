// ABOUTME: SQLite persistence for the singleton agent configuration row
// ABOUTME: Lists and maps are stored as JSON text, durations as milliseconds

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var configColumns = []string{
	"username", "password", "auth_type",
	"auto_reconnect", "anti_idle",
	"chat_enabled", "chat_repeat", "chat_delay_ms", "chat_lines",
	"auto_auth", "auto_auth_password",
	"rotation_enabled", "identity_pool", "recently_used", "identity_history",
	"offline_timeout_ms", "rotation_delay_ms", "rotation_delay_variation_ms",
	"active_time_ms", "active_time_variation_ms",
	"updated_at",
}

// GetConfig returns the agent configuration, or ErrNotFound if none has been
// saved yet.
func (s *SQLiteStore) GetConfig(ctx context.Context) (*Config, error) {
	q, args, err := query.Select(configColumns...).From("agent_config").Where("id = 1").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building config query: %w", err)
	}

	var (
		cfg                                              Config
		autoReconnect, antiIdle, chatEnabled, chatRepeat bool
		autoAuth, rotationEnabled                        bool
		chatDelay, offlineTimeout, delay, delayVar       int64
		activeTime, activeVar                            int64
		chatLines, pool, recent, history, updatedAt      string
	)
	err = s.db.QueryRowContext(ctx, q, args...).Scan(
		&cfg.Username, &cfg.Password, &cfg.AuthType,
		&autoReconnect, &antiIdle,
		&chatEnabled, &chatRepeat, &chatDelay, &chatLines,
		&autoAuth, &cfg.AutoAuthPassword,
		&rotationEnabled, &pool, &recent, &history,
		&offlineTimeout, &delay, &delayVar,
		&activeTime, &activeVar,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}

	cfg.AutoReconnect = autoReconnect
	cfg.AntiIdle = antiIdle
	cfg.ChatEnabled = chatEnabled
	cfg.ChatRepeat = chatRepeat
	cfg.ChatDelay = fromMillis(chatDelay)
	cfg.AutoAuth = autoAuth
	cfg.RotationEnabled = rotationEnabled
	cfg.OfflineTimeout = fromMillis(offlineTimeout)
	cfg.RotationDelay = fromMillis(delay)
	cfg.RotationDelayVariation = fromMillis(delayVar)
	cfg.ActiveTime = fromMillis(activeTime)
	cfg.ActiveTimeVariation = fromMillis(activeVar)

	if err := json.Unmarshal([]byte(chatLines), &cfg.ChatLines); err != nil {
		return nil, fmt.Errorf("decoding chat_lines: %w", err)
	}
	if err := json.Unmarshal([]byte(pool), &cfg.IdentityPool); err != nil {
		return nil, fmt.Errorf("decoding identity_pool: %w", err)
	}
	if err := json.Unmarshal([]byte(recent), &cfg.RecentlyUsed); err != nil {
		return nil, fmt.Errorf("decoding recently_used: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &cfg.IdentityHistory); err != nil {
		return nil, fmt.Errorf("decoding identity_history: %w", err)
	}
	if cfg.IdentityHistory == nil {
		cfg.IdentityHistory = map[string]time.Time{}
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// UpdateConfig shallow-merges patch into the stored configuration, creating
// it from DefaultConfig if absent, and refreshes UpdatedAt.
func (s *SQLiteStore) UpdateConfig(ctx context.Context, patch ConfigPatch) (*Config, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg, err := s.GetConfig(ctx)
	if errors.Is(err, ErrNotFound) {
		def := DefaultConfig()
		cfg = &def
	} else if err != nil {
		return nil, err
	}

	patch.Apply(cfg)
	cfg.UpdatedAt = s.now().UTC()

	if err := s.writeConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (s *SQLiteStore) writeConfig(ctx context.Context, cfg *Config) error {
	chatLines, err := json.Marshal(nonNil(cfg.ChatLines))
	if err != nil {
		return fmt.Errorf("encoding chat_lines: %w", err)
	}
	pool, err := json.Marshal(nonNil(cfg.IdentityPool))
	if err != nil {
		return fmt.Errorf("encoding identity_pool: %w", err)
	}
	recent, err := json.Marshal(nonNil(cfg.RecentlyUsed))
	if err != nil {
		return fmt.Errorf("encoding recently_used: %w", err)
	}
	history := cfg.IdentityHistory
	if history == nil {
		history = map[string]time.Time{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding identity_history: %w", err)
	}

	values := []any{
		cfg.Username, cfg.Password, cfg.AuthType,
		boolInt(cfg.AutoReconnect), boolInt(cfg.AntiIdle),
		boolInt(cfg.ChatEnabled), boolInt(cfg.ChatRepeat), millis(cfg.ChatDelay), string(chatLines),
		boolInt(cfg.AutoAuth), cfg.AutoAuthPassword,
		boolInt(cfg.RotationEnabled), string(pool), string(recent), string(historyJSON),
		millis(cfg.OfflineTimeout), millis(cfg.RotationDelay), millis(cfg.RotationDelayVariation),
		millis(cfg.ActiveTime), millis(cfg.ActiveTimeVariation),
		formatTime(cfg.UpdatedAt),
	}

	upsert := "ON CONFLICT(id) DO UPDATE SET "
	for i, col := range configColumns {
		if i > 0 {
			upsert += ", "
		}
		upsert += col + " = excluded." + col
	}

	q, args, err := query.Insert("agent_config").
		Columns(append([]string{"id"}, configColumns...)...).
		Values(append([]any{1}, values...)...).
		Suffix(upsert).
		ToSql()
	if err != nil {
		return fmt.Errorf("building config upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
