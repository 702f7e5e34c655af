// ABOUTME: SQLite persistence for the singleton agent stats row
// ABOUTME: Counter deltas are applied in SQL so concurrent increments are not lost

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// GetStats returns the runtime stats, or ErrNotFound if never written.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	var (
		stats                     Stats
		serverID                  sql.NullInt64
		lastConnected, lastDiscon sql.NullString
		updatedAt                 string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, current_server_id, chat_message_count, reconnect_count,
		       last_connected, last_disconnected, updated_at
		FROM agent_stats WHERE id = 1
	`).Scan(&stats.Status, &serverID, &stats.ChatMessageCount, &stats.ReconnectCount,
		&lastConnected, &lastDiscon, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	stats.CurrentServerID = int64Ptr(serverID)
	if stats.LastConnected, err = parseNullTime(lastConnected); err != nil {
		return nil, err
	}
	if stats.LastDisconnected, err = parseNullTime(lastDiscon); err != nil {
		return nil, err
	}
	if stats.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateStats applies patch to the stats row, creating it if absent.
func (s *SQLiteStore) UpdateStats(ctx context.Context, patch StatsPatch) (*Stats, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := formatTime(s.now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_stats (id, status, updated_at) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING`,
		StatusOffline, now,
	); err != nil {
		return nil, fmt.Errorf("initializing stats: %w", err)
	}

	ub := query.Update("agent_stats").Where("id = 1").Set("updated_at", now)
	if patch.Status != nil {
		ub = ub.Set("status", *patch.Status)
	}
	if patch.CurrentServerID != nil {
		ub = ub.Set("current_server_id", *patch.CurrentServerID)
	}
	if patch.LastConnected != nil {
		ub = ub.Set("last_connected", formatTime(*patch.LastConnected))
	}
	if patch.LastDisconnected != nil {
		ub = ub.Set("last_disconnected", formatTime(*patch.LastDisconnected))
	}
	if patch.AddChatMessages != 0 {
		ub = ub.Set("chat_message_count", sq.Expr("chat_message_count + ?", patch.AddChatMessages))
	}
	if patch.AddReconnects != 0 {
		ub = ub.Set("reconnect_count", sq.Expr("reconnect_count + ?", patch.AddReconnects))
	}

	q, args, err := ub.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stats update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("updating stats: %w", err)
	}

	return s.GetStats(ctx)
}
