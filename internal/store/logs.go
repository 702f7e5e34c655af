// ABOUTME: SQLite persistence for activity and chat logs
// ABOUTME: Listings are filtered with squirrel and returned newest first

package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

var (
	activityColumns = []string{"id", "kind", "description", "server_id", "metadata", "created_at"}
	chatColumns     = []string{"id", "username", "message", "message_type", "server_id", "created_at"}
)

func clampLimit(limit int) uint64 {
	if limit <= 0 {
		return defaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return uint64(limit)
}

// AddActivityLog appends an audit entry and sets its ID.
func (s *SQLiteStore) AddActivityLog(ctx context.Context, entry *ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	metadata := sql.NullString{String: entry.Metadata, Valid: entry.Metadata != ""}

	q, args, err := query.Insert("activity_logs").
		Columns("kind", "description", "server_id", "metadata", "created_at").
		Values(entry.Kind, entry.Description, nullInt64(entry.ServerID), metadata, formatTime(entry.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building activity insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("inserting activity log: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading activity log id: %w", err)
	}
	return nil
}

func applyActivityFilter(qb sq.SelectBuilder, filter ActivityFilter) sq.SelectBuilder {
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.ServerID != nil {
		qb = qb.Where(sq.Eq{"server_id": *filter.ServerID})
	}
	if filter.Since != nil {
		qb = qb.Where(sq.GtOrEq{"created_at": formatTime(*filter.Since)})
	}
	return qb
}

// ListActivityLogs returns audit entries matching filter, newest first.
func (s *SQLiteStore) ListActivityLogs(ctx context.Context, filter ActivityFilter) ([]*ActivityLog, error) {
	qb := applyActivityFilter(query.Select(activityColumns...).From("activity_logs"), filter)
	q, args, err := qb.OrderBy("created_at DESC", "id DESC").Limit(clampLimit(filter.Limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building activity query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity logs: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityLog
	for rows.Next() {
		var (
			entry     ActivityLog
			serverID  sql.NullInt64
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Description, &serverID, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity log: %w", err)
		}
		entry.ServerID = int64Ptr(serverID)
		entry.Metadata = metadata.String
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity logs: %w", err)
	}
	return entries, nil
}

// AddChatLog appends a chat line and sets its ID.
func (s *SQLiteStore) AddChatLog(ctx context.Context, entry *ChatLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.MessageType == "" {
		entry.MessageType = MessageTypeChat
	}

	q, args, err := query.Insert("chat_logs").
		Columns("username", "message", "message_type", "server_id", "created_at").
		Values(entry.Username, entry.Message, entry.MessageType, nullInt64(entry.ServerID), formatTime(entry.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chat insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("inserting chat log: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading chat log id: %w", err)
	}
	return nil
}

// ListChatLogs returns chat lines matching filter, newest first.
func (s *SQLiteStore) ListChatLogs(ctx context.Context, filter ChatFilter) ([]*ChatLog, error) {
	qb := query.Select(chatColumns...).From("chat_logs")
	if filter.ServerID != nil {
		qb = qb.Where(sq.Eq{"server_id": *filter.ServerID})
	}
	if filter.Username != "" {
		qb = qb.Where(sq.Eq{"username": filter.Username})
	}
	q, args, err := qb.OrderBy("created_at DESC", "id DESC").Limit(clampLimit(filter.Limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chat query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat logs: %w", err)
	}
	defer rows.Close()

	var entries []*ChatLog
	for rows.Next() {
		var (
			entry     ChatLog
			serverID  sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Message, &entry.MessageType, &serverID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chat log: %w", err)
		}
		entry.ServerID = int64Ptr(serverID)
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat logs: %w", err)
	}
	return entries, nil
}

// ClearChatLogs deletes chat lines, optionally only those of one server, and
// returns how many were removed.
func (s *SQLiteStore) ClearChatLogs(ctx context.Context, serverID *int64) (int64, error) {
	qb := query.Delete("chat_logs")
	if serverID != nil {
		qb = qb.Where(sq.Eq{"server_id": *serverID})
	}
	q, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building chat delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("clearing chat logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleared chat logs: %w", err)
	}
	return n, nil
}
