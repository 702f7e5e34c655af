// ABOUTME: SQLite persistence for the server registry
// ABOUTME: Enforces a single active server when activating or creating one

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var serverColumns = []string{"id", "name", "host", "port", "version", "is_active", "created_at"}

// ListServers returns all servers ordered by ID.
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*Server, error) {
	q, args, err := query.Select(serverColumns...).From("servers").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building servers query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var servers []*Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating servers: %w", err)
	}
	return servers, nil
}

// GetServer returns the server with the given ID.
func (s *SQLiteStore) GetServer(ctx context.Context, id int64) (*Server, error) {
	return s.getServerWhere(ctx, sq.Eq{"id": id})
}

// GetActiveServer returns the active server, or ErrNotFound if none is active.
func (s *SQLiteStore) GetActiveServer(ctx context.Context) (*Server, error) {
	return s.getServerWhere(ctx, sq.Eq{"is_active": 1})
}

func (s *SQLiteStore) getServerWhere(ctx context.Context, pred sq.Sqlizer) (*Server, error) {
	q, args, err := query.Select(serverColumns...).From("servers").Where(pred).OrderBy("id ASC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building server query: %w", err)
	}

	srv, err := scanServer(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return srv, err
}

// CreateServer inserts a server and sets its ID and CreatedAt. Creating an
// active server deactivates all others.
func (s *SQLiteStore) CreateServer(ctx context.Context, server *Server) error {
	if server.CreatedAt.IsZero() {
		server.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if server.IsActive {
		if _, err := tx.ExecContext(ctx, "UPDATE servers SET is_active = 0"); err != nil {
			return fmt.Errorf("deactivating servers: %w", err)
		}
	}

	q, args, err := query.Insert("servers").
		Columns("name", "host", "port", "version", "is_active", "created_at").
		Values(server.Name, server.Host, server.Port, server.Version, boolInt(server.IsActive), formatTime(server.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building server insert: %w", err)
	}

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading server id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing server insert: %w", err)
	}
	server.ID = id
	return nil
}

// DeleteServer removes a server.
func (s *SQLiteStore) DeleteServer(ctx context.Context, id int64) error {
	q, args, err := query.Delete("servers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building server delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActiveServer marks the server active and every other server inactive.
func (s *SQLiteStore) SetActiveServer(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM servers WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("checking server: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "UPDATE servers SET is_active = CASE WHEN id = ? THEN 1 ELSE 0 END", id); err != nil {
		return fmt.Errorf("activating server: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*Server, error) {
	var (
		srv       Server
		active    bool
		createdAt string
	)
	if err := row.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Version, &active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning server: %w", err)
	}
	srv.IsActive = active
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	srv.CreatedAt = t
	return &srv, nil
}
