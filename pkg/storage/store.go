// Package storage persists notification history and cached geo
// resolutions in SQLite. Connection state itself is never persisted.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// Store wraps the SQLite handle and exposes the helpers used by the
// server.
type Store struct {
	db *sql.DB
}

// Notification is a row of persisted operator notifications.
type Notification struct {
	ID            int64
	Title         string
	Content       string
	Level         string
	TargetUsers   []string
	CreatedBy     string
	CreatedByName string
	CreatedAt     time.Time
}

// NewStore initializes the SQLite database at the provided path. Call
// Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "blog-realtime.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notification_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			level TEXT NOT NULL DEFAULT 'info',
			target_users TEXT,
			created_by TEXT NOT NULL,
			created_by_name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ip_locations (
			address TEXT PRIMARY KEY,
			region TEXT NOT NULL,
			resolved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertNotification appends a row to the notification history.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) (int64, error) {
	var targets sql.NullString
	if len(n.TargetUsers) > 0 {
		encoded, err := json.Marshal(n.TargetUsers)
		if err != nil {
			return 0, err
		}
		targets = sql.NullString{String: string(encoded), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_history(title, content, level, target_users, created_by, created_by_name) VALUES(?, ?, ?, ?, ?, ?)`,
		n.Title, n.Content, n.Level, targets, n.CreatedBy, n.CreatedByName)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListNotifications returns a page of history, newest first, optionally
// filtered by level, along with the total row count for that filter.
func (s *Store) ListNotifications(ctx context.Context, level string, offset, limit int) ([]Notification, int, error) {
	if limit <= 0 {
		limit = 10
	}
	where := ""
	args := []any{}
	if level != "" {
		where = " WHERE level = ?"
		args = append(args, level)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_history`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, level, target_users, created_by, created_by_name, created_at FROM notification_history`+
			where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var targets sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Level, &targets, &n.CreatedBy, &n.CreatedByName, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		if targets.Valid {
			if err := json.Unmarshal([]byte(targets.String), &n.TargetUsers); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// GetLocation returns a cached region for an address if present and
// younger than maxAge.
func (s *Store) GetLocation(ctx context.Context, address string, maxAge time.Duration) (string, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT region, resolved_at FROM ip_locations WHERE address = ?`, address)
	var region string
	var resolvedAt time.Time
	if err := row.Scan(&region, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if maxAge > 0 && time.Since(resolvedAt) > maxAge {
		return "", false, nil
	}
	return region, true, nil
}

// PutLocation stores or refreshes a resolved region.
func (s *Store) PutLocation(ctx context.Context, address, region string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ip_locations(address, region, resolved_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(address) DO UPDATE SET region = excluded.region, resolved_at = excluded.resolved_at`,
		address, region)
	return err
}

// PurgeLocations drops cache entries older than maxAge and reports how
// many were removed.
func (s *Store) PurgeLocations(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM ip_locations WHERE resolved_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
