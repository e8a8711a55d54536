package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	record     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite persists rooms in a single-file database.
type SQLite struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (models.Room, error) {
	var raw []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT record FROM rooms WHERE id = ?`, id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("select room %s: %w", id, err)
	}
	var r models.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLite) Create(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.ID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (id, status, record, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		room.ID.String(), string(room.Status), raw, toMillis(room.CreatedAt), toMillis(room.UpdatedAt),
	)
	if isConstraintError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert room %s: %w", room.ID, err)
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.ID, err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE rooms SET status = ?, record = ?, updated_at = ? WHERE id = ?`,
		string(room.Status), raw, toMillis(room.UpdatedAt), room.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update room %s: %w", room.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDeferred decodes finished records; the pool lives inside the JSON blob.
func (s *SQLite) ListDeferred(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT record FROM rooms WHERE status = ?`, string(models.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("list deferred rooms: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		var r models.Room
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		if r.AwaitsPayout() {
			ids = append(ids, r.ID)
		}
	}
	return ids, rows.Err()
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ RoomStore = (*SQLite)(nil)
