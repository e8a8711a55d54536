package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/takedown/internal/models"
)

// pgUniqueViolation is the SQLSTATE for a primary key clash.
const pgUniqueViolation = "23505"

// Postgres stores each room as a JSONB record in the rooms table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (models.Room, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM rooms WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *Postgres) Create(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.ID, err)
	}
	q := `
	INSERT INTO rooms (id, status, record, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, room.ID, string(room.Status), raw, room.CreatedAt, room.UpdatedAt)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

func (s *Postgres) Put(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.ID, err)
	}
	q := `UPDATE rooms SET status = $2, record = $3, updated_at = $4 WHERE id = $1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, room.ID, string(room.Status), raw, room.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Postgres) ListDeferred(ctx context.Context) ([]uuid.UUID, error) {
	q := `SELECT id FROM rooms WHERE status = $1 AND (record->>'pool')::numeric > 0`
	rows, err := s.pool.Query(ctx, q, string(models.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("list deferred rooms: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list deferred rooms: %w", err)
	}
	return ids, nil
}

var _ RoomStore = (*Postgres)(nil)
