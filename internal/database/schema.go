package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id          UUID PRIMARY KEY,
		status      TEXT NOT NULL,
		record      JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id       UUID PRIMARY KEY,
		balance  NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		frozen   BOOLEAN NOT NULL DEFAULT false,
		payable  BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id            BIGSERIAL PRIMARY KEY,
		from_account  UUID NOT NULL,
		to_account    UUID NOT NULL,
		amount        NUMERIC(20,0) NOT NULL CHECK (amount > 0),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS room_events (
		id          BIGSERIAL PRIMARY KEY,
		room_id     UUID NOT NULL,
		event_type  TEXT NOT NULL,
		actor_id    UUID,
		payload     JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS room_events_room_idx ON room_events (room_id)`,
}

// Migrate creates the tables used by the room store, the ledger and the reconciler.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
