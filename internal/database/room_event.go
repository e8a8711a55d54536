package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/takedown/internal/models"
)

// EventArchive appends room events to the room_events table.
type EventArchive struct {
	pool *pgxpool.Pool
}

func NewEventArchive(pool *pgxpool.Pool) *EventArchive {
	return &EventArchive{pool: pool}
}

// Archive writes the whole batch in one transaction.
func (a *EventArchive) Archive(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, a.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, ev := range events {
			if err := insertRoomEventTx(ctx, tx, ev); err != nil {
				return fmt.Errorf("insertRoomEventTx: %w", err)
			}
		}
		return nil
	})
}

// CountRoomEvents returns how many events are archived for a room.
func (a *EventArchive) CountRoomEvents(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int
	err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM room_events WHERE room_id = $1`, roomID).Scan(&n)
	return n, err
}

// insertRoomEventTx stores one event together with the room snapshot it carried.
func insertRoomEventTx(ctx context.Context, tx pgx.Tx, ev models.RoomEvent) error {
	payload, err := json.Marshal(map[string]interface{}{
		"payload": ev.Payload,
		"room":    ev.Room,
	})
	if err != nil {
		return err
	}
	var actor *uuid.UUID
	if ev.ActorID != uuid.Nil {
		actor = &ev.ActorID
	}
	q := `
		INSERT INTO room_events (room_id, event_type, actor_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Exec(ctx, q, ev.RoomID, string(ev.Type), actor, payload, time.UnixMilli(ev.Timestamp).UTC())
	return err
}
