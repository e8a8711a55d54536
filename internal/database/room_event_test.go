package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoomEvents(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := ConnectDB(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are idempotent")

	archive := NewEventArchive(pool)
	roomID := uuid.New()
	now := time.Now().UnixMilli()
	events := []models.RoomEvent{
		{Type: models.EventRoomCreated, RoomID: roomID, Timestamp: now},
		{Type: models.EventPlayerJoined, RoomID: roomID, ActorID: uuid.New(), Timestamp: now},
	}
	require.NoError(t, archive.Archive(ctx, events))
	require.NoError(t, archive.Archive(ctx, nil))

	n, err := archive.CountRoomEvents(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
