// Package store persists room records keyed by room id.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
)

var (
	// ErrNotFound is returned when no room is stored under the id.
	ErrNotFound = errors.New("store: room not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("store: room already exists")
)

// RoomStore is the only persistence boundary of the room state machine.
// Implementations return deep copies; callers own what they get back.
type RoomStore interface {
	Get(ctx context.Context, id uuid.UUID) (models.Room, error)
	Create(ctx context.Context, room models.Room) error
	Put(ctx context.Context, room models.Room) error
	// ListDeferred returns the ids of finished rooms that still hold deferred prizes.
	ListDeferred(ctx context.Context) ([]uuid.UUID, error)
}
