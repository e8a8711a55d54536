// internal/handlers/room_server.go
package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/room"
	"github.com/sirupsen/logrus"
)

// RoomServer runs room transitions one at a time per room id and fans events
// out to WebSocket subscribers.
type RoomServer struct {
	Machine *room.Machine
	Hub     *Hub
	Locks   Locker
	Logger  logrus.FieldLogger
}

// NewRoomServer uses an in-process KeyedMutex when locks is nil. The hub must
// also be registered as (part of) the machine's EventSink.
func NewRoomServer(m *room.Machine, hub *Hub, locks Locker, logger logrus.FieldLogger) *RoomServer {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RoomServer{Machine: m, Hub: hub, Locks: locks, Logger: logger}
}

func (s *RoomServer) serialized(ctx context.Context, roomID uuid.UUID, fn func() (models.Room, error)) (models.Room, error) {
	unlock, err := s.Locks.Lock(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	defer unlock()
	return fn()
}

func (s *RoomServer) Create(ctx context.Context, p room.CreateParams) (models.Room, error) {
	if p.ID == uuid.Nil {
		return s.Machine.CreateRoom(ctx, p)
	}
	return s.serialized(ctx, p.ID, func() (models.Room, error) {
		return s.Machine.CreateRoom(ctx, p)
	})
}

func (s *RoomServer) Join(ctx context.Context, roomID, player uuid.UUID, proof room.Signer) (models.Room, error) {
	return s.serialized(ctx, roomID, func() (models.Room, error) {
		return s.Machine.JoinRoom(ctx, roomID, player, proof)
	})
}

func (s *RoomServer) Consume(ctx context.Context, roomID, player uuid.UUID, kind room.ResourceKind, proof room.Signer) (models.Room, error) {
	return s.serialized(ctx, roomID, func() (models.Room, error) {
		return s.Machine.ConsumeResource(ctx, roomID, player, kind, proof)
	})
}

func (s *RoomServer) Settle(ctx context.Context, roomID uuid.UUID, proof room.Signer, placements []models.Placement) (models.Room, error) {
	return s.serialized(ctx, roomID, func() (models.Room, error) {
		return s.Machine.SettleRoom(ctx, roomID, proof, placements)
	})
}

func (s *RoomServer) Cancel(ctx context.Context, roomID uuid.UUID, proof room.Signer) (models.Room, error) {
	return s.serialized(ctx, roomID, func() (models.Room, error) {
		return s.Machine.CancelRoom(ctx, roomID, proof)
	})
}

func (s *RoomServer) Reconcile(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	return s.serialized(ctx, roomID, func() (models.Room, error) {
		return s.Machine.ReconcilePayouts(ctx, roomID)
	})
}

func (s *RoomServer) Get(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	return s.Machine.GetRoom(ctx, roomID)
}
