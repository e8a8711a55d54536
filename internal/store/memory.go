package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
)

// Memory keeps rooms in a map guarded by a mutex.
type Memory struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]models.Room
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[uuid.UUID]models.Room),
	}
}

func (s *Memory) Get(ctx context.Context, id uuid.UUID) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return models.Room{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Memory) Create(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return ErrAlreadyExists
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *Memory) Put(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; !exists {
		return ErrNotFound
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *Memory) ListDeferred(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, r := range s.rooms {
		if r.AwaitsPayout() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ RoomStore = (*Memory)(nil)
