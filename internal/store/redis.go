package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis keeps each room as a JSON string under "<prefix>room:<id>". Rooms
// awaiting deferred payouts are also members of the "<prefix>rooms:deferred" set.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if client == nil {
		panic("redis client cannot be nil for room store")
	}
	if keyPrefix == "" {
		keyPrefix = "takedown:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (s *Redis) roomKey(id uuid.UUID) string {
	return fmt.Sprintf("%sroom:%s", s.keyPrefix, id)
}

func (s *Redis) deferredKey() string {
	return s.keyPrefix + "rooms:deferred"
}

func (s *Redis) Get(ctx context.Context, id uuid.UUID) (models.Room, error) {
	raw, err := s.client.Get(ctx, s.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Room{}, ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("redis: get room %s: %w", id, err)
	}
	var r models.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.Room{}, fmt.Errorf("redis: decode room %s: %w", id, err)
	}
	return r, nil
}

func (s *Redis) Create(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: encode room %s: %w", room.ID, err)
	}
	ok, err := s.client.SetNX(ctx, s.roomKey(room.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: create room %s: %w", room.ID, err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *Redis) Put(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: encode room %s: %w", room.ID, err)
	}
	ok, err := s.client.SetXX(ctx, s.roomKey(room.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: put room %s: %w", room.ID, err)
	}
	if !ok {
		return ErrNotFound
	}
	if room.AwaitsPayout() {
		err = s.client.SAdd(ctx, s.deferredKey(), room.ID.String()).Err()
	} else {
		err = s.client.SRem(ctx, s.deferredKey(), room.ID.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("redis: index room %s: %w", room.ID, err)
	}
	return nil
}

func (s *Redis) ListDeferred(ctx context.Context) ([]uuid.UUID, error) {
	members, err := s.client.SMembers(ctx, s.deferredKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list deferred rooms: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("redis: bad deferred member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ RoomStore = (*Redis)(nil)
