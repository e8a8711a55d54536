package room

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/escrow"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/store"
	"github.com/sirupsen/logrus"
)

// CreateParams describes a new room. A nil ID gets a fresh UUIDv7.
type CreateParams struct {
	ID        uuid.UUID
	EntryFee  uint64
	Capacity  uint8
	Authority uuid.UUID
}

// CreateRoom inserts a Waiting room with an empty pool.
func (m *Machine) CreateRoom(ctx context.Context, p CreateParams) (models.Room, error) {
	const op = "create"
	id := p.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return models.Room{}, opError(op, id, err)
		}
	}
	escrowID, err := escrow.Account(id)
	if err != nil {
		return models.Room{}, opError(op, id, err)
	}
	r, err := models.NewRoom(id, p.EntryFee, p.Capacity, p.Authority, escrowID, m.now())
	if err != nil {
		return models.Room{}, opError(op, id, err)
	}

	if err := m.store.Create(ctx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return models.Room{}, opError(op, id, ErrRoomAlreadyExists)
		}
		return models.Room{}, opError(op, id, err)
	}

	m.log.WithFields(logrus.Fields{
		"room":      r.ID,
		"entryFee":  r.EntryFee,
		"capacity":  r.Capacity,
		"authority": r.Authority,
	}).Info("room created")
	m.emit(ctx, models.EventRoomCreated, r.Authority, r, nil)
	return r, nil
}

// JoinRoom admits player by moving the entry fee into escrow. proof must show
// the caller controls player. The join that fills the last seat also starts the room.
func (m *Machine) JoinRoom(ctx context.Context, roomID, player uuid.UUID, proof Signer) (models.Room, error) {
	const op = "join"
	r, err := m.load(ctx, op, roomID)
	if err != nil {
		return models.Room{}, err
	}
	switch {
	case !signedBy(proof, player):
		return models.Room{}, opError(op, roomID, ErrUnauthorized)
	case r.Status != models.StatusWaiting:
		return models.Room{}, opError(op, roomID, ErrRoomNotWaiting)
	case r.IsFull():
		return models.Room{}, opError(op, roomID, ErrRoomFull)
	case r.HasPlayer(player):
		return models.Room{}, opError(op, roomID, ErrAlreadyJoined)
	}

	pool, err := escrow.Add(r.Pool, r.EntryFee)
	if err != nil {
		return models.Room{}, opError(op, roomID, err)
	}
	next := r.Clone()
	next.Players = append(next.Players, player)
	next.Occupancy++
	next.Pool = pool
	started := next.IsFull()
	if started {
		next.Status = models.StatusActive
	}

	batch := m.newBatch()
	if err := batch.move(ctx, player, r.Escrow, r.EntryFee); err != nil {
		return models.Room{}, opError(op, roomID, err)
	}
	if err := m.commit(ctx, op, batch, next); err != nil {
		return models.Room{}, err
	}

	m.log.WithFields(logrus.Fields{
		"room":   next.ID,
		"player": player,
		"pool":   next.Pool,
		"seats":  next.Occupancy,
	}).Info("player joined room")
	m.emit(ctx, models.EventPlayerJoined, player, next, nil)
	if started {
		m.log.WithFields(logrus.Fields{"room": next.ID, "players": next.Occupancy}).Info("room started")
		m.emit(ctx, models.EventRoomStarted, player, next, nil)
	}
	return next, nil
}

// ConsumeResource burns the fixed cost of a power-up from player. It never touches
// the pool, so the room record is not rewritten.
func (m *Machine) ConsumeResource(ctx context.Context, roomID, player uuid.UUID, kind ResourceKind, proof Signer) (models.Room, error) {
	const op = "consume"
	r, err := m.load(ctx, op, roomID)
	if err != nil {
		return models.Room{}, err
	}
	switch {
	case !signedBy(proof, player):
		return models.Room{}, opError(op, roomID, ErrUnauthorized)
	case r.Status != models.StatusActive:
		return models.Room{}, opError(op, roomID, ErrRoomNotActive)
	case !r.HasPlayer(player):
		return models.Room{}, opError(op, roomID, ErrPlayerNotInRoom)
	}
	cost, ok := m.resources.Cost(kind)
	if !ok {
		return models.Room{}, opError(op, roomID, ErrUnknownResource)
	}

	if err := m.newBatch().move(ctx, player, m.burn, cost); err != nil {
		return models.Room{}, opError(op, roomID, err)
	}

	m.log.WithFields(logrus.Fields{
		"room":     r.ID,
		"player":   player,
		"resource": kind,
		"burned":   cost,
	}).Info("resource consumed")
	m.emit(ctx, models.EventResourceConsumed, player, r, map[string]interface{}{
		"resource": string(kind),
		"amount":   cost,
	})
	return r, nil
}
