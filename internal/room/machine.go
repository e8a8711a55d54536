// Package room implements the lifecycle of a staked game room: admission of
// stakes into escrow, in-round resource burns, prize settlement and
// authority cancellation with refunds.
//
// The Machine holds no locks. Callers must serialize transitions per room id
// (see handlers.RoomServer); different rooms may run concurrently.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/store"
	"github.com/sirupsen/logrus"
)

// Transferer moves value between two identities atomically.
type Transferer interface {
	Transfer(ctx context.Context, from, to uuid.UUID, amount uint64) error
}

// Resolver finds the account a winner is paid into. It returns an error
// wrapping ErrNoDestination when none is registered yet.
type Resolver interface {
	Destination(ctx context.Context, player uuid.UUID) (uuid.UUID, error)
}

// Signer proves which identities signed the current request.
type Signer interface {
	IsSignedBy(identity uuid.UUID) bool
}

// EventSink receives an event after every committed transition.
type EventSink interface {
	Publish(ctx context.Context, ev models.RoomEvent) error
}

// Config wires a Machine to its collaborators.
type Config struct {
	Store    store.RoomStore
	Ledger   Transferer
	Resolver Resolver  // defaults to paying the winner's own identity
	Events   EventSink // optional

	// Treasury receives settlement residue; BurnAccount receives resource costs.
	Treasury    uuid.UUID
	BurnAccount uuid.UUID

	Resources ResourceTable // defaults to DefaultResources
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Machine runs room transitions against a store and a ledger.
type Machine struct {
	store     store.RoomStore
	ledger    Transferer
	resolver  Resolver
	events    EventSink
	treasury  uuid.UUID
	burn      uuid.UUID
	resources ResourceTable
	log       logrus.FieldLogger
	now       func() time.Time
}

// selfResolver pays winners into their own identity.
type selfResolver struct{}

func (selfResolver) Destination(_ context.Context, player uuid.UUID) (uuid.UUID, error) {
	return player, nil
}

// NewMachine validates cfg and fills in defaults.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, errors.New("room machine: store is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("room machine: ledger is required")
	}
	if cfg.Treasury == uuid.Nil || cfg.BurnAccount == uuid.Nil {
		return nil, errors.New("room machine: treasury and burn accounts are required")
	}
	m := &Machine{
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		resolver:  cfg.Resolver,
		events:    cfg.Events,
		treasury:  cfg.Treasury,
		burn:      cfg.BurnAccount,
		resources: cfg.Resources,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if m.resolver == nil {
		m.resolver = selfResolver{}
	}
	if m.resources == nil {
		m.resources = DefaultResources
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// GetRoom returns the current record.
func (m *Machine) GetRoom(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	return m.load(ctx, "get", roomID)
}

func (m *Machine) load(ctx context.Context, op string, roomID uuid.UUID) (models.Room, error) {
	r, err := m.store.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Room{}, opError(op, roomID, ErrRoomNotFound)
	}
	if err != nil {
		return models.Room{}, opError(op, roomID, err)
	}
	return r, nil
}

// commit validates and writes next. Any failure reverses the transfers in batch,
// so neither the record nor the ledger shows a half-applied transition.
func (m *Machine) commit(ctx context.Context, op string, batch *transferBatch, next models.Room) error {
	next.UpdatedAt = m.now().UTC()
	if err := next.Validate(); err != nil {
		return opError(op, next.ID, batch.rollback(ctx, err))
	}
	if err := m.store.Put(ctx, next); err != nil {
		return opError(op, next.ID, batch.rollback(ctx, fmt.Errorf("store room: %w", err)))
	}
	return nil
}

func (m *Machine) emit(ctx context.Context, typ models.RoomEventType, actor uuid.UUID, r models.Room, payload map[string]interface{}) {
	if m.events == nil {
		return
	}
	ev := models.RoomEvent{
		Type:      typ,
		RoomID:    r.ID,
		ActorID:   actor,
		Payload:   payload,
		Room:      r.Clone(),
		Timestamp: m.now().UnixMilli(),
	}
	if err := m.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		m.log.WithFields(logrus.Fields{
			"room":  r.ID,
			"event": typ,
		}).WithError(err).Warn("failed to publish room event")
	}
}

func signedBy(s Signer, identity uuid.UUID) bool {
	return s != nil && identity != uuid.Nil && s.IsSignedBy(identity)
}
