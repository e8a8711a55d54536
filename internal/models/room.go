// internal/models/room.go
package models

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxCapacity is the largest number of players a room can seat.
const MaxCapacity = 6

// MaxWinners is the number of prize positions paid at settlement.
const MaxWinners = 3

// MaxEntryFee is the largest entry fee for which a full room's pool still fits in a uint64.
const MaxEntryFee = math.MaxUint64 / MaxCapacity

// ErrInvalidConfiguration is returned when a room is constructed with out-of-range parameters.
var ErrInvalidConfiguration = errors.New("invalid room configuration")

// ErrInvariant is returned by Validate when a record breaks one of the room invariants.
var ErrInvariant = errors.New("room invariant violated")

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusActive    RoomStatus = "active"
	StatusFinished  RoomStatus = "finished"
	StatusCancelled RoomStatus = "cancelled"
)

// Terminal reports whether no further player-facing transition may leave this status.
func (s RoomStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s RoomStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Placement is one prize position declared at settlement. An empty slot has Player.Valid == false.
type Placement struct {
	Player uuid.NullUUID `json:"player"`
	Score  uint32        `json:"score"`
}

// PayoutKind tells what a disbursement out of escrow was for.
type PayoutKind string

const (
	PayoutPrize    PayoutKind = "prize"
	PayoutRefund   PayoutKind = "refund"
	PayoutResidual PayoutKind = "residual"
)

// PayoutStatus tracks whether a disbursement has left escrow.
type PayoutStatus string

const (
	PayoutPaid     PayoutStatus = "paid"
	PayoutDeferred PayoutStatus = "deferred"
)

// Payout is a single disbursement recorded against a room's escrow.
type Payout struct {
	Kind      PayoutKind   `json:"kind"`
	Rank      int          `json:"rank,omitempty"` // 1-based prize position; 0 for refunds and residue
	Recipient uuid.UUID    `json:"recipient"`
	Amount    uint64       `json:"amount"`
	Status    PayoutStatus `json:"status"`
}

// Room is the bookkeeping record of one staked game room.
//
// Rooms are plain values: stores hand out deep copies, and only the lifecycle
// state machine in internal/room writes them back.
type Room struct {
	ID        uuid.UUID   `json:"id"`
	EntryFee  uint64      `json:"entryFee"`
	Capacity  uint8       `json:"capacity"`
	Occupancy uint8       `json:"occupancy"`
	Status    RoomStatus  `json:"status"`
	Pool      uint64      `json:"pool"`
	Authority uuid.UUID   `json:"authority"`
	Escrow    uuid.UUID   `json:"escrow"`
	Players   []uuid.UUID `json:"players"`
	Winners   []Placement `json:"winners,omitempty"`
	Payouts   []Payout    `json:"payouts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRoom builds a fresh Waiting room with an empty pool.
func NewRoom(id uuid.UUID, entryFee uint64, capacity uint8, authority, escrow uuid.UUID, now time.Time) (Room, error) {
	switch {
	case id == uuid.Nil:
		return Room{}, fmt.Errorf("%w: room id is required", ErrInvalidConfiguration)
	case capacity == 0:
		return Room{}, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidConfiguration)
	case capacity > MaxCapacity:
		return Room{}, fmt.Errorf("%w: capacity %d exceeds %d", ErrInvalidConfiguration, capacity, MaxCapacity)
	case entryFee == 0:
		return Room{}, fmt.Errorf("%w: entry fee must be positive", ErrInvalidConfiguration)
	case entryFee > MaxEntryFee:
		return Room{}, fmt.Errorf("%w: entry fee %d exceeds %d", ErrInvalidConfiguration, entryFee, uint64(MaxEntryFee))
	case authority == uuid.Nil:
		return Room{}, fmt.Errorf("%w: authority is required", ErrInvalidConfiguration)
	case escrow == uuid.Nil:
		return Room{}, fmt.Errorf("%w: escrow account is required", ErrInvalidConfiguration)
	}

	now = now.UTC()
	return Room{
		ID:        id,
		EntryFee:  entryFee,
		Capacity:  capacity,
		Status:    StatusWaiting,
		Authority: authority,
		Escrow:    escrow,
		Players:   []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy so the caller can mutate it freely.
func (r Room) Clone() Room {
	c := r
	c.Players = slices.Clone(r.Players)
	if c.Players == nil {
		c.Players = []uuid.UUID{}
	}
	c.Winners = slices.Clone(r.Winners)
	c.Payouts = slices.Clone(r.Payouts)
	return c
}

// HasPlayer reports whether the identity already holds a seat.
func (r Room) HasPlayer(player uuid.UUID) bool {
	return slices.Contains(r.Players, player)
}

// IsFull reports whether every seat is taken.
func (r Room) IsFull() bool {
	return r.Occupancy >= r.Capacity
}

// IsSettleable reports whether prizes can be distributed now.
func (r Room) IsSettleable() bool {
	return r.Status == StatusActive
}

// IsTerminal reports whether the room reached Finished or Cancelled.
func (r Room) IsTerminal() bool {
	return r.Status.Terminal()
}

// Staked is the total value admitted into escrow over the room's life.
func (r Room) Staked() uint64 {
	return uint64(r.Occupancy) * r.EntryFee
}

// PaidOut sums the payouts that already left escrow.
func (r Room) PaidOut() uint64 {
	var total uint64
	for _, p := range r.Payouts {
		if p.Status == PayoutPaid {
			total += p.Amount
		}
	}
	return total
}

// Deferred sums the payouts still held in escrow awaiting a destination.
func (r Room) Deferred() uint64 {
	var total uint64
	for _, p := range r.Payouts {
		if p.Status == PayoutDeferred {
			total += p.Amount
		}
	}
	return total
}

// AwaitsPayout reports a finished room whose escrow still holds deferred prizes.
func (r Room) AwaitsPayout() bool {
	return r.Status == StatusFinished && r.Pool > 0
}

// Validate checks the record invariants. It is cheap enough to call after every transition.
func (r Room) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, r.Status)
	}
	if r.Capacity == 0 || r.Capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity %d out of range", ErrInvariant, r.Capacity)
	}
	if r.Occupancy > r.Capacity {
		return fmt.Errorf("%w: occupancy %d exceeds capacity %d", ErrInvariant, r.Occupancy, r.Capacity)
	}
	if int(r.Occupancy) != len(r.Players) {
		return fmt.Errorf("%w: occupancy %d but %d players", ErrInvariant, r.Occupancy, len(r.Players))
	}
	seen := make(map[uuid.UUID]struct{}, len(r.Players))
	for _, p := range r.Players {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: player %s seated twice", ErrInvariant, p)
		}
		seen[p] = struct{}{}
	}

	switch r.Status {
	case StatusWaiting, StatusActive:
		if r.Pool != r.Staked() {
			return fmt.Errorf("%w: pool %d != occupancy*fee %d", ErrInvariant, r.Pool, r.Staked())
		}
		if len(r.Winners) != 0 || len(r.Payouts) != 0 {
			return fmt.Errorf("%w: open room carries settlement data", ErrInvariant)
		}
		if r.Status == StatusWaiting && r.IsFull() {
			return fmt.Errorf("%w: full room still waiting", ErrInvariant)
		}
	case StatusFinished, StatusCancelled:
		if r.Pool+r.PaidOut() != r.Staked() {
			return fmt.Errorf("%w: pool %d + paid %d != staked %d", ErrInvariant, r.Pool, r.PaidOut(), r.Staked())
		}
		if r.Pool != r.Deferred() {
			return fmt.Errorf("%w: pool %d != deferred %d", ErrInvariant, r.Pool, r.Deferred())
		}
		if r.Status == StatusCancelled && len(r.Winners) != 0 {
			return fmt.Errorf("%w: cancelled room has winners", ErrInvariant)
		}
		if len(r.Winners) > MaxWinners {
			return fmt.Errorf("%w: %d winners", ErrInvariant, len(r.Winners))
		}
	}
	return nil
}
