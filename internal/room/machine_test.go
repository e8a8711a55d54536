package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/ledger"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFee = 1_000_000

var testNow = time.Unix(1700000000, 0)

// signer proves exactly the identities it holds.
type signer []uuid.UUID

func (s signer) IsSignedBy(id uuid.UUID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// recordingSink collects published events instead of queueing them.
type recordingSink struct {
	mu     sync.Mutex
	events []models.RoomEvent
}

func (s *recordingSink) Publish(_ context.Context, ev models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []models.RoomEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RoomEventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	m         *Machine
	store     *store.Memory
	ledger    *ledger.Memory
	sink      *recordingSink
	treasury  uuid.UUID
	burn      uuid.UUID
	authority uuid.UUID
	supply    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		store:     store.NewMemory(),
		ledger:    ledger.NewMemory(),
		sink:      &recordingSink{},
		treasury:  uuid.New(),
		burn:      uuid.New(),
		authority: uuid.New(),
	}
	m, err := NewMachine(Config{
		Store:       f.store,
		Ledger:      f.ledger,
		Resolver:    f.ledger,
		Events:      f.sink,
		Treasury:    f.treasury,
		BurnAccount: f.burn,
		Logger:      logger,
	})
	require.NoError(t, err)
	f.m = m
	return f
}

// player opens a funded, payable account.
func (f *fixture) player(balance uint64) uuid.UUID {
	id := uuid.New()
	f.ledger.Open(id, balance)
	f.supply += balance
	return id
}

func (f *fixture) createRoom(t *testing.T, fee uint64, capacity uint8) models.Room {
	t.Helper()
	r, err := f.m.CreateRoom(context.Background(), CreateParams{EntryFee: fee, Capacity: capacity, Authority: f.authority})
	require.NoError(t, err)
	return r
}

// fillRoom joins n fresh players and returns them in join order.
func (f *fixture) fillRoom(t *testing.T, roomID uuid.UUID, n int) []uuid.UUID {
	t.Helper()
	players := make([]uuid.UUID, n)
	for i := range players {
		players[i] = f.player(10 * testFee)
		_, err := f.m.JoinRoom(context.Background(), roomID, players[i], signer{players[i]})
		require.NoError(t, err)
	}
	return players
}

// assertConserved checks that the ledger holds exactly what was minted and
// that the escrow balance equals the recorded pool.
func (f *fixture) assertConserved(t *testing.T, roomID uuid.UUID) {
	t.Helper()
	r, err := f.store.Get(context.Background(), roomID)
	require.NoError(t, err)
	assert.NoError(t, r.Validate())
	assert.Equal(t, f.supply, f.ledger.Total(), "value created or destroyed")
	assert.Equal(t, r.Pool, f.ledger.Balance(r.Escrow), "escrow balance drifted from pool")
}

func winners(ids ...uuid.UUID) []models.Placement {
	out := make([]models.Placement, len(ids))
	for i, id := range ids {
		if id != uuid.Nil {
			out[i].Player = uuid.NullUUID{UUID: id, Valid: true}
		}
	}
	return out
}

func TestNewMachineRequiresCollaborators(t *testing.T) {
	_, err := NewMachine(Config{})
	assert.Error(t, err)
	_, err = NewMachine(Config{Store: store.NewMemory(), Ledger: ledger.NewMemory()})
	assert.Error(t, err, "treasury and burn accounts are required")
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.createRoom(t, testFee, 3)
	assert.Equal(t, models.StatusWaiting, r.Status)
	assert.Zero(t, r.Occupancy)
	assert.Zero(t, r.Pool)
	assert.Equal(t, f.authority, r.Authority)
	assert.NotEqual(t, uuid.Nil, r.Escrow)
	assert.Equal(t, uuid.Version(7), r.ID.Version(), "generated ids are UUIDv7")

	_, err := f.m.CreateRoom(ctx, CreateParams{ID: r.ID, EntryFee: testFee, Capacity: 3, Authority: f.authority})
	assert.ErrorIs(t, err, ErrRoomAlreadyExists)
	assert.Equal(t, CodeRoomAlreadyExists, CodeOf(err))

	for _, p := range []CreateParams{
		{EntryFee: testFee, Capacity: 0, Authority: f.authority},
		{EntryFee: testFee, Capacity: 7, Authority: f.authority},
		{EntryFee: 0, Capacity: 3, Authority: f.authority},
	} {
		_, err := f.m.CreateRoom(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	}
	assert.Equal(t, []models.RoomEventType{models.EventRoomCreated}, f.sink.types())
}

func TestJoinRoomPoolsStakes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 6)

	for i := 1; i <= 6; i++ {
		p := f.player(testFee)
		got, err := f.m.JoinRoom(ctx, r.ID, p, signer{p})
		require.NoError(t, err)
		assert.Equal(t, uint8(i), got.Occupancy)
		assert.Equal(t, uint64(i)*testFee, got.Pool)
		assert.Equal(t, p, got.Players[i-1])
		assert.Zero(t, f.ledger.Balance(p))
		if i < 6 {
			assert.Equal(t, models.StatusWaiting, got.Status)
		} else {
			assert.Equal(t, models.StatusActive, got.Status, "last seat starts the room in the same join")
		}
		f.assertConserved(t, r.ID)
	}
}

func TestJoinRoomFullStartsInSameStep(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, testFee, 2)
	f.fillRoom(t, r.ID, 1)

	stored, err := f.m.GetRoom(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, stored.Status)

	f.fillRoom(t, r.ID, 1)
	stored, err = f.m.GetRoom(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Equal(t, uint8(2), stored.Occupancy)

	types := f.sink.types()
	assert.Equal(t, models.EventRoomStarted, types[len(types)-1])
	assert.Equal(t, models.EventPlayerJoined, types[len(types)-2])
}

func TestJoinRoomRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 2)
	players := f.fillRoom(t, r.ID, 1)

	stranger := f.player(testFee)
	_, err := f.m.JoinRoom(ctx, r.ID, stranger, signer{uuid.New()})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.m.JoinRoom(ctx, r.ID, stranger, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.m.JoinRoom(ctx, r.ID, players[0], signer{players[0]})
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = f.m.JoinRoom(ctx, uuid.New(), stranger, signer{stranger})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	f.fillRoom(t, r.ID, 1)
	late := f.player(testFee)
	_, err = f.m.JoinRoom(ctx, r.ID, late, signer{late})
	assert.ErrorIs(t, err, ErrRoomNotWaiting, "a full room has already started")
	assert.Equal(t, uint64(testFee), f.ledger.Balance(late), "rejected join must not charge")
	f.assertConserved(t, r.ID)
}

func TestJoinRoomNotWaiting(t *testing.T) {
	ctx := context.Background()
	for name, finish := range map[string]func(t *testing.T, f *fixture, r models.Room, players []uuid.UUID){
		"active": func(*testing.T, *fixture, models.Room, []uuid.UUID) {},
		"finished": func(t *testing.T, f *fixture, r models.Room, players []uuid.UUID) {
			_, err := f.m.SettleRoom(ctx, r.ID, signer{f.authority}, winners(players[0], players[1]))
			require.NoError(t, err)
		},
		"cancelled": func(t *testing.T, f *fixture, r models.Room, _ []uuid.UUID) {
			_, err := f.m.CancelRoom(ctx, r.ID, signer{f.authority})
			require.NoError(t, err)
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			r := f.createRoom(t, testFee, 2)
			players := f.fillRoom(t, r.ID, 2)
			finish(t, f, r, players)

			p := f.player(testFee)
			_, err := f.m.JoinRoom(ctx, r.ID, p, signer{p})
			assert.ErrorIs(t, err, ErrRoomNotWaiting)
			assert.Equal(t, CodeRoomNotWaiting, CodeOf(err))
			assert.Equal(t, uint64(testFee), f.ledger.Balance(p))
		})
	}
}

func TestJoinRoomFullWhileWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 1)

	// A waiting room at capacity only exists if something else wrote the record.
	p := f.player(testFee)
	require.NoError(t, f.ledger.Transfer(ctx, p, r.Escrow, testFee))
	stuck := r.Clone()
	stuck.Players = []uuid.UUID{p}
	stuck.Occupancy = 1
	stuck.Pool = testFee
	require.NoError(t, f.store.Put(ctx, stuck))

	late := f.player(testFee)
	_, err := f.m.JoinRoom(ctx, r.ID, late, signer{late})
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRoomTransferFailureLeavesRoomUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 3)

	poor := f.player(testFee - 1)
	_, err := f.m.JoinRoom(ctx, r.ID, poor, signer{poor})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, CodeInsufficientFunds, CodeOf(err))

	frozen := f.player(testFee)
	f.ledger.Freeze(frozen, true)
	_, err = f.m.JoinRoom(ctx, r.ID, frozen, signer{frozen})
	assert.ErrorIs(t, err, ErrTransferRejected)

	got, err := f.m.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Occupancy)
	assert.Zero(t, got.Pool)
	assert.Empty(t, got.Players)
	f.assertConserved(t, r.ID)
}

func TestConsumeResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 2)
	players := f.fillRoom(t, r.ID, 2)
	before := f.ledger.Balance(players[0])

	got, err := f.m.ConsumeResource(ctx, r.ID, players[0], FreezeRay, signer{players[0]})
	require.NoError(t, err)
	assert.Equal(t, before-1_000_000, f.ledger.Balance(players[0]))
	assert.Equal(t, uint64(1_000_000), f.ledger.Balance(f.burn))
	assert.Equal(t, uint64(2*testFee), got.Pool, "burns never touch the pool")
	assert.Equal(t, models.StatusActive, got.Status)
	f.assertConserved(t, r.ID)

	_, err = f.m.ConsumeResource(ctx, r.ID, players[0], "nuke", signer{players[0]})
	assert.ErrorIs(t, err, ErrUnknownResource)

	outsider := f.player(testFee)
	_, err = f.m.ConsumeResource(ctx, r.ID, outsider, FreezeRay, signer{outsider})
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)

	_, err = f.m.ConsumeResource(ctx, r.ID, players[1], FreezeRay, signer{players[0]})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConsumeResourceRequiresActiveRoom(t *testing.T) {
	f := newFixture(t)
	r := f.createRoom(t, testFee, 6)
	players := f.fillRoom(t, r.ID, 4)

	for _, p := range players {
		_, err := f.m.ConsumeResource(context.Background(), r.ID, p, FreezeRay, signer{p})
		assert.ErrorIs(t, err, ErrRoomNotActive)
	}
	assert.Zero(t, f.ledger.Balance(f.burn))
}

func TestConsumeResourceInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoom(t, testFee, 1)
	p := f.player(testFee) // everything goes into the stake
	_, err := f.m.JoinRoom(ctx, r.ID, p, signer{p})
	require.NoError(t, err)

	_, err = f.m.ConsumeResource(ctx, r.ID, p, FreezeRay, signer{p})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	f.assertConserved(t, r.ID)
}

func TestEventPublishFailureDoesNotFailTransition(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m, err := NewMachine(Config{
		Store:       store.NewMemory(),
		Ledger:      ledger.NewMemory(),
		Events:      failingSink{},
		Treasury:    uuid.New(),
		BurnAccount: uuid.New(),
		Logger:      logger,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)

	r, err := m.CreateRoom(context.Background(), CreateParams{EntryFee: 5, Capacity: 2, Authority: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, testNow.UTC(), r.CreatedAt)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "publish failures are logged")
}

type failingSink struct{}

func (failingSink) Publish(context.Context, models.RoomEvent) error {
	return assert.AnError
}
