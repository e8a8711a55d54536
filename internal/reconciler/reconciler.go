// Package reconciler drains the room event queue: it archives every event in
// batches and retries deferred payouts until they are paid.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/room"
	"github.com/sirupsen/logrus"
)

// Source yields queued events. ok is false when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (ev models.RoomEvent, ok bool, err error)
}

// Archive persists a batch of events atomically.
type Archive interface {
	Archive(ctx context.Context, events []models.RoomEvent) error
}

// Payer pays deferred prizes for a room.
type Payer interface {
	ReconcilePayouts(ctx context.Context, roomID uuid.UUID) (models.Room, error)
}

// Locker serializes work on one room with the server process.
type Locker interface {
	Lock(ctx context.Context, roomID uuid.UUID) (func(), error)
}

// Lister finds rooms that still owe deferred prizes.
type Lister interface {
	ListDeferred(ctx context.Context) ([]uuid.UUID, error)
}

// Options tune batching and retries. Zero values get defaults.
type Options struct {
	BatchSize     int
	FlushDelay    time.Duration
	RetryInterval time.Duration
	PopTimeout    time.Duration
}

// Service encapsulates the queue, archive and payout retry logic.
type Service struct {
	source Source
	events Archive
	payer  Payer
	locks  Locker
	opts   Options
	log    logrus.FieldLogger

	batchMu sync.Mutex
	batch   []models.RoomEvent

	pendingMu sync.Mutex
	pending   map[uuid.UUID]struct{} // rooms with deferred payouts
}

// New builds a Service. locks may be nil when nothing else mutates rooms.
func New(source Source, archive Archive, payer Payer, locks Locker, opts Options, logger logrus.FieldLogger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source:  source,
		events:  archive,
		payer:   payer,
		locks:   locks,
		opts:    opts,
		log:     logger,
		batch:   make([]models.RoomEvent, 0, opts.BatchSize),
		pending: make(map[uuid.UUID]struct{}),
	}
}

// Run starts the read and retry loops and blocks until ctx ends, then
// flushes what is left.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.retryLoop(ctx)
	}()

	s.log.Info("takedown-reconciler started")
	wg.Wait()
	s.Flush(context.Background())
	s.log.Info("takedown-reconciler shut down")
}

// Seed marks every room the store still owes prizes for as pending, so
// payouts deferred before a restart are retried without a new event.
func (s *Service) Seed(ctx context.Context, rooms Lister) error {
	ids, err := rooms.ListDeferred(ctx)
	if err != nil {
		return err
	}
	s.pendingMu.Lock()
	for _, id := range ids {
		s.pending[id] = struct{}{}
	}
	s.pendingMu.Unlock()
	s.log.WithField("rooms", len(ids)).Info("seeded deferred payout retries")
	return nil
}

// readLoop continuously pops events, accumulating them into the batch.
func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			ev, ok, err := s.source.Pop(ctx, s.opts.PopTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Error("pop room event")
				continue
			}
			if !ok {
				continue
			}
			s.Handle(ctx, ev)
		}
	}
}

// Handle queues ev for archiving and, for deferred payouts, tries to pay at once.
func (s *Service) Handle(ctx context.Context, ev models.RoomEvent) {
	s.appendToBatch(ctx, ev)
	if ev.Type == models.EventPayoutDeferred {
		s.pendingMu.Lock()
		s.pending[ev.RoomID] = struct{}{}
		s.pendingMu.Unlock()
		s.reconcile(ctx, ev.RoomID)
	}
}

func (s *Service) appendToBatch(ctx context.Context, ev models.RoomEvent) {
	s.batchMu.Lock()
	s.batch = append(s.batch, ev)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()
	if full {
		s.Flush(ctx)
	}
}

// Flush archives the current batch in a single transaction. On failure the
// events stay queued for the next flush.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]models.RoomEvent, len(s.batch))
	copy(batchCopy, s.batch)

	if err := s.events.Archive(ctx, batchCopy); err != nil {
		s.log.WithError(err).WithField("events", len(batchCopy)).Error("flush room events")
		return
	}
	s.batch = s.batch[:0]
	s.log.WithField("events", len(batchCopy)).Debug("flushed room events")
}

// retryLoop retries every room that still has deferred payouts, once at
// start and then on each tick.
func (s *Service) retryLoop(ctx context.Context) {
	s.RetryPending(ctx)
	ticker := time.NewTicker(s.opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RetryPending(ctx)
		}
	}
}

// RetryPending attempts every pending room once.
func (s *Service) RetryPending(ctx context.Context) {
	for _, id := range s.Pending() {
		s.reconcile(ctx, id)
	}
}

// Pending lists the rooms still waiting on a payout destination.
func (s *Service) Pending() []uuid.UUID {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) reconcile(ctx context.Context, roomID uuid.UUID) {
	log := s.log.WithField("room", roomID)
	if s.locks != nil {
		unlock, err := s.locks.Lock(ctx, roomID)
		if err != nil {
			log.WithError(err).Warn("could not lock room for reconciliation")
			return
		}
		defer unlock()
	}

	r, err := s.payer.ReconcilePayouts(ctx, roomID)
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomNotFinished):
		log.WithError(err).Error("dropping room from payout retries")
		s.forget(roomID)
		return
	case err != nil:
		log.WithError(err).Warn("reconcile payouts")
		return
	case r.Deferred() > 0:
		log.WithField("deferred", r.Deferred()).Debug("payouts still deferred")
		return
	}
	s.forget(roomID)
	log.Info("all deferred payouts settled")
}

func (s *Service) forget(roomID uuid.UUID) {
	s.pendingMu.Lock()
	delete(s.pending, roomID)
	s.pendingMu.Unlock()
}
