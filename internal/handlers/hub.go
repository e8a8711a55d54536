package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/sirupsen/logrus"
)

// Hub fans committed room events out to WebSocket subscribers of that room.
// It implements room.EventSink.
type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[chan models.RoomEvent]struct{}
	buffer int
	logger logrus.FieldLogger
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[chan models.RoomEvent]struct{}),
		buffer: 16,
		logger: logger,
	}
}

// Subscribe returns a channel of events for roomID and a cancel func that
// closes it.
func (h *Hub) Subscribe(roomID uuid.UUID) (<-chan models.RoomEvent, func()) {
	ch := make(chan models.RoomEvent, h.buffer)
	h.mu.Lock()
	if h.subs[roomID] == nil {
		h.subs[roomID] = make(map[chan models.RoomEvent]struct{})
	}
	h.subs[roomID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[roomID], ch)
			if len(h.subs[roomID]) == 0 {
				delete(h.subs, roomID)
			}
			close(ch)
		})
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev models.RoomEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.RoomID] {
		select {
		case ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{"room": ev.RoomID, "event": ev.Type}).Warn("slow room subscriber, dropping event")
		}
	}
	return nil
}

// Subscribers counts the live subscriptions for a room.
func (h *Hub) Subscribers(roomID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[roomID])
}
