package models

import "github.com/google/uuid"

// RoomEventType names a committed transition.
type RoomEventType string

const (
	EventRoomCreated      RoomEventType = "room_created"
	EventPlayerJoined     RoomEventType = "player_joined"
	EventRoomStarted      RoomEventType = "room_started"
	EventResourceConsumed RoomEventType = "resource_consumed"
	EventRoomSettled      RoomEventType = "room_settled"
	EventPayoutDeferred   RoomEventType = "payout_deferred"
	EventPayoutReconciled RoomEventType = "payout_reconciled"
	EventRoomCancelled    RoomEventType = "room_cancelled"
)

// RoomEvent is emitted after a transition commits. Room holds the snapshot at commit time.
type RoomEvent struct {
	Type      RoomEventType          `json:"type"`
	RoomID    uuid.UUID              `json:"room_id"`
	ActorID   uuid.UUID              `json:"actor_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Room      Room                   `json:"room"`
	Timestamp int64                  `json:"timestamp"` // epoch millis
}
