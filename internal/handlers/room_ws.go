// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/jason-s-yu/takedown/internal/middleware"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/room"
	"github.com/sirupsen/logrus"
)

const roomSubprotocol = "room"

// roomMessage is what subscribers receive: the snapshot on connect, then one
// message per committed transition.
type roomMessage struct {
	Type    string                 `json:"type"`
	Room    *models.Room           `json:"room,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// RoomWSHandler streams room snapshots over a WebSocket at /room/ws/{room_id}.
// Clients may send {"type":"ping"}; everything else is rejected.
func RoomWSHandler(s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomIDStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if roomIDStr == "" {
			http.Error(w, "Missing room_id in path (/room/ws/{room_id})", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			http.Error(w, "Invalid room_id format", http.StatusBadRequest)
			return
		}
		userID, err := auth.AuthenticateJWT(extractCookieToken(r.Header.Get("Cookie"), authCookie))
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		// Subscribe before reading the snapshot so no transition falls in
		// between. An event may repeat what the snapshot already shows.
		events, unsubscribe := s.Hub.Subscribe(roomID)
		defer unsubscribe()

		snapshot, err := s.Get(r.Context(), roomID)
		if err != nil {
			writeError(w, err)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{roomSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.WithField("room", roomID).WithError(err).Warn("websocket accept failed")
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != roomSubprotocol {
			c.Close(BadSubprotocolError, "Client must use the 'room' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
		log := s.Logger.WithFields(logrus.Fields{"room": roomID, "user": userID})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sendWsMessage(ctx, c, log, roomMessage{Type: "room_snapshot", Room: &snapshot})

		readErr := make(chan error, 1)
		go func() {
			readErr <- readRoomMessages(ctx, c, log)
			cancel()
		}()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				rm := ev.Room
				sendWsMessage(ctx, c, log, roomMessage{Type: string(ev.Type), Room: &rm, Payload: ev.Payload})
			case <-ctx.Done():
				err := <-readErr
				middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

// readRoomMessages answers pings until the connection closes. It returns nil
// on a normal closure.
func readRoomMessages(ctx context.Context, c *websocket.Conn, log logrus.FieldLogger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}
		var msg roomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(ctx, c, log, "Invalid JSON format.")
			continue
		}
		switch msg.Type {
		case "ping":
			sendWsMessage(ctx, c, log, roomMessage{Type: "pong"})
		default:
			sendWsError(ctx, c, log, "Room actions go through the HTTP API; this stream is read-only.")
		}
	}
}

// sendWsMessage marshals a message and writes it with a timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, log logrus.FieldLogger, msg roomMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("failed to marshal websocket message")
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
		log.WithError(err).Debug("websocket write failed")
	}
}

func sendWsError(ctx context.Context, c *websocket.Conn, log logrus.FieldLogger, text string) {
	sendWsMessage(ctx, c, log, roomMessage{Type: "error", Message: text})
}

// compile-time check that the hub can sit behind the machine.
var _ room.EventSink = (*Hub)(nil)
