package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/jason-s-yu/takedown/internal/ledger"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/jason-s-yu/takedown/internal/room"
	"github.com/jason-s-yu/takedown/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRoomMessage(t *testing.T, ctx context.Context, c *websocket.Conn) roomMessage {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg roomMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestRoomWSStreamsTransitions(t *testing.T) {
	ts := newTestServer(t)
	_, authTok := ts.user(t, 0)
	_, tok1 := ts.user(t, 1000)
	created := decodeRoom(t, ts.do(t, http.MethodPost, "/room/create", authTok, map[string]interface{}{"entryFee": 100, "capacity": 1}))

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/room/ws/" + created.ID.String()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{roomSubprotocol},
		HTTPHeader:   http.Header{"Cookie": {"auth_token=" + tok1}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	snap := readRoomMessage(t, ctx, c)
	assert.Equal(t, "room_snapshot", snap.Type)
	require.NotNil(t, snap.Room)
	assert.Equal(t, models.StatusWaiting, snap.Room.Status)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/room/join", tok1, map[string]interface{}{"roomId": created.ID}).Code)

	joined := readRoomMessage(t, ctx, c)
	assert.Equal(t, string(models.EventPlayerJoined), joined.Type)
	started := readRoomMessage(t, ctx, c)
	assert.Equal(t, string(models.EventRoomStarted), started.Type)
	require.NotNil(t, started.Room)
	assert.Equal(t, models.StatusActive, started.Room.Status)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readRoomMessage(t, ctx, c).Type)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"settle"}`)))
	assert.Equal(t, "error", readRoomMessage(t, ctx, c).Type)

	c.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool { return ts.srv.Hub.Subscribers(created.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoomWSRejectsBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t)
	_, tok := ts.user(t, 0)

	w := ts.do(t, http.MethodGet, "/room/ws/not-a-uuid", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/room/ws/0191d3f6-5a1e-7c3a-8f00-000000000001", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/room/ws/0191d3f6-5a1e-7c3a-8f00-000000000001", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// peekingStore runs onGet before every read.
type peekingStore struct {
	*store.Memory
	onGet func(id uuid.UUID)
}

func (s peekingStore) Get(ctx context.Context, id uuid.UUID) (models.Room, error) {
	s.onGet(id)
	return s.Memory.Get(ctx, id)
}

func TestRoomWSSubscribesBeforeSnapshot(t *testing.T) {
	require.NoError(t, auth.Init(0))
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)
	var mu sync.Mutex
	var seen []int
	rooms := peekingStore{Memory: store.NewMemory(), onGet: func(id uuid.UUID) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, hub.Subscribers(id))
	}}
	m, err := room.NewMachine(room.Config{
		Store:       rooms,
		Ledger:      ledger.NewMemory(),
		Treasury:    uuid.New(),
		BurnAccount: uuid.New(),
		Logger:      logger,
	})
	require.NoError(t, err)
	srv := NewRoomServer(m, hub, nil, logger)
	mux := http.NewServeMux()
	srv.Register(mux, nil)

	created, err := m.CreateRoom(context.Background(), room.CreateParams{EntryFee: 10, Capacity: 2, Authority: uuid.New()})
	require.NoError(t, err)
	tok, err := auth.CreateJWT(uuid.New())
	require.NoError(t, err)

	hs := httptest.NewServer(mux)
	defer hs.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/room/ws/" + created.ID.String()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{roomSubprotocol},
		HTTPHeader:   http.Header{"Cookie": {"auth_token=" + tok}},
	})
	require.NoError(t, err)
	assert.Equal(t, "room_snapshot", readRoomMessage(t, ctx, c).Type)
	c.Close(websocket.StatusNormalClosure, "")

	mu.Lock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 1, seen[len(seen)-1], "snapshot read while already subscribed")
	mu.Unlock()

	// a failed snapshot leaves no subscriber behind
	missing := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/room/ws/"+missing.String(), nil)
	req.Header.Set("Cookie", "auth_token="+tok)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, hub.Subscribers(missing))
}
