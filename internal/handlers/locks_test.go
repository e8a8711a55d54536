package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesOneRoom(t *testing.T) {
	k := NewKeyedMutex()
	id := uuid.New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), id)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, k.size(), "entries are dropped when idle")
}

func TestKeyedMutexRoomsAreIndependent(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, uuid.New())
	require.NoError(t, err)
	unlockB()
	unlockB() // idempotent
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := NewKeyedMutex()
	id := uuid.New()
	unlock, err := k.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, k.size())
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (l recordingLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	*l.log = append(*l.log, "lock "+l.name)
	return func() { *l.log = append(*l.log, "unlock "+l.name) }, nil
}

func TestChainLocker(t *testing.T) {
	var log []string
	c := ChainLocker{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log}}
	unlock, err := c.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	unlock()
	assert.Equal(t, []string{"lock a", "lock b", "unlock b", "unlock a"}, log)

	log = nil
	c = ChainLocker{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log, err: assert.AnError}}
	_, err = c.Lock(context.Background(), uuid.New())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"lock a", "unlock a"}, log)
}

func TestHubFanOut(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := NewHub(logger)
	h.buffer = 1
	roomA, roomB := uuid.New(), uuid.New()

	chA, cancelA := h.Subscribe(roomA)
	chB, cancelB := h.Subscribe(roomB)
	defer cancelB()
	assert.Equal(t, 1, h.Subscribers(roomA))

	require.NoError(t, h.Publish(context.Background(), models.RoomEvent{Type: models.EventPlayerJoined, RoomID: roomA}))
	ev := <-chA
	assert.Equal(t, models.EventPlayerJoined, ev.Type)
	select {
	case <-chB:
		t.Fatal("event leaked to another room")
	default:
	}

	// a full buffer drops instead of blocking
	require.NoError(t, h.Publish(context.Background(), models.RoomEvent{Type: models.EventRoomStarted, RoomID: roomA}))
	require.NoError(t, h.Publish(context.Background(), models.RoomEvent{Type: models.EventRoomSettled, RoomID: roomA}))
	assert.Equal(t, "slow room subscriber, dropping event", hook.LastEntry().Message)

	cancelA()
	cancelA()
	assert.Equal(t, 0, h.Subscribers(roomA))
	_, open := <-chA
	assert.True(t, open, "buffered event still readable")
	_, open = <-chA
	assert.False(t, open)
}
