// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list (queue) name for room events.
const DefaultQueueName = "takedown_room_events"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// EventQueue pushes room events onto a Redis list for the reconciler.
type EventQueue struct {
	rdb  *redis.Client
	name string
}

// NewEventQueue uses DefaultQueueName when name is empty.
func NewEventQueue(rdb *redis.Client, name string) *EventQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &EventQueue{rdb: rdb, name: name}
}

// Name is the list key.
func (q *EventQueue) Name() string { return q.name }

// Publish serializes the event to JSON, then pushes it to the tail of the queue.
func (q *EventQueue) Publish(ctx context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next event. ok is false on timeout.
func (q *EventQueue) Pop(ctx context.Context, timeout time.Duration) (ev models.RoomEvent, ok bool, err error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return models.RoomEvent{}, false, nil
	}
	if err != nil {
		return models.RoomEvent{}, false, fmt.Errorf("BLPop %s: %w", q.name, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return models.RoomEvent{}, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return models.RoomEvent{}, false, fmt.Errorf("invalid room event: %w", err)
	}
	return ev, true, nil
}

// ErrLockHeld is returned when another process holds the room lock.
var ErrLockHeld = errors.New("room lock held elsewhere")

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only if the lock still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RoomLocker is a per-room lock shared by every process that talks to the
// same Redis, so the server and the reconciler never run transitions on one
// room at the same time. A held lock is extended every ttl/3 until released.
type RoomLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	retry  time.Duration
	Logger logrus.FieldLogger
}

func NewRoomLocker(rdb *redis.Client, ttl time.Duration) *RoomLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RoomLocker{rdb: rdb, ttl: ttl, retry: 25 * time.Millisecond, Logger: logrus.StandardLogger()}
}

func lockKey(roomID uuid.UUID) string {
	return "takedown:lock:room:" + roomID.String()
}

// TryLock takes the lock once, or returns ErrLockHeld.
func (l *RoomLocker) TryLock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	token := uuid.NewString()
	key := lockKey(roomID)
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock room %s: %w", roomID, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	log := l.Logger.WithField("room", roomID)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(key, token, stop, log)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int()
			switch {
			case err != nil:
				log.WithError(err).Error("failed to release room lock")
			case n == 0:
				log.Warn("room lock expired before release")
			}
		})
	}, nil
}

// keepAlive extends the lock until stop closes or the lock is lost.
func (l *RoomLocker) keepAlive(key, token string, stop <-chan struct{}, log logrus.FieldLogger) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.WithError(err).Warn("failed to extend room lock")
				continue
			}
			if n == 0 {
				log.Error("room lock lost while held")
				return
			}
		}
	}
}

// Lock retries TryLock until it succeeds or ctx ends.
func (l *RoomLocker) Lock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	for {
		unlock, err := l.TryLock(ctx, roomID)
		if !errors.Is(err, ErrLockHeld) {
			return unlock, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock room %s: %w", roomID, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}
