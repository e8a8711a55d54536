package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes work on one room. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, roomID uuid.UUID) (func(), error)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker with one mutex per room id. Entries are
// dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[roomID]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.locks[roomID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				k.release(roomID, e)
			})
		}, nil
	case <-ctx.Done():
		k.release(roomID, e)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(roomID uuid.UUID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, roomID)
	}
}

// size is the number of live entries.
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// ChainLocker takes each lock in order and releases them in reverse.
type ChainLocker []Locker

func (c ChainLocker) Lock(ctx context.Context, roomID uuid.UUID) (func(), error) {
	held := make([]func(), 0, len(c))
	unlockAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, l := range c {
		unlock, err := l.Lock(ctx, roomID)
		if err != nil {
			unlockAll()
			return nil, err
		}
		held = append(held, unlock)
	}
	return unlockAll, nil
}
