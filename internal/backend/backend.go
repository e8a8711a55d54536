// Package backend opens the room store, the ledger and their connections
// from a config.Config.
package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/takedown/internal/cache"
	"github.com/jason-s-yu/takedown/internal/config"
	"github.com/jason-s-yu/takedown/internal/database"
	"github.com/jason-s-yu/takedown/internal/ledger"
	"github.com/jason-s-yu/takedown/internal/room"
	"github.com/jason-s-yu/takedown/internal/store"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Ledger is what the room machine and the account routes need from a value ledger.
type Ledger interface {
	room.Transferer
	room.Resolver
	ledger.Accounts
}

// Backends holds the opened collaborators. Pool and Redis are nil unless
// some component needed them.
type Backends struct {
	Store  store.RoomStore
	Ledger Ledger
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	closers []func()
}

// Open connects what cfg selects. withRedis forces a Redis connection even
// when the store does not use it (event queue, room locks).
func Open(ctx context.Context, cfg config.Config, withRedis bool) (*Backends, error) {
	b := &Backends{}
	if cfg.Store == config.BackendPostgres || cfg.Ledger == config.BackendPostgres {
		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.Pool = pool
		b.closers = append(b.closers, pool.Close)
		if err := database.Migrate(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.Store == config.BackendRedis || withRedis {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
		b.closers = append(b.closers, func() { rdb.Close() })
	}

	switch cfg.Store {
	case config.BackendMemory:
		b.Store = store.NewMemory()
	case config.BackendPostgres:
		b.Store = store.NewPostgres(b.Pool)
	case config.BackendRedis:
		b.Store = store.NewRedis(b.Redis, "")
	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Store = s
		b.closers = append(b.closers, func() { s.Close() })
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	switch cfg.Ledger {
	case config.BackendMemory:
		b.Ledger = ledger.NewMemory()
	case config.BackendPostgres:
		b.Ledger = ledger.NewPostgres(b.Pool)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger)
	}

	log.WithFields(log.Fields{"store": cfg.Store, "ledger": cfg.Ledger, "redis": b.Redis != nil}).Info("backends ready")
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
