// cmd/reconciler is an asynchronous worker that pops room events from a Redis
// queue, archives them to PostgreSQL and retries deferred payouts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/takedown/internal/backend"
	"github.com/jason-s-yu/takedown/internal/cache"
	"github.com/jason-s-yu/takedown/internal/config"
	"github.com/jason-s-yu/takedown/internal/database"
	"github.com/jason-s-yu/takedown/internal/reconciler"
	"github.com/jason-s-yu/takedown/internal/room"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	lvl, _ := cfg.Level()
	logger.SetLevel(lvl)

	if cfg.Store == config.BackendMemory || cfg.Ledger != config.BackendPostgres {
		logger.Fatal("the reconciler needs a shared store and TAKEDOWN_LEDGER=postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := backend.Open(ctx, cfg, true)
	if err != nil {
		logger.Fatalf("backends: %v", err)
	}
	defer b.Close()

	// Reconciled payouts are archived by our own next pop.
	queue := cache.NewEventQueue(b.Redis, cfg.EventsQueue)
	machine, err := room.NewMachine(room.Config{
		Store:       b.Store,
		Ledger:      b.Ledger,
		Resolver:    b.Ledger,
		Events:      queue,
		Treasury:    cfg.Treasury,
		BurnAccount: cfg.BurnAccount,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("room machine: %v", err)
	}

	svc := reconciler.New(
		queue,
		database.NewEventArchive(b.Pool),
		machine,
		cache.NewRoomLocker(b.Redis, 30*time.Second),
		reconciler.Options{BatchSize: cfg.ReconcilerBatch, FlushDelay: cfg.FlushInterval()},
		logger,
	)
	if err := svc.Seed(ctx, b.Store); err != nil {
		logger.WithError(err).Error("could not load rooms with deferred payouts")
	}
	svc.Run(ctx)
	logger.Info("reconciler shutdown complete")
}
