// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/jason-s-yu/takedown/internal/backend"
	"github.com/jason-s-yu/takedown/internal/cache"
	"github.com/jason-s-yu/takedown/internal/config"
	"github.com/jason-s-yu/takedown/internal/handlers"
	"github.com/jason-s-yu/takedown/internal/middleware"
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
	logrus.SetLevel(lvl)

	ttl, _ := cfg.TokenTTL()
	if cfg.AuthPrivateKey != "" {
		err = auth.InitFromPath(cfg.AuthPrivateKey, cfg.AuthPublicKey, ttl)
	} else {
		logger.Warn("no auth key files configured, generating an ephemeral key pair")
		err = auth.Init(ttl)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared stores imply several processes, so they also get the event queue
	// and Redis room locks. Local stores lock in-process only.
	withRedis := cfg.Store == config.BackendPostgres || cfg.Store == config.BackendRedis
	b, err := backend.Open(ctx, cfg, withRedis)
	if err != nil {
		logger.Fatalf("backends: %v", err)
	}
	defer b.Close()

	hub := handlers.NewHub(logger)
	sinks := room.MultiSink{hub}
	var locks handlers.Locker = handlers.NewKeyedMutex()
	if b.Redis != nil {
		sinks = append(sinks, cache.NewEventQueue(b.Redis, cfg.EventsQueue))
		locks = handlers.ChainLocker{locks, cache.NewRoomLocker(b.Redis, 30*time.Second)}
	}

	machine, err := room.NewMachine(room.Config{
		Store:       b.Store,
		Ledger:      b.Ledger,
		Resolver:    b.Ledger,
		Events:      sinks,
		Treasury:    cfg.Treasury,
		BurnAccount: cfg.BurnAccount,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("room machine: %v", err)
	}
	srv := handlers.NewRoomServer(machine, hub, locks, logger)

	mux := http.NewServeMux()
	logMW := middleware.LogMiddleware(logger)
	srv.Register(mux, logMW)
	accounts := handlers.NewAccountServer(b.Ledger, cfg.DevAccountsEnabled(), cfg.DevFunding, logger)
	accounts.Register(mux, logMW)
	if accounts.Dev {
		logger.Warn("dev account routes enabled: anyone can mint sessions and fund accounts")
	}

	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Running on %s", cfg.Addr())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}
