// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/auth"
	"github.com/sirupsen/logrus"
)

// Backends accepted by TAKEDOWN_STORE and TAKEDOWN_LEDGER.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Config is shared by the server and the reconciler.
type Config struct {
	Port        int    `env:"TAKEDOWN_PORT" envDefault:"8080"`
	Store       string `env:"TAKEDOWN_STORE" envDefault:"memory"`
	Ledger      string `env:"TAKEDOWN_LEDGER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"takedown.db"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	EventsQueue string `env:"ROOM_EVENTS_QUEUE" envDefault:"takedown_room_events"`

	// Unset accounts fall back to fixed name-based ids so dev setups agree.
	Treasury    uuid.UUID `env:"TREASURY_ACCOUNT"`
	BurnAccount uuid.UUID `env:"BURN_ACCOUNT"`

	TokenExpireTime   string `env:"TOKEN_EXPIRE_TIME"`
	AuthPrivateKey    string `env:"AUTH_PRIVATE_KEY_PATH"`
	AuthPublicKey     string `env:"AUTH_PUBLIC_KEY_PATH"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	ReconcilerBatch   int    `env:"RECONCILER_BATCH_SIZE" envDefault:"20"`
	ReconcilerFlushMs int    `env:"RECONCILER_FLUSH_MS" envDefault:"500"`

	// Dev accounts let anyone mint a session and fund it. Always on for the
	// memory ledger, which has no other way to hold value.
	DevAccounts bool   `env:"TAKEDOWN_DEV_ACCOUNTS" envDefault:"false"`
	DevFunding  uint64 `env:"TAKEDOWN_DEV_FUNDING" envDefault:"100000000"`
}

// DefaultTreasury and DefaultBurn are used when the accounts are not configured.
var (
	DefaultTreasury = uuid.NewSHA1(uuid.NameSpaceOID, []byte("takedown/treasury"))
	DefaultBurn     = uuid.NewSHA1(uuid.NameSpaceOID, []byte("takedown/burn"))
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Treasury == uuid.Nil {
		cfg.Treasury = DefaultTreasury
	}
	if cfg.BurnAccount == uuid.Nil {
		cfg.BurnAccount = DefaultBurn
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and missing connection settings.
func (c Config) Validate() error {
	switch c.Store {
	case BackendMemory, BackendRedis, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TAKEDOWN_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown TAKEDOWN_STORE %q", c.Store)
	}
	switch c.Ledger {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TAKEDOWN_LEDGER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown TAKEDOWN_LEDGER %q", c.Ledger)
	}
	if c.Treasury == c.BurnAccount {
		return fmt.Errorf("treasury and burn accounts must differ")
	}
	if (c.AuthPrivateKey == "") != (c.AuthPublicKey == "") {
		return fmt.Errorf("AUTH_PRIVATE_KEY_PATH and AUTH_PUBLIC_KEY_PATH must be set together")
	}
	if c.ReconcilerBatch <= 0 || c.ReconcilerFlushMs <= 0 {
		return fmt.Errorf("reconciler batch size and flush interval must be positive")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// TokenTTL is the session token lifetime; 0 means tokens never expire.
func (c Config) TokenTTL() (time.Duration, error) {
	return auth.ParseTokenExpireTime(c.TokenExpireTime)
}

// Level is the parsed LOG_LEVEL.
func (c Config) Level() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// FlushInterval is RECONCILER_FLUSH_MS as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.ReconcilerFlushMs) * time.Millisecond
}

// DevAccountsEnabled reports whether the guest session and funding routes are mounted.
func (c Config) DevAccountsEnabled() bool {
	return c.DevAccounts || c.Ledger == BackendMemory
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
