// Package app wires configuration into a running quiz engine: it loads the
// question bank, opens the configured learner store and owns their lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
	"github.com/p-n-ai/quizbot/internal/platform/cache"
	"github.com/p-n-ai/quizbot/internal/platform/config"
	"github.com/p-n-ai/quizbot/internal/platform/database"
	"github.com/p-n-ai/quizbot/internal/quiz"
)

// App holds the long-lived components of the process.
type App struct {
	Bank   *bank.Bank
	Store  learner.Store
	Engine *quiz.Engine

	events      quiz.EventLogger
	readOnly    bool
	snapshotter *learner.Snapshotter
	closers     []func() error
}

// Option adjusts how Open prepares the store.
type Option func(*App)

// ReadOnly opens the store for inspection only. The memory driver restores
// its snapshot but never writes it back, the sqlite driver requires an
// existing file and opens it read-only, and postgres migrations are skipped.
func ReadOnly() Option {
	return func(a *App) { a.readOnly = true }
}

// Open loads the bank at cfg.BankPath and opens the store named by
// cfg.Store.Driver. The caller must Close the returned App.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	b, err := bank.Load(cfg.BankPath)
	if err != nil {
		return nil, fmt.Errorf("loading question bank: %w", err)
	}

	a := &App{Bank: b}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.events == nil {
		a.events = quiz.NewSlogEventLogger(nil)
	}

	a.Engine, err = quiz.NewEngine(quiz.EngineConfig{Bank: b, Store: a.Store, Events: a.events})
	if err != nil {
		a.Close()
		return nil, err
	}

	slog.Info("quiz engine ready",
		"driver", cfg.Store.Driver,
		"topics", len(b.Topics()),
		"read_only", a.readOnly,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		mem := learner.NewMemoryStore()
		if cfg.Snapshot.Path != "" {
			if err := mem.LoadSnapshot(cfg.Snapshot.Path); err != nil {
				return fmt.Errorf("restoring snapshot: %w", err)
			}
		}
		if cfg.Snapshot.Path != "" && !a.readOnly {
			sn, err := learner.NewSnapshotter(mem, cfg.Snapshot.Path, cfg.Snapshot.Schedule)
			if err != nil {
				return err
			}
			a.snapshotter = sn
		}
		a.Store = mem

	case config.DriverSQLite:
		open := learner.OpenSQLite
		if a.readOnly {
			open = learner.OpenSQLiteReadOnly
		}
		s, err := open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("opening sqlite: %w", err)
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)

	case config.DriverPostgres:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		if cfg.Store.Migrate && !a.readOnly {
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
		}
		s, err := learner.NewPostgresStore(db.Pool)
		if err != nil {
			return err
		}
		a.Store = s
		a.events = quiz.NewPostgresEventLogger(db.Pool)

	case config.DriverRedis:
		c, err := cache.Open(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, c.Close)
		s, err := learner.NewRedisStore(c.Client, c.Prefix)
		if err != nil {
			return err
		}
		a.Store = s

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

// Start begins background work. Only the memory driver has any: periodic
// snapshot flushes.
func (a *App) Start() {
	if a.snapshotter != nil {
		a.snapshotter.Start()
	}
}

// HealthCheck reports whether the learner store is reachable.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.Store == nil {
		return fmt.Errorf("store not open")
	}
	return a.Store.HealthCheck(ctx)
}

// Close flushes a final snapshot for the memory driver and releases every
// connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	if a.snapshotter != nil {
		if err := a.snapshotter.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
		a.snapshotter = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
