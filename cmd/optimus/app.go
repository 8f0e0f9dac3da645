package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/whatbraddidnext/optimus/internal/config"
	"github.com/whatbraddidnext/optimus/internal/engine"
	"github.com/whatbraddidnext/optimus/internal/execution"
	"github.com/whatbraddidnext/optimus/internal/infrastructure/db"
	"github.com/whatbraddidnext/optimus/internal/ledger"
	"github.com/whatbraddidnext/optimus/internal/metrics"
	"github.com/whatbraddidnext/optimus/internal/statestore"
)

// app is everything a long-lived or one-shot command needs.
type app struct {
	config  *config.Config
	db      *db.Manager
	store   statestore.Store
	book    *ledger.Memory
	paper   *execution.Paper
	metrics *metrics.Registry
	engine  *engine.Engine
}

// newApp opens the database and state store, seeds the ledger and
// restores the engine. seed, when non-empty, replaces stored positions.
func newApp(ctx context.Context, cfg *config.Config, seed []ledger.Position) (*app, error) {
	rt := &app{config: cfg, paper: execution.NewPaper(), metrics: metrics.NewRegistry(nil)}

	var err error
	if rt.db, err = db.NewManager(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if rt.store, err = statestore.Open(ctx, cfg.State); err != nil {
		rt.db.Close()
		return nil, fmt.Errorf("state store: %w", err)
	}

	if len(seed) == 0 {
		stored, found, err := rt.store.LoadPositions(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("load positions: %w", err)
		}
		if found {
			seed = stored
		}
	}
	rt.book = ledger.NewMemory(seed...)

	gateway := execution.NewGuarded(rt.paper, cfg.Engine.Execution)
	rt.engine, err = engine.New(cfg.Engine, rt.book, gateway,
		engine.WithMetrics(rt.metrics),
		engine.WithAuditor(engine.NewRepositoryAuditor(rt.db.Repository())),
		engine.WithStore(rt.store),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.engine.Restore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	log.Info().
		Bool("database", rt.db.IsEnabled()).
		Str("state_backend", cfg.State.Backend).
		Int("open_positions", rt.book.OpenCount()).
		Msg("Runtime ready")
	return rt, nil
}

// Close releases the store and the database.
func (rt *app) Close() error {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	return errors.Join(errs...)
}
