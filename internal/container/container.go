// Package container wires configuration, storage and services for the
// isoquant binaries.
package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"isoquant/adapters/badger"
	"isoquant/adapters/postgres"
	"isoquant/adapters/rng"
	"isoquant/app"
	"isoquant/internal"
	"isoquant/internal/config"
	"isoquant/internal/metrics"
	"isoquant/ports"
)

var logger = internal.DefaultLogger.WithComponent("container")

// Container holds long-lived dependencies
type Container struct {
	Config *config.Config

	// At most one of DB and Store is open.
	DB    *sqlx.DB
	Store *badger.RunStore
	Runs  ports.RunRepository

	Recorder   *metrics.Recorder
	RNG        ports.RNGPort
	Evaluation *app.EvaluationService
}

// New builds the container. DATABASE_URL selects PostgreSQL, otherwise
// BADGER_DIR selects the embedded store; with neither, runs are not stored.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := &Container{
		Config:     cfg,
		Recorder:   metrics.Default,
		RNG:        rng.NewStreams(),
		Evaluation: app.NewEvaluationService(),
	}
	if err := c.initRunStore(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRunStore(ctx context.Context) error {
	switch {
	case c.Config.Database.URL != "":
		db, err := postgres.Connect(ctx, c.Config.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres run repository: %w", err)
		}
		c.DB = db
		c.Runs = postgres.NewRunRepository(db)
		logger.Info("storing runs in postgres")

	case c.Config.Storage.BadgerDir != "":
		store, err := badger.Open(badger.Config{Path: c.Config.Storage.BadgerDir})
		if err != nil {
			return fmt.Errorf("failed to initialize badger run store: %w", err)
		}
		c.Store = store
		c.Runs = store
		logger.Info("storing runs in %s", c.Config.Storage.BadgerDir)

	default:
		logger.Debug("no run store configured; results are not cached")
	}
	return nil
}

// PipelineService builds a pipeline service for one seed
func (c *Container) PipelineService(seed int64) *app.PipelineService {
	factory := app.NewStrategyFactory(c.Config.Pipeline, seed, c.RNG)
	return app.NewPipelineService(factory, c.Runs, c.Recorder, c.Config.Pipeline.Workers)
}

// Shutdown closes open stores
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
