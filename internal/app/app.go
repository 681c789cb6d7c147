// Package app wires the configured store, sources and ledger service
// together for the binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/txgroup/internal/config"
	infraBQ "github.com/dvloznov/txgroup/internal/infra/bigquery"
	"github.com/dvloznov/txgroup/internal/infra/bolt"
	"github.com/dvloznov/txgroup/internal/infra/postgres"
	"github.com/dvloznov/txgroup/internal/ledger"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/source"
	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/store/inmemory"
)

// App holds the long-lived components shared by the binaries.
type App struct {
	Config  config.Config
	Repo    store.Repository
	Source  *source.Router
	Service *ledger.Service

	closeRepo func() error
}

// OpenRepository opens the store backend selected in cfg. The returned
// function releases it.
func OpenRepository(ctx context.Context, cfg config.StoreConfig) (store.Repository, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		s := inmemory.NewStore()
		return s, s.Close, nil

	case config.BackendBolt:
		s, err := bolt.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return s, s.Close, nil

	case config.BackendBigQuery:
		r, err := infraBQ.NewRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return r, r.Close, nil

	case config.BackendPostgres:
		s, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("OpenRepository: unknown store backend %q", cfg.Backend)
	}
}

// New opens the store, builds the ledger service and seeds the configured
// categories.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.FromContext(ctx)

	repo, closeRepo, err := OpenRepository(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	src := source.NewRouter()
	svc := ledger.New(repo, src, ledger.Options{
		DefaultCurrency: cfg.DefaultCurrency,
		Threshold:       cfg.SimilarityThreshold,
		FallbackLimit:   cfg.FallbackLimit,
	})

	if err := svc.SeedCategories(ctx, cfg.SeedCategories()); err != nil {
		closeRepo()
		return nil, fmt.Errorf("New: %w", err)
	}

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("default_currency", cfg.DefaultCurrency).
		Float64("threshold", cfg.SimilarityThreshold).
		Int("categories", len(cfg.Categories)).
		Msg("Application initialized")

	return &App{
		Config:    cfg,
		Repo:      repo,
		Source:    src,
		Service:   svc,
		closeRepo: closeRepo,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.closeRepo == nil {
		return nil
	}
	return a.closeRepo()
}
