package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/gaps"
	"github.com/ternarybob/tacklebox/internal/images"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/pipeline"
	"github.com/ternarybob/tacklebox/internal/scheduler"
	"github.com/ternarybob/tacklebox/internal/sources"
	"github.com/ternarybob/tacklebox/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Page access
	Fetcher  *fetch.Client
	Renderer *fetch.Renderer
	Registry *sources.Registry

	// Stores
	WorkflowStore interfaces.WorkflowStore
	CatalogStore  interfaces.CatalogStore
	ImageStore    *images.FileStore

	// Services
	Pipeline  *pipeline.Service
	Gaps      *gaps.Detector
	Scheduler *scheduler.Service
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	app.initSources()

	if err := app.initStorage(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initServices()

	logger.Info().
		Strs("sources", app.Registry.IDs()).
		Str("catalog", cfg.Catalog.Type).
		Str("workflow", cfg.Workflow.Path).
		Msg("Application initialized")

	return app, nil
}

// NewRegistry builds the page fetchers and the adapter registry only
func NewRegistry(cfg *common.Config, logger arbor.ILogger) (*sources.Registry, *fetch.Client, *fetch.Renderer) {
	fetcher := fetch.NewClient(cfg.Fetch, logger)
	renderer := fetch.NewRenderer(cfg.Fetch, logger)
	registry := sources.NewRegistry(sources.Deps{
		Fetcher:  fetcher,
		Renderer: renderer,
		Logger:   logger,
	}, cfg.Sources)
	return registry, fetcher, renderer
}

func (a *App) initSources() {
	a.Registry, a.Fetcher, a.Renderer = NewRegistry(a.Config, a.Logger)
}

func (a *App) initStorage(ctx context.Context) error {
	workflow, err := storage.NewWorkflowStore(a.Logger, a.Config.Workflow)
	if err != nil {
		return fmt.Errorf("workflow store: %w", err)
	}
	a.WorkflowStore = workflow

	catalog, err := storage.NewCatalogStore(ctx, a.Logger, a.Config.Catalog)
	if err != nil {
		return fmt.Errorf("catalog store: %w", err)
	}
	a.CatalogStore = catalog

	if a.Config.Images.Enabled {
		imageStore, err := images.NewFileStore(a.Config.Images, a.Logger)
		if err != nil {
			return fmt.Errorf("image store: %w", err)
		}
		a.ImageStore = imageStore
	}

	a.Logger.Debug().
		Str("workflow_path", a.Config.Workflow.Path).
		Str("catalog_type", a.Config.Catalog.Type).
		Bool("images", a.ImageStore != nil).
		Msg("Storage layer initialized")

	return nil
}

func (a *App) initServices() {
	var mirror pipeline.ImageMirror
	if a.ImageStore != nil {
		mirror = images.NewMirror(a.Fetcher, a.ImageStore, a.Logger)
	}

	a.Pipeline = pipeline.NewService(a.Config, a.WorkflowStore, a.CatalogStore, a.Registry, mirror, a.Logger)
	a.Gaps = gaps.NewDetector(a.Config, a.WorkflowStore, a.CatalogStore, a.Registry, a.Logger)
	a.Scheduler = scheduler.NewService(a.Logger)
}

// RegisterScheduledJobs wires the ingest and gaps jobs from [schedule]
func (a *App) RegisterScheduledJobs() error {
	limit := a.Config.Schedule.Limit

	if err := a.Scheduler.RegisterJob("ingest", a.Config.Schedule.Ingest, func(ctx context.Context) error {
		_, err := a.Pipeline.Run(ctx, pipeline.Options{Limit: limit})
		return err
	}); err != nil {
		return fmt.Errorf("ingest job: %w", err)
	}

	if err := a.Scheduler.RegisterJob("gaps", a.Config.Schedule.Gaps, func(ctx context.Context) error {
		report, err := a.Gaps.Run(ctx, gaps.Options{})
		if err != nil {
			return err
		}
		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d sources failed gap detection", len(failed), len(report.Sources))
		}
		return nil
	}); err != nil {
		return fmt.Errorf("gaps job: %w", err)
	}

	return nil
}

// Close stops the scheduler and closes every store
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	var errs []error
	if a.WorkflowStore != nil {
		if err := a.WorkflowStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close workflow store")
			errs = append(errs, err)
		}
	}
	if a.CatalogStore != nil {
		if err := a.CatalogStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close catalog store")
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Msg("Application closed")
	return errors.Join(errs...)
}
