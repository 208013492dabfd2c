// Package app wires application components for the two process roles:
// the API server (serve) and the scraper worker (work). Everything is
// constructed explicitly at process start and passed by reference; no
// component reaches for globals beyond the logger.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/blob"
	"github.com/vaibhavdavedev/datashelf/internal/cache"
	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/handlers"
	"github.com/vaibhavdavedev/datashelf/internal/images"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
	"github.com/vaibhavdavedev/datashelf/internal/queue"
	"github.com/vaibhavdavedev/datashelf/internal/ratelimit"
	"github.com/vaibhavdavedev/datashelf/internal/revalidation"
	"github.com/vaibhavdavedev/datashelf/internal/scraper"
	"github.com/vaibhavdavedev/datashelf/internal/signing"
	"github.com/vaibhavdavedev/datashelf/internal/storage/postgres"
)

// Role selects which components a process carries.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// App holds all application components and dependencies for one process.
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Role   Role

	Storage    *postgres.Manager
	Queue      *queue.Manager
	EntryStore *cache.RedisStore
	SWR        *cache.SWR
	Signer     *signing.Signer

	// API-side components
	Bridge         *revalidation.Service
	StaleLimiter   *ratelimit.SlidingWindow
	APIHandler     *handlers.APIHandler
	CatalogHandler *handlers.CatalogHandler

	// Worker-side components
	Renderer    interfaces.Renderer
	Blob        *blob.S3Store
	Images      *images.Pipeline
	HostLimiter *ratelimit.SlidingWindow
	WorkerPool  *scraper.Pool
	Sweeper     *queue.Sweeper
	JobHandler  *handlers.JobHandler
}

// NewAPI initializes the API process: repository, entry cache, SWR layer,
// and the revalidation bridge to the worker host.
func NewAPI(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Role:   RoleAPI,
	}

	storage, err := postgres.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.Storage = storage

	entryStore, err := cache.NewRedisStore(cfg.Redis.URL, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize cache store: %w", err)
	}
	app.EntryStore = entryStore
	app.SWR = cache.NewSWR(entryStore, logger)

	app.Signer = signing.New(cfg.Worker.Secret, cfg.SignatureSkew())
	app.StaleLimiter = ratelimit.NewSlidingWindow(ratelimit.Limits{
		PerMinute: cfg.Revalidation.PerMinute,
		PerHour:   cfg.Revalidation.PerHour,
	})
	app.Bridge = revalidation.NewService(
		cfg.Revalidation.Enabled,
		cfg.Crawler.SiteRoot,
		cfg.Worker.Host,
		app.StaleLimiter,
		app.Signer,
		logger,
	)

	app.APIHandler = handlers.NewAPIHandler(storage, entryStore)
	app.CatalogHandler = handlers.NewCatalogHandler(storage, app.SWR, app.Bridge.Trigger, cfg, logger)

	return app, nil
}

// NewWorker initializes the worker process: repository, queue, renderer,
// image pipeline, worker pool, sweeper, and the signed intake handler.
func NewWorker(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Role:   RoleWorker,
	}

	storage, err := postgres.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.Storage = storage

	app.Queue = queue.NewManager(storage.DB(), logger, cfg.LeaseTTL(), cfg.Queue.MaxAttempts)

	sweeper, err := queue.NewSweeper(app.Queue, logger, cfg.Queue.SweepSpec)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize lease sweeper: %w", err)
	}
	app.Sweeper = sweeper

	blobStore, err := blob.NewS3Store(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	app.Blob = blobStore
	app.Images = images.NewPipeline(blobStore, cfg, logger)

	renderer, err := scraper.NewChromeRenderer(cfg, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize renderer: %w", err)
	}
	app.Renderer = renderer

	app.HostLimiter = ratelimit.NewSlidingWindow(ratelimit.Limits{
		PerMinute: cfg.Crawler.RequestsPerMinute,
		PerHour:   cfg.Crawler.RequestsPerHour,
	})

	app.WorkerPool = scraper.NewPool(app.Queue, storage, renderer, app.Images, app.HostLimiter, cfg, logger)

	app.Signer = signing.New(cfg.Worker.Secret, cfg.SignatureSkew())
	app.JobHandler = handlers.NewJobHandler(app.Queue, app.Signer, logger)
	app.APIHandler = handlers.NewAPIHandler(storage, nil)

	return app, nil
}

// Start launches the background components for the role.
func (a *App) Start() {
	if a.WorkerPool != nil {
		a.WorkerPool.Start()
	}
	if a.Sweeper != nil {
		a.Sweeper.Start()
	}
}

// Close tears down components in reverse dependency order. Safe to call
// on a partially-initialized app.
func (a *App) Close() {
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.Renderer != nil {
		if err := a.Renderer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close renderer")
		}
	}
	if a.EntryStore != nil {
		if err := a.EntryStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache store")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
