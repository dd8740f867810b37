package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/handlers"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/metrics"
	"github.com/ternarybob/tubeq/internal/placement"
	"github.com/ternarybob/tubeq/internal/services/archive"
	"github.com/ternarybob/tubeq/internal/services/cookies"
	"github.com/ternarybob/tubeq/internal/services/downloads"
	"github.com/ternarybob/tubeq/internal/services/events"
	"github.com/ternarybob/tubeq/internal/storage"
	"github.com/ternarybob/tubeq/internal/ytdlp"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	Metrics        *metrics.Metrics

	// Download pipeline
	YtDlp          *ytdlp.Client
	Placer         *placement.Placer
	JobService     *downloads.JobService
	Playlists      *downloads.PlaylistService
	Dispatcher     *downloads.Dispatcher
	Scheduler      *downloads.Scheduler
	ArchiveService *archive.Service
	CookieService  *cookies.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	DownloadHandler *handlers.DownloadHandler
	PlaylistHandler *handlers.PlaylistHandler
	TagHandler      *handlers.TagHandler
	StrategyHandler *handlers.StrategyHandler
	ArchiveHandler  *handlers.ArchiveHandler
	CookieHandler   *handlers.CookieHandler
	YtDlpHandler    *handlers.YtDlpHandler
	WSHandler       *handlers.WebSocketHandler

	ctx       context.Context
	cancelCtx context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// New builds the application: storage first, then services, then handlers.
// Background loops do not run until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Int("max_downloads", cfg.Scheduler.MaxConcurrentDownloads).
		Bool("mirror_enabled", cfg.Mirror.Enabled).
		Bool("archive_enabled", cfg.Archive.Enabled).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the configured store and seeds default strategies
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")

	if err := storage.SeedDefaults(context.Background(), storageManager, a.Config.Storage.StrategiesFile, a.Logger); err != nil {
		return fmt.Errorf("failed to seed default strategies: %w", err)
	}

	return nil
}

// initServices builds the download pipeline in dependency order:
// tool client, placement (with optional mirror), event bus, job and playlist
// services, cascade dispatcher, scheduler, archive sweeper and cookie store.
func (a *App) initServices() error {
	a.YtDlp = ytdlp.NewClient(&a.Config.YtDlp, a.Logger)

	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.New(a.Config.Metrics.Namespace)
		a.Logger.Debug().Str("namespace", a.Config.Metrics.Namespace).Msg("Metrics registry initialized")
	}

	// A typed nil would defeat the placer's nil check
	var mirror interfaces.Mirror
	if a.Config.Mirror.Enabled {
		s3Mirror, err := placement.NewS3Mirror(context.Background(), &a.Config.Mirror, a.Config.Placement.Root, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create S3 mirror: %w", err)
		}
		mirror = s3Mirror
	}
	a.Placer = placement.NewPlacer(&a.Config.Placement, mirror, a.Logger)

	a.EventService = events.NewService(a.Logger)

	a.JobService = downloads.NewJobService(
		a.StorageManager.JobStorage(),
		a.StorageManager.TagStorage(),
		a.YtDlp,
		a.EventService,
		a.Logger,
	)

	a.Playlists = downloads.NewPlaylistService(a.YtDlp, a.JobService, a.Logger)

	a.Dispatcher = downloads.NewDispatcher(a.StorageManager.StrategyStorage(), a.YtDlp, a.Metrics, a.Logger)

	a.Scheduler = downloads.NewScheduler(
		a.StorageManager.JobStorage(),
		a.StorageManager.TagStorage(),
		a.JobService,
		a.Dispatcher,
		a.Placer,
		a.Metrics,
		downloads.NewSchedulerOptions(&a.Config.Scheduler),
		a.Logger,
	)

	a.ArchiveService = archive.NewService(a.StorageManager.JobStorage(), a.EventService, &a.Config.Archive, a.Logger)
	a.CookieService = cookies.NewService(a.Config.YtDlp.CookiesFile, a.Logger)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers builds the HTTP handlers and subscribes the push channel
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.DownloadHandler = handlers.NewDownloadHandler(a.JobService, a.StorageManager.JobStorage(), a.ArchiveService, a.Logger)
	a.PlaylistHandler = handlers.NewPlaylistHandler(a.Playlists, a.Logger)
	a.TagHandler = handlers.NewTagHandler(a.StorageManager.TagStorage(), a.EventService, a.Logger)
	a.StrategyHandler = handlers.NewStrategyHandler(a.StorageManager.StrategyStorage(), a.Logger)
	a.ArchiveHandler = handlers.NewArchiveHandler(a.ArchiveService, a.Logger)
	a.CookieHandler = handlers.NewCookieHandler(a.CookieService, a.Logger)
	a.YtDlpHandler = handlers.NewYtDlpHandler(a.YtDlp, a.Logger)

	a.WSHandler = handlers.NewWebSocketHandler(a.ArchiveService, a.YtDlp, a.CookieService, &a.Config.WebSocket, a.Logger)
	if err := a.WSHandler.SubscribeToEvents(a.EventService); err != nil {
		return fmt.Errorf("failed to subscribe push channel: %w", err)
	}

	a.Logger.Debug().Msg("Handlers initialized")
	return nil
}

// Start launches the scheduler loop, the push channel ticker and, when
// enabled, the archive cron. ctx bounds all of them.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("application already started")
	}

	if a.Config.Archive.Enabled {
		if err := a.ArchiveService.Start(); err != nil {
			return fmt.Errorf("failed to start archive sweeper: %w", err)
		}
	}

	a.ctx, a.cancelCtx = context.WithCancel(ctx)
	a.started = true

	a.wg.Add(2)
	common.SafeGo(a.Logger, "scheduler", func() {
		defer a.wg.Done()
		a.Scheduler.Run(a.ctx)
	})
	common.SafeGo(a.Logger, "websocket-hub", func() {
		defer a.wg.Done()
		a.WSHandler.Run(a.ctx)
	})

	a.Logger.Info().Msg("Background services started")
	return nil
}

// Close stops background work in reverse start order and releases storage.
// In-flight downloads observe the cancellation and are recorded as failed
// with an "interrupted:" message, so the next start retries them.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Int("in_flight", a.Scheduler.InFlight()).Msg("Cancelling background services")
		a.cancelCtx()
		a.wg.Wait()
		a.Scheduler.Wait()
	}

	if a.ArchiveService != nil {
		a.ArchiveService.Stop()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if err := a.closeStorage(); err != nil {
		return err
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}

func (a *App) closeStorage() error {
	if a.StorageManager == nil {
		return nil
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.StorageManager = nil
	a.Logger.Info().Msg("Storage closed")
	return nil
}
