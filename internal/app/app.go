package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/handlers"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/queue"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/discovery"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/email"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/events"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/extractor"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/llm"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/monitor"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scheduler"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scraping"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager *badger.Manager

	// Queue and event bus
	Queue        *queue.ScrapeQueue
	EventService interfaces.EventService

	// Page access
	Fetcher   interfaces.ContentFetcher
	Snapshots interfaces.SnapshotStore
	LLM       *llm.ProviderFactory
	Extractor interfaces.Extractor

	// Domain services
	DiscoveryEngine  *discovery.Engine
	DiscoveryService *discovery.Service
	MonitorService   *monitor.Service
	ScrapingService  *scraping.Service
	EmailService     *email.Service
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	WSHandler        *handlers.WebSocketHandler
	StatusHandler    *handlers.StatusHandler
	ScrapingHandler  *handlers.ScrapingHandler
	QueueHandler     *handlers.QueueHandler
	JobHandler       *handlers.JobHandler
	MonitorHandler   *handlers.MonitorHandler
	SiteHandler      *handlers.SiteHandler
	SchedulerHandler *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initDatabase(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The event bus and WebSocket handler exist before any service publishes
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Runs left running by a previous process continue from their queue state
	resumed, err := app.ScrapingService.ResumeInterrupted(app.ctx)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to resume interrupted runs")
	} else if resumed > 0 {
		app.Logger.Info().Int("runs", resumed).Msg("Resumed interrupted scrape runs")
	}

	if cfg.Scheduler.Enabled {
		if err := app.SchedulerService.Start(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	logger.Info().
		Str("fetcher", cfg.Fetcher.Mode).
		Bool("llm_enabled", app.LLM != nil && app.LLM.Available()).
		Bool("snapshots_enabled", app.Snapshots.Enabled()).
		Bool("email_enabled", app.EmailService != nil).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the badger store and loads site definition files
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Missing or broken site files never block startup
	if a.Config.Sites.Dir != "" {
		if _, err := a.StorageManager.LoadSitesFromFiles(a.ctx, a.Config.Sites.Dir); err != nil {
			a.Logger.Warn().Err(err).Str("dir", a.Config.Sites.Dir).Msg("Failed to load sites from files")
		}
	}

	q, err := queue.NewScrapeQueue(a.StorageManager.Connection().Badger(), a.Logger, queue.Config{
		MaxRetries:   a.Config.Queue.MaxRetries,
		RetryBackoff: common.Duration(a.Config.Queue.RetryBackoff, 0),
	})
	if err != nil {
		return fmt.Errorf("failed to open scrape queue: %w", err)
	}
	a.Queue = q

	return nil
}

// initServices builds the fetch, extraction and domain services
func (a *App) initServices() error {
	var err error
	cfg := a.Config

	a.Snapshots, err = storage.NewSnapshotStore(a.ctx, a.Logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	a.Fetcher, err = fetcher.NewContentFetcher(cfg.Fetcher, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create content fetcher: %w", err)
	}

	// Structured data first, the LLM only when confidence is below the threshold
	var fallback interfaces.Extractor
	if cfg.LLM.Enabled {
		a.LLM = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, a.Logger)
		fallback = extractor.NewLLMExtractor(a.LLM, cfg.LLM.MaxInputChars, a.Logger)
		if !a.LLM.Available() {
			a.Logger.Warn().Str("provider", string(cfg.LLM.DefaultProvider)).Msg("LLM enabled but no API key configured, fallback extraction disabled")
		}
	}
	a.Extractor = extractor.NewChain(extractor.NewStructuredExtractor(a.Logger), fallback, cfg.Scraper.LLMThreshold, a.Logger)

	a.DiscoveryEngine = discovery.NewEngine(
		a.Fetcher,
		discovery.NewSearchBackend(cfg.Discovery, a.Logger),
		cfg.Fetcher,
		discovery.DefaultsFromConfig(cfg.Discovery),
		a.Logger,
	)
	a.DiscoveryService = discovery.NewService(
		a.DiscoveryEngine,
		a.StorageManager.SiteStorage(),
		a.Queue,
		a.EventService,
		cfg.Discovery.EnqueuePriority,
		a.Logger,
	)

	a.MonitorService = monitor.NewService(monitor.Dependencies{
		Jobs:      a.StorageManager.JobStorage(),
		Monitors:  a.StorageManager.MonitorStorage(),
		Tracking:  a.StorageManager.TrackingStorage(),
		Fetcher:   a.Fetcher,
		Extractor: a.Extractor,
		Snapshots: a.Snapshots,
		Events:    a.EventService,
	}, cfg.Monitor, a.Logger)

	a.ScrapingService = scraping.NewService(scraping.Dependencies{
		Queue:     a.Queue,
		Fetcher:   a.Fetcher,
		Extractor: a.Extractor,
		Jobs:      a.StorageManager.JobStorage(),
		Runs:      a.StorageManager.RunStorage(),
		Limiter:   fetcher.NewRateLimiter(cfg.Scraper.DomainRateLimit, cfg.Scraper.DomainBurst),
		Snapshots: a.Snapshots,
		Events:    a.EventService,
		Monitor:   a.MonitorService,
	}, scraping.ConfigFromCommon(cfg), a.Logger)

	tasks := scheduler.Tasks{
		Monitor:   a.MonitorService,
		Scraper:   a.ScrapingService,
		Queue:     a.Queue,
		Discovery: a.DiscoveryService,
	}

	if cfg.Email.Enabled {
		a.EmailService, err = email.NewService(email.NewIMAPMailbox(cfg.Email, a.Logger), a.Queue, a.EventService, cfg.Email, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create email intake: %w", err)
		}
		tasks.Email = a.EmailService
	}

	a.SchedulerService = scheduler.NewService(a.Logger)
	if err := scheduler.RegisterDefaultTasks(a.SchedulerService, cfg, tasks); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	return nil
}

// initHandlers builds the HTTP handlers over the services
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Queue, a.SchedulerService, a.WSHandler, a.Logger)
	a.ScrapingHandler = handlers.NewScrapingHandler(a.ScrapingService, a.DiscoveryService, a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.Queue, a.EventService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.StorageManager.JobStorage(), a.Logger)
	a.MonitorHandler = handlers.NewMonitorHandler(a.MonitorService, a.Logger)
	a.SiteHandler = handlers.NewSiteHandler(a.StorageManager.SiteStorage(), a.DiscoveryService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close stops background work and releases resources in reverse start order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	// In-flight runs stay running and resume on the next start
	if a.ScrapingService != nil {
		a.ScrapingService.Shutdown()
		a.Logger.Info().Msg("Scraping service stopped")
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.DiscoveryEngine != nil {
		a.DiscoveryEngine.Close()
	}

	if a.Fetcher != nil {
		if err := a.Fetcher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close content fetcher")
		}
	}

	if a.LLM != nil {
		if err := a.LLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM providers")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.StorageManager = nil
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
