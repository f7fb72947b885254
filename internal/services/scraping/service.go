// Package scraping drains the scrape queue: fetch, extract, upsert and record each item.
package scraping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
)

const (
	defaultMaxConcurrent = 5
	defaultTimeout       = 30 * time.Second
)

var errRunNotRunnable = errors.New("run is not runnable")

// MonitorStarter enables monitoring for a newly scraped job
type MonitorStarter interface {
	Start(ctx context.Context, jobID, url string, intervalHours int) (*models.JobMonitorRecord, error)
}

// Config holds the scraper defaults applied to every run
type Config struct {
	Defaults               models.ScrapingConfig
	LowConfidenceThreshold float64
	SnapshotHTML           bool
}

// ConfigFromCommon builds the scraper config from application config
func ConfigFromCommon(cfg *common.Config) Config {
	return Config{
		Defaults: models.ScrapingConfig{
			MaxConcurrent: cfg.Scraper.MaxConcurrent,
			DelayMs:       int(common.Duration(cfg.Scraper.Delay, 0) / time.Millisecond),
			TimeoutMs:     int(common.Duration(cfg.Scraper.Timeout, defaultTimeout) / time.Millisecond),
			MaxItems:      cfg.Scraper.MaxItems,
			Screenshot:    cfg.Scraper.Screenshot,
			PDF:           cfg.Scraper.PDF,
			EnableMonitor: cfg.Scraper.EnableMonitoring,
			MonitorHours:  cfg.Monitor.DefaultIntervalHours,
		},
		LowConfidenceThreshold: cfg.Scraper.LowConfidenceThreshold,
		SnapshotHTML:           cfg.Scraper.SnapshotHTML,
	}
}

// Dependencies are the collaborators of the scraping service. Snapshots, Events and
// Monitor are optional.
type Dependencies struct {
	Queue     interfaces.ScrapeQueue
	Fetcher   interfaces.ContentFetcher
	Extractor interfaces.Extractor
	Jobs      interfaces.JobStorage
	Runs      interfaces.RunStorage
	Limiter   *fetcher.RateLimiter
	Snapshots interfaces.SnapshotStore
	Events    interfaces.EventService
	Monitor   MonitorStarter
}

// CreateRunRequest enqueues URLs and starts a run over the queue
type CreateRunRequest struct {
	Source   string                `json:"source"`
	URLs     []string              `json:"urls"`
	SiteID   string                `json:"site_id,omitempty"`
	Priority int                   `json:"priority,omitempty"`
	Config   models.ScrapingConfig `json:"config"`
}

// Service executes scrape runs. Run state lives in RunStorage; the only in-process
// state is the set of runs currently executing.
type Service struct {
	deps     Dependencies
	config   Config
	validate *validator.Validate
	logger   arbor.ILogger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	// mu serializes run read-modify-write and guards active
	mu     sync.Mutex
	active map[string]bool
}

// NewService creates the scraping service
func NewService(deps Dependencies, config Config, logger arbor.ILogger) *Service {
	if deps.Limiter == nil {
		deps.Limiter = fetcher.NewRateLimiter(0, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:       deps,
		config:     config,
		validate:   validator.New(),
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[string]bool),
	}
}

// effective fills unset fields of cfg from the service defaults
func (s *Service) effective(cfg models.ScrapingConfig) models.ScrapingConfig {
	d := s.config.Defaults
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = d.MaxConcurrent
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.DelayMs <= 0 {
		cfg.DelayMs = d.DelayMs
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = d.TimeoutMs
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = int(defaultTimeout / time.Millisecond)
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = d.MaxItems
	}
	cfg.Screenshot = cfg.Screenshot || d.Screenshot
	cfg.PDF = cfg.PDF || d.PDF
	cfg.EnableMonitor = cfg.EnableMonitor || d.EnableMonitor
	if cfg.MonitorHours <= 0 {
		cfg.MonitorHours = d.MonitorHours
	}
	return cfg
}

func (s *Service) validateConfig(cfg models.ScrapingConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return models.NewValidationError("invalid scraping config: %v", err)
	}
	return nil
}

func (s *Service) newRun(ctx context.Context, source string, cfg models.ScrapingConfig) (*models.ScrapeRun, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	now := time.Now()
	run := &models.ScrapeRun{
		ID:        common.NewID("run"),
		Source:    source,
		State:     models.RunStatePending,
		Config:    s.effective(cfg),
		CreatedAt: now,
		UpdatedAt: now,
		Results:   models.ScrapingResults{JobIDs: []string{}, Errors: []*models.ScrapingError{}},
	}
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// RunBatch drains the queue synchronously under a new run and returns its results
func (s *Service) RunBatch(ctx context.Context, cfg models.ScrapingConfig) (*models.ScrapingResults, error) {
	run, err := s.newRun(ctx, "batch", cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active[run.ID] = true
	s.mu.Unlock()

	final, err := s.execute(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &final.Results, nil
}

// CreateRun enqueues the request URLs and starts a background run. Invalid URLs are
// recorded on the run and skipped.
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (*models.ScrapeRun, error) {
	source := req.Source
	if source == "" {
		source = "manual"
	}
	run, err := s.newRun(ctx, source, req.Config)
	if err != nil {
		return nil, err
	}

	for _, u := range req.URLs {
		_, _, err := s.deps.Queue.Enqueue(ctx, &models.ScrapeQueueItem{
			URL:      u,
			Source:   source,
			SourceID: run.ID,
			SiteID:   req.SiteID,
			Priority: req.Priority,
		})
		if err != nil {
			run.Results.Errors = append(run.Results.Errors, models.AsScrapingError(err, u))
		}
	}
	if len(run.Results.Errors) > 0 {
		if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("source", source).
		Int("urls", len(req.URLs)).
		Msg("Scrape run created")

	if err := s.Start(run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// Start launches a background execution of runID unless one is already active
func (s *Service) Start(runID string) error {
	s.mu.Lock()
	if s.active[runID] {
		s.mu.Unlock()
		return nil
	}
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return fmt.Errorf("scraping service is shut down")
	}
	s.active[runID] = true
	s.mu.Unlock()

	s.launch(runID)
	return nil
}

func (s *Service) launch(runID string) {
	s.wg.Add(1)
	common.SafeGo(s.logger, "scrape-run-"+runID, func() {
		defer s.wg.Done()
		if _, err := s.execute(s.baseCtx, runID); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("Scrape run failed")
		}
	})
}

// Pause stops a running run before its next claim. In-flight items finish.
func (s *Service) Pause(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	return s.transition(ctx, runID, models.RunStatePaused)
}

// Cancel stops a run before its next claim. Unclaimed items stay queued.
func (s *Service) Cancel(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	return s.transition(ctx, runID, models.RunStateCancelled)
}

// Resume moves a paused run back to running and relaunches it when no execution is active
func (s *Service) Resume(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Transition(models.RunStateRunning); err != nil {
		return nil, err
	}
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	s.publishState(ctx, run)

	if !s.active[runID] && s.baseCtx.Err() == nil {
		s.active[runID] = true
		s.launch(runID)
	}
	return run, nil
}

func (s *Service) transition(ctx context.Context, runID string, to models.RunState) (*models.ScrapeRun, error) {
	run, err := s.updateRun(ctx, runID, func(run *models.ScrapeRun) error {
		return run.Transition(to)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("run_id", runID).Str("state", string(to)).Msg("Scrape run state changed")
	s.publishState(ctx, run)
	return run, nil
}

// GetRun returns a run by id
func (s *Service) GetRun(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	return s.deps.Runs.GetRun(ctx, runID)
}

// ListRuns returns the most recent runs
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	return s.deps.Runs.ListRuns(ctx, limit)
}

// ResumeInterrupted relaunches runs left in running state by a previous process
func (s *Service) ResumeInterrupted(ctx context.Context) (int, error) {
	runs, err := s.deps.Runs.ListRunsByState(ctx, models.RunStateRunning, models.RunStatePending)
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		if err := s.Start(run.ID); err != nil {
			return 0, err
		}
	}
	if len(runs) > 0 {
		s.logger.Info().Int("runs", len(runs)).Msg("Resumed interrupted scrape runs")
	}
	return len(runs), nil
}

// Shutdown cancels background runs and waits for them to return. Their state stays
// running so ResumeInterrupted picks them up on the next start.
func (s *Service) Shutdown() {
	s.baseCancel()
	s.wg.Wait()
}

// updateRun applies fn to the stored run and persists it
func (s *Service) updateRun(ctx context.Context, runID string, fn func(run *models.ScrapeRun) error) (*models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRunLocked(ctx, runID, fn)
}

func (s *Service) updateRunLocked(ctx context.Context, runID string, fn func(run *models.ScrapeRun) error) (*models.ScrapeRun, error) {
	run, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := fn(run); err != nil {
		return nil, err
	}
	run.UpdatedAt = time.Now()
	if err := s.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) publishState(ctx context.Context, run *models.ScrapeRun) {
	s.publish(ctx, interfaces.EventRunStateChanged, map[string]interface{}{
		"run_id":   run.ID,
		"state":    run.State,
		"progress": run.Progress,
	})
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
