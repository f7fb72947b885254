package handlers

import (
	"context"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scheduler"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scraping"
)

// RunController creates and controls scrape runs.
type RunController interface {
	CreateRun(ctx context.Context, req scraping.CreateRunRequest) (*models.ScrapeRun, error)
	GetRun(ctx context.Context, runID string) (*models.ScrapeRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error)
	Pause(ctx context.Context, runID string) (*models.ScrapeRun, error)
	Resume(ctx context.Context, runID string) (*models.ScrapeRun, error)
	Cancel(ctx context.Context, runID string) (*models.ScrapeRun, error)
}

// Discoverer runs discovery for an ad-hoc base URL or a stored site.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string, config models.DiscoveryConfig, enqueue bool) (*models.DiscoveryResult, error)
	DiscoverSite(ctx context.Context, siteID string, enqueue bool) (*models.DiscoveryResult, error)
}

// JobMonitor enables, disables and runs monitoring checks.
type JobMonitor interface {
	Start(ctx context.Context, jobID, url string, intervalHours int) (*models.JobMonitorRecord, error)
	Stop(ctx context.Context, jobID string) (*models.MonitorStatus, error)
	Status(ctx context.Context, jobID string) (*models.MonitorStatus, error)
	History(ctx context.Context, jobID string, limit int) ([]*models.TrackingHistoryEntry, error)
	Check(ctx context.Context, jobID string) (*models.CheckResult, error)
	RunSweep(ctx context.Context) (*models.SweepResult, error)
	MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error)
}

// TaskScheduler exposes scheduled task state and manual triggers.
type TaskScheduler interface {
	TaskStatuses() []*scheduler.TaskStatus
	EnableTask(name string) error
	DisableTask(name string) error
	TriggerTask(name string) error
	IsRunning() bool
}
