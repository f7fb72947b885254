package scheduler

import (
	"context"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// Task names
const (
	TaskSweep         = "monitoring_sweep"
	TaskMonitorWake   = "monitor_wake"
	TaskQueueDrain    = "queue_drain"
	TaskQueuePurge    = "queue_purge"
	TaskSiteDiscovery = "site_discovery"
	TaskEmailIntake   = "email_intake"
)

// Sweeper runs the daily monitoring sweep
type Sweeper interface {
	RunSweep(ctx context.Context) (*models.SweepResult, error)
	RunDue(ctx context.Context, now time.Time, limit int) (*models.SweepResult, error)
}

// BatchRunner drains the scrape queue
type BatchRunner interface {
	RunBatch(ctx context.Context, cfg models.ScrapingConfig) (*models.ScrapingResults, error)
}

// QueueMaintainer is the subset of the scrape queue used by maintenance tasks
type QueueMaintainer interface {
	Stats(ctx context.Context) (*models.QueueStats, error)
	ReleaseStale(ctx context.Context, visibility time.Duration) (int, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// SiteDiscoverer runs discovery for every active site
type SiteDiscoverer interface {
	DiscoverActiveSites(ctx context.Context) (int, int, error)
}

// MailIntake polls the job-alert mailbox. Result details are logged by the implementation.
type MailIntake interface {
	Poll(ctx context.Context) error
}

// Tasks are the collaborators of the default tasks. A nil collaborator skips its task.
type Tasks struct {
	Monitor   Sweeper
	Scraper   BatchRunner
	Queue     QueueMaintainer
	Discovery SiteDiscoverer
	Email     MailIntake
}

// RegisterDefaultTasks registers every task that has both a schedule and a collaborator
func RegisterDefaultTasks(s *Service, config *common.Config, tasks Tasks) error {
	sc := config.Scheduler
	visibility := common.Duration(config.Queue.VisibilityTimeout, 10*time.Minute)
	retention := common.Duration(config.Queue.Retention, 7*24*time.Hour)

	type registration struct {
		name, schedule, description string
		timeout                     time.Duration
		enabled                     bool
		handler                     Handler
	}

	regs := []registration{
		{
			name: TaskSweep, schedule: sc.Sweep,
			description: "Check every job due for monitoring",
			timeout:     2 * time.Hour,
			enabled:     tasks.Monitor != nil,
			handler: func(ctx context.Context) error {
				_, err := tasks.Monitor.RunSweep(ctx)
				return err
			},
		},
		{
			name: TaskMonitorWake, schedule: sc.MonitorWake,
			description: "Run monitors whose next check time has passed",
			timeout:     30 * time.Minute,
			enabled:     tasks.Monitor != nil,
			handler: func(ctx context.Context) error {
				_, err := tasks.Monitor.RunDue(ctx, time.Now(), config.Monitor.WakeLimit)
				return err
			},
		},
		{
			name: TaskQueueDrain, schedule: sc.QueueDrain,
			description: "Release stale claims and scrape pending queue items",
			timeout:     time.Hour,
			enabled:     tasks.Queue != nil && tasks.Scraper != nil,
			handler: func(ctx context.Context) error {
				return drainQueue(ctx, tasks.Queue, tasks.Scraper, visibility)
			},
		},
		{
			name: TaskQueuePurge, schedule: sc.QueuePurge,
			description: "Purge terminal queue items past retention",
			timeout:     10 * time.Minute,
			enabled:     tasks.Queue != nil,
			handler: func(ctx context.Context) error {
				_, err := tasks.Queue.PurgeOlderThan(ctx, retention)
				return err
			},
		},
		{
			name: TaskSiteDiscovery, schedule: sc.SiteDiscovery,
			description: "Discover job URLs for every active site",
			timeout:     2 * time.Hour,
			enabled:     tasks.Discovery != nil,
			handler: func(ctx context.Context) error {
				_, _, err := tasks.Discovery.DiscoverActiveSites(ctx)
				return err
			},
		},
		{
			name: TaskEmailIntake, schedule: sc.EmailIntake,
			description: "Enqueue job links from alert emails",
			timeout:     10 * time.Minute,
			enabled:     tasks.Email != nil,
			handler: func(ctx context.Context) error {
				return tasks.Email.Poll(ctx)
			},
		},
	}

	for _, r := range regs {
		if r.schedule == "" || !r.enabled {
			s.logger.Debug().Str("task", r.name).Msg("Task not registered")
			continue
		}
		if err := s.RegisterTask(r.name, r.schedule, r.description, r.timeout, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// drainQueue releases claims abandoned by crashed workers, then runs a batch when work is pending
func drainQueue(ctx context.Context, queue QueueMaintainer, scraper BatchRunner, visibility time.Duration) error {
	if _, err := queue.ReleaseStale(ctx, visibility); err != nil {
		return err
	}
	stats, err := queue.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Pending == 0 {
		return nil
	}
	_, err = scraper.RunBatch(ctx, models.ScrapingConfig{})
	return err
}
