package interfaces

import (
	"context"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// JobStorage persists job postings. UpsertJobByURL is the only write path for scraped jobs.
type JobStorage interface {
	// UpsertJobByURL inserts or merges by URL, preserving ID and FirstSeenAt. Returns true when created.
	UpsertJobByURL(ctx context.Context, job *models.Job) (*models.Job, bool, error)
	// UpdateJob mutates one stored job transactionally; fn sets only the fields the caller owns
	UpdateJob(ctx context.Context, id string, fn func(job *models.Job) error) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobByURL(ctx context.Context, url string) (*models.Job, error)
	ListJobs(ctx context.Context, opts models.JobListOptions) ([]*models.Job, int, error)
	DeleteJob(ctx context.Context, id string) error

	// Monitoring selection
	GetJobsDueForMonitoring(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	CountMonitoredJobs(ctx context.Context) (int, error)
	CountClosedSince(ctx context.Context, since time.Time) (int, error)
	CountOpenJobsForSite(ctx context.Context, siteID string) (int, error)
}

// SiteStorage persists sites that discovery runs against
type SiteStorage interface {
	SaveSite(ctx context.Context, site *models.Site) error
	GetSite(ctx context.Context, id string) (*models.Site, error)
	ListSites(ctx context.Context, status models.SiteStatus) ([]*models.Site, error)
	// DeleteSite fails with a validation error while open jobs reference the site
	DeleteSite(ctx context.Context, id string) error
}

// TrackingStorage is the append-only monitoring audit log
type TrackingStorage interface {
	AppendTrackingHistory(ctx context.Context, entry *models.TrackingHistoryEntry) error
	GetTrackingHistory(ctx context.Context, jobID string, limit int) ([]*models.TrackingHistoryEntry, error)
}

// MonitorStorage persists per-job monitor state
type MonitorStorage interface {
	SaveMonitor(ctx context.Context, record *models.JobMonitorRecord) error
	GetMonitor(ctx context.Context, jobID string) (*models.JobMonitorRecord, error)
	ListMonitors(ctx context.Context, state models.MonitorState) ([]*models.JobMonitorRecord, error)
	// ClaimDueMonitors atomically leases up to limit monitors due at now by moving NextCheckAt to now+lease
	ClaimDueMonitors(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.JobMonitorRecord, error)
	NextWake(ctx context.Context) (*time.Time, error)
}

// RunStorage persists batch scrape runs
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.ScrapeRun) error
	GetRun(ctx context.Context, id string) (*models.ScrapeRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error)
	ListRunsByState(ctx context.Context, states ...models.RunState) ([]*models.ScrapeRun, error)
}

// StorageManager groups the storages behind one database handle
type StorageManager interface {
	JobStorage() JobStorage
	SiteStorage() SiteStorage
	TrackingStorage() TrackingStorage
	MonitorStorage() MonitorStorage
	RunStorage() RunStorage
	DB() interface{}
	Close() error
}
