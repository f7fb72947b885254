package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// jobURLKeyPrefix maps a normalized job URL hash to the job ID. Reading it inside the
// upsert transaction makes concurrent first inserts of the same URL conflict.
const jobURLKeyPrefix = "scout:joburl:"

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func jobURLKey(rawURL string) ([]byte, string) {
	normalized, err := common.NormalizeURL(rawURL)
	if err != nil {
		normalized = rawURL
	}
	hash, err := common.URLHash(normalized)
	if err != nil {
		hash = normalized
	}
	return []byte(jobURLKeyPrefix + hash), normalized
}

// UpsertJobByURL inserts the job or merges it into the existing row for the same URL
func (s *JobStorage) UpsertJobByURL(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	if job == nil || job.URL == "" {
		return nil, false, models.NewValidationError("job url is required")
	}

	guardKey, normalized := jobURLKey(job.URL)

	var result *models.Job
	var created bool

	err := s.db.update(func(txn *badger.Txn) error {
		now := time.Now()
		created = false

		existingID := ""
		item, err := txn.Get(guardKey)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				existingID = string(val)
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		var merged models.Job
		if existingID != "" {
			if err := s.db.Store().TxGet(txn, existingID, &merged); err != nil {
				if !errors.Is(err, badgerhold.ErrNotFound) {
					return err
				}
				existingID = ""
			}
		}

		if existingID == "" {
			merged = *job
			merged.URL = normalized
			if merged.ID == "" {
				merged.ID = common.NewID("job")
			}
			if merged.Status == "" {
				merged.Status = models.JobStatusOpen
			}
			if merged.Source == "" {
				merged.Source = models.JobSourceScraped
			}
			if merged.FirstSeenAt.IsZero() {
				merged.FirstSeenAt = now
			}
			created = true
		} else {
			mergeJob(&merged, job)
		}
		merged.UpdatedAt = now

		if err := s.db.Store().TxUpsert(txn, merged.ID, &merged); err != nil {
			return err
		}
		if err := txn.Set(guardKey, []byte(merged.ID)); err != nil {
			return err
		}

		result = &merged
		return nil
	})
	if err != nil {
		return nil, false, models.NewStorageError("upsert job", err)
	}

	s.logger.Debug().
		Str("job_id", result.ID).
		Str("url", result.URL).
		Bool("created", created).
		Msg("Job upserted")

	return result, created, nil
}

// mergeJob overlays the non-empty fields of in onto existing. ID, URL and FirstSeenAt never change.
func mergeJob(existing *models.Job, in *models.Job) {
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&existing.CanonicalURL, in.CanonicalURL)
	setIf(&existing.SiteID, in.SiteID)
	setIf(&existing.Title, in.Title)
	setIf(&existing.Company, in.Company)
	setIf(&existing.Location, in.Location)
	setIf(&existing.EmploymentType, in.EmploymentType)
	setIf(&existing.SalaryCurrency, in.SalaryCurrency)
	setIf(&existing.SalaryRaw, in.SalaryRaw)
	setIf(&existing.Description, in.Description)
	setIf(&existing.Requirements, in.Requirements)
	setIf(&existing.ContentHash, in.ContentHash)
	setIf(&existing.ExtractionMethod, in.ExtractionMethod)
	setIf(&existing.SnapshotKey, in.SnapshotKey)

	if in.SalaryMin != nil {
		existing.SalaryMin = in.SalaryMin
	}
	if in.SalaryMax != nil {
		existing.SalaryMax = in.SalaryMax
	}
	if in.Status != "" {
		existing.Status = in.Status
	}
	if in.Source != "" && existing.Source == "" {
		existing.Source = in.Source
	}
	if in.LastCrawledAt != nil {
		existing.LastCrawledAt = in.LastCrawledAt
	}
	if in.ExtractionConfidence > 0 {
		existing.ExtractionConfidence = in.ExtractionConfidence
		existing.NeedsReview = in.NeedsReview
	}
	if in.DailyMonitoringEnabled {
		existing.DailyMonitoringEnabled = true
	}
	if in.MonitoringFrequencyHours > 0 {
		existing.MonitoringFrequencyHours = in.MonitoringFrequencyHours
	}
}

// UpdateJob applies fn to the stored job inside one transaction. A concurrent write
// to the same job conflicts and fn runs again against the fresh row, so fn must only
// set the fields its caller owns.
func (s *JobStorage) UpdateJob(ctx context.Context, id string, fn func(job *models.Job) error) (*models.Job, error) {
	if id == "" {
		return nil, models.NewValidationError("job id is required")
	}

	var result *models.Job
	err := s.db.update(func(txn *badger.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, id, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
			}
			return err
		}
		if err := fn(&job); err != nil {
			return err
		}
		job.ID = id
		job.UpdatedAt = time.Now()
		if err := s.db.Store().TxUpsert(txn, id, &job); err != nil {
			return err
		}
		result = &job
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || models.IsValidationError(err) {
			return nil, err
		}
		return nil, models.NewStorageError("update job", err)
	}
	return result, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStorageError("get job", err)
	}
	return &job, nil
}

func (s *JobStorage) GetJobByURL(ctx context.Context, rawURL string) (*models.Job, error) {
	guardKey, _ := jobURLKey(rawURL)

	var id string
	err := s.db.Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get(guardKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("job with url %s: %w", rawURL, models.ErrNotFound)
		}
		return nil, models.NewStorageError("get job by url", err)
	}
	return s.GetJob(ctx, id)
}

func jobQuery(opts models.JobListOptions) *badgerhold.Query {
	query := badgerhold.Where("ID").Ne("")
	if opts.Status != "" {
		query = query.And("Status").Eq(opts.Status)
	}
	if opts.SiteID != "" {
		query = query.And("SiteID").Eq(opts.SiteID)
	}
	if opts.Monitored != nil {
		query = query.And("DailyMonitoringEnabled").Eq(*opts.Monitored)
	}
	return query
}

// ListJobs returns a page of jobs, newest first, and the total matching count
func (s *JobStorage) ListJobs(ctx context.Context, opts models.JobListOptions) ([]*models.Job, int, error) {
	total, err := s.db.Store().Count(&models.Job{}, jobQuery(opts))
	if err != nil {
		return nil, 0, models.NewStorageError("count jobs", err)
	}

	query := jobQuery(opts).SortBy("UpdatedAt").Reverse()
	if opts.Offset > 0 {
		query = query.Skip(opts.Offset)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, 0, models.NewStorageError("list jobs", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, int(total), nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	return s.db.update(func(txn *badger.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, id, &job); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil
			}
			return err
		}
		guardKey, _ := jobURLKey(job.URL)
		if err := txn.Delete(guardKey); err != nil {
			return err
		}
		return s.db.Store().TxDelete(txn, id, &models.Job{})
	})
}

// GetJobsDueForMonitoring selects open monitored jobs whose last check plus frequency has passed,
// never-checked first, then oldest check first
func (s *JobStorage) GetJobsDueForMonitoring(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("Status").Eq(models.JobStatusOpen).Index("Status").
		And("DailyMonitoringEnabled").Eq(true)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, models.NewStorageError("find jobs due for monitoring", err)
	}

	due := make([]*models.Job, 0, len(jobs))
	for i := range jobs {
		if jobs[i].IsDueForMonitoring(now) {
			due = append(due, &jobs[i])
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].LastStatusCheckAt, due[j].LastStatusCheckAt
		switch {
		case a == nil && b == nil:
			return due[i].FirstSeenAt.Before(due[j].FirstSeenAt)
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *JobStorage) CountMonitoredJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("DailyMonitoringEnabled").Eq(true).
		And("Status").Eq(models.JobStatusOpen))
	if err != nil {
		return 0, models.NewStorageError("count monitored jobs", err)
	}
	return int(count), nil
}

func (s *JobStorage) CountClosedSince(ctx context.Context, since time.Time) (int, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").In(models.JobStatusClosed, models.JobStatusExpired).Index("Status")
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return 0, models.NewStorageError("count closed jobs", err)
	}

	count := 0
	for i := range jobs {
		if at := jobs[i].ClosureDetectedAt; at != nil && !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *JobStorage) CountOpenJobsForSite(ctx context.Context, siteID string) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, openJobsForSite(siteID))
	if err != nil {
		return 0, models.NewStorageError("count site jobs", err)
	}
	return int(count), nil
}

func openJobsForSite(siteID string) *badgerhold.Query {
	return badgerhold.Where("SiteID").Eq(siteID).Index("SiteID").And("Status").Eq(models.JobStatusOpen)
}
