// Package monitor re-checks stored jobs for closure or content change on a durable schedule.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/extractor"
)

const (
	defaultBatchSize   = 10
	defaultParallelism = 5
	defaultMaxPerSweep = 500
	checkLease         = 15 * time.Minute
	checkTimeout       = 60 * time.Second
)

// Dependencies are the collaborators of the monitor. Snapshots and Events are optional.
type Dependencies struct {
	Jobs      interfaces.JobStorage
	Monitors  interfaces.MonitorStorage
	Tracking  interfaces.TrackingStorage
	Fetcher   interfaces.ContentFetcher
	Extractor interfaces.Extractor
	Snapshots interfaces.SnapshotStore
	Events    interfaces.EventService
}

// Service is the per-job monitor and the sweep that fans out over due jobs
type Service struct {
	deps   Dependencies
	config common.MonitorConfig
	logger arbor.ILogger
	now    func() time.Time

	locks *keyedMutex

	sweepMu   sync.RWMutex
	lastSweep *models.SweepResult
}

// NewService creates the monitor service
func NewService(deps Dependencies, config common.MonitorConfig, logger arbor.ILogger) *Service {
	if config.DefaultIntervalHours <= 0 {
		config.DefaultIntervalHours = models.DefaultMonitoringFrequencyHours
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.Parallelism <= 0 {
		config.Parallelism = defaultParallelism
	}
	if config.MaxJobsPerSweep <= 0 {
		config.MaxJobsPerSweep = defaultMaxPerSweep
	}
	return &Service{
		deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

// Start enables monitoring for a job. url defaults to the job's URL and
// intervalHours to the configured default.
func (s *Service) Start(ctx context.Context, jobID, url string, intervalHours int) (*models.JobMonitorRecord, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	job, err := s.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusOpen {
		return nil, models.NewValidationError("job %s is %s", jobID, job.Status)
	}
	if intervalHours <= 0 {
		intervalHours = s.config.DefaultIntervalHours
	}
	if url == "" {
		url = job.URL
	}

	record, err := s.deps.Monitors.GetMonitor(ctx, jobID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		record = &models.JobMonitorRecord{JobID: jobID}
	}
	if record.LastSnapshot == nil {
		record.LastSnapshot = SnapshotFromJob(job)
		record.LastContentHash = ContentHash(record.LastSnapshot)
	}

	now := s.now()
	next := now.Add(time.Duration(intervalHours) * time.Hour)
	record.URL = url
	record.CheckIntervalHours = intervalHours
	record.State = models.MonitorMonitoring
	record.NextCheckAt = &next
	record.ConsecutiveErrors = 0
	record.LastError = ""

	_, err = s.deps.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusOpen {
			return models.NewValidationError("job %s is %s", jobID, j.Status)
		}
		j.DailyMonitoringEnabled = true
		j.MonitoringFrequencyHours = intervalHours
		if j.ContentHash == "" {
			j.ContentHash = record.LastContentHash
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("interval_hours", intervalHours).
		Str("next_check_at", next.Format(time.RFC3339)).
		Msg("Job monitor started")
	return record, nil
}

// Stop returns the monitor to idle and disables the job's scheduled checks
func (s *Service) Stop(ctx context.Context, jobID string) (*models.MonitorStatus, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	_, err := s.deps.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		j.DailyMonitoringEnabled = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	record, err := s.deps.Monitors.GetMonitor(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.MonitorStatus{JobID: jobID, State: models.MonitorIdle}, nil
		}
		return nil, err
	}
	if record.State.IsScheduled() {
		record.State = models.MonitorIdle
	}
	record.NextCheckAt = nil
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", jobID).Msg("Job monitor stopped")
	return statusOf(record), nil
}

// Status returns the read-only view of a job's monitor
func (s *Service) Status(ctx context.Context, jobID string) (*models.MonitorStatus, error) {
	record, err := s.deps.Monitors.GetMonitor(ctx, jobID)
	if err == nil {
		return statusOf(record), nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if _, err := s.deps.Jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return &models.MonitorStatus{JobID: jobID, State: models.MonitorIdle}, nil
}

// History returns the newest tracking entries for a job
func (s *Service) History(ctx context.Context, jobID string, limit int) ([]*models.TrackingHistoryEntry, error) {
	return s.deps.Tracking.GetTrackingHistory(ctx, jobID, limit)
}

func statusOf(record *models.JobMonitorRecord) *models.MonitorStatus {
	return &models.MonitorStatus{
		JobID:              record.JobID,
		State:              record.State,
		CheckIntervalHours: record.CheckIntervalHours,
		LastCheckAt:        record.LastCheckAt,
		NextCheckAt:        record.NextCheckAt,
		CheckCount:         record.CheckCount,
		LastError:          record.LastError,
	}
}

// dueCheck decides, under the job's lock, whether a scheduled check still has work to do.
// A check that lost the race to another path finds the job already rescheduled.
type dueCheck func(job *models.Job, record *models.JobMonitorRecord, now time.Time) bool

// Check fetches the job once and records closure, change or no change.
// Fetch and extraction failures are fail-soft: they are recorded as an error
// entry and the job is rescheduled. Only a missing job returns an error.
func (s *Service) Check(ctx context.Context, jobID string) (*models.CheckResult, error) {
	return s.check(ctx, jobID, nil)
}

func (s *Service) check(ctx context.Context, jobID string, due dueCheck) (*models.CheckResult, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	now := s.now()

	job, err := s.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.markMissing(ctx, jobID, now)
		}
		return &models.CheckResult{JobID: jobID, Outcome: models.CheckError, Error: err.Error()}, err
	}

	record, err := s.recordFor(ctx, job)
	if err != nil {
		return &models.CheckResult{JobID: jobID, Outcome: models.CheckError, Error: err.Error()}, err
	}

	if due != nil && !due(job, record, now) {
		s.logger.Debug().Str("job_id", jobID).Msg("Job already checked, skipping")
		return &models.CheckResult{JobID: jobID, Outcome: models.CheckSkipped}, nil
	}

	if job.Status != models.JobStatusOpen {
		record.State = models.MonitorClosed
		record.NextCheckAt = nil
		if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
			return nil, err
		}
		return &models.CheckResult{JobID: jobID, Outcome: models.CheckClosed}, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	url := record.URL
	if url == "" {
		url = job.URL
	}

	page, fetchErr := s.deps.Fetcher.Fetch(checkCtx, url, models.FetchOptions{Markdown: true, Timeout: checkTimeout})
	if page != nil && isGoneStatus(page.StatusCode) {
		if closure := DetectClosure(url, page, nil, now); closure != nil {
			return s.close(ctx, job, record, page, closure, now)
		}
	}
	if fetchErr != nil {
		return s.failSoft(ctx, job, record, page, fetchErr, now)
	}

	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = url
	}
	extracted, extractErr := s.deps.Extractor.Extract(checkCtx, models.ExtractionInput{
		URL:      finalURL,
		HTML:     page.HTML,
		Markdown: page.Markdown,
	}, extractor.JobSchema())
	if extractErr != nil {
		extracted = nil
	}

	if closure := DetectClosure(url, page, extracted, now); closure != nil {
		return s.close(ctx, job, record, page, closure, now)
	}
	if extractErr != nil {
		return s.failSoft(ctx, job, record, page, extractErr, now)
	}
	return s.observe(ctx, job, record, page, extracted, now)
}

// recordFor loads the job's monitor, deriving one from the job when monitoring
// was enabled without Start
func (s *Service) recordFor(ctx context.Context, job *models.Job) (*models.JobMonitorRecord, error) {
	record, err := s.deps.Monitors.GetMonitor(ctx, job.ID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	snapshot := SnapshotFromJob(job)
	hash := job.ContentHash
	if hash == "" {
		hash = ContentHash(snapshot)
	}
	state := models.MonitorIdle
	if job.DailyMonitoringEnabled {
		state = models.MonitorMonitoring
	}
	return &models.JobMonitorRecord{
		JobID:              job.ID,
		URL:                job.URL,
		CheckIntervalHours: int(job.MonitoringFrequency() / time.Hour),
		State:              state,
		LastContentHash:    hash,
		LastSnapshot:       snapshot,
		LastCheckAt:        job.LastStatusCheckAt,
	}, nil
}

func (s *Service) close(ctx context.Context, job *models.Job, record *models.JobMonitorRecord, page *models.FetchResult, closure *Closure, now time.Time) (*models.CheckResult, error) {
	entry := &models.TrackingHistoryEntry{
		ID:            common.NewID("trk"),
		JobID:         job.ID,
		TrackingDate:  now,
		Status:        models.TrackingStatusClosed,
		HTTPStatus:    page.StatusCode,
		ClosureReason: closure.Reason,
		SnapshotKey:   s.snapshot(ctx, job.ID, "closure", page, now),
	}
	if err := s.deps.Tracking.AppendTrackingHistory(ctx, entry); err != nil {
		return nil, err
	}

	record.State = models.MonitorClosed
	record.NextCheckAt = nil
	record.LastCheckAt = &now
	record.CheckCount++
	record.ConsecutiveErrors = 0
	record.LastError = ""
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		return nil, err
	}

	status := models.JobStatusClosed
	if closure.Expired {
		status = models.JobStatusExpired
	}
	job, err := s.deps.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.Status = status
		j.ClosureDetectedAt = &now
		j.LastStatusCheckAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("url", job.URL).
		Str("reason", closure.Reason).
		Int("http_status", page.StatusCode).
		Msg("Job closure detected")

	s.publish(ctx, interfaces.EventJobClosed, map[string]interface{}{
		"job_id": job.ID,
		"url":    job.URL,
		"status": job.Status,
		"reason": closure.Reason,
	})
	return &models.CheckResult{JobID: job.ID, Outcome: models.CheckClosed, Entry: entry}, nil
}

func (s *Service) observe(ctx context.Context, job *models.Job, record *models.JobMonitorRecord, page *models.FetchResult, extracted *models.ExtractedJob, now time.Time) (*models.CheckResult, error) {
	current := SnapshotFromExtraction(extracted)
	previous := record.LastSnapshot
	if previous == nil {
		previous = SnapshotFromJob(job)
	}

	entry := &models.TrackingHistoryEntry{
		ID:           common.NewID("trk"),
		JobID:        job.ID,
		TrackingDate: now,
		Status:       models.TrackingStatusOpen,
		ContentHash:  ContentHash(current),
		HTTPStatus:   page.StatusCode,
	}
	Diff(previous, current, entry)
	if err := s.deps.Tracking.AppendTrackingHistory(ctx, entry); err != nil {
		return nil, err
	}

	next := now.Add(record.Interval())
	record.State = models.MonitorJobActive
	record.LastSnapshot = current
	record.LastContentHash = entry.ContentHash
	record.LastCheckAt = &now
	record.NextCheckAt = &next
	record.CheckCount++
	record.ConsecutiveErrors = 0
	record.LastError = ""
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		return nil, err
	}

	job, err := s.deps.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.LastStatusCheckAt = &now
		j.ContentHash = entry.ContentHash
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := models.CheckUnchanged
	if entry.AnyChanged() {
		outcome = models.CheckChanged
		s.logger.Info().
			Str("job_id", job.ID).
			Bool("title", entry.TitleChanged).
			Bool("requirements", entry.RequirementsChanged).
			Bool("salary", entry.SalaryChanged).
			Bool("description", entry.DescriptionChanged).
			Msg("Job content changed")
	}

	s.publish(ctx, interfaces.EventMonitorChecked, map[string]interface{}{
		"job_id":  job.ID,
		"outcome": outcome,
		"entry":   entry,
	})
	return &models.CheckResult{JobID: job.ID, Outcome: outcome, Entry: entry}, nil
}

// failSoft records the failure and reschedules without changing the monitor state
func (s *Service) failSoft(ctx context.Context, job *models.Job, record *models.JobMonitorRecord, page *models.FetchResult, cause error, now time.Time) (*models.CheckResult, error) {
	entry := &models.TrackingHistoryEntry{
		ID:           common.NewID("trk"),
		JobID:        job.ID,
		TrackingDate: now,
		Status:       models.TrackingStatusError,
		ErrorMessage: cause.Error(),
	}
	if page != nil {
		entry.HTTPStatus = page.StatusCode
	}
	if err := s.deps.Tracking.AppendTrackingHistory(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to append error tracking entry")
	}

	record.LastCheckAt = &now
	record.CheckCount++
	record.ConsecutiveErrors++
	record.LastError = cause.Error()
	if record.State.IsScheduled() {
		next := now.Add(record.Interval())
		record.NextCheckAt = &next
	}
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reschedule monitor after error")
	}

	if _, err := s.deps.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.LastStatusCheckAt = &now
		return nil
	}); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job check time")
	}

	s.logger.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Int("consecutive_errors", record.ConsecutiveErrors).
		Msg("Monitor check failed")

	s.publish(ctx, interfaces.EventMonitorChecked, map[string]interface{}{
		"job_id":  job.ID,
		"outcome": models.CheckError,
		"entry":   entry,
	})
	return &models.CheckResult{JobID: job.ID, Outcome: models.CheckError, Entry: entry, Error: cause.Error()}, nil
}

// markMissing moves the monitor of a deleted job to error
func (s *Service) markMissing(ctx context.Context, jobID string, now time.Time) {
	record, err := s.deps.Monitors.GetMonitor(ctx, jobID)
	if err != nil {
		return
	}
	record.State = models.MonitorError
	record.NextCheckAt = nil
	record.LastCheckAt = &now
	record.LastError = fmt.Sprintf("job %s no longer exists", jobID)
	if err := s.deps.Monitors.SaveMonitor(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to mark monitor as error")
		return
	}
	s.logger.Warn().Str("job_id", jobID).Msg("Monitored job no longer exists")
}

// snapshot stores the page HTML under jobs/{id}/{kind}-{ts}.html
func (s *Service) snapshot(ctx context.Context, jobID, kind string, page *models.FetchResult, now time.Time) string {
	store := s.deps.Snapshots
	if store == nil || !store.Enabled() || page == nil || page.HTML == "" {
		return ""
	}
	key := fmt.Sprintf("jobs/%s/%s-%s.html", jobID, kind, now.UTC().Format("20060102T150405Z"))
	stored, err := store.Put(ctx, key, []byte(page.HTML), "text/html; charset=utf-8")
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Closure snapshot upload failed")
		return ""
	}
	return stored
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}

func isGoneStatus(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone
}

// keyedMutex serializes work per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
