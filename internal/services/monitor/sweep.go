package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/workers"
)

// RunSweep checks every job due for monitoring, oldest check first, in batches.
// Per-job failures are counted in the result and never abort the sweep.
func (s *Service) RunSweep(ctx context.Context) (*models.SweepResult, error) {
	started := s.now()
	due, err := s.deps.Jobs.GetJobsDueForMonitoring(ctx, started, s.config.MaxJobsPerSweep)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(due))
	for i, job := range due {
		ids[i] = job.ID
	}
	stillDue := func(string) dueCheck {
		return func(job *models.Job, _ *models.JobMonitorRecord, now time.Time) bool {
			return job.IsDueForMonitoring(now)
		}
	}

	s.logger.Info().
		Int("due", len(ids)).
		Int("batch_size", s.config.BatchSize).
		Int("parallelism", s.config.Parallelism).
		Msg("Monitoring sweep started")

	result := &models.SweepResult{StartedAt: started}
	for offset := 0; offset < len(ids); offset += s.config.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := offset + s.config.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		s.checkAll(ctx, "monitor-sweep", ids[offset:end], stillDue, result)
	}
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	s.sweepMu.Lock()
	s.lastSweep = result
	s.sweepMu.Unlock()

	s.logger.Info().
		Int("total_checked", result.TotalChecked).
		Int("unchanged", result.Unchanged).
		Int("changed", result.Changed).
		Int("closed", result.Closed).
		Int("errors", result.Errors).
		Int("skipped", result.Skipped).
		Int64("processing_time_ms", result.ProcessingTimeMs).
		Msg("Monitoring sweep completed")

	s.publish(ctx, interfaces.EventSweepCompleted, result)
	return result, nil
}

// RunDue claims monitors whose next check time has passed and checks each once.
// The claim leases next_check_at forward so concurrent callers never check the same job.
func (s *Service) RunDue(ctx context.Context, now time.Time, limit int) (*models.SweepResult, error) {
	if limit <= 0 {
		limit = s.config.WakeLimit
	}
	claimed, err := s.deps.Monitors.ClaimDueMonitors(ctx, now, checkLease, limit)
	if err != nil {
		return nil, err
	}

	result := &models.SweepResult{StartedAt: now}
	if len(claimed) == 0 {
		return result, nil
	}

	ids := make([]string, len(claimed))
	leases := make(map[string]time.Time, len(claimed))
	for i, record := range claimed {
		ids[i] = record.JobID
		leases[record.JobID] = *record.NextCheckAt
	}
	// a claim is stale once another check has moved next_check_at off the lease
	holdsLease := func(jobID string) dueCheck {
		lease := leases[jobID]
		return func(_ *models.Job, record *models.JobMonitorRecord, _ time.Time) bool {
			return record.NextCheckAt != nil && record.NextCheckAt.Equal(lease)
		}
	}
	s.checkAll(ctx, "monitor-wake", ids, holdsLease, result)
	result.ProcessingTimeMs = time.Since(now).Milliseconds()

	s.logger.Debug().
		Int("claimed", len(ids)).
		Int("changed", result.Changed).
		Int("closed", result.Closed).
		Int("errors", result.Errors).
		Msg("Due monitors checked")
	return result, nil
}

// checkAll runs a guarded check for each job on a bounded pool and folds outcomes into result
func (s *Service) checkAll(ctx context.Context, name string, jobIDs []string, guard func(jobID string) dueCheck, result *models.SweepResult) {
	var mu sync.Mutex
	pool := workers.NewPool(ctx, name, s.config.Parallelism, s.logger)
	pool.Start()

	for _, id := range jobIDs {
		id := id
		err := pool.Submit(func(ctx context.Context) error {
			outcome := models.CheckError
			res, err := s.check(ctx, id, guard(id))
			if err == nil && res != nil {
				outcome = res.Outcome
			}
			mu.Lock()
			result.Add(outcome)
			mu.Unlock()
			return err
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Monitor check not dispatched")
			break
		}
	}
	pool.Wait()
}

// LastSweep returns the most recent sweep result, or nil before the first sweep
func (s *Service) LastSweep() *models.SweepResult {
	s.sweepMu.RLock()
	defer s.sweepMu.RUnlock()
	return s.lastSweep
}

// MonitoringStatus aggregates the counts served by the monitoring status endpoint
func (s *Service) MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error) {
	now := s.now()
	status := &models.MonitoringStatus{GeneratedAt: now, LastSweep: s.LastSweep()}

	monitored, err := s.deps.Jobs.CountMonitoredJobs(ctx)
	if err != nil {
		return nil, err
	}
	status.MonitoredJobs = monitored

	due, err := s.deps.Jobs.GetJobsDueForMonitoring(ctx, now, 0)
	if err != nil {
		return nil, err
	}
	status.DueNow = len(due)

	closed, err := s.deps.Jobs.CountClosedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	status.ClosedLast24h = closed

	for _, state := range []models.MonitorState{models.MonitorMonitoring, models.MonitorJobActive} {
		records, err := s.deps.Monitors.ListMonitors(ctx, state)
		if err != nil {
			return nil, err
		}
		status.ActiveMonitors += len(records)
	}

	next, err := s.deps.Monitors.NextWake(ctx)
	if err != nil {
		return nil, err
	}
	status.NextMonitorWake = next
	return status, nil
}
