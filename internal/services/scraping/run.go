package scraping

import (
	"context"
	"errors"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/workers"
)

// execute drives runID until the queue is drained, max_items is reached, or the
// stored state says to stop. The caller must have marked runID active.
func (s *Service) execute(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	run, err := s.updateRun(ctx, runID, func(run *models.ScrapeRun) error {
		switch run.State {
		case models.RunStatePending, models.RunStatePaused:
			return run.Transition(models.RunStateRunning)
		case models.RunStateRunning:
			return nil
		default:
			return errRunNotRunnable
		}
	})
	if err != nil {
		s.release(runID)
		if errors.Is(err, errRunNotRunnable) {
			return s.deps.Runs.GetRun(ctx, runID)
		}
		return nil, err
	}
	s.publishState(ctx, run)

	if run.Progress.Total == 0 {
		if stats, err := s.deps.Queue.Stats(ctx); err == nil {
			total := stats.Pending
			if run.Config.MaxItems > 0 && total > run.Config.MaxItems {
				total = run.Config.MaxItems
			}
			if updated, err := s.updateRun(ctx, runID, func(r *models.ScrapeRun) error {
				r.Progress.Total = total
				return nil
			}); err == nil {
				run = updated
			}
		}
	}

	cfg := run.Config
	started := time.Now()
	var lastStart time.Time

	s.logger.Info().
		Str("run_id", runID).
		Int("max_concurrent", cfg.MaxConcurrent).
		Int("max_items", cfg.MaxItems).
		Int("total", run.Progress.Total).
		Msg("Scrape run started")

	for {
		stop, current, err := s.checkStop(ctx, runID)
		if err != nil {
			s.release(runID)
			return nil, err
		}
		if stop {
			s.logger.Info().Str("run_id", runID).Str("state", string(current.State)).Msg("Scrape run stopped before next claim")
			return s.settle(ctx, runID, started, false)
		}
		if ctx.Err() != nil {
			s.release(runID)
			return nil, ctx.Err()
		}

		n := cfg.MaxConcurrent
		if cfg.MaxItems > 0 {
			if remaining := cfg.MaxItems - current.Results.TotalURLs; remaining < n {
				n = remaining
			}
		}
		if n <= 0 {
			break
		}

		items, err := s.deps.Queue.ClaimBatch(ctx, n)
		if err != nil {
			return s.fail(ctx, runID, err)
		}
		if len(items) == 0 {
			break
		}

		pool := workers.NewPool(ctx, "scrape-"+runID, cfg.MaxConcurrent, s.logger)
		pool.Start()
		for _, item := range items {
			if delay := cfg.Delay(); delay > 0 && !lastStart.IsZero() {
				if wait := delay - time.Since(lastStart); wait > 0 {
					sleep(ctx, wait)
				}
			}
			lastStart = time.Now()

			item := item
			if err := pool.Submit(func(ctx context.Context) error {
				result := s.processItem(ctx, cfg, item)
				s.record(ctx, runID, result)
				return nil
			}); err != nil {
				s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Item not dispatched, left for stale release")
			}
		}
		pool.Wait()
	}

	s.release(runID)
	return s.settle(ctx, runID, started, true)
}

// checkStop reads the stored state. A run that should stop is removed from the
// active set in the same critical section that observed the state.
func (s *Service) checkStop(ctx context.Context, runID string) (bool, *models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return false, nil, err
	}
	if run.State != models.RunStateRunning {
		delete(s.active, runID)
		return true, run, nil
	}
	return false, run, nil
}

func (s *Service) release(runID string) {
	s.mu.Lock()
	delete(s.active, runID)
	s.mu.Unlock()
}

// settle records duration and, when complete is set and the run is still running,
// finishes it. A cancelled run keeps its partial progress.
func (s *Service) settle(ctx context.Context, runID string, started time.Time, complete bool) (*models.ScrapeRun, error) {
	run, err := s.updateRun(ctx, runID, func(run *models.ScrapeRun) error {
		run.Results.DurationMs += time.Since(started).Milliseconds()
		if complete && run.State == models.RunStateRunning {
			run.Progress.Finish()
			return run.Transition(models.RunStateCompleted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("state", string(run.State)).
		Int("total", run.Results.TotalURLs).
		Int("successful", run.Results.Successful).
		Int("failed", run.Results.Failed).
		Int("requeued", run.Results.Requeued).
		Float64("avg_response_ms", run.Results.AvgResponseTimeMs).
		Msg("Scrape run settled")

	s.publishState(ctx, run)
	return run, nil
}

func (s *Service) fail(ctx context.Context, runID string, cause error) (*models.ScrapeRun, error) {
	s.release(runID)
	run, err := s.updateRun(ctx, runID, func(run *models.ScrapeRun) error {
		run.Error = cause.Error()
		return run.Transition(models.RunStateFailed)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Error().Err(cause).Str("run_id", runID).Msg("Scrape run failed")
	s.publishState(ctx, run)
	return run, nil
}

// record folds one item result into the run and publishes progress
func (s *Service) record(ctx context.Context, runID string, result models.ItemResult) {
	run, err := s.updateRun(ctx, runID, func(run *models.ScrapeRun) error {
		run.Results.Record(result)
		run.Progress.Advance()
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record item result")
		return
	}
	s.publish(ctx, interfaces.EventRunProgress, map[string]interface{}{
		"run_id":   runID,
		"state":    run.State,
		"progress": run.Progress,
		"item":     result,
	})
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
