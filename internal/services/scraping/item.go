package scraping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/extractor"
)

// processItem runs fetch -> extract -> upsert -> snapshot -> complete for one claimed item.
// Every failure ends in queue.Fail, which decides between requeue and terminal failure.
func (s *Service) processItem(ctx context.Context, cfg models.ScrapingConfig, item *models.ScrapeQueueItem) models.ItemResult {
	start := time.Now()
	result := models.ItemResult{QueueItemID: item.ID, URL: item.URL}

	itemCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	job, confidence, err := s.scrape(itemCtx, cfg, item)
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		se := models.AsScrapingError(err, item.URL)
		retryable := se.Retryable()
		if failErr := s.deps.Queue.Fail(ctx, item.ID, se, retryable); failErr != nil {
			s.logger.Warn().Err(failErr).Str("item_id", item.ID).Msg("Failed to record item failure")
		}
		result.Error = se
		result.Requeued = retryable && item.RetryCount < item.MaxRetries

		s.logger.Warn().
			Str("item_id", item.ID).
			Str("url", item.URL).
			Str("error_type", string(se.Type)).
			Bool("requeued", result.Requeued).
			Msg(se.Message)
		return result
	}

	if err := s.deps.Queue.Complete(ctx, item.ID, models.QueueOutcome{JobID: job.ID}); err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to complete queue item")
	}

	result.Success = true
	result.JobID = job.ID
	result.Confidence = confidence
	return result
}

func (s *Service) scrape(ctx context.Context, cfg models.ScrapingConfig, item *models.ScrapeQueueItem) (*models.Job, float64, error) {
	if err := s.deps.Limiter.Wait(ctx, item.URL); err != nil {
		return nil, 0, models.NewScrapingError(models.ErrorTypeTimeout, item.URL, fmt.Errorf("rate limiter: %w", err))
	}

	page, err := s.deps.Fetcher.Fetch(ctx, item.URL, models.FetchOptions{
		Authenticate:    cfg.Authenticate,
		Headers:         cfg.Headers,
		Timeout:         cfg.Timeout(),
		WaitForSelector: cfg.WaitForSelector,
		Screenshot:      cfg.Screenshot,
		PDF:             cfg.PDF,
		Markdown:        true,
	})
	if err != nil {
		return nil, 0, err
	}

	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = item.URL
	}
	extracted, err := s.deps.Extractor.Extract(ctx, models.ExtractionInput{
		URL:      finalURL,
		HTML:     page.HTML,
		Markdown: page.Markdown,
	}, extractor.JobSchema())
	if err != nil {
		return nil, 0, err
	}

	job := &models.Job{
		URL:    item.URL,
		SiteID: item.SiteID,
		Source: jobSource(item.Source),
	}
	if page.Redirected() {
		job.CanonicalURL = finalURL
	}
	job.ApplyExtraction(extracted, s.config.LowConfidenceThreshold)
	now := time.Now()
	job.LastCrawledAt = &now

	saved, created, err := s.deps.Jobs.UpsertJobByURL(ctx, job)
	if err != nil {
		return nil, 0, models.AsScrapingError(err, item.URL)
	}

	if key := s.snapshot(ctx, saved, page); key != "" {
		updated, err := s.deps.Jobs.UpdateJob(ctx, saved.ID, func(j *models.Job) error {
			j.SnapshotKey = key
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", saved.ID).Msg("Failed to record snapshot key")
		} else {
			saved = updated
		}
	}

	if created && cfg.EnableMonitor && s.deps.Monitor != nil {
		if _, err := s.deps.Monitor.Start(ctx, saved.ID, saved.URL, cfg.MonitorHours); err != nil {
			s.logger.Warn().Err(err).Str("job_id", saved.ID).Msg("Failed to start monitor for new job")
		}
	}

	s.publish(ctx, interfaces.EventJobUpserted, map[string]interface{}{
		"job_id":       saved.ID,
		"url":          saved.URL,
		"title":        saved.Title,
		"created":      created,
		"needs_review": saved.NeedsReview,
	})

	s.logger.Debug().
		Str("job_id", saved.ID).
		Str("url", saved.URL).
		Bool("created", created).
		Float64("confidence", extracted.ConfidenceScore).
		Str("method", string(extracted.Method)).
		Msg("Job upserted")

	return saved, extracted.ConfidenceScore, nil
}

// snapshot uploads the page artifacts and returns the HTML object key. Upload
// failures are logged and never fail the item.
func (s *Service) snapshot(ctx context.Context, job *models.Job, page *models.FetchResult) string {
	store := s.deps.Snapshots
	if store == nil || !store.Enabled() {
		return ""
	}

	prefix := fmt.Sprintf("jobs/%s/%s", job.ID, time.Now().UTC().Format("20060102T150405Z"))
	htmlKey := ""
	if s.config.SnapshotHTML && page.HTML != "" {
		key, err := store.Put(ctx, prefix+".html", []byte(page.HTML), "text/html; charset=utf-8")
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("HTML snapshot upload failed")
		} else {
			htmlKey = key
		}
	}
	if len(page.Screenshot) > 0 {
		if _, err := store.Put(ctx, prefix+".jpg", page.Screenshot, "image/jpeg"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Screenshot upload failed")
		}
	}
	if len(page.PDF) > 0 {
		if _, err := store.Put(ctx, prefix+".pdf", page.PDF, "application/pdf"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("PDF upload failed")
		}
	}
	return htmlKey
}

func jobSource(queueSource string) models.JobSource {
	switch strings.ToLower(queueSource) {
	case "email":
		return models.JobSourceEmail
	case "manual":
		return models.JobSourceManual
	default:
		return models.JobSourceScraped
	}
}
