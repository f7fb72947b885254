package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// SourceDiscovery is the queue source recorded for discovered URLs
const SourceDiscovery = "discovery"

// Service runs discovery for stored sites and feeds the scrape queue
type Service struct {
	engine   *Engine
	sites    interfaces.SiteStorage
	queue    interfaces.ScrapeQueue
	events   interfaces.EventService
	priority int
	logger   arbor.ILogger
}

// NewService creates a discovery service. events may be nil.
func NewService(engine *Engine, sites interfaces.SiteStorage, queue interfaces.ScrapeQueue, events interfaces.EventService, priority int, logger arbor.ILogger) *Service {
	return &Service{
		engine:   engine,
		sites:    sites,
		queue:    queue,
		events:   events,
		priority: priority,
		logger:   logger,
	}
}

// Discover runs one pass against baseURL and optionally enqueues the results
func (s *Service) Discover(ctx context.Context, baseURL string, config models.DiscoveryConfig, enqueue bool) (*models.DiscoveryResult, error) {
	result, err := s.engine.Discover(ctx, baseURL, config)
	if err != nil {
		return nil, err
	}
	if enqueue {
		s.enqueue(ctx, result, "")
	}
	s.publish(ctx, result, "")
	return result, nil
}

// DiscoverSite runs discovery with the site's configuration and records the outcome on the site
func (s *Service) DiscoverSite(ctx context.Context, siteID string, enqueue bool) (*models.DiscoveryResult, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	result, discoverErr := s.engine.Discover(ctx, site.BaseURL, site.DiscoveryConfigFor(s.engine.defaults))

	now := time.Now()
	site.LastDiscoveredAt = &now
	site.UpdatedAt = now
	switch {
	case discoverErr != nil:
		site.LastError = discoverErr.Error()
		site.Status = models.SiteStatusError
	case len(result.URLs) == 0 && len(result.Errors) > 0:
		site.LastError = result.Errors[0].Error()
	default:
		site.LastError = ""
		if site.Status == models.SiteStatusError {
			site.Status = models.SiteStatusActive
		}
	}
	if err := s.sites.SaveSite(ctx, site); err != nil {
		s.logger.Warn().Err(err).Str("site_id", site.ID).Msg("Failed to record discovery outcome on site")
	}
	if discoverErr != nil {
		return nil, discoverErr
	}

	if enqueue {
		s.enqueue(ctx, result, site.ID)
	}
	s.publish(ctx, result, site.ID)
	return result, nil
}

// DiscoverActiveSites runs discovery for every active site. Per-site failures are
// logged and counted, never returned.
func (s *Service) DiscoverActiveSites(ctx context.Context) (int, int, error) {
	sites, err := s.sites.ListSites(ctx, models.SiteStatusActive)
	if err != nil {
		return 0, 0, fmt.Errorf("list active sites: %w", err)
	}

	enqueued, failed := 0, 0
	for _, site := range sites {
		if ctx.Err() != nil {
			return enqueued, failed, ctx.Err()
		}
		result, err := s.DiscoverSite(ctx, site.ID, true)
		if err != nil {
			failed++
			s.logger.Warn().Err(err).Str("site_id", site.ID).Str("site", site.Name).Msg("Site discovery failed")
			continue
		}
		enqueued += result.Enqueued
	}

	s.logger.Info().Int("sites", len(sites)).Int("enqueued", enqueued).Int("failed", failed).Msg("Scheduled site discovery completed")
	return enqueued, failed, nil
}

func (s *Service) enqueue(ctx context.Context, result *models.DiscoveryResult, siteID string) {
	for _, u := range result.URLs {
		_, created, err := s.queue.Enqueue(ctx, &models.ScrapeQueueItem{
			URL:      u,
			Source:   SourceDiscovery,
			SourceID: string(result.Strategy),
			SiteID:   siteID,
			Priority: s.priority,
		})
		if err != nil {
			result.Errors = append(result.Errors, models.AsScrapingError(err, u))
			continue
		}
		if created {
			result.Enqueued++
		}
	}
}

func (s *Service) publish(ctx context.Context, result *models.DiscoveryResult, siteID string) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"site_id":  siteID,
		"base_url": result.BaseURL,
		"strategy": result.Strategy,
		"urls":     len(result.URLs),
		"enqueued": result.Enqueued,
		"errors":   len(result.Errors),
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventDiscoveryCompleted, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish discovery event")
	}
}
