// Package discovery finds candidate job URLs for a site using one of several strategies.
package discovery

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const (
	defaultMaxURLs   = 500
	defaultMaxDepth  = 2
	defaultUserAgent = "scout/1.0 (+https://github.com/jmbish04/9to5-scout-retrofit-project-sub004)"
	defaultTimeout   = 30 * time.Second
)

// Engine runs discovery passes. Page rendering goes through the content fetcher;
// robots.txt, sitemaps and API probes use a plain resty client.
type Engine struct {
	fetcher  interfaces.ContentFetcher
	client   *resty.Client
	robots   *RobotsChecker
	search   interfaces.SearchBackend
	defaults models.DiscoveryConfig
	logger   arbor.ILogger
}

// NewEngine creates a discovery engine. A nil search backend means search is not configured.
func NewEngine(fetcher interfaces.ContentFetcher, search interfaces.SearchBackend, fetcherConfig common.FetcherConfig, defaults models.DiscoveryConfig, logger arbor.ILogger) *Engine {
	userAgent := fetcherConfig.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client := resty.New()
	client.SetHeader("User-Agent", userAgent)
	client.SetTimeout(common.Duration(fetcherConfig.Timeout, defaultTimeout))
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	if search == nil {
		search = NewNopSearchBackend()
	}

	return &Engine{
		fetcher:  fetcher,
		client:   client,
		robots:   NewRobotsChecker(client, userAgent, 0),
		search:   search,
		defaults: defaults,
		logger:   logger,
	}
}

// DefaultsFromConfig converts the discovery section of application config into pass defaults
func DefaultsFromConfig(config common.DiscoveryConfig) models.DiscoveryConfig {
	respect := config.RespectRobotsTxt
	return models.DiscoveryConfig{
		Strategy:             models.StrategySitemap,
		MaxURLs:              config.MaxURLs,
		MaxDepth:             config.MaxDepth,
		DelayBetweenRequests: config.DelayBetweenRequests,
		RespectRobotsTxt:     &respect,
	}
}

// pass carries the state of one Discover call
type pass struct {
	base    *url.URL
	config  models.DiscoveryConfig
	urls    *collector
	result  *models.DiscoveryResult
	fetches int
}

func (p *pass) addError(err error, rawURL string) {
	if se := models.AsScrapingError(err, rawURL); se != nil {
		p.result.Errors = append(p.result.Errors, se)
	}
}

// Discover returns candidate URLs for baseURL. Sub-fetch failures are collected in
// the result; the error return is reserved for an unusable base URL or config.
func (e *Engine) Discover(ctx context.Context, baseURL string, config models.DiscoveryConfig) (*models.DiscoveryResult, error) {
	normalized, err := common.NormalizeURL(baseURL)
	if err != nil {
		return nil, models.NewValidationError("invalid base url %q: %v", baseURL, err)
	}
	base, err := url.Parse(normalized)
	if err != nil {
		return nil, models.NewValidationError("invalid base url %q: %v", baseURL, err)
	}

	config = e.defaults.Merge(config)
	if config.Strategy == "" {
		config.Strategy = models.StrategySitemap
	}
	if !config.Strategy.IsValid() {
		return nil, models.NewValidationError("unknown discovery strategy %q", config.Strategy)
	}
	if config.Strategy == models.StrategyCustom && len(config.Selectors) == 0 {
		return nil, models.NewValidationError("custom discovery requires at least one selector")
	}
	if config.MaxURLs <= 0 {
		config.MaxURLs = defaultMaxURLs
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = defaultMaxDepth
	}

	start := time.Now()
	p := &pass{
		base:   base,
		config: config,
		urls:   newCollector(NewURLFilter(config), config.MaxURLs),
		result: &models.DiscoveryResult{
			BaseURL:  normalized,
			Strategy: config.Strategy,
			Errors:   []*models.ScrapingError{},
		},
	}

	switch config.Strategy {
	case models.StrategySitemap:
		e.discoverSitemap(ctx, p)
	case models.StrategyCrawl:
		e.discoverCrawl(ctx, p)
	case models.StrategySearch:
		e.discoverSearch(ctx, p)
	case models.StrategyAPI:
		e.discoverAPI(ctx, p)
	case models.StrategyCustom:
		e.discoverCustom(ctx, p)
	}

	p.result.URLs = p.urls.urls
	if p.result.URLs == nil {
		p.result.URLs = []string{}
	}
	p.result.Duration = time.Since(start)

	e.logger.Info().
		Str("base_url", normalized).
		Str("strategy", string(config.Strategy)).
		Int("urls", len(p.result.URLs)).
		Int("errors", len(p.result.Errors)).
		Dur("duration", p.result.Duration).
		Msg("Discovery pass completed")

	return p.result, nil
}

// pause waits the configured delay before every fetch but the first
func (e *Engine) pause(ctx context.Context, p *pass) error {
	p.fetches++
	if p.fetches == 1 {
		return nil
	}
	delay := p.config.Delay()
	if crawlDelay := e.robots.CrawlDelay(p.base.Host); p.config.RobotsEnabled() && crawlDelay > delay {
		delay = crawlDelay
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fetchRaw downloads rawURL without rendering. Errors are *models.ScrapingError.
func (e *Engine) fetchRaw(ctx context.Context, p *pass, rawURL string, headers map[string]string) ([]byte, error) {
	if err := e.pause(ctx, p); err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeTimeout, rawURL, err)
	}

	req := e.client.R().SetContext(ctx)
	if len(p.config.Headers) > 0 {
		req.SetHeaders(p.config.Headers)
	}
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(rawURL)
	if err != nil {
		return nil, models.AsScrapingError(err, rawURL)
	}
	if se := models.ClassifyHTTPStatus(resp.StatusCode(), rawURL); se != nil {
		return nil, se
	}
	return resp.Body(), nil
}

// fetchPage renders rawURL through the content fetcher
func (e *Engine) fetchPage(ctx context.Context, p *pass, rawURL string) (*models.FetchResult, error) {
	if err := e.pause(ctx, p); err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeTimeout, rawURL, err)
	}
	result, err := e.fetcher.Fetch(ctx, rawURL, models.FetchOptions{Headers: p.config.Headers})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isNotFound(err error) bool {
	var se *models.ScrapingError
	return errors.As(err, &se) && se.Type == models.ErrorTypeNotFound
}

// Close releases idle connections of the raw client
func (e *Engine) Close() error {
	e.client.GetClient().CloseIdleConnections()
	return nil
}
