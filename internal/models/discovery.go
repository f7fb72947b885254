package models

import "time"

// DiscoveryStrategy selects how candidate job URLs are found for a site
type DiscoveryStrategy string

const (
	StrategySitemap DiscoveryStrategy = "sitemap"
	StrategyCrawl   DiscoveryStrategy = "crawl"
	StrategySearch  DiscoveryStrategy = "search"
	StrategyAPI     DiscoveryStrategy = "api"
	StrategyCustom  DiscoveryStrategy = "custom"
)

// IsValid reports whether s is a known strategy
func (s DiscoveryStrategy) IsValid() bool {
	switch s {
	case StrategySitemap, StrategyCrawl, StrategySearch, StrategyAPI, StrategyCustom:
		return true
	}
	return false
}

// DiscoveryConfig controls a single discovery pass
type DiscoveryConfig struct {
	Strategy             DiscoveryStrategy `json:"strategy" toml:"strategy" yaml:"strategy"`
	MaxURLs              int               `json:"max_urls,omitempty" toml:"max_urls" yaml:"max_urls"`
	MaxDepth             int               `json:"max_depth,omitempty" toml:"max_depth" yaml:"max_depth"`
	DelayBetweenRequests int               `json:"delay_between_requests_ms,omitempty" toml:"delay_between_requests_ms" yaml:"delay_between_requests_ms"`
	RespectRobotsTxt     *bool             `json:"respect_robots_txt,omitempty" toml:"respect_robots_txt" yaml:"respect_robots_txt"`
	AllowedDomains       []string          `json:"allowed_domains,omitempty" toml:"allowed_domains" yaml:"allowed_domains"`
	BlockedDomains       []string          `json:"blocked_domains,omitempty" toml:"blocked_domains" yaml:"blocked_domains"`
	AllowedPaths         []string          `json:"allowed_paths,omitempty" toml:"allowed_paths" yaml:"allowed_paths"`
	BlockedPaths         []string          `json:"blocked_paths,omitempty" toml:"blocked_paths" yaml:"blocked_paths"`
	SitemapURLs          []string          `json:"sitemap_urls,omitempty" toml:"sitemap_urls" yaml:"sitemap_urls"`
	SearchQueries        []string          `json:"search_queries,omitempty" toml:"search_queries" yaml:"search_queries"`
	APIPaths             []string          `json:"api_paths,omitempty" toml:"api_paths" yaml:"api_paths"`
	Selectors            []string          `json:"selectors,omitempty" toml:"selectors" yaml:"selectors"`
	StartPaths           []string          `json:"start_paths,omitempty" toml:"start_paths" yaml:"start_paths"`
	Headers              map[string]string `json:"headers,omitempty" toml:"headers" yaml:"headers"`
}

// Delay returns the configured pause between page fetches
func (c DiscoveryConfig) Delay() time.Duration {
	return time.Duration(c.DelayBetweenRequests) * time.Millisecond
}

// RobotsEnabled reports whether robots.txt should be consulted (default true)
func (c DiscoveryConfig) RobotsEnabled() bool {
	return c.RespectRobotsTxt == nil || *c.RespectRobotsTxt
}

// Merge overlays non-zero fields of o onto c
func (c DiscoveryConfig) Merge(o DiscoveryConfig) DiscoveryConfig {
	out := c
	if o.Strategy != "" {
		out.Strategy = o.Strategy
	}
	if o.MaxURLs > 0 {
		out.MaxURLs = o.MaxURLs
	}
	if o.MaxDepth > 0 {
		out.MaxDepth = o.MaxDepth
	}
	if o.DelayBetweenRequests > 0 {
		out.DelayBetweenRequests = o.DelayBetweenRequests
	}
	if o.RespectRobotsTxt != nil {
		out.RespectRobotsTxt = o.RespectRobotsTxt
	}
	if len(o.AllowedDomains) > 0 {
		out.AllowedDomains = o.AllowedDomains
	}
	if len(o.BlockedDomains) > 0 {
		out.BlockedDomains = o.BlockedDomains
	}
	if len(o.AllowedPaths) > 0 {
		out.AllowedPaths = o.AllowedPaths
	}
	if len(o.BlockedPaths) > 0 {
		out.BlockedPaths = o.BlockedPaths
	}
	if len(o.SitemapURLs) > 0 {
		out.SitemapURLs = o.SitemapURLs
	}
	if len(o.SearchQueries) > 0 {
		out.SearchQueries = o.SearchQueries
	}
	if len(o.APIPaths) > 0 {
		out.APIPaths = o.APIPaths
	}
	if len(o.Selectors) > 0 {
		out.Selectors = o.Selectors
	}
	if len(o.StartPaths) > 0 {
		out.StartPaths = o.StartPaths
	}
	if len(o.Headers) > 0 {
		out.Headers = o.Headers
	}
	return out
}

// DiscoveryResult is the outcome of one discovery pass. Errors are per sub-fetch and never fatal.
type DiscoveryResult struct {
	BaseURL  string            `json:"base_url"`
	Strategy DiscoveryStrategy `json:"strategy"`
	URLs     []string          `json:"urls"`
	Errors   []*ScrapingError  `json:"errors"`
	Duration time.Duration     `json:"duration_ns"`
	Enqueued int               `json:"enqueued,omitempty"`
	// Notes explain an empty or partial pass that produced no error
	Notes    []string          `json:"notes,omitempty"`
}

// NoteSearchNotConfigured marks a search pass that ran without a search backend
const NoteSearchNotConfigured = "search backend not configured"
