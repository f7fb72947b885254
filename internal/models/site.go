package models

import "time"

// SiteStatus is the health status of a site
type SiteStatus string

const (
	SiteStatusActive SiteStatus = "active"
	SiteStatusPaused SiteStatus = "paused"
	SiteStatusError  SiteStatus = "error"
)

// Site is a job board or careers page that discovery runs against
type Site struct {
	ID                string            `json:"id" toml:"id" yaml:"id" badgerhold:"key"`
	Name              string            `json:"name" toml:"name" yaml:"name" validate:"required"`
	BaseURL           string            `json:"base_url" toml:"base_url" yaml:"base_url" validate:"required,url"`
	DiscoveryStrategy DiscoveryStrategy `json:"discovery_strategy" toml:"discovery_strategy" yaml:"discovery_strategy" validate:"required,oneof=sitemap crawl search api custom"`
	AllowedDomains    []string          `json:"allowed_domains,omitempty" toml:"allowed_domains" yaml:"allowed_domains"`
	BlockedDomains    []string          `json:"blocked_domains,omitempty" toml:"blocked_domains" yaml:"blocked_domains"`
	AllowedPaths      []string          `json:"allowed_paths,omitempty" toml:"allowed_paths" yaml:"allowed_paths"`
	BlockedPaths      []string          `json:"blocked_paths,omitempty" toml:"blocked_paths" yaml:"blocked_paths"`
	RateLimit         float64           `json:"rate_limit" toml:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 = scraper default
	Discovery         DiscoveryConfig   `json:"discovery" toml:"discovery" yaml:"discovery"`
	Status            SiteStatus        `json:"status" toml:"status" yaml:"status" badgerhold:"index"`
	LastDiscoveredAt  *time.Time        `json:"last_discovered_at,omitempty" toml:"-" yaml:"-"`
	LastError         string            `json:"last_error,omitempty" toml:"-" yaml:"-"`
	CreatedAt         time.Time         `json:"created_at" toml:"-" yaml:"-"`
	UpdatedAt         time.Time         `json:"updated_at" toml:"-" yaml:"-"`
}

// DiscoveryConfigFor merges the site's filters and strategy into its discovery overrides
func (s *Site) DiscoveryConfigFor(defaults DiscoveryConfig) DiscoveryConfig {
	cfg := defaults.Merge(s.Discovery)
	cfg.Strategy = s.DiscoveryStrategy
	if len(s.AllowedDomains) > 0 {
		cfg.AllowedDomains = s.AllowedDomains
	}
	if len(s.BlockedDomains) > 0 {
		cfg.BlockedDomains = s.BlockedDomains
	}
	if len(s.AllowedPaths) > 0 {
		cfg.AllowedPaths = s.AllowedPaths
	}
	if len(s.BlockedPaths) > 0 {
		cfg.BlockedPaths = s.BlockedPaths
	}
	return cfg
}
