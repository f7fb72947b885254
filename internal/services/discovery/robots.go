package discovery

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
)

const (
	defaultRobotsCacheTTL = 24 * time.Hour
	maxRobotsBodyBytes    = 512 * 1024
)

// RobotsChecker fetches and caches robots.txt per host. Missing or unreadable
// robots.txt allows everything.
type RobotsChecker struct {
	client    *resty.Client
	userAgent string
	cacheTTL  time.Duration

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsChecker creates a checker using client for fetches
func NewRobotsChecker(client *resty.Client, userAgent string, cacheTTL time.Duration) *RobotsChecker {
	if cacheTTL <= 0 {
		cacheTTL = defaultRobotsCacheTTL
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		cacheTTL:  cacheTTL,
		cache:     make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether robots.txt permits fetching rawURL
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	entry := r.entry(ctx, parsed)
	if entry.data == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return entry.data.TestAgent(path, r.userAgent)
}

// Sitemaps returns the Sitemap: lines declared in robots.txt for the host of rawURL
func (r *RobotsChecker) Sitemaps(ctx context.Context, rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	entry := r.entry(ctx, parsed)
	if entry.data == nil {
		return nil
	}
	return entry.data.Sitemaps
}

// CrawlDelay returns the crawl-delay for host, zero when unset or not cached
func (r *RobotsChecker) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[strings.ToLower(host)]
	if !ok || entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *RobotsChecker) entry(ctx context.Context, u *url.URL) *robotsEntry {
	host := strings.ToLower(u.Host)

	r.mu.RLock()
	entry, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= r.cacheTTL {
		return entry
	}

	entry = &robotsEntry{fetchedAt: time.Now()}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	resp, err := r.client.R().SetContext(ctx).Get(robotsURL)
	if err == nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		body := resp.Body()
		if len(body) > maxRobotsBodyBytes {
			body = body[:maxRobotsBodyBytes]
		}
		if data, parseErr := robotstxt.FromBytes(body); parseErr == nil {
			entry.data = data
		}
	}
	// Transport errors are not cached so the next request retries.
	if err != nil {
		return entry
	}

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}
