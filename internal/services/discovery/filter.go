package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// pathPattern matches a URL path either as a regular expression or, when the
// pattern does not compile, as a literal substring.
type pathPattern struct {
	re      *regexp.Regexp
	literal string
}

func compilePattern(pattern string) pathPattern {
	if re, err := regexp.Compile(pattern); err == nil {
		return pathPattern{re: re}
	}
	return pathPattern{literal: pattern}
}

func (p pathPattern) match(path string) bool {
	if p.re != nil {
		return p.re.MatchString(path)
	}
	return strings.Contains(path, p.literal)
}

// URLFilter applies the domain and path rules of a discovery config
type URLFilter struct {
	allowedDomains []string
	blockedDomains []string
	allowedPaths   []pathPattern
	blockedPaths   []pathPattern
}

// NewURLFilter compiles the filter rules from config
func NewURLFilter(config models.DiscoveryConfig) *URLFilter {
	f := &URLFilter{
		allowedDomains: config.AllowedDomains,
		blockedDomains: config.BlockedDomains,
	}
	for _, p := range config.AllowedPaths {
		if p = strings.TrimSpace(p); p != "" {
			f.allowedPaths = append(f.allowedPaths, compilePattern(p))
		}
	}
	for _, p := range config.BlockedPaths {
		if p = strings.TrimSpace(p); p != "" {
			f.blockedPaths = append(f.blockedPaths, compilePattern(p))
		}
	}
	return f
}

// Allow reports whether rawURL passes every rule
func (f *URLFilter) Allow(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	return f.AllowHost(parsed.Hostname()) && f.allowPath(parsed.Path)
}

// AllowHost applies only the domain rules
func (f *URLFilter) AllowHost(host string) bool {
	for _, d := range f.blockedDomains {
		if common.HostMatches(host, d) {
			return false
		}
	}
	if len(f.allowedDomains) == 0 {
		return true
	}
	for _, d := range f.allowedDomains {
		if common.HostMatches(host, d) {
			return true
		}
	}
	return false
}

func (f *URLFilter) allowPath(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, p := range f.blockedPaths {
		if p.match(path) {
			return false
		}
	}
	if len(f.allowedPaths) == 0 {
		return true
	}
	for _, p := range f.allowedPaths {
		if p.match(path) {
			return true
		}
	}
	return false
}

// collector accumulates normalized, filtered, deduplicated candidate URLs up to a cap
type collector struct {
	filter *URLFilter
	max    int
	seen   map[string]struct{}
	urls   []string
}

func newCollector(filter *URLFilter, max int) *collector {
	return &collector{
		filter: filter,
		max:    max,
		seen:   make(map[string]struct{}),
	}
}

// add records rawURL and reports whether it was new and accepted
func (c *collector) add(rawURL string) bool {
	if c.full() {
		return false
	}
	normalized, err := common.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if !c.filter.Allow(normalized) {
		return false
	}
	if _, ok := c.seen[normalized]; ok {
		return false
	}
	c.seen[normalized] = struct{}{}
	c.urls = append(c.urls, normalized)
	return true
}

func (c *collector) full() bool {
	return c.max > 0 && len(c.urls) >= c.max
}

// resolve returns ref made absolute against base, or "" for non-web links
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
