package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/queue"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
)

func newEngine(search *fakeSearch) *Engine {
	logger := arbor.NewLogger()
	f := fetcher.NewHTTPFetcher(common.FetcherConfig{Timeout: "5s"}, logger)
	if search == nil {
		return NewEngine(f, nil, common.FetcherConfig{Timeout: "5s"}, models.DiscoveryConfig{}, logger)
	}
	return NewEngine(f, search, common.FetcherConfig{Timeout: "5s"}, models.DiscoveryConfig{}, logger)
}

func html(body string) string {
	return "<html><head><title>t</title></head><body>" + body + "</body></html>"
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newSite serves a small careers site. robots.txt advertises a sitemap index
// whose children include a gzipped urlset.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	gz := func(host string) []byte {
		return gzipBytes(t, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://%[1]s/jobs/1</loc><lastmod>2026-01-02</lastmod></url>
  <url><loc>http://%[1]s/jobs/2</loc></url>
  <url><loc>https://evil.com/jobs/1</loc></url>
</urlset>`, host))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprintf(w, "User-agent: *\nDisallow: /private\n\nSitemap: http://%s/sitemap_index.xml\n", host)
		case "/sitemap_index.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>http://%[1]s/sitemap-jobs.xml.gz</loc></sitemap>
  <sitemap><loc>http://%[1]s/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>http://%[1]s/sitemap_index.xml</loc></sitemap>
</sitemapindex>`, host)
		case "/sitemap-jobs.xml.gz":
			w.Header().Set("Content-Type", "application/x-gzip")
			w.Write(gz(host))
		case "/sitemap-pages.xml":
			fmt.Fprintf(w, `<urlset><url><loc>http://%[1]s/about</loc></url><url><loc>http://%[1]s/jobs/3</loc></url></urlset>`, host)
		case "/":
			fmt.Fprint(w, html(`<a href="/jobs">Jobs</a> <a href="/about">About</a>
				<a href="/private/admin">Admin</a> <a href="https://evil.com/jobs/1">Elsewhere</a>
				<a href="mailto:hr@example.com">Mail</a> <a href="#top">Top</a>`))
		case "/jobs":
			fmt.Fprint(w, html(`<a href="/jobs/1">One</a> <a href="jobs/2">Two</a> <a href="/">Home</a>`))
		case "/about", "/jobs/1", "/jobs/2", "/jobs/3":
			fmt.Fprint(w, html(`<p>page</p>`))
		case "/careers":
			fmt.Fprint(w, html(`<ul>
				<li class="posting" data-url="/jobs/3">Three</li>
				<li><a class="job" href="/jobs/1">One</a></li>
				<li class="card"><span><a href="/jobs/2">Two</a></span></li>
				<li class="card">no link</li>
			</ul>`))
		case "/api/jobs":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jobs":[{"title":"One","absolute_url":"/jobs/1"},{"meta":{"jobUrl":"http://%s/jobs/2"}},{"title":"Dup","url":"/jobs/1"}],"count":3}`, host)
		case "/api/careers":
			fmt.Fprint(w, html(`<p>not json</p>`))
		case "/jobs.json":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFilterExcludesForeignDomains(t *testing.T) {
	f := NewURLFilter(models.DiscoveryConfig{AllowedDomains: []string{"example.com"}})
	assert.False(t, f.Allow("https://evil.com/jobs/1"))
	assert.True(t, f.Allow("https://example.com/jobs/1"))
	assert.True(t, f.Allow("https://careers.example.com/jobs/1"))
	assert.False(t, f.Allow("https://notexample.com/jobs/1"))
}

func TestFilterPathRules(t *testing.T) {
	f := NewURLFilter(models.DiscoveryConfig{
		BlockedDomains: []string{"ads.example.com"},
		AllowedPaths:   []string{`^/jobs/\d+$`, "/careers/"},
		BlockedPaths:   []string{"/careers/archive", "[unclosed"},
	})
	assert.True(t, f.Allow("https://example.com/jobs/42"))
	assert.False(t, f.Allow("https://example.com/jobs/"))
	assert.True(t, f.Allow("https://example.com/en/careers/engineer"))
	assert.False(t, f.Allow("https://example.com/careers/archive/1"))
	assert.False(t, f.Allow("https://ads.example.com/jobs/1"))
	assert.False(t, f.Allow("https://example.com/about"))

	literal := NewURLFilter(models.DiscoveryConfig{BlockedPaths: []string{"[unclosed"}})
	assert.False(t, literal.Allow("https://example.com/x/[unclosed"))
	assert.True(t, literal.Allow("https://example.com/x"))
}

func TestDiscoverRejectsBadConfig(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	_, err := e.Discover(ctx, "not a url", models.DiscoveryConfig{Strategy: models.StrategySitemap})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))

	_, err = e.Discover(ctx, "https://example.com", models.DiscoveryConfig{Strategy: "telepathy"})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))

	_, err = e.Discover(ctx, "https://example.com", models.DiscoveryConfig{Strategy: models.StrategyCustom})
	require.Error(t, err)
}

func TestSitemapFromRobotsWithIndexAndGzip(t *testing.T) {
	srv := newSite(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{
		Strategy:       models.StrategySitemap,
		AllowedDomains: []string{"127.0.0.1"},
		AllowedPaths:   []string{"^/jobs/"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StrategySitemap, result.Strategy)
	assert.ElementsMatch(t, []string{
		"http://" + host + "/jobs/1",
		"http://" + host + "/jobs/2",
		"http://" + host + "/jobs/3",
	}, result.URLs)
	assert.Empty(t, result.Errors)
}

func TestSitemapDefaultPathsAndCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString("<urlset>")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, "<url><loc>/jobs/%d</loc></url>", i)
		}
		b.WriteString("</urlset>")
		fmt.Fprint(w, b.String())
	}))
	defer srv.Close()

	no := false
	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{
		Strategy:         models.StrategySitemap,
		MaxURLs:          3,
		RespectRobotsTxt: &no,
	})
	require.NoError(t, err)
	assert.Len(t, result.URLs, 3)
	assert.Empty(t, result.Errors, "missing conventional sitemaps are not errors")
}

func TestCrawlFollowsInScopeLinks(t *testing.T) {
	srv := newSite(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{
		Strategy: models.StrategyCrawl,
		MaxDepth: 2,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"http://" + host + "/jobs",
		"http://" + host + "/about",
		"http://" + host + "/jobs/1",
		"http://" + host + "/jobs/2",
	}, result.URLs)
	for _, u := range result.URLs {
		assert.NotContains(t, u, "evil.com")
		assert.NotContains(t, u, "/private")
	}
}

func TestCrawlDepthLimit(t *testing.T) {
	srv := newSite(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{
		Strategy:     models.StrategyCrawl,
		MaxDepth:     1,
		AllowedPaths: []string{"^/jobs"},
	})
	require.NoError(t, err)
	// /jobs is fetched at depth 1, its links are recorded but not followed further
	assert.ElementsMatch(t, []string{
		"http://" + host + "/jobs",
		"http://" + host + "/jobs/1",
		"http://" + host + "/jobs/2",
	}, result.URLs)
}

type fakeSearch struct {
	enabled bool
	queries []string
	results []string
}

func (f *fakeSearch) Name() string  { return "fake" }
func (f *fakeSearch) Enabled() bool { return f.enabled }
func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]string, error) {
	f.queries = append(f.queries, query)
	return f.results, nil
}

func TestSearchUsesBackendAndFilters(t *testing.T) {
	search := &fakeSearch{enabled: true, results: []string{
		"https://example.com/jobs/1",
		"https://evil.com/jobs/1",
		"https://careers.example.com/jobs/2?utm_source=serp",
	}}

	result, err := newEngine(search).Discover(context.Background(), "https://example.com", models.DiscoveryConfig{
		Strategy:       models.StrategySearch,
		AllowedDomains: []string{"example.com"},
		SearchQueries:  []string{"remote engineer"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"site:example.com jobs",
		"site:example.com careers",
		"site:example.com remote engineer",
	}, search.queries)
	assert.Equal(t, []string{
		"https://example.com/jobs/1",
		"https://careers.example.com/jobs/2",
	}, result.URLs)
	assert.Empty(t, result.Notes)
}

func TestSearchWithoutBackendIsEmpty(t *testing.T) {
	result, err := newEngine(nil).Discover(context.Background(), "https://example.com", models.DiscoveryConfig{Strategy: models.StrategySearch})
	require.NoError(t, err)
	assert.Empty(t, result.URLs)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{models.NoteSearchNotConfigured}, result.Notes)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"notes":["search backend not configured"]`)
}

func TestAPIProbesConventionalPaths(t *testing.T) {
	srv := newSite(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{Strategy: models.StrategyAPI})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"http://" + host + "/jobs/1",
		"http://" + host + "/jobs/2",
	}, result.URLs)
	require.Len(t, result.Errors, 1, "only the 500 from /jobs.json is reported")
	assert.Equal(t, models.ErrorTypeNetwork, result.Errors[0].Type)
}

func TestJobLinksFromJSON(t *testing.T) {
	doc := map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{"job_url": "/a", "id": 1},
			map[string]interface{}{"applyUrl": "/b", "link": 7},
		},
		"url": "/c",
	}
	assert.Equal(t, []string{"/a", "/b", "/c"}, JobLinksFromJSON(doc))
}

func TestCustomSelectors(t *testing.T) {
	srv := newSite(t)
	host := strings.TrimPrefix(srv.URL, "http://")

	result, err := newEngine(nil).Discover(context.Background(), srv.URL, models.DiscoveryConfig{
		Strategy:   models.StrategyCustom,
		StartPaths: []string{"/careers"},
		Selectors:  []string{"a.job", "li.posting", "li.card"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"http://" + host + "/jobs/1",
		"http://" + host + "/jobs/2",
		"http://" + host + "/jobs/3",
	}, result.URLs)
}

func TestServiceDiscoverSiteEnqueues(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	q, err := queue.NewScrapeQueue(manager.Connection().Badger(), logger, queue.Config{MaxRetries: 3})
	require.NoError(t, err)

	sites := manager.SiteStorage()
	require.NoError(t, sites.SaveSite(ctx, &models.Site{
		ID:                "site_test",
		Name:              "Test Careers",
		BaseURL:           srv.URL,
		DiscoveryStrategy: models.StrategyAPI,
	}))

	svc := NewService(newEngine(nil), sites, q, nil, 5, logger)
	result, err := svc.DiscoverSite(ctx, "site_test", true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enqueued)

	pending, err := q.List(ctx, models.QueueStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, item := range pending {
		assert.Equal(t, SourceDiscovery, item.Source)
		assert.Equal(t, "site_test", item.SiteID)
		assert.Equal(t, 5, item.Priority)
	}

	again, err := svc.DiscoverSite(ctx, "site_test", true)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Enqueued, "active items are not enqueued twice")

	site, err := sites.GetSite(ctx, "site_test")
	require.NoError(t, err)
	assert.NotNil(t, site.LastDiscoveredAt)
	assert.Equal(t, models.SiteStatusActive, site.Status)

	enqueued, failed, err := svc.DiscoverActiveSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)
	assert.Equal(t, 0, failed)
}

func TestDefaultsFromConfig(t *testing.T) {
	defaults := DefaultsFromConfig(common.DiscoveryConfig{MaxURLs: 50, MaxDepth: 3, RespectRobotsTxt: false})

	assert.Equal(t, models.StrategySitemap, defaults.Strategy)
	assert.Equal(t, 50, defaults.MaxURLs)
	assert.False(t, defaults.RobotsEnabled())

	merged := defaults.Merge(models.DiscoveryConfig{Strategy: models.StrategyCrawl, MaxURLs: 10})
	assert.Equal(t, models.StrategyCrawl, merged.Strategy)
	assert.Equal(t, 10, merged.MaxURLs)
	assert.Equal(t, 3, merged.MaxDepth)
}
