package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// NopSearchBackend is the default backend: search is not configured and returns nothing
type NopSearchBackend struct{}

func NewNopSearchBackend() *NopSearchBackend { return &NopSearchBackend{} }

func (b *NopSearchBackend) Name() string  { return "none" }
func (b *NopSearchBackend) Enabled() bool { return false }

func (b *NopSearchBackend) Search(ctx context.Context, query string, limit int) ([]string, error) {
	return nil, nil
}

// SerpAPIBackend resolves queries through a SerpAPI-compatible JSON endpoint
type SerpAPIBackend struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

type serpResponse struct {
	OrganicResults []struct {
		Link string `json:"link"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// NewSerpAPIBackend creates a backend against endpoint (default https://serpapi.com/search.json)
func NewSerpAPIBackend(endpoint, apiKey string) *SerpAPIBackend {
	if endpoint == "" {
		endpoint = "https://serpapi.com/search.json"
	}
	return &SerpAPIBackend{
		client:   resty.New(),
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (b *SerpAPIBackend) Name() string  { return "serpapi" }
func (b *SerpAPIBackend) Enabled() bool { return b.apiKey != "" }

func (b *SerpAPIBackend) Search(ctx context.Context, query string, limit int) ([]string, error) {
	var out serpResponse
	req := b.client.R().
		SetContext(ctx).
		SetQueryParam("engine", "google").
		SetQueryParam("q", query).
		SetQueryParam("api_key", b.apiKey).
		SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("num", strconv.Itoa(limit))
	}

	resp, err := req.Get(b.endpoint)
	if err != nil {
		return nil, models.AsScrapingError(err, b.endpoint)
	}
	if se := models.ClassifyHTTPStatus(resp.StatusCode(), b.endpoint); se != nil {
		return nil, se
	}
	if out.Error != "" {
		return nil, models.NewScrapingError(models.ErrorTypeUnknown, b.endpoint, fmt.Errorf("search backend: %s", out.Error))
	}

	urls := make([]string, 0, len(out.OrganicResults))
	for _, r := range out.OrganicResults {
		if r.Link != "" {
			urls = append(urls, r.Link)
		}
	}
	return urls, nil
}

// NewSearchBackend selects the backend named in config
func NewSearchBackend(config common.DiscoveryConfig, logger arbor.ILogger) interfaces.SearchBackend {
	switch strings.ToLower(config.SearchBackend) {
	case "serpapi":
		if config.SearchAPIKey == "" {
			logger.Warn().Msg("Search backend serpapi selected without an API key, search disabled")
			return NewNopSearchBackend()
		}
		return NewSerpAPIBackend(config.SearchEndpoint, config.SearchAPIKey)
	case "", "none":
		return NewNopSearchBackend()
	default:
		logger.Warn().Str("backend", config.SearchBackend).Msg("Unknown search backend, search disabled")
		return NewNopSearchBackend()
	}
}

// SearchQueries builds the site-scoped queries for host
func SearchQueries(host string, extra []string) []string {
	scope := "site:" + host
	queries := []string{scope + " jobs", scope + " careers"}
	for _, q := range extra {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if !strings.Contains(q, "site:") {
			q = scope + " " + q
		}
		queries = append(queries, q)
	}
	return queries
}

func (e *Engine) discoverSearch(ctx context.Context, p *pass) {
	if !e.search.Enabled() {
		e.logger.Info().Str("base_url", p.base.String()).Msg("Search discovery requested but no search backend is configured")
		p.result.Notes = append(p.result.Notes, models.NoteSearchNotConfigured)
		return
	}

	for _, query := range SearchQueries(p.base.Hostname(), p.config.SearchQueries) {
		if p.urls.full() || ctx.Err() != nil {
			return
		}
		results, err := e.search.Search(ctx, query, p.config.MaxURLs-len(p.urls.urls))
		if err != nil {
			p.addError(err, p.base.String())
			continue
		}
		for _, r := range results {
			p.urls.add(r)
		}
	}
}
