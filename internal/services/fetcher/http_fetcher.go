package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const (
	defaultUserAgent   = "scout/1.0 (+https://github.com/jmbish04/9to5-scout-retrofit-project-sub004)"
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 5 * 1024 * 1024
	maxRedirects       = 10
)

// HTTPFetcher fetches pages over plain HTTP without rendering JavaScript
type HTTPFetcher struct {
	client      *resty.Client
	logger      arbor.ILogger
	authHeaders map[string]string
	timeout     time.Duration
	maxBodySize int
}

// NewHTTPFetcher creates a resty-backed fetcher
func NewHTTPFetcher(config common.FetcherConfig, logger arbor.ILogger) *HTTPFetcher {
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	client := resty.New()
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))

	return &HTTPFetcher{
		client:      client,
		logger:      logger,
		authHeaders: config.AuthHeaders,
		timeout:     common.Duration(config.Timeout, defaultTimeout),
		maxBodySize: maxBody,
	}
}

// Fetch downloads url. For HTTP error statuses the result is returned together with
// a classified *models.ScrapingError so callers can still inspect the status.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts models.FetchOptions) (*models.FetchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := f.client.R().SetContext(ctx)
	if opts.Authenticate {
		req.SetHeaders(f.authHeaders)
	}
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}

	start := time.Now()
	resp, err := req.Get(url)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.NewScrapingError(models.ErrorTypeTimeout, url, fmt.Errorf("fetch timed out after %s: %w", timeout, err))
		}
		return nil, models.AsScrapingError(err, url)
	}

	result := &models.FetchResult{
		URL:          url,
		FinalURL:     url,
		StatusCode:   resp.StatusCode(),
		ContentType:  resp.Header().Get("Content-Type"),
		ResponseTime: elapsed,
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		result.FinalURL = raw.Request.URL.String()
	}

	body := resp.Body()
	if len(body) > f.maxBodySize {
		f.logger.Warn().Str("url", url).Int("size", len(body)).Int("limit", f.maxBodySize).Msg("Response body truncated")
		body = body[:f.maxBodySize]
	}
	result.HTML = string(body)

	f.logger.Debug().
		Str("url", url).
		Str("final_url", result.FinalURL).
		Int("status", result.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", elapsed).
		Msg("Fetched page")

	if scrapeErr := models.ClassifyHTTPStatus(result.StatusCode, url); scrapeErr != nil {
		return result, scrapeErr
	}

	if opts.Markdown && isHTML(result.ContentType) {
		markdown, err := ToMarkdown(result.HTML, result.FinalURL)
		if err != nil {
			f.logger.Debug().Err(err).Str("url", url).Msg("Markdown conversion failed")
		} else {
			result.Markdown = markdown
		}
	}

	if opts.Screenshot || opts.PDF || opts.WaitForSelector != "" {
		f.logger.Debug().Str("url", url).Msg("Render-only options ignored by http fetcher")
	}

	return result, nil
}

// Close releases idle connections
func (f *HTTPFetcher) Close() error {
	if transport, ok := f.client.GetClient().Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "html") || strings.Contains(contentType, "xml") || strings.HasPrefix(contentType, "text/")
}
