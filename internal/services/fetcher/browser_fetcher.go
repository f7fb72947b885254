package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// BrowserFetcher renders pages in headless Chrome from a BrowserPool
type BrowserFetcher struct {
	pool        *BrowserPool
	logger      arbor.ILogger
	authHeaders map[string]string
	timeout     time.Duration
	renderWait  time.Duration
}

// NewBrowserFetcher starts a browser pool and returns a fetcher backed by it
func NewBrowserFetcher(config common.FetcherConfig, logger arbor.ILogger) (*BrowserFetcher, error) {
	pool := NewBrowserPool(BrowserPoolConfig{
		Size:      config.BrowserPoolSize,
		UserAgent: config.UserAgent,
		Headless:  config.Headless,
		NoSandbox: true,
	}, logger)
	if err := pool.Init(); err != nil {
		return nil, err
	}

	return &BrowserFetcher{
		pool:        pool,
		logger:      logger,
		authHeaders: config.AuthHeaders,
		timeout:     common.Duration(config.Timeout, defaultTimeout),
		renderWait:  common.Duration(config.RenderWait, 2*time.Second),
	}, nil
}

// documentResponse captures the main document's status from network events
type documentResponse struct {
	mu       sync.Mutex
	status   int
	finalURL string
}

func (d *documentResponse) observe(ev interface{}) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(e.Response.Status)
	d.finalURL = e.Response.URL
}

func (d *documentResponse) get() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.finalURL
}

// Fetch renders url in a new tab. HTTP error statuses are returned with the result as in HTTPFetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, opts models.FetchOptions) (*models.FetchResult, error) {
	browserCtx, err := f.pool.Acquire()
	if err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeUnknown, url, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)
	defer timeoutCancel()

	// Propagate caller cancellation into the tab
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	headers := network.Headers{}
	if opts.Authenticate {
		for k, v := range f.authHeaders {
			headers[k] = v
		}
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	var html, location string
	var screenshot, pdf []byte

	actions := []chromedp.Action{network.Enable()}
	if len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions, chromedp.Navigate(url))
	if opts.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitForSelector, chromedp.ByQuery))
	}
	if f.renderWait > 0 {
		actions = append(actions, chromedp.Sleep(f.renderWait))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if opts.Screenshot {
		actions = append(actions, chromedp.FullScreenshot(&screenshot, 85))
	}
	if opts.PDF {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = buf
			return nil
		}))
	}

	start := time.Now()
	err = chromedp.Run(tabCtx, actions...)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewScrapingError(models.ErrorTypeTimeout, url, ctx.Err())
		}
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return nil, models.NewScrapingError(models.ErrorTypeTimeout, url, fmt.Errorf("render timed out after %s: %w", timeout, err))
		}
		return nil, models.NewScrapingError(models.ErrorTypeNetwork, url, err)
	}

	status, finalURL := doc.get()
	if status == 0 {
		status = 200
	}
	if location != "" {
		finalURL = location
	}
	if finalURL == "" {
		finalURL = url
	}

	result := &models.FetchResult{
		URL:          url,
		FinalURL:     finalURL,
		StatusCode:   status,
		HTML:         html,
		ContentType:  "text/html",
		Screenshot:   screenshot,
		PDF:          pdf,
		ResponseTime: elapsed,
	}

	f.logger.Debug().
		Str("url", url).
		Str("final_url", finalURL).
		Int("status", status).
		Int("bytes", len(html)).
		Dur("elapsed", elapsed).
		Msg("Rendered page")

	if scrapeErr := models.ClassifyHTTPStatus(status, url); scrapeErr != nil {
		return result, scrapeErr
	}

	if opts.Markdown {
		if markdown, err := ToMarkdown(html, finalURL); err == nil {
			result.Markdown = markdown
		}
	}
	return result, nil
}

// Close shuts down the browser pool
func (f *BrowserFetcher) Close() error {
	return f.pool.Shutdown()
}
