package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// BrowserPool holds long-lived Chrome instances handed out round-robin
type BrowserPool struct {
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	mu               sync.Mutex
	currentIndex     int
	logger           arbor.ILogger
	config           BrowserPoolConfig
	initialized      bool
}

// BrowserPoolConfig holds configuration for the browser pool
type BrowserPoolConfig struct {
	Size           int
	UserAgent      string
	Headless       bool
	NoSandbox      bool
	StartupTimeout time.Duration
}

// NewBrowserPool creates an uninitialized pool
func NewBrowserPool(config BrowserPoolConfig, logger arbor.ILogger) *BrowserPool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}
	return &BrowserPool{
		logger: logger,
		config: config,
	}
}

// Init starts the browser instances. At least one must start.
func (p *BrowserPool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}
	if p.config.Size > 10 {
		p.logger.Warn().Int("pool_size", p.config.Size).Msg("Large browser pool size detected - this may consume significant memory")
	}

	p.logger.Info().
		Int("pool_size", p.config.Size).
		Bool("headless", p.config.Headless).
		Msg("Initializing browser pool")

	var lastErr error
	for i := 0; i < p.config.Size; i++ {
		if err := p.startInstance(i); err != nil {
			lastErr = err
			p.logger.Warn().Err(err).Int("browser_index", i).Msg("Failed to create browser instance")
		}
	}

	if len(p.browsers) == 0 {
		p.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}
	if len(p.browsers) < p.config.Size {
		p.logger.Warn().
			Int("requested", p.config.Size).
			Int("created", len(p.browsers)).
			Msg("Created fewer browser instances than requested")
	}

	p.initialized = true
	return nil
}

func (p *BrowserPool) startInstance(index int) error {
	start := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(p.config.UserAgent),
		chromedp.WindowSize(1440, 900),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, p.config.StartupTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)

	p.logger.Debug().Int("browser_index", index).Dur("startup_time", time.Since(start)).Msg("Browser instance started")
	return nil
}

// Acquire returns the next browser context
func (p *BrowserPool) Acquire() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, fmt.Errorf("browser pool not initialized")
	}
	if len(p.browsers) == 0 {
		return nil, fmt.Errorf("no browser instances available")
	}

	index := p.currentIndex % len(p.browsers)
	p.currentIndex = (p.currentIndex + 1) % len(p.browsers)
	return p.browsers[index], nil
}

// Shutdown stops every browser, giving up after 30s
func (p *BrowserPool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	count := len(p.browsers)
	done := make(chan struct{})
	go func() {
		p.cleanupInstances()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Int("browser_count", count).Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	p.logger.Info().Int("browsers_shutdown", count).Msg("Browser pool shut down")
	return nil
}

// cleanupInstances must be called with mu held
func (p *BrowserPool) cleanupInstances() {
	for _, cancel := range p.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range p.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.currentIndex = 0
}

// Stats reports pool size and state
func (p *BrowserPool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"size":             p.config.Size,
		"active_instances": len(p.browsers),
		"initialized":      p.initialized,
	}
}

// IsInitialized reports whether Init succeeded
func (p *BrowserPool) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}
