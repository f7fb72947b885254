package fetcher

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
)

// NewContentFetcher builds the fetcher selected by config.Mode. A browser that fails to
// start falls back to the HTTP fetcher.
func NewContentFetcher(config common.FetcherConfig, logger arbor.ILogger) (interfaces.ContentFetcher, error) {
	switch config.Mode {
	case "", "http":
		logger.Info().Str("mode", "http").Msg("Content fetcher initialized")
		return NewHTTPFetcher(config, logger), nil
	case "browser":
		browser, err := NewBrowserFetcher(config, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Browser fetcher unavailable, falling back to http")
			return NewHTTPFetcher(config, logger), nil
		}
		logger.Info().Str("mode", "browser").Int("pool_size", config.BrowserPoolSize).Msg("Content fetcher initialized")
		return browser, nil
	default:
		return nil, fmt.Errorf("unknown fetcher mode: %s", config.Mode)
	}
}
