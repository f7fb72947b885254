package interfaces

import (
	"context"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// ContentFetcher renders a URL. Errors are *models.ScrapingError.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string, opts models.FetchOptions) (*models.FetchResult, error)
	Close() error
}

// Extractor turns page content into job fields. Failures are *models.ScrapingError of type extraction.
type Extractor interface {
	Extract(ctx context.Context, input models.ExtractionInput, schema map[string]interface{}) (*models.ExtractedJob, error)
	Name() string
}

// SearchBackend resolves site-scoped search queries to result URLs
type SearchBackend interface {
	Name() string
	Enabled() bool
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// SnapshotStore uploads raw page artifacts to object storage
type SnapshotStore interface {
	Enabled() bool
	// Put stores body under key and returns the stored object key
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}
