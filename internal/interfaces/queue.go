package interfaces

import (
	"context"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// ScrapeQueue is the durable priority queue of scrape work
type ScrapeQueue interface {
	// Enqueue is idempotent on (normalized url, source) while a matching item is non-terminal
	Enqueue(ctx context.Context, item *models.ScrapeQueueItem) (string, bool, error)
	// ClaimBatch moves up to n eligible pending items to processing
	ClaimBatch(ctx context.Context, n int) ([]*models.ScrapeQueueItem, error)
	Complete(ctx context.Context, id string, outcome models.QueueOutcome) error
	Fail(ctx context.Context, id string, cause error, retryable bool) error
	PurgeOlderThan(ctx context.Context, age time.Duration) (int, error)

	Get(ctx context.Context, id string) (*models.ScrapeQueueItem, error)
	List(ctx context.Context, status models.QueueStatus, limit int) ([]*models.ScrapeQueueItem, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
	Requeue(ctx context.Context, id string) error
	ReleaseStale(ctx context.Context, visibility time.Duration) (int, error)
}
