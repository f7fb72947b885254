package models

import "time"

// QueueStatus is the status of a scrape queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// IsTerminal reports whether the status can no longer change without operator action
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// NoRetries as ScrapeQueueItem.MaxRetries fails the item terminally on its first failure.
// A zero MaxRetries takes the queue default.
const NoRetries = -1

// ScrapeQueueItem is one pending unit of scrape work
type ScrapeQueueItem struct {
	ID           string      `json:"id"`
	URL          string      `json:"url"`
	Source       string      `json:"source"`
	SourceID     string      `json:"source_id,omitempty"`
	SiteID       string      `json:"site_id,omitempty"`
	Priority     int         `json:"priority"`
	Status       QueueStatus `json:"status"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	ClaimedAt    *time.Time  `json:"claimed_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Error        string      `json:"error,omitempty"`
	ErrorType    ErrorType   `json:"error_type,omitempty"`
	JobID        string      `json:"job_id,omitempty"`
}

// QueueOutcome is recorded when an item completes
type QueueOutcome struct {
	JobID string `json:"job_id,omitempty"`
	Note  string `json:"note,omitempty"`
}

// QueueStats is a snapshot of queue depth by status
type QueueStats struct {
	Pending          int        `json:"pending"`
	Processing       int        `json:"processing"`
	Completed        int        `json:"completed"`
	Failed           int        `json:"failed"`
	Total            int        `json:"total"`
	OldestPendingAt  *time.Time `json:"oldest_pending_at,omitempty"`
	OldestPendingAge string     `json:"oldest_pending_age,omitempty"`
}
