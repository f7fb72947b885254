package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// Key layout in the shared Badger database:
//
//	scrapeq:item:{id}                                  -> JSON ScrapeQueueItem
//	scrapeq:pending:{inverted priority}:{created}:{id} -> empty (claim order)
//	scrapeq:active:{source}:{url hash}                 -> id (dedupe while non-terminal)
const (
	itemPrefix    = "scrapeq:item:"
	pendingPrefix = "scrapeq:pending:"
	activePrefix  = "scrapeq:active:"

	priorityBound = 1000000
	maxTxnRetries = 50
)

// ErrNotProcessing is returned when completing or failing an item that is not claimed
var ErrNotProcessing = errors.New("queue item is not processing")

// Config holds queue behaviour
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration // first retry delay, doubled per attempt
}

// ScrapeQueue is a durable priority queue stored as raw Badger keys
type ScrapeQueue struct {
	db     *badger.DB
	logger arbor.ILogger
	config Config
	now    func() time.Time
}

// NewScrapeQueue creates a queue on an open Badger database
func NewScrapeQueue(db *badger.DB, logger arbor.ILogger, config Config) (*ScrapeQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &ScrapeQueue{
		db:     db,
		logger: logger,
		config: config,
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source
func (q *ScrapeQueue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue adds a URL unless a non-terminal item for the same (normalized url, source) exists,
// in which case the existing id is returned with created=false. A zero MaxRetries takes the
// configured default and models.NoRetries stores zero.
func (q *ScrapeQueue) Enqueue(ctx context.Context, item *models.ScrapeQueueItem) (string, bool, error) {
	if item == nil {
		return "", false, models.NewValidationError("queue item is required")
	}
	normalized, err := common.NormalizeURL(item.URL)
	if err != nil {
		return "", false, models.NewValidationError("invalid url %q: %v", item.URL, err)
	}
	if item.Source == "" {
		item.Source = "manual"
	}

	activeKey, err := activeKeyFor(item.Source, normalized)
	if err != nil {
		return "", false, models.NewValidationError("invalid url %q: %v", item.URL, err)
	}

	var id string
	var created bool

	err = q.update(func(txn *badger.Txn) error {
		created = false

		existing, err := txn.Get(activeKey)
		if err == nil {
			return existing.Value(func(val []byte) error {
				id = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := q.now()
		record := *item
		record.ID = common.NewID("qi")
		record.URL = normalized
		record.Status = models.QueueStatusPending
		record.RetryCount = 0
		switch {
		case record.MaxRetries == 0:
			record.MaxRetries = q.config.MaxRetries
		case record.MaxRetries < 0:
			record.MaxRetries = 0
		}
		record.CreatedAt = now
		record.UpdatedAt = now
		record.ClaimedAt = nil
		record.CompletedAt = nil
		record.Error = ""
		record.ErrorType = ""

		if err := putItem(txn, &record); err != nil {
			return err
		}
		if err := txn.Set(pendingKey(&record), nil); err != nil {
			return err
		}
		if err := txn.Set(activeKey, []byte(record.ID)); err != nil {
			return err
		}

		id = record.ID
		created = true
		return nil
	})
	if err != nil {
		return "", false, models.NewStorageError("enqueue", err)
	}

	if created {
		q.logger.Debug().Str("queue_item_id", id).Str("url", normalized).Str("source", item.Source).Msg("URL enqueued")
	}
	return id, created, nil
}

// ClaimBatch moves up to n claimable pending items to processing, highest priority then oldest first.
// Concurrent claimers conflict on the same keys and the loser retries.
func (q *ScrapeQueue) ClaimBatch(ctx context.Context, n int) ([]*models.ScrapeQueueItem, error) {
	if n <= 0 {
		return nil, nil
	}

	var claimed []*models.ScrapeQueueItem

	err := q.update(func(txn *badger.Txn) error {
		claimed = nil
		now := q.now()

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)

		var staleKeys [][]byte
		var claimKeys [][]byte
		var candidates []*models.ScrapeQueueItem

		for it.Rewind(); it.Valid() && len(candidates) < n; it.Next() {
			key := it.Item().KeyCopy(nil)
			id := idFromPendingKey(key)

			item, err := getItem(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				staleKeys = append(staleKeys, key)
				continue
			}
			if err != nil {
				it.Close()
				return err
			}
			if item.Status != models.QueueStatusPending {
				staleKeys = append(staleKeys, key)
				continue
			}
			if item.ScheduledFor != nil && item.ScheduledFor.After(now) {
				continue
			}

			claimKeys = append(claimKeys, key)
			candidates = append(candidates, item)
		}
		it.Close()

		for _, key := range staleKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for i, item := range candidates {
			if err := txn.Delete(claimKeys[i]); err != nil {
				return err
			}
			claimedAt := now
			item.Status = models.QueueStatusProcessing
			item.ClaimedAt = &claimedAt
			item.UpdatedAt = now
			if err := putItem(txn, item); err != nil {
				return err
			}
			claimed = append(claimed, item)
		}
		return nil
	})
	if err != nil {
		return nil, models.NewStorageError("claim batch", err)
	}

	if len(claimed) > 0 {
		q.logger.Debug().Int("claimed", len(claimed)).Msg("Claimed queue items")
	}
	return claimed, nil
}

// Complete marks a processing item completed. Completing an already completed item is a no-op.
func (q *ScrapeQueue) Complete(ctx context.Context, id string, outcome models.QueueOutcome) error {
	err := q.update(func(txn *badger.Txn) error {
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		if item.Status == models.QueueStatusCompleted {
			return nil
		}
		if item.Status != models.QueueStatusProcessing {
			return ErrNotProcessing
		}

		now := q.now()
		item.Status = models.QueueStatusCompleted
		item.CompletedAt = &now
		item.UpdatedAt = now
		item.JobID = outcome.JobID
		item.Error = ""
		item.ErrorType = ""
		if err := putItem(txn, item); err != nil {
			return err
		}
		return q.releaseActive(txn, item)
	})
	return q.wrapItemErr("complete", id, err)
}

// Fail records a failure. A retryable failure with retries left returns the item to pending with a
// backoff; anything else makes it terminally failed.
func (q *ScrapeQueue) Fail(ctx context.Context, id string, cause error, retryable bool) error {
	var final bool
	var retryCount int

	err := q.update(func(txn *badger.Txn) error {
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		if item.Status != models.QueueStatusProcessing {
			return ErrNotProcessing
		}

		now := q.now()
		item.UpdatedAt = now
		item.ClaimedAt = nil
		if cause != nil {
			item.Error = cause.Error()
			item.ErrorType = models.ClassifyError(cause)
		}

		if retryable && item.RetryCount < item.MaxRetries {
			item.RetryCount++
			item.Status = models.QueueStatusPending
			if backoff := q.backoff(item.RetryCount); backoff > 0 {
				at := now.Add(backoff)
				item.ScheduledFor = &at
			}
			retryCount = item.RetryCount
			if err := putItem(txn, item); err != nil {
				return err
			}
			return txn.Set(pendingKey(item), nil)
		}

		item.RetryCount++
		item.Status = models.QueueStatusFailed
		item.CompletedAt = &now
		final = true
		retryCount = item.RetryCount
		if err := putItem(txn, item); err != nil {
			return err
		}
		return q.releaseActive(txn, item)
	})
	if err != nil {
		return q.wrapItemErr("fail", id, err)
	}

	event := q.logger.Debug()
	if final {
		event = q.logger.Warn()
	}
	event.Str("queue_item_id", id).Int("retry_count", retryCount).Bool("terminal", final).Err(cause).Msg("Queue item failed")
	return nil
}

func (q *ScrapeQueue) backoff(retryCount int) time.Duration {
	if q.config.RetryBackoff <= 0 || retryCount <= 0 {
		return 0
	}
	shift := retryCount - 1
	if shift > 10 {
		shift = 10
	}
	return q.config.RetryBackoff * time.Duration(1<<uint(shift))
}

// PurgeOlderThan deletes terminal items last updated before now-age
func (q *ScrapeQueue) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := q.now().Add(-age)

	var stale [][]byte
	err := q.scan(func(item *models.ScrapeQueueItem) bool {
		if item.Status.IsTerminal() && item.UpdatedAt.Before(cutoff) {
			stale = append(stale, itemKey(item.ID))
		}
		return true
	})
	if err != nil {
		return 0, models.NewStorageError("purge scan", err)
	}

	const chunk = 500
	for start := 0; start < len(stale); start += chunk {
		end := start + chunk
		if end > len(stale) {
			end = len(stale)
		}
		keys := stale[start:end]
		if err := q.update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return start, models.NewStorageError("purge", err)
		}
	}

	if len(stale) > 0 {
		q.logger.Info().Int("purged", len(stale)).Str("older_than", age.String()).Msg("Purged terminal queue items")
	}
	return len(stale), nil
}

// Get returns a single item
func (q *ScrapeQueue) Get(ctx context.Context, id string) (*models.ScrapeQueueItem, error) {
	var item *models.ScrapeQueueItem
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = getItem(txn, id)
		return err
	})
	if err != nil {
		return nil, q.wrapItemErr("get", id, err)
	}
	return item, nil
}

// List returns items newest first; an empty status returns all
func (q *ScrapeQueue) List(ctx context.Context, status models.QueueStatus, limit int) ([]*models.ScrapeQueueItem, error) {
	var items []*models.ScrapeQueueItem
	err := q.scan(func(item *models.ScrapeQueueItem) bool {
		if status == "" || item.Status == status {
			items = append(items, item)
		}
		return true
	})
	if err != nil {
		return nil, models.NewStorageError("list queue", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Stats counts items by status
func (q *ScrapeQueue) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}
	err := q.scan(func(item *models.ScrapeQueueItem) bool {
		stats.Total++
		switch item.Status {
		case models.QueueStatusPending:
			stats.Pending++
			if stats.OldestPendingAt == nil || item.CreatedAt.Before(*stats.OldestPendingAt) {
				created := item.CreatedAt
				stats.OldestPendingAt = &created
			}
		case models.QueueStatusProcessing:
			stats.Processing++
		case models.QueueStatusCompleted:
			stats.Completed++
		case models.QueueStatusFailed:
			stats.Failed++
		}
		return true
	})
	if err != nil {
		return nil, models.NewStorageError("queue stats", err)
	}
	if stats.OldestPendingAt != nil {
		stats.OldestPendingAge = q.now().Sub(*stats.OldestPendingAt).Truncate(time.Second).String()
	}
	return stats, nil
}

// Requeue resubmits a failed item with a fresh retry budget
func (q *ScrapeQueue) Requeue(ctx context.Context, id string) error {
	var conflict string

	err := q.update(func(txn *badger.Txn) error {
		conflict = ""
		item, err := getItem(txn, id)
		if err != nil {
			return err
		}
		if item.Status != models.QueueStatusFailed {
			return models.NewValidationError("only failed items can be requeued (status %s)", item.Status)
		}

		activeKey, err := activeKeyFor(item.Source, item.URL)
		if err != nil {
			return err
		}
		if existing, err := txn.Get(activeKey); err == nil {
			return existing.Value(func(val []byte) error {
				conflict = string(val)
				return nil
			})
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := q.now()
		item.Status = models.QueueStatusPending
		item.RetryCount = 0
		item.ScheduledFor = nil
		item.ClaimedAt = nil
		item.CompletedAt = nil
		item.Error = ""
		item.ErrorType = ""
		item.UpdatedAt = now
		if err := putItem(txn, item); err != nil {
			return err
		}
		if err := txn.Set(pendingKey(item), nil); err != nil {
			return err
		}
		return txn.Set(activeKey, []byte(item.ID))
	})
	if err != nil {
		return q.wrapItemErr("requeue", id, err)
	}
	if conflict != "" {
		return models.NewValidationError("url already queued as %s", conflict)
	}
	return nil
}

// ReleaseStale returns processing items claimed longer than visibility ago to pending without consuming a retry
func (q *ScrapeQueue) ReleaseStale(ctx context.Context, visibility time.Duration) (int, error) {
	cutoff := q.now().Add(-visibility)

	var stale []string
	err := q.scan(func(item *models.ScrapeQueueItem) bool {
		if item.Status == models.QueueStatusProcessing && item.ClaimedAt != nil && item.ClaimedAt.Before(cutoff) {
			stale = append(stale, item.ID)
		}
		return true
	})
	if err != nil {
		return 0, models.NewStorageError("release stale scan", err)
	}

	released := 0
	for _, id := range stale {
		err := q.update(func(txn *badger.Txn) error {
			item, err := getItem(txn, id)
			if err != nil {
				return err
			}
			if item.Status != models.QueueStatusProcessing || item.ClaimedAt == nil || !item.ClaimedAt.Before(cutoff) {
				return nil
			}
			item.Status = models.QueueStatusPending
			item.ClaimedAt = nil
			item.UpdatedAt = q.now()
			if err := putItem(txn, item); err != nil {
				return err
			}
			released++
			return txn.Set(pendingKey(item), nil)
		})
		if err != nil {
			return released, models.NewStorageError("release stale", err)
		}
	}

	if released > 0 {
		q.logger.Warn().Int("released", released).Str("visibility", visibility.String()).Msg("Released stale processing items")
	}
	return released, nil
}

func (q *ScrapeQueue) releaseActive(txn *badger.Txn, item *models.ScrapeQueueItem) error {
	activeKey, err := activeKeyFor(item.Source, item.URL)
	if err != nil {
		return nil
	}
	current, err := txn.Get(activeKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var owner string
	if err := current.Value(func(val []byte) error {
		owner = string(val)
		return nil
	}); err != nil {
		return err
	}
	if owner != item.ID {
		return nil
	}
	return txn.Delete(activeKey)
}

// update runs fn in a read-write transaction, retrying on optimistic conflicts
func (q *ScrapeQueue) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = q.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return fmt.Errorf("queue transaction retries exhausted: %w", err)
}

func (q *ScrapeQueue) scan(visit func(item *models.ScrapeQueueItem) bool) error {
	return q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item models.ScrapeQueueItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if !visit(&item) {
				return nil
			}
		}
		return nil
	})
}

func (q *ScrapeQueue) wrapItemErr(op, id string, err error) error {
	var se *models.ScrapingError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("queue item %s: %w", id, models.ErrNotFound)
	case errors.Is(err, ErrNotProcessing):
		return models.NewValidationError("queue item %s is not processing", id)
	case errors.As(err, &se):
		return se
	default:
		return models.NewStorageError(op, err)
	}
}

func getItem(txn *badger.Txn, id string) (*models.ScrapeQueueItem, error) {
	entry, err := txn.Get(itemKey(id))
	if err != nil {
		return nil, err
	}
	var item models.ScrapeQueueItem
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	}); err != nil {
		return nil, err
	}
	return &item, nil
}

func putItem(txn *badger.Txn, item *models.ScrapeQueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	return txn.Set(itemKey(item.ID), data)
}

func itemKey(id string) []byte {
	return []byte(itemPrefix + id)
}

// pendingKey sorts by priority descending, then creation ascending
func pendingKey(item *models.ScrapeQueueItem) []byte {
	priority := item.Priority
	if priority > priorityBound {
		priority = priorityBound
	}
	if priority < -priorityBound {
		priority = -priorityBound
	}
	inverted := priorityBound - priority
	return []byte(fmt.Sprintf("%s%010d:%020d:%s", pendingPrefix, inverted, item.CreatedAt.UnixNano(), item.ID))
}

func idFromPendingKey(key []byte) string {
	s := string(key)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return ""
	}
	return s[idx+1:]
}

func activeKeyFor(source, rawURL string) ([]byte, error) {
	hash, err := common.URLHash(rawURL)
	if err != nil {
		return nil, err
	}
	return []byte(activePrefix + strings.ToLower(source) + ":" + hash), nil
}
