package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T, config Config) (*ScrapeQueue, *testClock) {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q, err := NewScrapeQueue(db, arbor.NewLogger(), config)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	q.SetClock(clock.Now)
	return q, clock
}

func enqueue(t *testing.T, q *ScrapeQueue, url string, priority int) string {
	t.Helper()
	id, created, err := q.Enqueue(context.Background(), &models.ScrapeQueueItem{URL: url, Source: "discovery", Priority: priority})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestEnqueueIsIdempotentWhileActive(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxRetries: 3})
	ctx := context.Background()

	id, created, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://Example.com/jobs/1?utm_source=x", Source: "discovery"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://example.com/jobs/1", Source: "discovery"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	other, created, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://example.com/jobs/1", Source: "email"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id, other)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/jobs/1", item.URL)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, 3, item.MaxRetries)

	// Completed items no longer block intake
	claimed, err := q.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	for _, c := range claimed {
		require.NoError(t, q.Complete(ctx, c.ID, models.QueueOutcome{JobID: "job_1"}))
	}
	fresh, created, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://example.com/jobs/1", Source: "discovery"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id, fresh)
}

func TestEnqueueRejectsBadURL(t *testing.T) {
	q, _ := newTestQueue(t, Config{})

	_, _, err := q.Enqueue(context.Background(), &models.ScrapeQueueItem{URL: "ftp://example.com/x"})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestClaimOrderPriorityThenFIFO(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	low := enqueue(t, q, "https://a.test/low", 0)
	firstHigh := enqueue(t, q, "https://a.test/high-1", 5)
	secondHigh := enqueue(t, q, "https://a.test/high-2", 5)
	negative := enqueue(t, q, "https://a.test/neg", -3)

	claimed, err := q.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 4)

	var order []string
	for _, item := range claimed {
		order = append(order, item.ID)
		assert.Equal(t, models.QueueStatusProcessing, item.Status)
		assert.NotNil(t, item.ClaimedAt)
	}
	assert.Equal(t, []string{firstHigh, secondHigh, low, negative}, order)

	empty, err := q.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClaimSkipsStaleIndexKeys(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	orphaned := []string{
		enqueue(t, q, "https://a.test/orphan-1", 9),
		enqueue(t, q, "https://a.test/orphan-2", 9),
	}
	require.NoError(t, q.db.Update(func(txn *badger.Txn) error {
		for _, id := range orphaned {
			if err := txn.Delete(itemKey(id)); err != nil {
				return err
			}
		}
		return nil
	}))
	first := enqueue(t, q, "https://a.test/real-1", 0)
	second := enqueue(t, q, "https://a.test/real-2", 0)

	claimed, err := q.ClaimBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first, claimed[0].ID)
	assert.Equal(t, second, claimed[1].ID)

	require.NoError(t, q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			t.Errorf("pending index still holds %s", it.Item().Key())
		}
		return nil
	}))
}

func TestConcurrentClaimsNeverDuplicate(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		enqueue(t, q, fmt.Sprintf("https://a.test/jobs/%d", i), 0)
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := q.ClaimBatch(ctx, 3)
				if !assert.NoError(t, err) || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, item := range batch {
					seen[item.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}
}

func TestFailRetriesUntilExhausted(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxRetries: 2})
	ctx := context.Background()
	id := enqueue(t, q, "https://a.test/flaky", 0)
	cause := models.NewScrapingError(models.ErrorTypeNetwork, "https://a.test/flaky", errors.New("connection reset"))

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := q.ClaimBatch(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1, "attempt %d", attempt)
		require.NoError(t, q.Fail(ctx, id, cause, true))
	}

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, 3, item.RetryCount)
	assert.Equal(t, models.ErrorTypeNetwork, item.ErrorType)
	assert.NotNil(t, item.CompletedAt)

	claimed, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestFailNonRetryableIsTerminal(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxRetries: 5})
	ctx := context.Background()
	id := enqueue(t, q, "https://a.test/gone", 0)

	_, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, models.ClassifyHTTPStatus(404, "https://a.test/gone"), false))

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, models.ErrorTypeNotFound, item.ErrorType)

	err = q.Fail(ctx, id, errors.New("again"), true)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestEnqueueMaxRetries(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxRetries: 4})
	ctx := context.Background()

	defaulted := enqueue(t, q, "https://a.test/default", 0)
	item, err := q.Get(ctx, defaulted)
	require.NoError(t, err)
	assert.Equal(t, 4, item.MaxRetries)

	once, _, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://a.test/once", Source: "discovery", MaxRetries: models.NoRetries})
	require.NoError(t, err)
	item, err = q.Get(ctx, once)
	require.NoError(t, err)
	assert.Equal(t, 0, item.MaxRetries)

	_, err = q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	claimed, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, once, claimed[0].ID)

	cause := models.NewScrapingError(models.ErrorTypeNetwork, "https://a.test/once", errors.New("connection reset"))
	require.NoError(t, q.Fail(ctx, once, cause, true))

	item, err = q.Get(ctx, once)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, 1, item.RetryCount)
}

func TestRetryBackoffDefersClaim(t *testing.T) {
	q, clock := newTestQueue(t, Config{MaxRetries: 3, RetryBackoff: time.Minute})
	ctx := context.Background()
	id := enqueue(t, q, "https://a.test/slow", 0)

	_, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, context.DeadlineExceeded, true))

	claimed, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	clock.Advance(2 * time.Minute)
	claimed, err = q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, 1, claimed[0].RetryCount)
}

func TestRequeueFailedItem(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	ctx := context.Background()
	id := enqueue(t, q, "https://a.test/requeue", 0)

	assert.Error(t, q.Requeue(ctx, id), "pending items cannot be requeued")

	_, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, errors.New("parse"), false))

	require.NoError(t, q.Requeue(ctx, id))
	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.RetryCount)
	assert.Empty(t, item.Error)

	_, created, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://a.test/requeue", Source: "discovery"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestReleaseStaleKeepsRetryBudget(t *testing.T) {
	q, clock := newTestQueue(t, Config{MaxRetries: 1})
	ctx := context.Background()
	id := enqueue(t, q, "https://a.test/stuck", 0)

	_, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)

	released, err := q.ReleaseStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	clock.Advance(11 * time.Minute)
	released, err = q.ReleaseStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.RetryCount)
	assert.Nil(t, item.ClaimedAt)
}

func TestPurgeAndStats(t *testing.T) {
	q, clock := newTestQueue(t, Config{})
	ctx := context.Background()

	done := enqueue(t, q, "https://a.test/done", 0)
	enqueue(t, q, "https://a.test/waiting", 0)

	claimed, err := q.ClaimBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, done, claimed[0].ID)
	require.NoError(t, q.Complete(ctx, done, models.QueueOutcome{JobID: "job_9"}))
	require.NoError(t, q.Complete(ctx, done, models.QueueOutcome{JobID: "job_9"}))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.NotNil(t, stats.OldestPendingAt)

	purged, err := q.PurgeOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)

	clock.Advance(2 * time.Hour)
	purged, err = q.PurgeOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = q.Get(ctx, done)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	pending, err := q.List(ctx, models.QueueStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
