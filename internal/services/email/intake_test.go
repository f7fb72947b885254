package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/queue"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
)

type fakeMailbox struct {
	messages []Message
	marked   []uint32
	fetchErr error
}

func (f *fakeMailbox) FetchUnseen(ctx context.Context, max int) ([]Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []Message
	for _, m := range f.messages {
		if !f.isMarked(m.UID) {
			out = append(out, m)
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *fakeMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	f.marked = append(f.marked, uids...)
	return nil
}

func (f *fakeMailbox) isMarked(uid uint32) bool {
	for _, m := range f.marked {
		if m == uid {
			return true
		}
	}
	return false
}

func newTestQueue(t *testing.T) *queue.ScrapeQueue {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	q, err := queue.NewScrapeQueue(manager.Connection().Badger(), logger, queue.Config{MaxRetries: 3})
	require.NoError(t, err)
	return q
}

const alertHTML = `<html><body>
<p>New jobs matching "golang"</p>
<a href="https://jobs.acme.test/posting/1?utm_source=alert">Backend Engineer</a>
<a href="https://jobs.acme.test/posting/2">Platform Engineer</a>
<a href="https://jobs.acme.test/posting/1">Backend Engineer (again)</a>
<a href="https://alerts.acme.test/unsubscribe?id=9">Unsubscribe</a>
<a href="mailto:help@acme.test">Help</a>
</body></html>`

func TestExtractLinks(t *testing.T) {
	links := ExtractLinks(Message{
		HTML: alertHTML,
		Text: "Also see https://boards.example.test/jobs/77. Thanks!",
	})
	assert.Equal(t, []string{
		"https://jobs.acme.test/posting/1",
		"https://jobs.acme.test/posting/2",
		"https://boards.example.test/jobs/77",
	}, links)
}

func TestIngestEnqueuesLinksOnce(t *testing.T) {
	q := newTestQueue(t)
	mailbox := &fakeMailbox{messages: []Message{
		{UID: 1, Subject: "3 new jobs", HTML: alertHTML},
		{UID: 2, Subject: "Digest", Text: "https://jobs.acme.test/posting/2 and https://other.test/careers/5"},
	}}
	svc, err := NewService(mailbox, q, nil, common.EmailConfig{MaxPerRun: 10, MarkSeen: true, Priority: 3}, arbor.NewLogger())
	require.NoError(t, err)
	ctx := context.Background()

	result, err := svc.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Messages)
	assert.Equal(t, 4, result.Links)
	assert.Equal(t, 3, result.Enqueued)
	assert.Equal(t, 1, result.Duplicates)
	assert.ElementsMatch(t, []uint32{1, 2}, mailbox.marked)

	items, err := q.List(ctx, models.QueueStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, SourceEmail, item.Source)
		assert.Equal(t, 3, item.Priority)
	}

	again, err := svc.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Messages)
}

func TestIngestAppliesLinkFilter(t *testing.T) {
	q := newTestQueue(t)
	mailbox := &fakeMailbox{messages: []Message{{UID: 5, HTML: alertHTML, Text: "https://other.test/careers/5"}}}
	svc, err := NewService(mailbox, q, nil, common.EmailConfig{LinkFilter: `acme\.test/posting/`}, arbor.NewLogger())
	require.NoError(t, err)

	result, err := svc.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enqueued)
	assert.Empty(t, mailbox.marked)
}

func TestNewServiceRejectsBadFilter(t *testing.T) {
	_, err := NewService(&fakeMailbox{}, nil, nil, common.EmailConfig{LinkFilter: "("}, arbor.NewLogger())
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestIngestReturnsMailboxErrors(t *testing.T) {
	svc, err := NewService(&fakeMailbox{fetchErr: errors.New("login failed")}, nil, nil, common.EmailConfig{}, arbor.NewLogger())
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background())
	assert.EqualError(t, err, "login failed")
}
