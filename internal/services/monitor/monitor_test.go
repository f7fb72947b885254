package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/extractor"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
)

func postingPage(title, extra string) string {
	return fmt.Sprintf(`<html><head><title>%[1]s</title>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"JobPosting","title":"%[1]s",
"hiringOrganization":{"@type":"Organization","name":"Acme"},
"description":"<p>Build reliable systems.</p>"%[2]s}</script></head>
<body><h1>%[1]s</h1><p>Apply today.</p></body></html>`, title, extra)
}

// siteServer serves postings whose titles can be changed during a test
type siteServer struct {
	*httptest.Server
	mu     sync.Mutex
	titles map[string]string
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{titles: make(map[string]string)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			http.Error(w, "gone", http.StatusGone)
		case "/flaky":
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		case "/filled":
			fmt.Fprint(w, `<html><body><h1>Engineer</h1><p>Sorry, this position has been filled.</p></body></html>`)
		case "/expired":
			fmt.Fprint(w, postingPage("Engineer", `,"validThrough":"2020-01-31"`))
		case "/listing":
			fmt.Fprint(w, `<html><body><h1>All jobs</h1></body></html>`)
		case "/moved":
			http.Redirect(w, r, "/jobs", http.StatusFound)
		case "/jobs":
			fmt.Fprint(w, `<html><body><h1>Open roles</h1></body></html>`)
		default:
			s.mu.Lock()
			title, ok := s.titles[r.URL.Path]
			s.mu.Unlock()
			if !ok {
				title = "Engineer"
			}
			fmt.Fprint(w, postingPage(title, ""))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *siteServer) setTitle(path, title string) {
	s.mu.Lock()
	s.titles[path] = title
	s.mu.Unlock()
}

type testEnv struct {
	svc     *Service
	manager *badger.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	svc := NewService(Dependencies{
		Jobs:      manager.JobStorage(),
		Monitors:  manager.MonitorStorage(),
		Tracking:  manager.TrackingStorage(),
		Fetcher:   fetcher.NewHTTPFetcher(common.FetcherConfig{Timeout: "5s"}, logger),
		Extractor: extractor.NewChain(extractor.NewStructuredExtractor(logger), nil, 0.5, logger),
	}, common.MonitorConfig{BatchSize: 2, Parallelism: 2}, logger)
	return &testEnv{svc: svc, manager: manager}
}

func (e *testEnv) addJob(t *testing.T, url string, mutate func(*models.Job)) *models.Job {
	t.Helper()
	ctx := context.Background()
	job, _, err := e.manager.JobStorage().UpsertJobByURL(ctx, &models.Job{URL: url, Title: "Engineer", Company: "Acme"})
	require.NoError(t, err)
	if mutate != nil {
		job, err = e.manager.JobStorage().UpdateJob(ctx, job.ID, func(j *models.Job) error {
			mutate(j)
			return nil
		})
		require.NoError(t, err)
	}
	return job
}

func (e *testEnv) fixClock(at time.Time) {
	e.svc.now = func() time.Time { return at }
}

func checkedAgo(d time.Duration) func(*models.Job) {
	return func(j *models.Job) {
		j.DailyMonitoringEnabled = true
		j.MonitoringFrequencyHours = 24
		if d >= 0 {
			at := time.Now().Add(-d)
			j.LastStatusCheckAt = &at
		}
	}
}

func TestRunSweepSelectsDueJobs(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	recent := env.addJob(t, srv.URL+"/jobs/recent", checkedAgo(23*time.Hour))
	stale := env.addJob(t, srv.URL+"/jobs/stale", checkedAgo(25*time.Hour))
	never := env.addJob(t, srv.URL+"/jobs/never", checkedAgo(-1))
	minute := env.addJob(t, srv.URL+"/jobs/minute", checkedAgo(time.Minute))
	env.addJob(t, srv.URL+"/jobs/unmonitored", nil)

	due, err := env.manager.JobStorage().GetJobsDueForMonitoring(ctx, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, never.ID, due[0].ID)
	assert.Equal(t, stale.ID, due[1].ID)

	result, err := env.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalChecked)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 0, result.Closed)
	assert.Equal(t, 2, result.Changed+result.Unchanged)
	assert.Same(t, result, env.svc.LastSweep())

	for _, id := range []string{stale.ID, never.ID} {
		job, err := env.manager.JobStorage().GetJob(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, job.LastStatusCheckAt)
		assert.WithinDuration(t, time.Now(), *job.LastStatusCheckAt, time.Minute)
		assert.NotEmpty(t, job.ContentHash)

		history, err := env.svc.History(ctx, id, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	}
	for _, id := range []string{recent.ID, minute.ID} {
		history, err := env.svc.History(ctx, id, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	}

	again, err := env.svc.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.TotalChecked)
}

func TestCheckIsFailSoft(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.addJob(t, srv.URL+"/flaky", nil)
	_, err := env.svc.Start(ctx, job.ID, "", 24)
	require.NoError(t, err)

	checkedAt := time.Now().Add(time.Hour).Truncate(time.Second)
	env.fixClock(checkedAt)

	result, err := env.svc.Check(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckError, result.Outcome)
	assert.NotEmpty(t, result.Error)

	status, err := env.svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorMonitoring, status.State)
	require.NotNil(t, status.NextCheckAt)
	assert.True(t, status.NextCheckAt.Equal(checkedAt.Add(24*time.Hour)))
	assert.NotEmpty(t, status.LastError)

	history, err := env.svc.History(ctx, job.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TrackingStatusError, history[0].Status)
	assert.Equal(t, http.StatusServiceUnavailable, history[0].HTTPStatus)
	assert.NotEmpty(t, history[0].ErrorMessage)

	stored, err := env.manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusOpen, stored.Status)
	require.NotNil(t, stored.LastStatusCheckAt)
	assert.True(t, stored.LastStatusCheckAt.Equal(checkedAt))
}

func TestCheckDetectsClosure(t *testing.T) {
	srv := newSiteServer(t)

	cases := []struct {
		name   string
		path   string
		status models.JobStatus
		reason string
	}{
		{"gone", "/gone", models.JobStatusClosed, "http_410"},
		{"phrase", "/filled", models.JobStatusClosed, "phrase: position has been filled"},
		{"valid through passed", "/expired", models.JobStatusExpired, "valid_through_passed"},
		{"redirect to listing", "/moved", models.JobStatusClosed, "redirected_to_listing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			job := env.addJob(t, srv.URL+tc.path, nil)
			_, err := env.svc.Start(ctx, job.ID, "", 24)
			require.NoError(t, err)

			result, err := env.svc.Check(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CheckClosed, result.Outcome)
			require.NotNil(t, result.Entry)
			assert.Equal(t, models.TrackingStatusClosed, result.Entry.Status)
			assert.Equal(t, tc.reason, result.Entry.ClosureReason)

			stored, err := env.manager.JobStorage().GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, stored.Status)
			assert.NotNil(t, stored.ClosureDetectedAt)

			status, err := env.svc.Status(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.MonitorClosed, status.State)
			assert.Nil(t, status.NextCheckAt)

			next, err := env.manager.MonitorStorage().NextWake(ctx)
			require.NoError(t, err)
			assert.Nil(t, next)
		})
	}
}

func TestCheckDetectsContentChange(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.addJob(t, srv.URL+"/jobs/42", nil)
	_, err := env.svc.Start(ctx, job.ID, "", 12)
	require.NoError(t, err)

	_, err = env.svc.Check(ctx, job.ID)
	require.NoError(t, err)

	second, err := env.svc.Check(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckUnchanged, second.Outcome)
	assert.False(t, second.Entry.AnyChanged())

	srv.setTitle("/jobs/42", "Staff Engineer")
	third, err := env.svc.Check(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckChanged, third.Outcome)
	assert.True(t, third.Entry.TitleChanged)
	assert.False(t, third.Entry.DescriptionChanged)
	assert.NotEqual(t, second.Entry.ContentHash, third.Entry.ContentHash)

	status, err := env.svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorJobActive, status.State)
	assert.Equal(t, 3, status.CheckCount)
	assert.Equal(t, 12, status.CheckIntervalHours)

	stored, err := env.manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, third.Entry.ContentHash, stored.ContentHash)

	history, err := env.svc.History(ctx, job.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestRunDueClaimsEachMonitorOnce(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addJob(t, srv.URL+"/jobs/a", nil)
	b := env.addJob(t, srv.URL+"/jobs/b", nil)
	_, err := env.svc.Start(ctx, a.ID, "", 24)
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, b.ID, "", 48)
	require.NoError(t, err)

	early, err := env.svc.RunDue(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, early.TotalChecked)

	later := time.Now().Add(25 * time.Hour)
	env.fixClock(later)

	result, err := env.svc.RunDue(ctx, later, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChecked)
	assert.Equal(t, 0, result.Errors)

	status, err := env.svc.Status(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorJobActive, status.State)
	require.NotNil(t, status.NextCheckAt)
	assert.True(t, status.NextCheckAt.Equal(later.Add(24*time.Hour)))

	repeat, err := env.svc.RunDue(ctx, later, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, repeat.TotalChecked)

	next, err := env.manager.MonitorStorage().NextWake(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Before(later.Add(24*time.Hour)))
}

func TestCheckMissingJobEntersError(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.addJob(t, srv.URL+"/jobs/deleted", nil)
	_, err := env.svc.Start(ctx, job.ID, "", 24)
	require.NoError(t, err)
	require.NoError(t, env.manager.JobStorage().DeleteJob(ctx, job.ID))

	result, err := env.svc.Check(ctx, job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, models.CheckError, result.Outcome)

	record, err := env.manager.MonitorStorage().GetMonitor(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorError, record.State)
	assert.Nil(t, record.NextCheckAt)
}

func TestStartAndStop(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.addJob(t, srv.URL+"/jobs/7", nil)

	status, err := env.svc.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorIdle, status.State)

	record, err := env.svc.Start(ctx, job.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorMonitoring, record.State)
	assert.Equal(t, models.DefaultMonitoringFrequencyHours, record.CheckIntervalHours)
	assert.Equal(t, job.URL, record.URL)

	stored, err := env.manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.DailyMonitoringEnabled)
	assert.NotEmpty(t, stored.ContentHash)

	stopped, err := env.svc.Stop(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorIdle, stopped.State)
	assert.Nil(t, stopped.NextCheckAt)

	stored, err = env.manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, stored.DailyMonitoringEnabled)

	_, err = env.svc.Start(ctx, "job_missing", "", 24)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMonitoringStatusCounts(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	env.addJob(t, srv.URL+"/jobs/due", checkedAgo(-1))
	closed := env.addJob(t, srv.URL+"/gone", nil)
	_, err := env.svc.Start(ctx, closed.ID, "", 24)
	require.NoError(t, err)
	_, err = env.svc.Check(ctx, closed.ID)
	require.NoError(t, err)

	status, err := env.svc.MonitoringStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DueNow)
	assert.Equal(t, 1, status.ClosedLast24h)
	assert.Equal(t, 0, status.ActiveMonitors)
	assert.Nil(t, status.NextMonitorWake)
	assert.Nil(t, status.LastSweep)
}

// heldFetcher holds the first fetch until release is closed and counts every fetch
type heldFetcher struct {
	interfaces.ContentFetcher
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func holdFirstFetch(env *testEnv) *heldFetcher {
	f := &heldFetcher{
		ContentFetcher: env.svc.deps.Fetcher,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	env.svc.deps.Fetcher = f
	return f
}

func (f *heldFetcher) Fetch(ctx context.Context, url string, opts models.FetchOptions) (*models.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		close(f.entered)
		<-f.release
	}
	return f.ContentFetcher.Fetch(ctx, url, opts)
}

func (f *heldFetcher) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (k *keyedMutex) holders(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m, ok := k.locks[key]; ok {
		return m.refs
	}
	return 0
}

func TestCheckKeepsConcurrentRescrape(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()
	held := holdFirstFetch(env)

	job := env.addJob(t, srv.URL+"/jobs/rescraped", nil)

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Check(ctx, job.ID)
		done <- err
	}()
	<-held.entered

	rescraped, created, err := env.manager.JobStorage().UpsertJobByURL(ctx, &models.Job{URL: job.URL, Title: "Senior Engineer (rescraped)"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, rescraped.ID)

	close(held.release)
	require.NoError(t, <-done)

	stored, err := env.manager.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Senior Engineer (rescraped)", stored.Title)
	require.NotNil(t, stored.LastStatusCheckAt)
	assert.NotEmpty(t, stored.ContentHash)
}

func TestSweepSkipsJobCheckedByWake(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()
	held := holdFirstFetch(env)

	job := env.addJob(t, srv.URL+"/jobs/both", nil)
	_, err := env.svc.Start(ctx, job.ID, "", 24)
	require.NoError(t, err)

	later := time.Now().Add(25 * time.Hour)
	env.fixClock(later)

	wake := make(chan *models.SweepResult, 1)
	go func() {
		result, err := env.svc.RunDue(ctx, later, 10)
		assert.NoError(t, err)
		wake <- result
	}()
	<-held.entered

	sweep := make(chan *models.SweepResult, 1)
	go func() {
		result, err := env.svc.RunSweep(ctx)
		assert.NoError(t, err)
		sweep <- result
	}()
	require.Eventually(t, func() bool { return env.svc.locks.holders(job.ID) == 2 }, 5*time.Second, 5*time.Millisecond)
	close(held.release)

	wakeResult, sweepResult := <-wake, <-sweep
	assert.Equal(t, 1, wakeResult.TotalChecked)
	assert.Equal(t, 0, sweepResult.TotalChecked)
	assert.Equal(t, 1, sweepResult.Skipped)
	assert.Equal(t, 1, held.fetches())

	history, err := env.svc.History(ctx, job.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWakeSkipsJobCheckedBySweep(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()
	held := holdFirstFetch(env)

	job := env.addJob(t, srv.URL+"/jobs/both", nil)
	_, err := env.svc.Start(ctx, job.ID, "", 24)
	require.NoError(t, err)

	later := time.Now().Add(25 * time.Hour)
	env.fixClock(later)

	sweep := make(chan *models.SweepResult, 1)
	go func() {
		result, err := env.svc.RunSweep(ctx)
		assert.NoError(t, err)
		sweep <- result
	}()
	<-held.entered

	wake := make(chan *models.SweepResult, 1)
	go func() {
		result, err := env.svc.RunDue(ctx, later, 10)
		assert.NoError(t, err)
		wake <- result
	}()
	require.Eventually(t, func() bool { return env.svc.locks.holders(job.ID) == 2 }, 5*time.Second, 5*time.Millisecond)
	close(held.release)

	sweepResult, wakeResult := <-sweep, <-wake
	assert.Equal(t, 1, sweepResult.TotalChecked)
	assert.Equal(t, 0, wakeResult.TotalChecked)
	assert.Equal(t, 1, wakeResult.Skipped)
	assert.Equal(t, 1, held.fetches())

	status, err := env.svc.Status(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, status.NextCheckAt)
	assert.True(t, status.NextCheckAt.Equal(later.Add(24*time.Hour)))
}

func TestForcedCheckIgnoresSchedule(t *testing.T) {
	srv := newSiteServer(t)
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.addJob(t, srv.URL+"/jobs/forced", checkedAgo(time.Minute))

	result, err := env.svc.Check(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.CheckSkipped, result.Outcome)

	history, err := env.svc.History(ctx, job.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
