package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/queue"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scraping"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
)

func newManager(t *testing.T) *badger.Manager {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newQueue(t *testing.T, manager *badger.Manager) *queue.ScrapeQueue {
	t.Helper()
	q, err := queue.NewScrapeQueue(manager.Connection().Badger(), arbor.NewLogger(), queue.Config{MaxRetries: 2})
	require.NoError(t, err)
	return q
}

func do(t *testing.T, handler http.HandlerFunc, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForError(models.NewValidationError("bad")))
	assert.Equal(t, http.StatusNotFound, StatusForError(fmt.Errorf("job x: %w", models.ErrNotFound)))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(models.NewStorageError("save", fmt.Errorf("disk"))))
	assert.Equal(t, http.StatusOK, StatusForError(nil))
}

func TestErrorBodyShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, arbor.NewLogger(), models.NewValidationError("url is required"), "enqueue url")

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "url is required")
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "abc", PathSegment("/jobs/abc/monitor", "/jobs/"))
	assert.Equal(t, "abc", PathSegment("/jobs/abc", "/jobs/"))
	assert.Equal(t, "", PathSegment("/sites/abc", "/jobs/"))
}

func TestQueueHandlerEnqueueIsIdempotent(t *testing.T) {
	h := NewQueueHandler(newQueue(t, newManager(t)), nil, arbor.NewLogger())

	rec := do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", EnqueueRequest{URL: "https://example.com/jobs/1", Source: "api"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first map[string]interface{}
	decode(t, rec, &first)

	rec = do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", EnqueueRequest{URL: "https://example.com/jobs/1/", Source: "api"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second map[string]interface{}
	decode(t, rec, &second)
	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, true, second["duplicate"])

	rec = do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", EnqueueRequest{Source: "api"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", EnqueueRequest{URL: "::not a url", Source: "api"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueHandlerEnqueueMaxRetries(t *testing.T) {
	q := newQueue(t, newManager(t))
	h := NewQueueHandler(q, nil, arbor.NewLogger())

	cases := []struct {
		body map[string]interface{}
		want int
	}{
		{body: map[string]interface{}{"url": "https://example.com/jobs/default", "source": "api"}, want: 2},
		{body: map[string]interface{}{"url": "https://example.com/jobs/none", "source": "api", "max_retries": 0}, want: 0},
		{body: map[string]interface{}{"url": "https://example.com/jobs/five", "source": "api", "max_retries": 5}, want: 5},
	}
	for _, tc := range cases {
		rec := do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", tc.body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created map[string]interface{}
		decode(t, rec, &created)

		item, err := q.Get(context.Background(), created["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, tc.want, item.MaxRetries, tc.body["url"])
	}

	rec := do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", map[string]interface{}{"url": "https://example.com/jobs/neg", "source": "api", "max_retries": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueHandlerWorkerProtocol(t *testing.T) {
	h := NewQueueHandler(newQueue(t, newManager(t)), nil, arbor.NewLogger())

	for _, u := range []string{"https://example.com/jobs/1", "https://example.com/jobs/2"} {
		rec := do(t, h.EnqueueHandler, http.MethodPost, "/scraping/queue", EnqueueRequest{URL: u, Source: "worker"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h.PendingHandler, http.MethodGet, "/scraping/queue/pending?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Items []*models.ScrapeQueueItem `json:"items"`
		Count int                       `json:"count"`
	}
	decode(t, rec, &pending)
	require.Equal(t, 2, pending.Count)
	for _, item := range pending.Items {
		assert.Equal(t, models.QueueStatusProcessing, item.Status)
	}

	// A second claim finds nothing while the first worker holds the items
	rec = do(t, h.PendingHandler, http.MethodGet, "/scraping/queue/pending", nil)
	decode(t, rec, &pending)
	assert.Equal(t, 0, pending.Count)
}

func TestQueueHandlerUpdateAndRequeue(t *testing.T) {
	q := newQueue(t, newManager(t))
	h := NewQueueHandler(q, nil, arbor.NewLogger())
	ctx := context.Background()

	okID, _, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://example.com/jobs/ok", Source: "worker"})
	require.NoError(t, err)
	badID, _, err := q.Enqueue(ctx, &models.ScrapeQueueItem{URL: "https://example.com/jobs/bad", Source: "worker"})
	require.NoError(t, err)
	claimed, err := q.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	rec := do(t, h.UpdateHandler, http.MethodPatch, "/scraping/queue/"+okID, QueueUpdateRequest{Status: models.QueueStatusCompleted, JobID: "job_1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item models.ScrapeQueueItem
	decode(t, rec, &item)
	assert.Equal(t, models.QueueStatusCompleted, item.Status)
	assert.Equal(t, "job_1", item.JobID)

	retryable := false
	rec = do(t, h.UpdateHandler, http.MethodPatch, "/scraping/queue/"+badID, QueueUpdateRequest{Status: models.QueueStatusFailed, Error: "parse error", Retryable: &retryable})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &item)
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Contains(t, item.Error, "parse error")

	rec = do(t, h.UpdateHandler, http.MethodPatch, "/scraping/queue/"+okID, QueueUpdateRequest{Status: "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.UpdateHandler, http.MethodPatch, "/scraping/queue/qi_missing", QueueUpdateRequest{Status: models.QueueStatusCompleted})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.RequeueHandler, http.MethodPost, "/scraping/queue/"+okID+"/requeue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "completed items cannot be requeued")

	rec = do(t, h.RequeueHandler, http.MethodPost, "/scraping/queue/"+badID+"/requeue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &item)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.RetryCount)

	rec = do(t, h.ListHandler, http.MethodGet, "/scraping/queue?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Stats models.QueueStats         `json:"stats"`
		Items []*models.ScrapeQueueItem `json:"items"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Stats.Pending)
	assert.Equal(t, 1, list.Stats.Completed)
	require.Len(t, list.Items, 1)
	assert.Equal(t, badID, list.Items[0].ID)

	rec = do(t, h.ListHandler, http.MethodGet, "/scraping/queue?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeRuns struct {
	created []scraping.CreateRunRequest
	runs    map[string]*models.ScrapeRun
}

func (f *fakeRuns) CreateRun(ctx context.Context, req scraping.CreateRunRequest) (*models.ScrapeRun, error) {
	f.created = append(f.created, req)
	run := &models.ScrapeRun{ID: "run_1", Source: req.Source, State: models.RunStatePending}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRuns) GetRun(ctx context.Context, id string) (*models.ScrapeRun, error) {
	if run, ok := f.runs[id]; ok {
		return run, nil
	}
	return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	var out []*models.ScrapeRun
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeRuns) transition(id string, to models.RunState) (*models.ScrapeRun, error) {
	run, err := f.GetRun(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if err := run.Transition(to); err != nil {
		return nil, err
	}
	return run, nil
}

func (f *fakeRuns) Pause(ctx context.Context, id string) (*models.ScrapeRun, error) {
	return f.transition(id, models.RunStatePaused)
}

func (f *fakeRuns) Resume(ctx context.Context, id string) (*models.ScrapeRun, error) {
	return f.transition(id, models.RunStateRunning)
}

func (f *fakeRuns) Cancel(ctx context.Context, id string) (*models.ScrapeRun, error) {
	return f.transition(id, models.RunStateCancelled)
}

type fakeDiscoverer struct {
	baseURL string
	config  models.DiscoveryConfig
	enqueue bool
	siteID  string
}

func (f *fakeDiscoverer) Discover(ctx context.Context, baseURL string, config models.DiscoveryConfig, enqueue bool) (*models.DiscoveryResult, error) {
	f.baseURL, f.config, f.enqueue = baseURL, config, enqueue
	return &models.DiscoveryResult{BaseURL: baseURL, Strategy: config.Strategy, URLs: []string{baseURL + "/jobs/1"}}, nil
}

func (f *fakeDiscoverer) DiscoverSite(ctx context.Context, siteID string, enqueue bool) (*models.DiscoveryResult, error) {
	f.siteID, f.enqueue = siteID, enqueue
	if siteID == "missing" {
		return nil, fmt.Errorf("site %s: %w", siteID, models.ErrNotFound)
	}
	return &models.DiscoveryResult{URLs: []string{}}, nil
}

func TestScrapingHandlerRuns(t *testing.T) {
	runs := &fakeRuns{runs: map[string]*models.ScrapeRun{}}
	h := NewScrapingHandler(runs, &fakeDiscoverer{}, arbor.NewLogger())

	rec := do(t, h.CreateRunHandler, http.MethodPost, "/scraping/jobs", scraping.CreateRunRequest{Source: "api"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.CreateRunHandler, http.MethodPost, "/scraping/jobs", scraping.CreateRunRequest{
		Source: "api",
		URLs:   []string{"https://example.com/jobs/1", "https://example.com/jobs/2"},
		Config: models.ScrapingConfig{MaxConcurrent: 2},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created map[string]interface{}
	decode(t, rec, &created)
	assert.Equal(t, "run_1", created["job_id"])
	require.Len(t, runs.created, 1)
	assert.Equal(t, 2, runs.created[0].Config.MaxConcurrent)

	runs.runs["run_1"].State = models.RunStateRunning

	rec = do(t, h.ControlRunHandler, http.MethodPost, "/scraping/jobs/run_1/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RunStatePaused, runs.runs["run_1"].State)

	rec = do(t, h.ControlRunHandler, http.MethodPost, "/scraping/jobs/run_1/pause", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "paused -> paused is not a valid transition")

	rec = do(t, h.ControlRunHandler, http.MethodPost, "/scraping/jobs/run_1/explode", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.ControlRunHandler, http.MethodPost, "/scraping/jobs/run_404/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.GetRunHandler, http.MethodGet, "/scraping/jobs/run_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.ScrapeRun
	decode(t, rec, &run)
	assert.Equal(t, models.RunStatePaused, run.State)

	rec = do(t, h.ListRunsHandler, http.MethodGet, "/scraping/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.ListRunsHandler, http.MethodDelete, "/scraping/jobs", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScrapingHandlerDiscover(t *testing.T) {
	disc := &fakeDiscoverer{}
	h := NewScrapingHandler(&fakeRuns{runs: map[string]*models.ScrapeRun{}}, disc, arbor.NewLogger())

	rec := do(t, h.DiscoverHandler, http.MethodPost, "/scraping/discover", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.DiscoverHandler, http.MethodPost, "/scraping/discover", nil, "X-Base-Url", "example.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.DiscoverHandler, http.MethodPost, "/scraping/discover?enqueue=true&strategy=crawl",
		models.DiscoveryConfig{MaxURLs: 25}, "X-Base-Url", "https://example.com")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://example.com", disc.baseURL)
	assert.Equal(t, models.StrategyCrawl, disc.config.Strategy)
	assert.Equal(t, 25, disc.config.MaxURLs)
	assert.True(t, disc.enqueue)

	var result models.DiscoveryResult
	decode(t, rec, &result)
	assert.Equal(t, []string{"https://example.com/jobs/1"}, result.URLs)
}

type fakeMonitor struct {
	started  []string
	interval int
	stopped  []string
	checked  []string
	sweeps   int
}

func (f *fakeMonitor) Start(ctx context.Context, jobID, url string, intervalHours int) (*models.JobMonitorRecord, error) {
	if jobID == "job_closed" {
		return nil, models.NewValidationError("job %s is closed", jobID)
	}
	f.started = append(f.started, jobID)
	f.interval = intervalHours
	return &models.JobMonitorRecord{JobID: jobID, URL: url, CheckIntervalHours: intervalHours, State: models.MonitorMonitoring}, nil
}

func (f *fakeMonitor) Stop(ctx context.Context, jobID string) (*models.MonitorStatus, error) {
	f.stopped = append(f.stopped, jobID)
	return &models.MonitorStatus{JobID: jobID, State: models.MonitorIdle}, nil
}

func (f *fakeMonitor) Status(ctx context.Context, jobID string) (*models.MonitorStatus, error) {
	if jobID == "missing" {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return &models.MonitorStatus{JobID: jobID, State: models.MonitorJobActive, CheckCount: 3}, nil
}

func (f *fakeMonitor) History(ctx context.Context, jobID string, limit int) ([]*models.TrackingHistoryEntry, error) {
	return []*models.TrackingHistoryEntry{{JobID: jobID, Status: models.TrackingStatusOpen}}, nil
}

func (f *fakeMonitor) Check(ctx context.Context, jobID string) (*models.CheckResult, error) {
	f.checked = append(f.checked, jobID)
	return &models.CheckResult{JobID: jobID, Outcome: models.CheckError, Error: "timeout"}, nil
}

func (f *fakeMonitor) RunSweep(ctx context.Context) (*models.SweepResult, error) {
	f.sweeps++
	return &models.SweepResult{TotalChecked: 2, Unchanged: 1, Closed: 1}, nil
}

func (f *fakeMonitor) MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error) {
	return &models.MonitoringStatus{MonitoredJobs: 4, DueNow: 1}, nil
}

func TestMonitorHandler(t *testing.T) {
	mon := &fakeMonitor{}
	h := NewMonitorHandler(mon, arbor.NewLogger())

	rec := do(t, h.MonitorHandler, http.MethodPost, "/jobs/job_1/monitor", StartMonitorRequest{IntervalHours: 12})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"job_1"}, mon.started)
	assert.Equal(t, 12, mon.interval)

	rec = do(t, h.MonitorHandler, http.MethodPost, "/jobs/job_closed/monitor", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.MonitorHandler, http.MethodGet, "/jobs/job_1/monitor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.MonitorStatus
	decode(t, rec, &status)
	assert.Equal(t, models.MonitorJobActive, status.State)

	rec = do(t, h.MonitorHandler, http.MethodGet, "/jobs/missing/monitor", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.MonitorHandler, http.MethodDelete, "/jobs/job_1/monitor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job_1"}, mon.stopped)

	rec = do(t, h.MonitorHandler, http.MethodPut, "/jobs/job_1/monitor", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// A failed check is still a 200 with the outcome in the body
	rec = do(t, h.CheckHandler, http.MethodPost, "/jobs/job_1/monitor/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check models.CheckResult
	decode(t, rec, &check)
	assert.Equal(t, models.CheckError, check.Outcome)

	rec = do(t, h.TrackingHandler, http.MethodGet, "/jobs/job_1/tracking?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.SweepHandler, http.MethodPost, "/jobs/monitor/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sweep models.SweepResult
	decode(t, rec, &sweep)
	assert.Equal(t, 2, sweep.TotalChecked)
	assert.Equal(t, 1, mon.sweeps)

	rec = do(t, h.MonitoringStatusHandler, http.MethodGet, "/monitoring/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ms models.MonitoringStatus
	decode(t, rec, &ms)
	assert.Equal(t, 4, ms.MonitoredJobs)
}

func TestSiteHandler(t *testing.T) {
	manager := newManager(t)
	disc := &fakeDiscoverer{}
	h := NewSiteHandler(manager.SiteStorage(), disc, arbor.NewLogger())
	ctx := context.Background()

	rec := do(t, h.CreateSiteHandler, http.MethodPost, "/sites", models.Site{Name: "Acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.CreateSiteHandler, http.MethodPost, "/sites", models.Site{Name: "Acme", BaseURL: "https://acme.example", DiscoveryStrategy: "telepathy"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.CreateSiteHandler, http.MethodPost, "/sites", models.Site{ID: "acme", Name: "Acme", BaseURL: "https://acme.example"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var site models.Site
	decode(t, rec, &site)
	assert.Equal(t, models.StrategySitemap, site.DiscoveryStrategy)
	assert.Equal(t, models.SiteStatusActive, site.Status)

	rec = do(t, h.CreateSiteHandler, http.MethodPost, "/sites", models.Site{ID: "acme", Name: "Acme Corp", BaseURL: "https://acme.example"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.GetSiteHandler, http.MethodGet, "/sites/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &site)
	assert.Equal(t, "Acme Corp", site.Name)

	rec = do(t, h.ListSitesHandler, http.MethodGet, "/sites", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.DiscoverSiteHandler, http.MethodPost, "/sites/acme/discover", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", disc.siteID)
	assert.True(t, disc.enqueue)

	rec = do(t, h.DiscoverSiteHandler, http.MethodPost, "/sites/acme/discover?enqueue=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, disc.enqueue)

	rec = do(t, h.DiscoverSiteHandler, http.MethodPost, "/sites/missing/discover", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, _, err := manager.JobStorage().UpsertJobByURL(ctx, &models.Job{URL: "https://acme.example/jobs/1", SiteID: "acme", Title: "Engineer"})
	require.NoError(t, err)

	rec = do(t, h.DeleteSiteHandler, http.MethodDelete, "/sites/acme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "site with open jobs cannot be deleted")

	rec = do(t, h.DeleteSiteHandler, http.MethodDelete, "/sites/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobHandler(t *testing.T) {
	manager := newManager(t)
	h := NewJobHandler(manager.JobStorage(), arbor.NewLogger())
	ctx := context.Background()

	open, _, err := manager.JobStorage().UpsertJobByURL(ctx, &models.Job{URL: "https://example.com/jobs/1", Title: "Engineer"})
	require.NoError(t, err)
	closed, _, err := manager.JobStorage().UpsertJobByURL(ctx, &models.Job{URL: "https://example.com/jobs/2", Title: "Designer"})
	require.NoError(t, err)
	closed, err = manager.JobStorage().UpdateJob(ctx, closed.ID, func(j *models.Job) error {
		j.Status = models.JobStatusClosed
		return nil
	})
	require.NoError(t, err)

	rec := do(t, h.ListJobsHandler, http.MethodGet, "/jobs?status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs  []*models.Job `json:"jobs"`
		Total int           `json:"total_count"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, open.ID, list.Jobs[0].ID)
	assert.Equal(t, 1, list.Total)

	rec = do(t, h.ListJobsHandler, http.MethodGet, "/jobs?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.ListJobsHandler, http.MethodGet, "/jobs?monitored=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.GetJobHandler, http.MethodGet, "/jobs/"+open.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	decode(t, rec, &job)
	assert.Equal(t, "Engineer", job.Title)

	rec = do(t, h.GetJobHandler, http.MethodGet, "/jobs/job_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIHandler(t *testing.T) {
	h := NewAPIHandler(arbor.NewLogger())

	rec := do(t, h.HealthHandler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = do(t, h.VersionHandler, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var version map[string]string
	decode(t, rec, &version)
	assert.Contains(t, version, "version")

	rec = do(t, h.HealthHandler, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
