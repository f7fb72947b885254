package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// apiError is the error body written by the scout HTTP API
type apiError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// apiClient calls a running scout server
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &apiClient{http: client}
}

type jobList struct {
	Jobs       []*models.Job `json:"jobs"`
	TotalCount int           `json:"total_count"`
}

type queueList struct {
	Stats *models.QueueStats         `json:"stats"`
	Items []*models.ScrapeQueueItem `json:"items"`
	Count int                        `json:"count"`
}

type enqueueResult struct {
	ID        string `json:"id"`
	Created   bool   `json:"created"`
	Duplicate bool   `json:"duplicate"`
}

type runStarted struct {
	JobID string            `json:"job_id"`
	Run   *models.ScrapeRun `json:"run"`
}

type trackingList struct {
	JobID   string                         `json:"job_id"`
	History []*models.TrackingHistoryEntry `json:"history"`
}

func (c *apiClient) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiError{})
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status())
	}
	return nil
}

func (c *apiClient) ListJobs(ctx context.Context, query map[string]string) (*jobList, error) {
	out := &jobList{}
	return out, c.do(ctx, resty.MethodGet, "/jobs", query, nil, out)
}

func (c *apiClient) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	out := &models.Job{}
	return out, c.do(ctx, resty.MethodGet, "/jobs/"+jobID, nil, nil, out)
}

func (c *apiClient) Enqueue(ctx context.Context, url string, priority int) (*enqueueResult, error) {
	out := &enqueueResult{}
	body := map[string]interface{}{"url": url, "source": "mcp", "priority": priority}
	return out, c.do(ctx, resty.MethodPost, "/scraping/queue", nil, body, out)
}

func (c *apiClient) QueueStatus(ctx context.Context, status string, limit int) (*queueList, error) {
	out := &queueList{}
	query := map[string]string{"limit": fmt.Sprint(limit)}
	if status != "" {
		query["status"] = status
	}
	return out, c.do(ctx, resty.MethodGet, "/scraping/queue", query, nil, out)
}

func (c *apiClient) CreateRun(ctx context.Context, urls []string, monitor bool) (*runStarted, error) {
	out := &runStarted{}
	body := map[string]interface{}{
		"source": "mcp",
		"urls":   urls,
		"config": map[string]interface{}{"enable_monitoring": monitor},
	}
	return out, c.do(ctx, resty.MethodPost, "/scraping/jobs", nil, body, out)
}

func (c *apiClient) GetRun(ctx context.Context, runID string) (*models.ScrapeRun, error) {
	out := &models.ScrapeRun{}
	return out, c.do(ctx, resty.MethodGet, "/scraping/jobs/"+runID, nil, nil, out)
}

func (c *apiClient) StartMonitor(ctx context.Context, jobID string, intervalHours int) (*models.JobMonitorRecord, error) {
	out := &models.JobMonitorRecord{}
	body := map[string]interface{}{}
	if intervalHours > 0 {
		body["check_interval_hours"] = intervalHours
	}
	return out, c.do(ctx, resty.MethodPost, "/jobs/"+jobID+"/monitor", nil, body, out)
}

func (c *apiClient) StopMonitor(ctx context.Context, jobID string) (*models.MonitorStatus, error) {
	out := &models.MonitorStatus{}
	return out, c.do(ctx, resty.MethodDelete, "/jobs/"+jobID+"/monitor", nil, nil, out)
}

func (c *apiClient) CheckJob(ctx context.Context, jobID string) (*models.CheckResult, error) {
	out := &models.CheckResult{}
	return out, c.do(ctx, resty.MethodPost, "/jobs/"+jobID+"/monitor/check", nil, nil, out)
}

func (c *apiClient) Tracking(ctx context.Context, jobID string, limit int) (*trackingList, error) {
	out := &trackingList{}
	return out, c.do(ctx, resty.MethodGet, "/jobs/"+jobID+"/tracking", map[string]string{"limit": fmt.Sprint(limit)}, nil, out)
}

func (c *apiClient) MonitoringStatus(ctx context.Context) (*models.MonitoringStatus, error) {
	out := &models.MonitoringStatus{}
	return out, c.do(ctx, resty.MethodGet, "/monitoring/status", nil, nil, out)
}

func (c *apiClient) DiscoverSite(ctx context.Context, siteID string) (*models.DiscoveryResult, error) {
	out := &models.DiscoveryResult{}
	return out, c.do(ctx, resty.MethodPost, "/sites/"+siteID+"/discover", nil, nil, out)
}
