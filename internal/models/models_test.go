package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{410, ErrorTypeNotFound},
		{408, ErrorTypeTimeout},
		{504, ErrorTypeTimeout},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeNetwork},
		{503, ErrorTypeNetwork},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			err := ClassifyHTTPStatus(tt.code, "https://example.com/jobs/1")
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.code, err.StatusCode)
		})
	}

	assert.Nil(t, ClassifyHTTPStatus(200, "https://example.com"))
	assert.Nil(t, ClassifyHTTPStatus(301, "https://example.com"))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorType(""), ClassifyError(nil))
	assert.Equal(t, ErrorTypeTimeout, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, ClassifyError(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrorTypeUnknown, ClassifyError(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", NewScrapingError(ErrorTypeParsing, "u", errors.New("bad html")))
	assert.Equal(t, ErrorTypeParsing, ClassifyError(wrapped))
}

func TestRetryableTypes(t *testing.T) {
	for _, typ := range []ErrorType{ErrorTypeAuth, ErrorTypeParsing, ErrorTypeNotFound, ErrorTypeValidation} {
		assert.False(t, IsRetryable(typ), typ)
	}
	for _, typ := range []ErrorType{ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeUnknown, ErrorTypeStorage} {
		assert.True(t, IsRetryable(typ), typ)
	}
}

func TestAsScrapingErrorKeepsURL(t *testing.T) {
	se := AsScrapingError(errors.New("dial tcp: refused"), "https://a.test/x")
	require.NotNil(t, se)
	assert.Equal(t, "https://a.test/x", se.URL)
	assert.Nil(t, AsScrapingError(nil, "x"))
	assert.True(t, IsValidationError(NewValidationError("bad %s", "input")))
}

func TestJobIsDueForMonitoring(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	old := now.Add(-25 * time.Hour)
	exact := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"never checked", Job{DailyMonitoringEnabled: true, Status: JobStatusOpen}, true},
		{"checked recently", Job{DailyMonitoringEnabled: true, Status: JobStatusOpen, LastStatusCheckAt: &recent}, false},
		{"checked long ago", Job{DailyMonitoringEnabled: true, Status: JobStatusOpen, LastStatusCheckAt: &old}, true},
		{"boundary", Job{DailyMonitoringEnabled: true, Status: JobStatusOpen, LastStatusCheckAt: &exact}, true},
		{"closed", Job{DailyMonitoringEnabled: true, Status: JobStatusClosed}, false},
		{"disabled", Job{Status: JobStatusOpen}, false},
		{"custom frequency", Job{DailyMonitoringEnabled: true, Status: JobStatusOpen, MonitoringFrequencyHours: 1, LastStatusCheckAt: &recent}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsDueForMonitoring(now))
		})
	}
}

func TestApplyExtractionKeepsExistingValues(t *testing.T) {
	job := &Job{Title: "Old title", Company: "Acme", Location: "Remote"}
	salary := 100000.0
	job.ApplyExtraction(&ExtractedJob{
		Title:           "Staff Engineer",
		SalaryMin:       &salary,
		ConfidenceScore: 0.3,
		Method:          ExtractionHeuristic,
	}, 0.5)

	assert.Equal(t, "Staff Engineer", job.Title)
	assert.Equal(t, "Acme", job.Company)
	assert.Equal(t, "Remote", job.Location)
	require.NotNil(t, job.SalaryMin)
	assert.Equal(t, 100000.0, *job.SalaryMin)
	assert.True(t, job.NeedsReview)
	assert.Equal(t, "heuristic", job.ExtractionMethod)
}

func TestRunTransitions(t *testing.T) {
	assert.NoError(t, ValidateRunTransition(RunStatePending, RunStateRunning))
	assert.NoError(t, ValidateRunTransition(RunStateRunning, RunStatePaused))
	assert.NoError(t, ValidateRunTransition(RunStatePaused, RunStateRunning))
	assert.NoError(t, ValidateRunTransition(RunStatePaused, RunStateCancelled))

	err := ValidateRunTransition(RunStateCompleted, RunStateRunning)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Error(t, ValidateRunTransition(RunStatePending, RunStatePaused))
	assert.Error(t, ValidateRunTransition(RunState("bogus"), RunStateRunning))

	run := &ScrapeRun{State: RunStatePending}
	require.NoError(t, run.Transition(RunStateRunning))
	assert.NotNil(t, run.StartedAt)
	require.NoError(t, run.Transition(RunStateCompleted))
	assert.NotNil(t, run.FinishedAt)
	assert.True(t, run.State.IsTerminal())
}

func TestProgressIsMonotonic(t *testing.T) {
	p := Progress{Total: 4}
	var last float64
	for i := 0; i < 4; i++ {
		p.Advance()
		assert.GreaterOrEqual(t, p.Percentage, last)
		last = p.Percentage
	}
	assert.Equal(t, 100.0, p.Percentage)

	short := Progress{Total: 10}
	short.Advance()
	short.Finish()
	assert.Equal(t, 1, short.Total)
	assert.Equal(t, 100.0, short.Percentage)
}

func TestScrapingResultsRecord(t *testing.T) {
	var r ScrapingResults
	r.Record(ItemResult{Success: true, JobID: "job_1", ResponseTimeMs: 100})
	r.Record(ItemResult{Requeued: true, ResponseTimeMs: 300, Error: NewScrapingError(ErrorTypeNetwork, "u", errors.New("reset"))})
	r.Record(ItemResult{ResponseTimeMs: 200, Error: NewScrapingError(ErrorTypeAuth, "u", errors.New("denied"))})

	assert.Equal(t, 3, r.TotalURLs)
	assert.Equal(t, 1, r.Successful)
	assert.Equal(t, 1, r.Requeued)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, []string{"job_1"}, r.JobIDs)
	assert.Len(t, r.Errors, 2)
	assert.InDelta(t, 200.0, r.AvgResponseTimeMs, 0.001)
}

func TestMonitorRecordIsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.True(t, (&JobMonitorRecord{State: MonitorMonitoring, NextCheckAt: &past}).IsDue(now))
	assert.False(t, (&JobMonitorRecord{State: MonitorMonitoring, NextCheckAt: &future}).IsDue(now))
	assert.False(t, (&JobMonitorRecord{State: MonitorClosed, NextCheckAt: &past}).IsDue(now))
	assert.Equal(t, 24*time.Hour, (&JobMonitorRecord{}).Interval())
}

func TestSiteDiscoveryConfigFor(t *testing.T) {
	no := false
	defaults := DiscoveryConfig{MaxURLs: 100, MaxDepth: 2}
	site := &Site{
		DiscoveryStrategy: StrategyCrawl,
		BlockedPaths:      []string{"/blog"},
		Discovery:         DiscoveryConfig{MaxURLs: 10, RespectRobotsTxt: &no},
	}

	cfg := site.DiscoveryConfigFor(defaults)
	assert.Equal(t, StrategyCrawl, cfg.Strategy)
	assert.Equal(t, 10, cfg.MaxURLs)
	assert.Equal(t, 2, cfg.MaxDepth)
	assert.Equal(t, []string{"/blog"}, cfg.BlockedPaths)
	assert.False(t, cfg.RobotsEnabled())
	assert.True(t, defaults.RobotsEnabled())
}
