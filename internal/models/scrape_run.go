package models

import (
	"fmt"
	"time"
)

// RunState is the state of a batch scrape run
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStatePaused    RunState = "paused"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

var validRunTransitions = map[RunState][]RunState{
	RunStatePending: {
		RunStateRunning,
		RunStateCancelled,
	},
	RunStateRunning: {
		RunStatePaused,
		RunStateCompleted,
		RunStateFailed,
		RunStateCancelled,
	},
	RunStatePaused: {
		RunStateRunning,
		RunStateCancelled,
	},
	RunStateCompleted: {},
	RunStateFailed:    {},
	RunStateCancelled: {},
}

// ValidateRunTransition returns an error when from -> to is not allowed
func ValidateRunTransition(from, to RunState) error {
	allowed, ok := validRunTransitions[from]
	if !ok {
		return fmt.Errorf("unknown run state: %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return NewValidationError("invalid run state transition from %s to %s", from, to)
}

// IsTerminal reports whether no further transitions are possible
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCancelled
}

// ScrapingConfig controls one RunBatch invocation
type ScrapingConfig struct {
	MaxConcurrent   int               `json:"max_concurrent,omitempty" validate:"gte=0,lte=50"`
	DelayMs         int               `json:"delay_ms,omitempty" validate:"gte=0"`
	TimeoutMs       int               `json:"timeout_ms,omitempty" validate:"gte=0"`
	MaxItems        int               `json:"max_items,omitempty" validate:"gte=0"`
	Authenticate    bool              `json:"authenticate,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	WaitForSelector string            `json:"wait_for_selector,omitempty"`
	Screenshot      bool              `json:"screenshot,omitempty"`
	PDF             bool              `json:"pdf,omitempty"`
	EnableMonitor   bool              `json:"enable_monitoring,omitempty"`
	MonitorHours    int               `json:"monitoring_frequency_hours,omitempty"`
}

// Delay returns the pause between item starts
func (c ScrapingConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Timeout returns the per-item fetch timeout
func (c ScrapingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Progress is the monotonic progress tuple of a run
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Advance moves current forward by one and recomputes percentage
func (p *Progress) Advance() {
	p.Current++
	if p.Current > p.Total {
		p.Total = p.Current
	}
	p.recompute()
}

// Finish settles a completed run at 100%. Total drops to Current when the queue
// held fewer items than estimated at start.
func (p *Progress) Finish() {
	p.Total = p.Current
	p.Percentage = 100
}

func (p *Progress) recompute() {
	if p.Total == 0 {
		p.Percentage = 0
		return
	}
	pct := float64(p.Current) / float64(p.Total) * 100
	if pct < p.Percentage {
		return
	}
	p.Percentage = pct
}

// ItemResult is the outcome of one queue item within a run
type ItemResult struct {
	QueueItemID    string         `json:"queue_item_id"`
	URL            string         `json:"url"`
	Success        bool           `json:"success"`
	JobID          string         `json:"job_id,omitempty"`
	Requeued       bool           `json:"requeued,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	Error          *ScrapingError `json:"error,omitempty"`
}

// ScrapingResults aggregates a run
type ScrapingResults struct {
	TotalURLs         int              `json:"total_urls"`
	Successful        int              `json:"successful"`
	Failed            int              `json:"failed"`
	Requeued          int              `json:"requeued"`
	DurationMs        int64            `json:"duration_ms"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	JobIDs            []string         `json:"job_ids"`
	Errors            []*ScrapingError `json:"errors"`
	Items             []ItemResult     `json:"items,omitempty"`
	TotalResponseMs   int64            `json:"total_response_ms"`
}

// Record folds an item result into the aggregate
func (r *ScrapingResults) Record(item ItemResult) {
	r.TotalURLs++
	r.Items = append(r.Items, item)
	r.TotalResponseMs += item.ResponseTimeMs
	r.AvgResponseTimeMs = float64(r.TotalResponseMs) / float64(r.TotalURLs)
	switch {
	case item.Success:
		r.Successful++
		if item.JobID != "" {
			r.JobIDs = append(r.JobIDs, item.JobID)
		}
	case item.Requeued:
		r.Requeued++
	default:
		r.Failed++
	}
	if item.Error != nil {
		r.Errors = append(r.Errors, item.Error)
	}
}

// Merge folds another batch into r
func (r *ScrapingResults) Merge(o *ScrapingResults) {
	if o == nil {
		return
	}
	for _, item := range o.Items {
		r.Record(item)
	}
}

// ScrapeRun is a durable batch scrape job
type ScrapeRun struct {
	ID         string          `json:"id" badgerhold:"key"`
	Source     string          `json:"source"`
	State      RunState        `json:"state" badgerhold:"index"`
	Config     ScrapingConfig  `json:"config"`
	Progress   Progress        `json:"progress"`
	Results    ScrapingResults `json:"results"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transition moves the run to a new state, validating the move
func (r *ScrapeRun) Transition(to RunState) error {
	if err := ValidateRunTransition(r.State, to); err != nil {
		return err
	}
	now := time.Now()
	if to == RunStateRunning && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if to.IsTerminal() {
		r.FinishedAt = &now
	}
	r.State = to
	r.UpdatedAt = now
	return nil
}
