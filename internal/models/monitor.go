package models

import "time"

// MonitorState is the lifecycle state of a per-job monitor
type MonitorState string

const (
	MonitorIdle       MonitorState = "idle"
	MonitorMonitoring MonitorState = "monitoring"
	MonitorJobActive  MonitorState = "job_active"
	MonitorClosed     MonitorState = "closed"
	MonitorError      MonitorState = "error"
)

// IsScheduled reports whether a monitor in this state keeps a next wake time
func (s MonitorState) IsScheduled() bool {
	return s == MonitorMonitoring || s == MonitorJobActive
}

// JobSnapshot holds the salient fields compared between checks
type JobSnapshot struct {
	Title        string `json:"title"`
	Requirements string `json:"requirements"`
	Salary       string `json:"salary"`
	Description  string `json:"description"`
}

// JobMonitorRecord is the durable state of one job's monitor
type JobMonitorRecord struct {
	JobID              string       `json:"job_id" badgerhold:"key"`
	URL                string       `json:"url"`
	CheckIntervalHours int          `json:"check_interval_hours"`
	State              MonitorState `json:"state" badgerhold:"index"`
	NextCheckAt        *time.Time   `json:"next_check_at,omitempty"`
	LastCheckAt        *time.Time   `json:"last_check_at,omitempty"`
	LastContentHash    string       `json:"last_content_hash,omitempty"`
	LastSnapshot       *JobSnapshot `json:"last_snapshot,omitempty"`
	CheckCount         int          `json:"check_count"`
	ConsecutiveErrors  int          `json:"consecutive_errors"`
	LastError          string       `json:"last_error,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Interval returns the configured check interval
func (m *JobMonitorRecord) Interval() time.Duration {
	hours := m.CheckIntervalHours
	if hours <= 0 {
		hours = DefaultMonitoringFrequencyHours
	}
	return time.Duration(hours) * time.Hour
}

// IsDue reports whether the monitor's wake time has been reached
func (m *JobMonitorRecord) IsDue(now time.Time) bool {
	return m.State.IsScheduled() && m.NextCheckAt != nil && !m.NextCheckAt.After(now)
}

// MonitorStatus is the read-only view returned by JobMonitor.Status
type MonitorStatus struct {
	JobID              string       `json:"job_id"`
	State              MonitorState `json:"state"`
	CheckIntervalHours int          `json:"check_interval_hours"`
	LastCheckAt        *time.Time   `json:"last_check_at,omitempty"`
	NextCheckAt        *time.Time   `json:"next_check_at,omitempty"`
	CheckCount         int          `json:"check_count"`
	LastError          string       `json:"last_error,omitempty"`
}

// CheckOutcome classifies the result of one monitoring check
type CheckOutcome string

const (
	CheckUnchanged CheckOutcome = "unchanged"
	CheckChanged   CheckOutcome = "changed"
	CheckClosed    CheckOutcome = "closed"
	CheckError     CheckOutcome = "error"

	// CheckSkipped means a scheduled check found the job already checked by another path
	CheckSkipped CheckOutcome = "skipped"
)

// CheckResult is returned by a single monitoring check
type CheckResult struct {
	JobID   string                `json:"job_id"`
	Outcome CheckOutcome          `json:"outcome"`
	Entry   *TrackingHistoryEntry `json:"entry,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// SweepResult summarises one monitoring sweep
type SweepResult struct {
	TotalChecked     int       `json:"total_checked"`
	Unchanged        int       `json:"unchanged"`
	Changed          int       `json:"changed"`
	Closed           int       `json:"closed"`
	Errors           int       `json:"errors"`
	Skipped          int       `json:"skipped"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	StartedAt        time.Time `json:"started_at"`
}

// Add counts a single check outcome. Skipped checks are not counted as checked.
func (r *SweepResult) Add(outcome CheckOutcome) {
	if outcome == CheckSkipped {
		r.Skipped++
		return
	}
	r.TotalChecked++
	switch outcome {
	case CheckUnchanged:
		r.Unchanged++
	case CheckChanged:
		r.Changed++
	case CheckClosed:
		r.Closed++
	default:
		r.Errors++
	}
}

// MonitoringStatus is the aggregate view served by the monitoring status endpoint
type MonitoringStatus struct {
	MonitoredJobs   int          `json:"monitored_jobs"`
	DueNow          int          `json:"due_now"`
	ClosedLast24h   int          `json:"closed_last_24h"`
	ActiveMonitors  int          `json:"active_monitors"`
	LastSweep       *SweepResult `json:"last_sweep,omitempty"`
	NextMonitorWake *time.Time   `json:"next_monitor_wake,omitempty"`
	GeneratedAt     time.Time    `json:"generated_at"`
}
