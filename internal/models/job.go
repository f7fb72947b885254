package models

import "time"

// JobStatus is the lifecycle status of a job posting
type JobStatus string

const (
	JobStatusOpen    JobStatus = "open"
	JobStatusClosed  JobStatus = "closed"
	JobStatusExpired JobStatus = "expired"
)

// JobSource records how a job entered the system
type JobSource string

const (
	JobSourceScraped JobSource = "SCRAPED"
	JobSourceEmail   JobSource = "EMAIL"
	JobSourceManual  JobSource = "MANUAL"
)

// Job is a single job posting keyed naturally by URL.
// ID and FirstSeenAt never change after the first upsert.
type Job struct {
	ID                       string     `json:"id" badgerhold:"key"`
	URL                      string     `json:"url" badgerhold:"index"`
	CanonicalURL             string     `json:"canonical_url,omitempty"`
	SiteID                   string     `json:"site_id,omitempty" badgerhold:"index"`
	Title                    string     `json:"title"`
	Company                  string     `json:"company"`
	Location                 string     `json:"location"`
	EmploymentType           string     `json:"employment_type,omitempty"`
	SalaryMin                *float64   `json:"salary_min,omitempty"`
	SalaryMax                *float64   `json:"salary_max,omitempty"`
	SalaryCurrency           string     `json:"salary_currency,omitempty"`
	SalaryRaw                string     `json:"salary_raw,omitempty"`
	Description              string     `json:"description"`
	Requirements             string     `json:"requirements,omitempty"`
	Status                   JobStatus  `json:"status" badgerhold:"index"`
	Source                   JobSource  `json:"source"`
	FirstSeenAt              time.Time  `json:"first_seen_at"`
	LastCrawledAt            *time.Time `json:"last_crawled_at,omitempty"`
	DailyMonitoringEnabled   bool       `json:"daily_monitoring_enabled"`
	MonitoringFrequencyHours int        `json:"monitoring_frequency_hours"`
	LastStatusCheckAt        *time.Time `json:"last_status_check_at,omitempty"`
	ClosureDetectedAt        *time.Time `json:"closure_detected_at,omitempty"`
	ContentHash              string     `json:"content_hash,omitempty"`
	ExtractionConfidence     float64    `json:"extraction_confidence"`
	ExtractionMethod         string     `json:"extraction_method,omitempty"`
	NeedsReview              bool       `json:"needs_review"`
	SnapshotKey              string     `json:"snapshot_key,omitempty"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// DefaultMonitoringFrequencyHours applies when a job has no frequency set
const DefaultMonitoringFrequencyHours = 24

// MonitoringFrequency returns the job's check interval
func (j *Job) MonitoringFrequency() time.Duration {
	hours := j.MonitoringFrequencyHours
	if hours <= 0 {
		hours = DefaultMonitoringFrequencyHours
	}
	return time.Duration(hours) * time.Hour
}

// IsDueForMonitoring applies the sweep selection rule at time now
func (j *Job) IsDueForMonitoring(now time.Time) bool {
	if !j.DailyMonitoringEnabled || j.Status != JobStatusOpen {
		return false
	}
	if j.LastStatusCheckAt == nil {
		return true
	}
	return !j.LastStatusCheckAt.Add(j.MonitoringFrequency()).After(now)
}

// ApplyExtraction merges extracted fields into the job, keeping existing values where the extraction is empty
func (j *Job) ApplyExtraction(e *ExtractedJob, lowConfidenceThreshold float64) {
	if e == nil {
		return
	}
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&j.Title, e.Title)
	setIf(&j.Company, e.Company)
	setIf(&j.Location, e.Location)
	setIf(&j.EmploymentType, e.EmploymentType)
	setIf(&j.Description, e.Description)
	setIf(&j.Requirements, e.Requirements)
	setIf(&j.SalaryCurrency, e.SalaryCurrency)
	setIf(&j.SalaryRaw, e.SalaryRaw)
	setIf(&j.CanonicalURL, e.CanonicalURL)
	if e.SalaryMin != nil {
		j.SalaryMin = e.SalaryMin
	}
	if e.SalaryMax != nil {
		j.SalaryMax = e.SalaryMax
	}
	j.ExtractionConfidence = e.ConfidenceScore
	j.ExtractionMethod = string(e.Method)
	j.NeedsReview = e.ConfidenceScore < lowConfidenceThreshold
}

// JobListOptions filters job listings
type JobListOptions struct {
	Status    JobStatus
	SiteID    string
	Monitored *bool
	Limit     int
	Offset    int
}
