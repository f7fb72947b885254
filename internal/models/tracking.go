package models

import "time"

// TrackingStatus is the outcome recorded by one monitoring check
type TrackingStatus string

const (
	TrackingStatusOpen   TrackingStatus = "open"
	TrackingStatusClosed TrackingStatus = "closed"
	TrackingStatusError  TrackingStatus = "error"
)

// TrackingHistoryEntry is an immutable audit record of one monitoring check
type TrackingHistoryEntry struct {
	ID                  string         `json:"id" badgerhold:"key"`
	JobID               string         `json:"job_id" badgerhold:"index"`
	TrackingDate        time.Time      `json:"tracking_date"`
	Status              TrackingStatus `json:"status"`
	ContentHash         string         `json:"content_hash,omitempty"`
	TitleChanged        bool           `json:"title_changed"`
	RequirementsChanged bool           `json:"requirements_changed"`
	SalaryChanged       bool           `json:"salary_changed"`
	DescriptionChanged  bool           `json:"description_changed"`
	HTTPStatus          int            `json:"http_status,omitempty"`
	ClosureReason       string         `json:"closure_reason,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	SnapshotKey         string         `json:"snapshot_key,omitempty"`
}

// AnyChanged reports whether any salient field changed
func (e *TrackingHistoryEntry) AnyChanged() bool {
	return e.TitleChanged || e.RequirementsChanged || e.SalaryChanged || e.DescriptionChanged
}
