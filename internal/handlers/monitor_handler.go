package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
)

// MonitorHandler serves per-job monitoring, tracking history and the monitoring sweep
type MonitorHandler struct {
	monitor JobMonitor
	logger  arbor.ILogger
}

// StartMonitorRequest is the optional body of POST /jobs/{id}/monitor
type StartMonitorRequest struct {
	URL           string `json:"url,omitempty"`
	IntervalHours int    `json:"check_interval_hours,omitempty"`
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitor JobMonitor, logger arbor.ILogger) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// MonitorHandler dispatches /jobs/{id}/monitor by method: POST enables, DELETE disables, GET reports status
func (h *MonitorHandler) MonitorHandler(w http.ResponseWriter, r *http.Request) {
	jobID := PathSegment(r.URL.Path, jobsPrefix)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.start(w, r, jobID)
	case http.MethodDelete:
		status, err := h.monitor.Stop(r.Context(), jobID)
		if err != nil {
			WriteServiceError(w, h.logger, err, "stop monitoring")
			return
		}
		WriteJSON(w, http.StatusOK, status)
	case http.MethodGet:
		status, err := h.monitor.Status(r.Context(), jobID)
		if err != nil {
			WriteServiceError(w, h.logger, err, "get monitor status")
			return
		}
		WriteJSON(w, http.StatusOK, status)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *MonitorHandler) start(w http.ResponseWriter, r *http.Request, jobID string) {
	var req StartMonitorRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "start monitoring")
		return
	}
	if hours := QueryInt(r, "interval_hours", 0, 0); hours > 0 {
		req.IntervalHours = hours
	}
	if req.IntervalHours < 0 {
		WriteError(w, http.StatusBadRequest, "check_interval_hours must be positive")
		return
	}

	record, err := h.monitor.Start(r.Context(), jobID, strings.TrimSpace(req.URL), req.IntervalHours)
	if err != nil {
		WriteServiceError(w, h.logger, err, "start monitoring")
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// CheckHandler handles POST /jobs/{id}/monitor/check. A failed check is reported in the body
// with status 200; only a missing job or storage failure is an HTTP error.
func (h *MonitorHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := PathSegment(r.URL.Path, jobsPrefix)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	result, err := h.monitor.Check(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "check job")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// TrackingHandler handles GET /jobs/{id}/tracking?limit=
func (h *MonitorHandler) TrackingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSegment(r.URL.Path, jobsPrefix)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	history, err := h.monitor.History(r.Context(), jobID, QueryInt(r, "limit", 100, 1000))
	if err != nil {
		WriteServiceError(w, h.logger, err, "get tracking history")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"history": history,
		"count":   len(history),
	})
}

// SweepHandler handles POST /jobs/monitor/all. The sweep runs synchronously and returns its summary.
func (h *MonitorHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := h.monitor.RunSweep(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "run monitoring sweep")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// MonitoringStatusHandler handles GET /monitoring/status
func (h *MonitorHandler) MonitoringStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := h.monitor.MonitoringStatus(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "get monitoring status")
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
