package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const jobsPrefix = "/jobs/"

// JobHandler handles job posting API requests
type JobHandler struct {
	jobStorage interfaces.JobStorage
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobStorage interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobStorage: jobStorage,
		logger:     logger,
	}
}

// ListJobsHandler returns a paginated list of jobs
// GET /jobs?limit=50&offset=0&status=open&site_id=...&monitored=true
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	opts := models.JobListOptions{
		Status: models.JobStatus(query.Get("status")),
		SiteID: query.Get("site_id"),
		Limit:  QueryInt(r, "limit", 50, 500),
		Offset: QueryInt(r, "offset", 0, 0),
	}
	switch opts.Status {
	case "", models.JobStatusOpen, models.JobStatusClosed, models.JobStatusExpired:
	default:
		WriteError(w, http.StatusBadRequest, "invalid status: "+string(opts.Status))
		return
	}
	if raw := query.Get("monitored"); raw != "" {
		monitored, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "monitored must be true or false")
			return
		}
		opts.Monitored = &monitored
	}

	jobs, total, err := h.jobStorage.ListJobs(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": total,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// GetJobHandler returns a single job
// GET /jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := PathSegment(r.URL.Path, jobsPrefix)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	job, err := h.jobStorage.GetJob(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get job")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
