package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
)

const tasksPrefix = "/scheduler/tasks/"

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler TaskScheduler
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(scheduler TaskScheduler, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// ListTasksHandler handles GET /scheduler/tasks
func (h *SchedulerHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"tasks":   h.scheduler.TaskStatuses(),
	})
}

// TaskActionHandler handles POST /scheduler/tasks/{name}/trigger, /enable and /disable
func (h *SchedulerHandler) TaskActionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	name := PathSegment(r.URL.Path, tasksPrefix)
	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	var err error
	switch action {
	case "trigger":
		err = h.scheduler.TriggerTask(name)
	case "enable":
		err = h.scheduler.EnableTask(name)
	case "disable":
		err = h.scheduler.DisableTask(name)
	default:
		WriteError(w, http.StatusNotFound, "unknown task action: "+action)
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err, action+" task")
		return
	}

	if action == "trigger" {
		WriteStarted(w, "Task "+name+" triggered")
		return
	}
	WriteSuccess(w, "Task "+name+" "+action+"d")
}
