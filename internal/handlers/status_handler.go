package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	queue     interfaces.ScrapeQueue
	scheduler TaskScheduler
	ws        *WebSocketHandler
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler. scheduler and ws may be nil.
func NewStatusHandler(queue interfaces.ScrapeQueue, scheduler TaskScheduler, ws *WebSocketHandler, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:     queue,
		scheduler: scheduler,
		ws:        ws,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "read queue stats")
		return
	}

	status := map[string]interface{}{
		"version":    common.GetVersion(),
		"uptime":     time.Since(h.startedAt).Truncate(time.Second).String(),
		"goroutines": common.GetGoroutineCount(),
		"queue":      stats,
	}
	if h.scheduler != nil {
		status["scheduler_running"] = h.scheduler.IsRunning()
	}
	if h.ws != nil {
		status["websocket_clients"] = h.ws.ClientCount()
	}
	WriteJSON(w, http.StatusOK, status)
}
