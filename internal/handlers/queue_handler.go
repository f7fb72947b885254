package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const queuePrefix = "/scraping/queue/"

// QueueHandler serves the scrape queue, including the external worker protocol
// (claim pending items, report their outcome).
type QueueHandler struct {
	queue  interfaces.ScrapeQueue
	events interfaces.EventService
	logger arbor.ILogger
}

// EnqueueRequest is the body of POST /scraping/queue
type EnqueueRequest struct {
	URL        string `json:"url"`
	Source     string `json:"source"`
	SourceID   string `json:"source_id,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	MaxRetries *int   `json:"max_retries,omitempty"`
}

// QueueUpdateRequest is the body of PATCH /scraping/queue/{id}
type QueueUpdateRequest struct {
	Status    models.QueueStatus `json:"status"`
	JobID     string             `json:"job_id,omitempty"`
	Note      string             `json:"note,omitempty"`
	Error     string             `json:"error,omitempty"`
	Retryable *bool              `json:"retryable,omitempty"`
}

// NewQueueHandler creates a new queue handler. events may be nil.
func NewQueueHandler(queue interfaces.ScrapeQueue, events interfaces.EventService, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		events: events,
		logger: logger,
	}
}

// ListHandler handles GET /scraping/queue?status=&limit=
func (h *QueueHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := models.QueueStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusCompleted, models.QueueStatusFailed:
	default:
		WriteError(w, http.StatusBadRequest, "invalid status: "+string(status))
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "read queue stats")
		return
	}
	items, err := h.queue.List(r.Context(), status, QueryInt(r, "limit", 50, 500))
	if err != nil {
		WriteServiceError(w, h.logger, err, "list queue items")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"stats": stats,
		"items": items,
		"count": len(items),
	})
}

// EnqueueHandler handles POST /scraping/queue
func (h *QueueHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req EnqueueRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "enqueue url")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	maxRetries := 0
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			WriteError(w, http.StatusBadRequest, "max_retries must not be negative")
			return
		}
		maxRetries = *req.MaxRetries
		if maxRetries == 0 {
			maxRetries = models.NoRetries
		}
	}

	id, created, err := h.queue.Enqueue(r.Context(), &models.ScrapeQueueItem{
		URL:        req.URL,
		Source:     req.Source,
		SourceID:   req.SourceID,
		SiteID:     req.SiteID,
		Priority:   req.Priority,
		MaxRetries: maxRetries,
	})
	if err != nil {
		WriteServiceError(w, h.logger, err, "enqueue url")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		if h.events != nil {
			h.events.Publish(r.Context(), interfaces.Event{
				Type:    interfaces.EventQueueItemEnqueued,
				Payload: map[string]interface{}{"id": id, "url": req.URL, "source": req.Source},
			})
		}
	}

	WriteJSON(w, status, map[string]interface{}{
		"id":        id,
		"created":   created,
		"duplicate": !created,
	})
}

// PendingHandler handles GET /scraping/queue/pending?limit=. Returned items are claimed
// (processing) and must be reported back through PATCH /scraping/queue/{id}.
func (h *QueueHandler) PendingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	items, err := h.queue.ClaimBatch(r.Context(), QueryInt(r, "limit", 10, 100))
	if err != nil {
		WriteServiceError(w, h.logger, err, "claim queue items")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// UpdateHandler handles PATCH /scraping/queue/{id}
func (h *QueueHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}

	id := PathSegment(r.URL.Path, queuePrefix)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "queue item id is required")
		return
	}

	var req QueueUpdateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "update queue item")
		return
	}

	var err error
	switch req.Status {
	case models.QueueStatusCompleted:
		err = h.queue.Complete(r.Context(), id, models.QueueOutcome{JobID: req.JobID, Note: req.Note})
	case models.QueueStatusFailed:
		message := req.Error
		if message == "" {
			message = "reported failed by worker"
		}
		retryable := req.Retryable == nil || *req.Retryable
		err = h.queue.Fail(r.Context(), id, errors.New(message), retryable)
	default:
		WriteError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err, "update queue item")
		return
	}

	item, err := h.queue.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get queue item")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// RequeueHandler handles POST /scraping/queue/{id}/requeue
func (h *QueueHandler) RequeueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	id := PathSegment(r.URL.Path, queuePrefix)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "queue item id is required")
		return
	}

	if err := h.queue.Requeue(r.Context(), id); err != nil {
		WriteServiceError(w, h.logger, err, "requeue item")
		return
	}

	item, err := h.queue.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get queue item")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}
