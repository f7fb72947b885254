package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/scraping"
)

const runsPrefix = "/scraping/jobs/"

// ScrapingHandler serves scrape run creation, run control and ad-hoc discovery
type ScrapingHandler struct {
	runs      RunController
	discovery Discoverer
	logger    arbor.ILogger
}

// NewScrapingHandler creates a new scraping handler
func NewScrapingHandler(runs RunController, discovery Discoverer, logger arbor.ILogger) *ScrapingHandler {
	return &ScrapingHandler{
		runs:      runs,
		discovery: discovery,
		logger:    logger,
	}
}

// CreateRunHandler handles POST /scraping/jobs. The run executes in the background.
func (h *ScrapingHandler) CreateRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req scraping.CreateRunRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "create scrape run")
		return
	}
	if len(req.URLs) == 0 {
		WriteError(w, http.StatusBadRequest, "urls is required")
		return
	}

	run, err := h.runs.CreateRun(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, err, "create scrape run")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"job_id":  run.ID,
		"run":     run,
		"message": "Scrape run started",
	})
}

// ListRunsHandler handles GET /scraping/jobs
func (h *ScrapingHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), QueryInt(r, "limit", 50, 500))
	if err != nil {
		WriteServiceError(w, h.logger, err, "list scrape runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunHandler handles GET /scraping/jobs/{id}
func (h *ScrapingHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runID := PathSegment(r.URL.Path, runsPrefix)
	if runID == "" {
		WriteError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get scrape run")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// ControlRunHandler handles POST /scraping/jobs/{id}/pause, /resume and /cancel
func (h *ScrapingHandler) ControlRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	runID := PathSegment(r.URL.Path, runsPrefix)
	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if runID == "" || action == runID {
		WriteError(w, http.StatusBadRequest, "run id and action are required")
		return
	}

	var (
		run *models.ScrapeRun
		err error
	)
	switch action {
	case "pause":
		run, err = h.runs.Pause(r.Context(), runID)
	case "resume":
		run, err = h.runs.Resume(r.Context(), runID)
	case "cancel":
		run, err = h.runs.Cancel(r.Context(), runID)
	default:
		WriteError(w, http.StatusNotFound, "unknown run action: "+action)
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err, action+" scrape run")
		return
	}

	h.logger.Info().Str("run_id", runID).Str("action", action).Str("state", string(run.State)).Msg("Scrape run control applied")
	WriteJSON(w, http.StatusOK, run)
}

// DiscoverHandler handles POST /scraping/discover. The base URL comes from the X-Base-Url header;
// the optional body is a DiscoveryConfig.
func (h *ScrapingHandler) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	baseURL := strings.TrimSpace(r.Header.Get("X-Base-Url"))
	if baseURL == "" {
		WriteError(w, http.StatusBadRequest, "X-Base-Url header is required")
		return
	}
	if u, err := url.Parse(baseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		WriteError(w, http.StatusBadRequest, "X-Base-Url must be an absolute http(s) URL")
		return
	}

	var config models.DiscoveryConfig
	if err := DecodeJSON(r, &config); err != nil {
		WriteServiceError(w, h.logger, err, "run discovery")
		return
	}
	if strategy := r.URL.Query().Get("strategy"); strategy != "" {
		config.Strategy = models.DiscoveryStrategy(strategy)
	}

	result, err := h.discovery.Discover(r.Context(), baseURL, config, QueryBool(r, "enqueue"))
	if err != nil {
		WriteServiceError(w, h.logger, err, "run discovery")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
