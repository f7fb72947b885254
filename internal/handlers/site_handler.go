package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const sitesPrefix = "/sites/"

// SiteHandler handles site administration and per-site discovery
type SiteHandler struct {
	siteStorage interfaces.SiteStorage
	discovery   Discoverer
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewSiteHandler creates a new site handler
func NewSiteHandler(siteStorage interfaces.SiteStorage, discovery Discoverer, logger arbor.ILogger) *SiteHandler {
	return &SiteHandler{
		siteStorage: siteStorage,
		discovery:   discovery,
		validate:    validator.New(),
		logger:      logger,
	}
}

// ListSitesHandler handles GET /sites?status=
func (h *SiteHandler) ListSitesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sites, err := h.siteStorage.ListSites(r.Context(), models.SiteStatus(r.URL.Query().Get("status")))
	if err != nil {
		WriteServiceError(w, h.logger, err, "list sites")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sites": sites,
		"count": len(sites),
	})
}

// CreateSiteHandler handles POST /sites. Posting an existing id replaces its definition
// while keeping runtime fields (last discovery, creation time).
func (h *SiteHandler) CreateSiteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var site models.Site
	if err := DecodeJSON(r, &site); err != nil {
		WriteServiceError(w, h.logger, err, "create site")
		return
	}
	site.BaseURL = strings.TrimSpace(site.BaseURL)
	if site.DiscoveryStrategy == "" {
		site.DiscoveryStrategy = models.StrategySitemap
	}
	if err := h.validate.Struct(&site); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid site: "+err.Error())
		return
	}
	switch site.Status {
	case "", models.SiteStatusActive, models.SiteStatusPaused, models.SiteStatusError:
	default:
		WriteError(w, http.StatusBadRequest, "invalid site status: "+string(site.Status))
		return
	}

	status := http.StatusCreated
	if site.ID == "" {
		site.ID = common.NewID("site")
	} else if existing, err := h.siteStorage.GetSite(r.Context(), site.ID); err == nil {
		site.CreatedAt = existing.CreatedAt
		site.LastDiscoveredAt = existing.LastDiscoveredAt
		status = http.StatusOK
	}

	if err := h.siteStorage.SaveSite(r.Context(), &site); err != nil {
		WriteServiceError(w, h.logger, err, "save site")
		return
	}

	h.logger.Info().Str("site_id", site.ID).Str("base_url", site.BaseURL).Msg("Site saved")
	WriteJSON(w, status, site)
}

// GetSiteHandler handles GET /sites/{id}
func (h *SiteHandler) GetSiteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	site, err := h.siteStorage.GetSite(r.Context(), PathSegment(r.URL.Path, sitesPrefix))
	if err != nil {
		WriteServiceError(w, h.logger, err, "get site")
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

// DeleteSiteHandler handles DELETE /sites/{id}. Sites referenced by open jobs are refused with 400.
func (h *SiteHandler) DeleteSiteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	siteID := PathSegment(r.URL.Path, sitesPrefix)
	if err := h.siteStorage.DeleteSite(r.Context(), siteID); err != nil {
		WriteServiceError(w, h.logger, err, "delete site")
		return
	}
	WriteSuccess(w, "Site deleted")
}

// DiscoverSiteHandler handles POST /sites/{id}/discover. Results are enqueued unless ?enqueue=false.
func (h *SiteHandler) DiscoverSiteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	siteID := PathSegment(r.URL.Path, sitesPrefix)
	if siteID == "" {
		WriteError(w, http.StatusBadRequest, "site id is required")
		return
	}
	enqueue := r.URL.Query().Get("enqueue") == "" || QueryBool(r, "enqueue")

	result, err := h.discovery.DiscoverSite(r.Context(), siteID, enqueue)
	if err != nil {
		WriteServiceError(w, h.logger, err, "discover site")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
