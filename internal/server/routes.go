package server

import (
	"net/http"
	"strings"
)

const (
	runsPrefix  = "/scraping/jobs/"
	queuePrefix = "/scraping/queue/"
	jobsPrefix  = "/jobs/"
	sitesPrefix = "/sites/"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// System
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/status", s.app.StatusHandler.GetStatusHandler)

	// Scrape runs, discovery and the queue
	mux.HandleFunc("/scraping/jobs", s.handleRunsRoute)
	mux.HandleFunc(runsPrefix, s.handleRunRoutes) // GET /{id}, POST /{id}/pause|resume|cancel
	mux.HandleFunc("/scraping/discover", s.app.ScrapingHandler.DiscoverHandler)
	mux.HandleFunc("/scraping/queue", s.handleQueueRoute)
	mux.HandleFunc(queuePrefix, s.handleQueueItemRoutes) // GET /pending, PATCH /{id}, POST /{id}/requeue

	// Jobs and monitoring
	mux.HandleFunc("/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/jobs/monitor/all", s.app.MonitorHandler.SweepHandler)
	mux.HandleFunc(jobsPrefix, s.handleJobRoutes)
	mux.HandleFunc("/monitoring/status", s.app.MonitorHandler.MonitoringStatusHandler)

	// Sites
	mux.HandleFunc("/sites", s.handleSitesRoute)
	mux.HandleFunc(sitesPrefix, s.handleSiteRoutes)

	// Scheduler
	mux.HandleFunc("/scheduler/tasks", s.app.SchedulerHandler.ListTasksHandler)
	mux.HandleFunc("/scheduler/tasks/", s.app.SchedulerHandler.TaskActionHandler) // POST /{name}/trigger|enable|disable

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleRunsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.ScrapingHandler.ListRunsHandler,
		s.app.ScrapingHandler.CreateRunHandler,
	)
}

func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	control := s.app.ScrapingHandler.ControlRunHandler
	if RouteByPathSuffix(w, r, runsPrefix, []PathSuffixRouter{
		{Suffix: "/pause", Handler: control},
		{Suffix: "/resume", Handler: control},
		{Suffix: "/cancel", Handler: control},
	}) {
		return
	}
	s.app.ScrapingHandler.GetRunHandler(w, r)
}

func (s *Server) handleQueueRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.QueueHandler.ListHandler,
		s.app.QueueHandler.EnqueueHandler,
	)
}

func (s *Server) handleQueueItemRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSuffix(r.URL.Path, "/") == queuePrefix+"pending" {
		s.app.QueueHandler.PendingHandler(w, r)
		return
	}
	if RouteByPathSuffix(w, r, queuePrefix, []PathSuffixRouter{
		{Suffix: "/requeue", Handler: s.app.QueueHandler.RequeueHandler},
	}) {
		return
	}
	s.app.QueueHandler.UpdateHandler(w, r)
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if RouteByPathSuffix(w, r, jobsPrefix, []PathSuffixRouter{
		{Suffix: "/monitor/check", Handler: s.app.MonitorHandler.CheckHandler},
		{Suffix: "/monitor", Handler: s.app.MonitorHandler.MonitorHandler},
		{Suffix: "/tracking", Handler: s.app.MonitorHandler.TrackingHandler},
	}) {
		return
	}
	s.app.JobHandler.GetJobHandler(w, r)
}

func (s *Server) handleSitesRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.SiteHandler.ListSitesHandler,
		s.app.SiteHandler.CreateSiteHandler,
	)
}

func (s *Server) handleSiteRoutes(w http.ResponseWriter, r *http.Request) {
	if RouteByPathSuffix(w, r, sitesPrefix, []PathSuffixRouter{
		{Suffix: "/discover", Handler: s.app.SiteHandler.DiscoverSiteHandler},
	}) {
		return
	}
	RouteResourceItem(w, r, s.app.SiteHandler.GetSiteHandler, nil, s.app.SiteHandler.DeleteSiteHandler)
}
