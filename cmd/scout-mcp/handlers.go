package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
)

func toolError(logger arbor.ILogger, tool string, err error) (*mcp.CallToolResult, error) {
	logger.Warn().Err(err).Str("tool", tool).Msg("Tool call failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err)), nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func handleListJobs(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := map[string]string{
			"limit": strconv.Itoa(clampLimit(request.GetInt("limit", 20), 20, 100)),
		}
		if status := request.GetString("status", ""); status != "" {
			query["status"] = status
		}
		if siteID := request.GetString("site_id", ""); siteID != "" {
			query["site_id"] = siteID
		}
		if request.GetBool("monitored", false) {
			query["monitored"] = "true"
		}

		list, err := api.ListJobs(ctx, query)
		if err != nil {
			return toolError(logger, "list_jobs", err)
		}
		return mcp.NewToolResultText(formatJobList(list)), nil
	}
}

func handleGetJob(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		job, err := api.GetJob(ctx, jobID)
		if err != nil {
			return toolError(logger, "get_job", err)
		}
		return mcp.NewToolResultText(formatJob(job)), nil
	}
}

func handleEnqueueURL(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil || url == "" {
			return mcp.NewToolResultError("url parameter is required"), nil
		}
		result, err := api.Enqueue(ctx, url, request.GetInt("priority", 0))
		if err != nil {
			return toolError(logger, "enqueue_url", err)
		}
		if result.Duplicate {
			return mcp.NewToolResultText(fmt.Sprintf("Already queued as %s", result.ID)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Queued as %s", result.ID)), nil
	}
}

func handleQueueStatus(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := api.QueueStatus(ctx, request.GetString("status", ""), clampLimit(request.GetInt("limit", 20), 20, 100))
		if err != nil {
			return toolError(logger, "queue_status", err)
		}
		return mcp.NewToolResultText(formatQueue(list)), nil
	}
}

func handleScrapeURLs(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls := request.GetStringSlice("urls", nil)
		if len(urls) == 0 {
			return mcp.NewToolResultError("urls parameter is required"), nil
		}
		started, err := api.CreateRun(ctx, urls, request.GetBool("enable_monitoring", false))
		if err != nil {
			return toolError(logger, "scrape_urls", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Started run %s over %d URLs. Use run_status to follow it.", started.JobID, len(urls))), nil
	}
}

func handleRunStatus(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil || runID == "" {
			return mcp.NewToolResultError("run_id parameter is required"), nil
		}
		run, err := api.GetRun(ctx, runID)
		if err != nil {
			return toolError(logger, "run_status", err)
		}
		return mcp.NewToolResultText(formatRun(run)), nil
	}
}

func handleMonitorJob(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}

		if !request.GetBool("enabled", true) {
			status, err := api.StopMonitor(ctx, jobID)
			if err != nil {
				return toolError(logger, "monitor_job", err)
			}
			return mcp.NewToolResultText(fmt.Sprintf("Monitoring for %s is now %s", jobID, status.State)), nil
		}

		record, err := api.StartMonitor(ctx, jobID, request.GetInt("interval_hours", 0))
		if err != nil {
			return toolError(logger, "monitor_job", err)
		}
		next := "-"
		if record.NextCheckAt != nil {
			next = record.NextCheckAt.Format("2006-01-02 15:04 MST")
		}
		return mcp.NewToolResultText(fmt.Sprintf("Monitoring %s every %dh, next check %s", jobID, record.CheckIntervalHours, next)), nil
	}
}

func handleCheckJob(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		result, err := api.CheckJob(ctx, jobID)
		if err != nil {
			return toolError(logger, "check_job", err)
		}
		text := fmt.Sprintf("Check of %s: %s", jobID, result.Outcome)
		if result.Error != "" {
			text += " (" + result.Error + ")"
		}
		return mcp.NewToolResultText(text), nil
	}
}

func handleJobHistory(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return mcp.NewToolResultError("job_id parameter is required"), nil
		}
		list, err := api.Tracking(ctx, jobID, clampLimit(request.GetInt("limit", 20), 20, 500))
		if err != nil {
			return toolError(logger, "job_history", err)
		}
		return mcp.NewToolResultText(formatHistory(list)), nil
	}
}

func handleMonitoringStatus(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := api.MonitoringStatus(ctx)
		if err != nil {
			return toolError(logger, "monitoring_status", err)
		}
		return mcp.NewToolResultText(formatMonitoringStatus(status)), nil
	}
}

func handleDiscoverSite(api *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		siteID, err := request.RequireString("site_id")
		if err != nil || siteID == "" {
			return mcp.NewToolResultError("site_id parameter is required"), nil
		}
		result, err := api.DiscoverSite(ctx, siteID)
		if err != nil {
			return toolError(logger, "discover_site", err)
		}
		return mcp.NewToolResultText(formatDiscovery(result)), nil
	}
}
