package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func listJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List stored job postings, newest first"),
		mcp.WithString("status",
			mcp.Description("Filter by status: open, closed, expired"),
		),
		mcp.WithString("site_id",
			mcp.Description("Filter by site ID"),
		),
		mcp.WithBoolean("monitored",
			mcp.Description("Only jobs with daily monitoring enabled"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 20, max: 100)"),
		),
	)
}

func getJobTool() mcp.Tool {
	return mcp.NewTool("get_job",
		mcp.WithDescription("Retrieve one job posting with its description"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID"),
		),
	)
}

func enqueueURLTool() mcp.Tool {
	return mcp.NewTool("enqueue_url",
		mcp.WithDescription("Add a job posting URL to the scrape queue. Already queued URLs are reported as duplicates."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the posting"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Higher is claimed first (default: 0)"),
		),
	)
}

func queueStatusTool() mcp.Tool {
	return mcp.NewTool("queue_status",
		mcp.WithDescription("Show scrape queue counts and items"),
		mcp.WithString("status",
			mcp.Description("Filter items: pending, processing, completed, failed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum items (default: 20)"),
		),
	)
}

func scrapeURLsTool() mcp.Tool {
	return mcp.NewTool("scrape_urls",
		mcp.WithDescription("Start a scrape run over the given URLs and return the run ID"),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("Posting URLs to scrape"),
		),
		mcp.WithBoolean("enable_monitoring",
			mcp.Description("Start daily monitoring for every scraped job"),
		),
	)
}

func runStatusTool() mcp.Tool {
	return mcp.NewTool("run_status",
		mcp.WithDescription("Show the state and progress of a scrape run"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run ID returned by scrape_urls"),
		),
	)
}

func monitorJobTool() mcp.Tool {
	return mcp.NewTool("monitor_job",
		mcp.WithDescription("Enable or disable periodic monitoring of a job posting"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID"),
		),
		mcp.WithBoolean("enabled",
			mcp.Description("false disables monitoring (default: true)"),
		),
		mcp.WithNumber("interval_hours",
			mcp.Description("Hours between checks (default: server setting)"),
		),
	)
}

func checkJobTool() mcp.Tool {
	return mcp.NewTool("check_job",
		mcp.WithDescription("Re-check a job posting now for closure or content changes"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID"),
		),
	)
}

func jobHistoryTool() mcp.Tool {
	return mcp.NewTool("job_history",
		mcp.WithDescription("Show the monitoring history of a job posting"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries (default: 20)"),
		),
	)
}

func monitoringStatusTool() mcp.Tool {
	return mcp.NewTool("monitoring_status",
		mcp.WithDescription("Counts of monitored, due and recently closed jobs, plus the last sweep"),
	)
}

func discoverSiteTool() mcp.Tool {
	return mcp.NewTool("discover_site",
		mcp.WithDescription("Run discovery for a stored site and enqueue the posting URLs found"),
		mcp.WithString("site_id",
			mcp.Required(),
			mcp.Description("Site ID"),
		),
	)
}
