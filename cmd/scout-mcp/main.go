package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
)

func main() {
	configPath := os.Getenv("SCOUT_CONFIG")
	if configPath == "" {
		configPath = "scout.toml"
	}
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	config, err := common.LoadFromFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol, so only warnings reach the console
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:       arbor_models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
	}).WithLevelFromString("warn")

	baseURL := os.Getenv("SCOUT_API_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	api := newAPIClient(baseURL, 5*time.Minute)

	mcpServer := server.NewMCPServer(
		"scout",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Jobs
	mcpServer.AddTool(listJobsTool(), handleListJobs(api, logger))
	mcpServer.AddTool(getJobTool(), handleGetJob(api, logger))

	// Queue and scrape runs
	mcpServer.AddTool(enqueueURLTool(), handleEnqueueURL(api, logger))
	mcpServer.AddTool(queueStatusTool(), handleQueueStatus(api, logger))
	mcpServer.AddTool(scrapeURLsTool(), handleScrapeURLs(api, logger))
	mcpServer.AddTool(runStatusTool(), handleRunStatus(api, logger))
	mcpServer.AddTool(discoverSiteTool(), handleDiscoverSite(api, logger))

	// Monitoring
	mcpServer.AddTool(monitorJobTool(), handleMonitorJob(api, logger))
	mcpServer.AddTool(checkJobTool(), handleCheckJob(api, logger))
	mcpServer.AddTool(jobHistoryTool(), handleJobHistory(api, logger))
	mcpServer.AddTool(monitoringStatusTool(), handleMonitoringStatus(api, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
