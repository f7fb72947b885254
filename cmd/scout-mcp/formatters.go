package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

func formatJobList(list *jobList) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jobs (%d of %d)\n\n", len(list.Jobs), list.TotalCount))

	if len(list.Jobs) == 0 {
		sb.WriteString("No jobs found.\n")
		return sb.String()
	}

	for i, job := range list.Jobs {
		sb.WriteString(fmt.Sprintf("%d. **%s** at %s (%s)\n", i+1, orDash(job.Title), orDash(job.Company), job.Status))
		sb.WriteString(fmt.Sprintf("   ID: %s | %s\n", job.ID, job.URL))
	}
	return sb.String()
}

func formatJob(job *models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", orDash(job.Title)))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Company:** %s\n", orDash(job.Company)))
	sb.WriteString(fmt.Sprintf("**Location:** %s\n", orDash(job.Location)))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**URL:** %s\n", job.URL))
	if salary := formatSalary(job); salary != "" {
		sb.WriteString(fmt.Sprintf("**Salary:** %s\n", salary))
	}
	sb.WriteString(fmt.Sprintf("**First seen:** %s\n", job.FirstSeenAt.Format(time.RFC3339)))
	if job.DailyMonitoringEnabled {
		sb.WriteString(fmt.Sprintf("**Monitoring:** every %dh\n", job.MonitoringFrequencyHours))
	}
	if job.ClosureDetectedAt != nil {
		sb.WriteString(fmt.Sprintf("**Closed:** %s\n", job.ClosureDetectedAt.Format(time.RFC3339)))
	}
	if job.NeedsReview {
		sb.WriteString(fmt.Sprintf("**Needs review:** confidence %.2f\n", job.ExtractionConfidence))
	}

	description := job.Description
	if len(description) > 2000 {
		description = description[:2000] + "..."
	}
	if description != "" {
		sb.WriteString("\n## Description\n\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatSalary(job *models.Job) string {
	if job.SalaryRaw != "" {
		return job.SalaryRaw
	}
	switch {
	case job.SalaryMin != nil && job.SalaryMax != nil:
		return strings.TrimSpace(fmt.Sprintf("%.0f-%.0f %s", *job.SalaryMin, *job.SalaryMax, job.SalaryCurrency))
	case job.SalaryMin != nil:
		return strings.TrimSpace(fmt.Sprintf("from %.0f %s", *job.SalaryMin, job.SalaryCurrency))
	case job.SalaryMax != nil:
		return strings.TrimSpace(fmt.Sprintf("up to %.0f %s", *job.SalaryMax, job.SalaryCurrency))
	}
	return ""
}

func formatQueue(list *queueList) string {
	var sb strings.Builder
	if s := list.Stats; s != nil {
		sb.WriteString(fmt.Sprintf("## Queue: %d pending, %d processing, %d completed, %d failed\n\n",
			s.Pending, s.Processing, s.Completed, s.Failed))
		if s.OldestPendingAge != "" {
			sb.WriteString(fmt.Sprintf("Oldest pending: %s\n\n", s.OldestPendingAge))
		}
	}
	for _, item := range list.Items {
		line := fmt.Sprintf("- [%s] %s (priority %d, retries %d/%d)", item.Status, item.URL, item.Priority, item.RetryCount, item.MaxRetries)
		if item.Error != "" {
			line += " error: " + item.Error
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func formatRun(run *models.ScrapeRun) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Run %s: %s\n\n", run.ID, run.State))
	sb.WriteString(fmt.Sprintf("Progress: %d/%d (%.0f%%)\n", run.Progress.Current, run.Progress.Total, run.Progress.Percentage))
	r := run.Results
	sb.WriteString(fmt.Sprintf("Successful: %d, failed: %d, requeued: %d\n", r.Successful, r.Failed, r.Requeued))
	if len(r.JobIDs) > 0 {
		sb.WriteString(fmt.Sprintf("Jobs: %s\n", strings.Join(r.JobIDs, ", ")))
	}
	if run.Error != "" {
		sb.WriteString(fmt.Sprintf("Error: %s\n", run.Error))
	}
	return sb.String()
}

func formatHistory(list *trackingList) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Tracking history for %s (%d entries)\n\n", list.JobID, len(list.History)))
	for _, entry := range list.History {
		var changed []string
		if entry.TitleChanged {
			changed = append(changed, "title")
		}
		if entry.DescriptionChanged {
			changed = append(changed, "description")
		}
		if entry.RequirementsChanged {
			changed = append(changed, "requirements")
		}
		if entry.SalaryChanged {
			changed = append(changed, "salary")
		}

		line := fmt.Sprintf("- %s %s", entry.TrackingDate.Format(time.RFC3339), entry.Status)
		if len(changed) > 0 {
			line += " changed: " + strings.Join(changed, ", ")
		}
		if entry.ClosureReason != "" {
			line += " reason: " + entry.ClosureReason
		}
		if entry.ErrorMessage != "" {
			line += " error: " + entry.ErrorMessage
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func formatMonitoringStatus(status *models.MonitoringStatus) string {
	var sb strings.Builder
	sb.WriteString("## Monitoring\n\n")
	sb.WriteString(fmt.Sprintf("Monitored jobs: %d\n", status.MonitoredJobs))
	sb.WriteString(fmt.Sprintf("Active monitors: %d\n", status.ActiveMonitors))
	sb.WriteString(fmt.Sprintf("Due now: %d\n", status.DueNow))
	sb.WriteString(fmt.Sprintf("Closed in last 24h: %d\n", status.ClosedLast24h))
	if s := status.LastSweep; s != nil {
		sb.WriteString(fmt.Sprintf("\nLast sweep %s: %d checked, %d changed, %d closed, %d errors (%dms)\n",
			s.StartedAt.Format(time.RFC3339), s.TotalChecked, s.Changed, s.Closed, s.Errors, s.ProcessingTimeMs))
	}
	return sb.String()
}

func formatDiscovery(result *models.DiscoveryResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Discovery of %s (%s)\n\n", result.BaseURL, result.Strategy))
	sb.WriteString(fmt.Sprintf("Found %d URLs, enqueued %d, %d errors\n\n", len(result.URLs), result.Enqueued, len(result.Errors)))
	for _, note := range result.Notes {
		sb.WriteString("Note: " + note + "\n\n")
	}
	for _, u := range result.URLs {
		sb.WriteString("- " + u + "\n")
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
