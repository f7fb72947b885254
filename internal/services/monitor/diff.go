package monitor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// NormalizeText renders markdown and reduces it to lowercase plain text with collapsed whitespace
func NormalizeText(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	var buf bytes.Buffer
	plain := md
	if err := markdown.Convert([]byte(md), &buf); err == nil {
		if doc, err := goquery.NewDocumentFromReader(&buf); err == nil {
			doc.Find("p, li, h1, h2, h3, h4, h5, h6, br, tr, pre").Each(func(_ int, s *goquery.Selection) {
				s.AppendHtml(" ")
			})
			plain = doc.Text()
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(plain), " "))
}

// SnapshotFromJob captures the salient fields of a stored job
func SnapshotFromJob(job *models.Job) *models.JobSnapshot {
	return &models.JobSnapshot{
		Title:        job.Title,
		Requirements: job.Requirements,
		Salary:       salaryString(job.SalaryRaw, job.SalaryMin, job.SalaryMax, job.SalaryCurrency),
		Description:  job.Description,
	}
}

// SnapshotFromExtraction captures the salient fields of a fresh extraction
func SnapshotFromExtraction(e *models.ExtractedJob) *models.JobSnapshot {
	return &models.JobSnapshot{
		Title:        e.Title,
		Requirements: e.Requirements,
		Salary:       salaryString(e.SalaryRaw, e.SalaryMin, e.SalaryMax, e.SalaryCurrency),
		Description:  e.Description,
	}
}

func salaryString(raw string, lo, hi *float64, currency string) string {
	if raw != "" {
		return raw
	}
	var parts []string
	if lo != nil {
		parts = append(parts, strconv.FormatFloat(*lo, 'f', -1, 64))
	}
	if hi != nil {
		parts = append(parts, strconv.FormatFloat(*hi, 'f', -1, 64))
	}
	if len(parts) == 0 {
		return ""
	}
	out := strings.Join(parts, "-")
	if currency != "" {
		out = currency + " " + out
	}
	return out
}

// ContentHash is the SHA-256 over the normalized salient fields
func ContentHash(s *models.JobSnapshot) string {
	if s == nil {
		return ""
	}
	h := sha256.New()
	for _, part := range []string{
		NormalizeText(s.Title),
		NormalizeText(s.Requirements),
		NormalizeText(s.Salary),
		NormalizeText(s.Description),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff sets the changed flags of entry by comparing normalized fields
func Diff(previous, current *models.JobSnapshot, entry *models.TrackingHistoryEntry) {
	if previous == nil || current == nil {
		return
	}
	entry.TitleChanged = NormalizeText(previous.Title) != NormalizeText(current.Title)
	entry.RequirementsChanged = NormalizeText(previous.Requirements) != NormalizeText(current.Requirements)
	entry.SalaryChanged = NormalizeText(previous.Salary) != NormalizeText(current.Salary)
	entry.DescriptionChanged = NormalizeText(previous.Description) != NormalizeText(current.Description)
}
