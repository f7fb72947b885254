package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/services/fetcher"
)

const (
	confidenceJSONLDMax = 0.9
	confidenceMeta      = 0.5
	confidenceMetaThin  = 0.4
	confidenceHeuristic = 0.3
)

var (
	requirementsHeading = regexp.MustCompile(`(?i)(requirements|qualifications|what you('|’)ll need|what we('|’)re looking for|who you are|skills)`)
	salaryRange         = regexp.MustCompile(`(?i)([$£€])\s?(\d{1,3}(?:,\d{3})+|\d{2,3}(?:\.\d+)?k)\s*(?:-|–|—|to)\s*[$£€]?\s?(\d{1,3}(?:,\d{3})+|\d{2,3}(?:\.\d+)?k)`)
	whitespace          = regexp.MustCompile(`\s+`)
)

// StructuredExtractor reads JSON-LD JobPosting data, falling back to OpenGraph/meta tags
// and finally page headings
type StructuredExtractor struct {
	logger arbor.ILogger
}

// NewStructuredExtractor creates the deterministic extractor
func NewStructuredExtractor(logger arbor.ILogger) *StructuredExtractor {
	return &StructuredExtractor{logger: logger}
}

func (e *StructuredExtractor) Name() string { return "structured" }

// Extract ignores schema; the field set is fixed
func (e *StructuredExtractor) Extract(ctx context.Context, input models.ExtractionInput, schema map[string]interface{}) (*models.ExtractedJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input.HTML))
	if err != nil {
		return nil, models.NewScrapingError(models.ErrorTypeParsing, input.URL, fmt.Errorf("failed to parse html: %w", err))
	}

	var job *models.ExtractedJob
	if posting := FindJobPosting(doc); posting != nil {
		job = fromJobPosting(posting)
	}
	if job == nil || job.Title == "" {
		job = fromMeta(doc)
	}
	if job == nil || job.Title == "" {
		job = fromHeadings(doc)
	}
	if job == nil || job.Title == "" {
		return nil, models.NewScrapingError(models.ErrorTypeExtraction, input.URL, fmt.Errorf("no job title found"))
	}

	if job.CanonicalURL == "" {
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
			job.CanonicalURL = strings.TrimSpace(href)
		}
	}
	if job.Requirements == "" {
		job.Requirements = requirementsSection(doc)
	}
	if job.SalaryMin == nil && job.SalaryMax == nil {
		applySalaryText(job, mainText(doc))
	}
	if job.Description == "" {
		job.Description = input.Markdown
	}
	if job.Description == "" {
		if html, err := goquery.OuterHtml(mainContent(doc)); err == nil {
			if md, err := fetcher.ToMarkdown(html, input.URL); err == nil {
				job.Description = md
			}
		}
	}

	e.logger.Debug().
		Str("url", input.URL).
		Str("method", string(job.Method)).
		Float64("confidence", job.ConfidenceScore).
		Msg("Structured extraction complete")

	return job, nil
}

// FindJobPosting returns the first JSON-LD object whose @type is JobPosting
func FindJobPosting(doc *goquery.Document) map[string]interface{} {
	var found map[string]interface{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return true
		}
		found = findPosting(data)
		return found == nil
	})
	return found
}

func findPosting(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			if p := findPosting(item); p != nil {
				return p
			}
		}
	case map[string]interface{}:
		if isType(v["@type"], "JobPosting") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findPosting(graph)
		}
	}
	return nil
}

func isType(t interface{}, want string) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, want)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func fromJobPosting(p map[string]interface{}) *models.ExtractedJob {
	job := &models.ExtractedJob{
		Title:          clean(str(p["title"])),
		Company:        organizationName(p["hiringOrganization"]),
		Location:       jobLocation(p),
		EmploymentType: strings.Join(strList(p["employmentType"]), ", "),
		CanonicalURL:   str(p["url"]),
		Method:         models.ExtractionJSONLD,
		Metadata:       map[string]interface{}{"json_ld": true},
	}

	if desc := str(p["description"]); desc != "" {
		if md, err := fetcher.ToMarkdown(desc, job.CanonicalURL); err == nil {
			job.Description = md
		} else {
			job.Description = desc
		}
	}

	var reqs []string
	for _, key := range []string{"qualifications", "experienceRequirements", "skills", "educationRequirements"} {
		if v := clean(stripTags(joinAny(p[key]))); v != "" {
			reqs = append(reqs, v)
		}
	}
	job.Requirements = strings.Join(reqs, "\n\n")

	applyBaseSalary(job, p["baseSalary"])

	if raw := str(p["validThrough"]); raw != "" {
		if t, ok := parseDate(raw); ok {
			job.ValidThrough = &t
		}
	}
	if posted := str(p["datePosted"]); posted != "" {
		job.Metadata["date_posted"] = posted
	}

	score := confidenceJSONLDMax - 0.15
	for _, filled := range []bool{job.Company != "", job.Location != "", job.Description != ""} {
		if filled {
			score += 0.05
		}
	}
	job.ConfidenceScore = score
	return job
}

func fromMeta(doc *goquery.Document) *models.ExtractedJob {
	og := openGraph(doc)
	title := og["title"]
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	title = clean(title)
	if title == "" {
		return nil
	}

	description := og["description"]
	if description == "" {
		description, _ = doc.Find(`meta[name="description"]`).Attr("content")
	}

	job := &models.ExtractedJob{
		Title:        title,
		Company:      clean(og["site_name"]),
		Description:  clean(description),
		CanonicalURL: og["url"],
		Method:       models.ExtractionMeta,
		Metadata:     map[string]interface{}{"og": og},
	}
	job.ConfidenceScore = confidenceMetaThin
	if job.Description != "" {
		job.ConfidenceScore = confidenceMeta
	}
	return job
}

func fromHeadings(doc *goquery.Document) *models.ExtractedJob {
	title := clean(doc.Find("h1").First().Text())
	if title == "" {
		title = clean(doc.Find("h2").First().Text())
	}
	if title == "" {
		return nil
	}
	return &models.ExtractedJob{
		Title:           title,
		Method:          models.ExtractionHeuristic,
		ConfidenceScore: confidenceHeuristic,
	}
}

func openGraph(doc *goquery.Document) map[string]string {
	og := make(map[string]string)
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content != "" {
			og[strings.TrimPrefix(prop, "og:")] = strings.TrimSpace(content)
		}
	})
	return og
}

// mainContent picks main, article, [role=main] or body
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"main", "article", `[role="main"]`, "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

func mainText(doc *goquery.Document) string {
	main := mainContent(doc).Clone()
	main.Find("script, style, noscript").Remove()
	return clean(main.Text())
}

// requirementsSection returns the list following a requirements-like heading
func requirementsSection(doc *goquery.Document) string {
	var out string
	doc.Find("h2, h3, h4, strong, b").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !requirementsHeading.MatchString(s.Text()) {
			return true
		}
		block := s.NextAllFiltered("ul, ol, p").First()
		if block.Length() == 0 {
			block = s.Parent().NextAllFiltered("ul, ol, p").First()
		}
		if block.Length() == 0 {
			return true
		}
		var items []string
		block.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := clean(li.Text()); text != "" {
				items = append(items, "- "+text)
			}
		})
		if len(items) > 0 {
			out = strings.Join(items, "\n")
		} else {
			out = clean(block.Text())
		}
		return out == ""
	})
	return out
}

func applyBaseSalary(job *models.ExtractedJob, raw interface{}) {
	switch v := raw.(type) {
	case float64:
		job.SalaryMin = &v
	case string:
		applySalaryText(job, v)
	case map[string]interface{}:
		job.SalaryCurrency = strings.ToUpper(str(v["currency"]))
		switch value := v["value"].(type) {
		case float64:
			job.SalaryMin = &value
		case string:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				job.SalaryMin = &f
			}
		case map[string]interface{}:
			job.SalaryMin = number(value["minValue"])
			job.SalaryMax = number(value["maxValue"])
			if job.SalaryMin == nil && job.SalaryMax == nil {
				job.SalaryMin = number(value["value"])
			}
			if unit := str(value["unitText"]); unit != "" {
				if job.Metadata == nil {
					job.Metadata = map[string]interface{}{}
				}
				job.Metadata["salary_unit"] = unit
			}
		}
	}
	if job.SalaryMin != nil || job.SalaryMax != nil {
		job.SalaryRaw = formatSalary(job)
	}
}

func applySalaryText(job *models.ExtractedJob, text string) {
	m := salaryRange.FindStringSubmatch(text)
	if m == nil {
		return
	}
	low, okLow := parseAmount(m[2])
	high, okHigh := parseAmount(m[3])
	if !okLow || !okHigh {
		return
	}
	job.SalaryMin = &low
	job.SalaryMax = &high
	job.SalaryRaw = strings.TrimSpace(m[0])
	switch m[1] {
	case "$":
		job.SalaryCurrency = "USD"
	case "£":
		job.SalaryCurrency = "GBP"
	case "€":
		job.SalaryCurrency = "EUR"
	}
}

func parseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.ReplaceAll(s, ",", ""))
	mult := 1.0
	if strings.HasSuffix(s, "k") {
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f * mult, true
}

func formatSalary(job *models.ExtractedJob) string {
	var parts []string
	if job.SalaryMin != nil {
		parts = append(parts, strconv.FormatFloat(*job.SalaryMin, 'f', -1, 64))
	}
	if job.SalaryMax != nil {
		parts = append(parts, strconv.FormatFloat(*job.SalaryMax, 'f', -1, 64))
	}
	raw := strings.Join(parts, "-")
	if job.SalaryCurrency != "" {
		raw = job.SalaryCurrency + " " + raw
	}
	return raw
}

func organizationName(v interface{}) string {
	switch org := v.(type) {
	case string:
		return clean(org)
	case map[string]interface{}:
		return clean(str(org["name"]))
	case []interface{}:
		if len(org) > 0 {
			return organizationName(org[0])
		}
	}
	return ""
}

func jobLocation(p map[string]interface{}) string {
	var places []string
	var collect func(v interface{})
	collect = func(v interface{}) {
		switch loc := v.(type) {
		case []interface{}:
			for _, item := range loc {
				collect(item)
			}
		case map[string]interface{}:
			addr, ok := loc["address"].(map[string]interface{})
			if !ok {
				if name := str(loc["name"]); name != "" {
					places = append(places, name)
				}
				return
			}
			var parts []string
			for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
				switch part := addr[key].(type) {
				case string:
					if part != "" {
						parts = append(parts, part)
					}
				case map[string]interface{}:
					if name := str(part["name"]); name != "" {
						parts = append(parts, name)
					}
				}
			}
			if len(parts) > 0 {
				places = append(places, strings.Join(parts, ", "))
			}
		case string:
			if loc != "" {
				places = append(places, loc)
			}
		}
	}
	collect(p["jobLocation"])

	if strings.EqualFold(str(p["jobLocationType"]), "TELECOMMUTE") {
		places = append([]string{"Remote"}, places...)
	}
	return strings.Join(places, "; ")
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func number(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return &f
		}
	}
	return nil
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func strList(v interface{}) []string {
	switch vals := v.(type) {
	case string:
		if vals != "" {
			return []string{vals}
		}
	case []interface{}:
		var out []string
		for _, item := range vals {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func joinAny(v interface{}) string {
	if s := str(v); s != "" {
		return s
	}
	return strings.Join(strList(v), "\n")
}

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func clean(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
