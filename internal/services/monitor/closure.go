package monitor

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// Closure describes why a posting is considered closed
type Closure struct {
	Reason  string
	Expired bool
}

var closurePhrases = []string{
	"no longer accepting applications",
	"position has been filled",
	"job is no longer available",
	"this job has expired",
	"this position is no longer available",
	"this job is no longer open",
	"job posting has been removed",
	"posting has closed",
	"this role has been filled",
	"applications for this position are closed",
	"the job you are looking for is no longer",
}

var listingPaths = map[string]bool{
	"":               true,
	"/":              true,
	"/jobs":          true,
	"/careers":       true,
	"/career":        true,
	"/search":        true,
	"/jobs/search":   true,
	"/job-search":    true,
	"/positions":     true,
	"/openings":      true,
	"/opportunities": true,
}

// DetectClosure applies the closure heuristic to a fetched page. extracted may be nil.
func DetectClosure(requestedURL string, page *models.FetchResult, extracted *models.ExtractedJob, now time.Time) *Closure {
	if page == nil {
		return nil
	}
	switch page.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return &Closure{Reason: fmt.Sprintf("http_%d", page.StatusCode)}
	}

	if page.Redirected() && lostJobPath(requestedURL, page.FinalURL) {
		return &Closure{Reason: "redirected_to_listing"}
	}

	if extracted != nil && extracted.ValidThrough != nil && extracted.ValidThrough.Before(now) {
		return &Closure{Reason: "valid_through_passed", Expired: true}
	}

	if phrase := findClosurePhrase(page.HTML); phrase != "" {
		return &Closure{Reason: "phrase: " + phrase}
	}
	return nil
}

// lostJobPath reports whether a redirect dropped the posting path in favour of a generic listing page
func lostJobPath(requested, final string) bool {
	from, err := url.Parse(requested)
	if err != nil {
		return false
	}
	to, err := url.Parse(final)
	if err != nil {
		return false
	}
	fromPath := strings.TrimSuffix(strings.ToLower(from.Path), "/")
	toPath := strings.TrimSuffix(strings.ToLower(to.Path), "/")
	if fromPath == toPath || listingPaths[fromPath] {
		return false
	}
	if listingPaths[toPath] {
		return true
	}
	q := to.Query()
	return q.Get("error") != "" || q.Get("expired") != "" || strings.Contains(strings.ToLower(to.RawQuery), "job_not_found")
}

func findClosurePhrase(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	for _, phrase := range closurePhrases {
		if strings.Contains(text, phrase) {
			return phrase
		}
	}
	return ""
}
