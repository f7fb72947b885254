package models

import "time"

// FetchOptions controls a single content fetch
type FetchOptions struct {
	Authenticate    bool              `json:"authenticate,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Timeout         time.Duration     `json:"timeout,omitempty"`
	WaitForSelector string            `json:"wait_for_selector,omitempty"`
	Screenshot      bool              `json:"screenshot,omitempty"`
	PDF             bool              `json:"pdf,omitempty"`
	Markdown        bool              `json:"markdown,omitempty"`
}

// FetchResult is the rendered page returned by a ContentFetcher
type FetchResult struct {
	URL          string        `json:"url"`
	FinalURL     string        `json:"final_url"`
	StatusCode   int           `json:"status_code"`
	HTML         string        `json:"html"`
	ContentType  string        `json:"content_type,omitempty"`
	Markdown     string        `json:"markdown,omitempty"`
	Screenshot   []byte        `json:"-"`
	PDF          []byte        `json:"-"`
	ResponseTime time.Duration `json:"response_time"`
}

// Redirected reports whether the fetch ended on a different URL
func (r *FetchResult) Redirected() bool {
	return r.FinalURL != "" && r.FinalURL != r.URL
}
