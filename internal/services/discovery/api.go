package discovery

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
)

var defaultAPIPaths = []string{
	"/api/jobs",
	"/api/v1/jobs",
	"/api/careers",
	"/jobs.json",
	"/careers.json",
}

// jobURLKeys are the JSON fields treated as job links
var jobURLKeys = map[string]bool{
	"url":          true,
	"link":         true,
	"jobUrl":       true,
	"job_url":      true,
	"absolute_url": true,
	"applyUrl":     true,
}

func (e *Engine) discoverAPI(ctx context.Context, p *pass) {
	paths := append([]string{}, defaultAPIPaths...)
	paths = append(paths, p.config.APIPaths...)

	probed := map[string]bool{}
	for _, path := range paths {
		if p.urls.full() || ctx.Err() != nil {
			return
		}
		endpoint := resolve(p.base, path)
		if endpoint == "" || probed[endpoint] {
			continue
		}
		probed[endpoint] = true

		body, err := e.fetchRaw(ctx, p, endpoint, map[string]string{"Accept": "application/json"})
		if err != nil {
			if !isNotFound(err) {
				p.addError(err, endpoint)
			}
			continue
		}

		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			// HTML catch-all pages answer 200 on unknown paths
			e.logger.Debug().Str("endpoint", endpoint).Msg("API probe did not return JSON")
			continue
		}

		base, _ := url.Parse(endpoint)
		found := 0
		for _, link := range JobLinksFromJSON(doc) {
			if abs := resolve(base, link); abs != "" && p.urls.add(abs) {
				found++
			}
		}
		e.logger.Debug().Str("endpoint", endpoint).Int("urls", found).Msg("API probe")
	}
}

// JobLinksFromJSON walks a decoded JSON document and returns every string value
// stored under a job link key. Object keys are visited in sorted order.
func JobLinksFromJSON(doc interface{}) []string {
	var out []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			for _, k := range sortedKeys(t) {
				child := t[k]
				if s, ok := child.(string); ok && jobURLKeys[k] {
					out = append(out, s)
					continue
				}
				walk(child)
			}
		case []interface{}:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(doc)
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
