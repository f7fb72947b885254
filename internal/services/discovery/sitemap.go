package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

const (
	maxSitemapDepth     = 3
	maxSitemapBodyBytes = 50 * 1024 * 1024
)

var defaultSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-jobs.xml",
	"/jobs/sitemap.xml",
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

type xmlSitemap struct {
	Loc string `xml:"loc"`
}

// ParseSitemap returns the page locations of a urlset document
func ParseSitemap(body []byte) ([]string, error) {
	var set xmlURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// ParseSitemapIndex returns the child sitemap locations of a sitemapindex document
func ParseSitemapIndex(body []byte) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}
	locs := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// decompress inflates gzip bodies, detected by magic bytes rather than extension
func decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gunzip sitemap: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxSitemapBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gunzip sitemap: %w", err)
	}
	return out, nil
}

func isSitemapIndex(body []byte) bool {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	return bytes.Contains(head, []byte("<sitemapindex"))
}

func (e *Engine) discoverSitemap(ctx context.Context, p *pass) {
	var roots []string
	for _, s := range p.config.SitemapURLs {
		if abs := resolve(p.base, s); abs != "" {
			roots = append(roots, abs)
		}
	}
	if len(roots) == 0 && p.config.RobotsEnabled() {
		roots = e.robots.Sitemaps(ctx, p.base.String())
	}
	explicit := len(roots) > 0
	if !explicit {
		for _, path := range defaultSitemapPaths {
			roots = append(roots, resolve(p.base, path))
		}
	}

	visited := make(map[string]bool)
	for _, root := range roots {
		if p.urls.full() || ctx.Err() != nil {
			return
		}
		e.walkSitemap(ctx, p, root, 0, visited, explicit)
	}
}

// walkSitemap reads one sitemap document. Probing a conventional path that does
// not exist is not an error worth reporting.
func (e *Engine) walkSitemap(ctx context.Context, p *pass, sitemapURL string, depth int, visited map[string]bool, report bool) {
	if depth > maxSitemapDepth || visited[sitemapURL] || p.urls.full() {
		return
	}
	visited[sitemapURL] = true

	body, err := e.fetchRaw(ctx, p, sitemapURL, nil)
	if err != nil {
		if report || !isNotFound(err) {
			p.addError(err, sitemapURL)
		}
		return
	}
	body, err = decompress(body)
	if err != nil {
		p.addError(models.NewScrapingError(models.ErrorTypeParsing, sitemapURL, err), sitemapURL)
		return
	}

	if isSitemapIndex(body) {
		children, err := ParseSitemapIndex(body)
		if err != nil {
			p.addError(models.NewScrapingError(models.ErrorTypeParsing, sitemapURL, err), sitemapURL)
			return
		}
		e.logger.Debug().Str("sitemap", sitemapURL).Int("children", len(children)).Msg("Sitemap index")
		for _, child := range children {
			if abs := resolve(p.base, child); abs != "" {
				e.walkSitemap(ctx, p, abs, depth+1, visited, true)
			}
		}
		return
	}

	locs, err := ParseSitemap(body)
	if err != nil {
		if report {
			p.addError(models.NewScrapingError(models.ErrorTypeParsing, sitemapURL, err), sitemapURL)
		}
		return
	}
	for _, loc := range locs {
		if p.urls.full() {
			return
		}
		if abs := resolve(p.base, loc); abs != "" {
			p.urls.add(abs)
		}
	}
}
