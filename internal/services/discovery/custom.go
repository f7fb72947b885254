package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

var linkAttributes = []string{"href", "data-url", "data-href"}

// discoverCustom applies the configured CSS selectors to the base page and any start pages
func (e *Engine) discoverCustom(ctx context.Context, p *pass) {
	pages := []string{p.base.String()}
	for _, sp := range p.config.StartPaths {
		if abs := resolve(p.base, sp); abs != "" && abs != pages[0] {
			pages = append(pages, abs)
		}
	}

	for _, page := range pages {
		if p.urls.full() || ctx.Err() != nil {
			return
		}
		result, err := e.fetchPage(ctx, p, page)
		if err != nil {
			p.addError(err, page)
			continue
		}
		pageURL := result.FinalURL
		if pageURL == "" {
			pageURL = page
		}
		links, err := SelectLinks(result.HTML, pageURL, p.config.Selectors)
		if err != nil {
			p.addError(models.NewScrapingError(models.ErrorTypeParsing, page, err), page)
			continue
		}
		for _, link := range links {
			p.urls.add(link)
		}
	}
}

// SelectLinks returns the link targets of elements matching selectors. An element
// without a link attribute contributes its first descendant anchor.
func SelectLinks(html, pageURL string, selectors []string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var links []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if target := linkTarget(s); target != "" {
				if abs := resolve(base, target); abs != "" {
					links = append(links, abs)
				}
			}
		})
	}
	return links, nil
}

func linkTarget(s *goquery.Selection) string {
	for _, attr := range linkAttributes {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if href, ok := s.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	return ""
}
