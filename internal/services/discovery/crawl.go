package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

type crawlItem struct {
	url   string
	depth int
}

// discoverCrawl walks links breadth-first from the base URL. Links on other hosts
// are only followed when allowed_domains names them.
func (e *Engine) discoverCrawl(ctx context.Context, p *pass) {
	baseHost := p.base.Hostname()
	inScope := func(rawURL string) bool {
		host, err := common.ExtractHost(rawURL)
		if err != nil {
			return false
		}
		if len(p.config.AllowedDomains) == 0 {
			return common.HostMatches(host, baseHost)
		}
		return p.urls.filter.AllowHost(host)
	}

	visited := map[string]bool{}
	queue := []crawlItem{{url: p.base.String(), depth: 0}}
	pages := 0

	for len(queue) > 0 && !p.urls.full() && pages < p.config.MaxURLs {
		if ctx.Err() != nil {
			p.addError(models.NewScrapingError(models.ErrorTypeTimeout, queue[0].url, ctx.Err()), queue[0].url)
			return
		}
		item := queue[0]
		queue = queue[1:]
		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		if p.config.RobotsEnabled() && !e.robots.IsAllowed(ctx, item.url) {
			e.logger.Debug().Str("url", item.url).Msg("Skipping URL disallowed by robots.txt")
			continue
		}

		result, err := e.fetchPage(ctx, p, item.url)
		pages++
		if err != nil {
			p.addError(err, item.url)
			continue
		}

		pageURL := result.FinalURL
		if pageURL == "" {
			pageURL = item.url
		}
		links, err := ExtractLinks(result.HTML, pageURL)
		if err != nil {
			p.addError(models.NewScrapingError(models.ErrorTypeParsing, item.url, err), item.url)
			continue
		}

		for _, link := range links {
			normalized, err := common.NormalizeURL(link)
			if err != nil || normalized == p.base.String() || !inScope(normalized) {
				continue
			}
			if p.config.RobotsEnabled() && !e.robots.IsAllowed(ctx, normalized) {
				continue
			}
			p.urls.add(normalized)
			if p.urls.full() {
				break
			}
			if item.depth+1 <= p.config.MaxDepth && !visited[normalized] {
				queue = append(queue, crawlItem{url: normalized, depth: item.depth + 1})
			}
		}
	}
}

// ExtractLinks returns the absolute http(s) targets of every anchor in html
func ExtractLinks(html, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(href); err == nil {
			base = base.ResolveReference(b)
		}
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if rel, _ := s.Attr("rel"); strings.Contains(strings.ToLower(rel), "nofollow") {
			return
		}
		if abs := resolve(base, href); abs != "" {
			links = append(links, abs)
		}
	})
	return links, nil
}
