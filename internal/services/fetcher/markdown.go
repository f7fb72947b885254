package fetcher

import (
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ToMarkdown converts an HTML document to markdown, resolving relative links against pageURL
func ToMarkdown(html, pageURL string) (string, error) {
	domain := ""
	if u, err := url.Parse(pageURL); err == nil {
		domain = u.Scheme + "://" + u.Host
	}

	converter := md.NewConverter(domain, true, nil)
	converter.Remove("script", "style", "noscript", "iframe", "svg")

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}
