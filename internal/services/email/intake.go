// Package email turns job-alert emails into scrape queue items.
package email

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// SourceEmail is the queue source of items found in alert emails
const SourceEmail = "email"

var (
	textURLPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)

	noiseMarkers = []string{"unsubscribe", "preferences", "privacy", "/settings", "/help", "mailto:", "/account"}
)

// IntakeResult summarises one mailbox poll
type IntakeResult struct {
	Messages   int `json:"messages"`
	Links      int `json:"links"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Service polls the alert mailbox and enqueues posting links
type Service struct {
	mailbox Mailbox
	queue   interfaces.ScrapeQueue
	events  interfaces.EventService
	config  common.EmailConfig
	filter  *regexp.Regexp
	logger  arbor.ILogger
}

// NewService creates the email intake. An invalid link filter is a validation error.
func NewService(mailbox Mailbox, queue interfaces.ScrapeQueue, events interfaces.EventService, config common.EmailConfig, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		mailbox: mailbox,
		queue:   queue,
		events:  events,
		config:  config,
		logger:  logger,
	}
	if config.LinkFilter != "" {
		re, err := regexp.Compile(config.LinkFilter)
		if err != nil {
			return nil, models.NewValidationError("invalid email link_filter %q: %v", config.LinkFilter, err)
		}
		s.filter = re
	}
	return s, nil
}

// Ingest reads unseen messages and enqueues their posting links with source "email".
// A message is marked seen only when all of its links were enqueued.
func (s *Service) Ingest(ctx context.Context) (*IntakeResult, error) {
	messages, err := s.mailbox.FetchUnseen(ctx, s.config.MaxPerRun)
	if err != nil {
		return nil, err
	}

	result := &IntakeResult{Messages: len(messages)}
	var seen []uint32
	for _, msg := range messages {
		links := s.links(msg)
		result.Links += len(links)

		ok := true
		for _, link := range links {
			_, created, err := s.queue.Enqueue(ctx, &models.ScrapeQueueItem{
				URL:      link,
				Source:   SourceEmail,
				SourceID: msg.Subject,
				Priority: s.config.Priority,
			})
			if err != nil {
				ok = false
				result.Errors++
				s.logger.Warn().Err(err).Str("url", link).Int64("uid", int64(msg.UID)).Msg("Failed to enqueue link from email")
				continue
			}
			if created {
				result.Enqueued++
			} else {
				result.Duplicates++
			}
		}
		if ok {
			seen = append(seen, msg.UID)
		}
	}

	if s.config.MarkSeen && len(seen) > 0 {
		if err := s.mailbox.MarkSeen(ctx, seen); err != nil {
			s.logger.Warn().Err(err).Int("count", len(seen)).Msg("Failed to mark emails as seen")
		}
	}

	s.logger.Info().
		Int("messages", result.Messages).
		Int("links", result.Links).
		Int("enqueued", result.Enqueued).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("Email intake completed")

	if result.Enqueued > 0 && s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventQueueItemEnqueued,
			Payload: map[string]interface{}{"source": SourceEmail, "count": result.Enqueued},
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to publish email intake event")
		}
	}
	return result, nil
}

func (s *Service) links(msg Message) []string {
	var out []string
	for _, link := range ExtractLinks(msg) {
		if s.filter != nil && !s.filter.MatchString(link) {
			continue
		}
		out = append(out, link)
	}
	return out
}

// ExtractLinks returns the normalized, deduplicated http(s) links of a message,
// dropping unsubscribe and account links
func ExtractLinks(msg Message) []string {
	var raw []string
	if msg.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML)); err == nil {
			doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				href, _ := a.Attr("href")
				raw = append(raw, strings.TrimSpace(href))
			})
		}
	}
	for _, match := range textURLPattern.FindAllString(msg.Text, -1) {
		raw = append(raw, strings.TrimRight(match, ".,;:!?"))
	}

	seen := make(map[string]bool)
	var out []string
	for _, link := range raw {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if isNoise(link) {
			continue
		}
		normalized, err := common.NormalizeURL(link)
		if err != nil || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func isNoise(link string) bool {
	lower := strings.ToLower(link)
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Poll runs one intake pass for the scheduler
func (s *Service) Poll(ctx context.Context) error {
	_, err := s.Ingest(ctx)
	return err
}
