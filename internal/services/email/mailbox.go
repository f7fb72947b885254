package email

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
)

const imapTimeout = 30 * time.Second

// Message is one job-alert email
type Message struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Text    string
	HTML    string
}

// Mailbox reads unseen job-alert messages
type Mailbox interface {
	FetchUnseen(ctx context.Context, max int) ([]Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

// IMAPMailbox reads a mailbox over IMAP using UIDs, so fetch and mark can use separate sessions
type IMAPMailbox struct {
	config common.EmailConfig
	logger arbor.ILogger
}

// NewIMAPMailbox creates an IMAP mailbox reader
func NewIMAPMailbox(config common.EmailConfig, logger arbor.ILogger) *IMAPMailbox {
	if config.Port == 0 {
		config.Port = 993
	}
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	return &IMAPMailbox{config: config, logger: logger}
}

// IsConfigured reports whether host and credentials are set
func (m *IMAPMailbox) IsConfigured() bool {
	return m.config.Host != "" && m.config.Username != "" && m.config.Password != ""
}

func (m *IMAPMailbox) connect(ctx context.Context) (*client.Client, error) {
	if !m.IsConfigured() {
		return nil, fmt.Errorf("IMAP not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	var (
		c   *client.Client
		err error
	)
	if m.config.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	c.Timeout = imapTimeout

	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err := c.Select(m.config.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select %s: %w", m.config.Mailbox, err)
	}
	return c, nil
}

// FetchUnseen returns up to max unseen messages, oldest first
func (m *IMAPMailbox) FetchUnseen(ctx context.Context, max int) ([]Message, error) {
	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(uids) == 0 {
		m.logger.Debug().Str("mailbox", m.config.Mailbox).Msg("No unseen messages")
		return nil, nil
	}
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var out []Message
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		text, html, err := parseBody(msg.GetBody(section))
		if err != nil {
			m.logger.Warn().Err(err).Int64("uid", int64(msg.Uid)).Msg("Failed to parse message body")
			continue
		}
		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		out = append(out, Message{
			UID:     msg.Uid,
			From:    from,
			Subject: msg.Envelope.Subject,
			Date:    msg.Envelope.Date,
			Text:    text,
			HTML:    html,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	m.logger.Debug().Int("count", len(out)).Str("mailbox", m.config.Mailbox).Msg("Fetched unseen messages")
	return out, nil
}

// MarkSeen flags the given messages as read
func (m *IMAPMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Logout()

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark messages as read: %w", err)
	}
	return nil
}

// parseBody returns the text/plain and text/html parts of a message
func parseBody(r imap.Literal) (string, string, error) {
	if r == nil {
		return "", "", fmt.Errorf("no body section")
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var text, html strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to read next part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", "", fmt.Errorf("failed to read body: %w", err)
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			text.Write(b)
		case strings.HasPrefix(contentType, "text/html"):
			html.Write(b)
		}
	}
	return strings.TrimSpace(text.String()), strings.TrimSpace(html.String()), nil
}
