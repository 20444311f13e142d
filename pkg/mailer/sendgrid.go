// Package mailer delivers transactional email through SendGrid's v3 API.
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

const (
	sendPath       = "/v3/mail/send"
	defaultTimeout = 15 * time.Second
	errorBodyLimit = 1024
)

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a templated email.
type Message struct {
	To          []string
	Subject     string
	Template    string
	Context     map[string]any
	Attachments []Attachment
}

// Client sends messages. A client without an API key logs instead of sending.
type Client struct {
	baseURL string
	apiKey  string
	from    string
	timeout time.Duration
	logg    *logger.Logger
}

func NewClient(cfg config.SendgridConfig, logg *logger.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		from:    cfg.DefaultFrom,
		timeout: cfg.Timeout,
		logg:    logg,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.sendgrid.com"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Send delivers msg and reports success plus an error description on failure.
// Transport failures never surface as Go errors.
func (c *Client) Send(ctx context.Context, msg Message) (bool, string) {
	recipients := cleanRecipients(msg.To)
	if len(recipients) == 0 {
		return false, "no recipients"
	}
	html, err := renderTemplate(msg.Template, msg.Context)
	if err != nil {
		return false, err.Error()
	}

	if c.apiKey == "" {
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"to":       strings.Join(recipients, ","),
				"subject":  msg.Subject,
				"template": msg.Template,
			}), "sendgrid api key not configured; email logged instead of sent")
		}
		return true, ""
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// the send client carries the request body, so each message gets its own
	sg := sendgrid.NewSendClient(c.apiKey)
	sg.BaseURL = c.baseURL + sendPath
	resp, err := sg.SendWithContext(sendCtx, c.build(recipients, msg.Subject, html, msg.Attachments))
	if err != nil {
		return false, fmt.Sprintf("sendgrid request failed: %v", err)
	}
	if resp.StatusCode >= 300 {
		body := strings.TrimSpace(resp.Body)
		if len(body) > errorBodyLimit {
			body = body[:errorBodyLimit]
		}
		return false, fmt.Sprintf("sendgrid status %d: %s", resp.StatusCode, body)
	}
	return true, ""
}

func (c *Client) build(to []string, subject, html string, attachments []Attachment) *mail.SGMailV3 {
	p := mail.NewPersonalization()
	for _, addr := range to {
		p.AddTos(mail.NewEmail("", addr))
	}
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail("", c.from))
	m.Subject = subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", html))
	for _, a := range attachments {
		m.AddAttachment(mail.NewAttachment().
			SetContent(base64.StdEncoding.EncodeToString(a.Content)).
			SetType(a.ContentType).
			SetFilename(a.Filename).
			SetDisposition("attachment"))
	}
	return m
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, r := range in {
		trimmed := strings.TrimSpace(r)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
