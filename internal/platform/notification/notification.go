// Package notification delivers outbound e-mail about clinician alerts.
// Messages are rendered from {{key}} templates and sent through an
// EmailSender, which is SMTP in production and a log writer otherwise.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// EmailSender sends a single plain-text e-mail.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds the dialer settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail with gomail over SMTP.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogSender struct{}

func (LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (not sent, smtp disabled)")
	return nil
}

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

const (
	TemplateUrgentReading = "urgent-reading"
	TemplateUnreadDigest  = "unread-digest"
)

// TemplateEngine renders registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the built-in alert templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplateUrgentReading,
		Subject: "Urgent reading for {{patient_name}}",
		Body:    "{{message}}\n\nPatient: {{patient_name}} ({{patient_id}})\nRecorded at: {{timestamp}}\n",
	})
	e.Register(Template{
		ID:      TemplateUnreadDigest,
		Subject: "{{count}} unread patient notifications",
		Body:    "There are {{count}} unread notifications waiting in the clinician feed.\n",
	})
	return e
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Placeholders without a value
// are left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Mailer renders templates and sends them to one fixed recipient, the
// on-call clinician.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	recipient string
}

func NewMailer(sender EmailSender, templates *TemplateEngine, recipient string) *Mailer {
	return &Mailer{sender: sender, templates: templates, recipient: recipient}
}

// Enabled reports whether a recipient is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.recipient != ""
}

// Send renders the template and mails it. It is a no-op when the mailer has
// no recipient.
func (m *Mailer) Send(ctx context.Context, templateID string, data map[string]string) error {
	if !m.Enabled() {
		return nil
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	return m.sender.SendEmail(ctx, m.recipient, subject, body)
}
