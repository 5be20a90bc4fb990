// Package notification sends report emails with CSV attachments. SMTPMailer
// delivers through an SMTP relay, LogMailer stands in when SMTP is not
// configured, and MockMailer records messages for tests.
package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Attachment is a file attached to a Message.
type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Message is one outbound email.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Validate checks that the message has at least one well-formed recipient.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, to := range m.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", to, err)
		}
	}
	if m.Subject == "" {
		return errors.New("subject is required")
	}
	return nil
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay using STARTTLS when offered.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

// build converts msg to a gomail message.
func (s *SMTPMailer) build(msg Message) *gomail.Message {
	from := msg.From
	if from == "" {
		from = s.cfg.From
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	for _, a := range msg.Attachments {
		content := a.Content
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		m.Attach(a.FileName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
		)
	}
	return m
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(s.build(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "mailer").Logger()}
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.FileName
	}
	l.logger.Warn().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("SMTP not configured, email not sent")
	return nil
}

// MockMailer is a test double for Mailer.
type MockMailer struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (m *MockMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *MockMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var reportTemplate = template.Must(template.New("report").Parse(`
<h2>Appointments Report</h2>
<p><strong>Date:</strong> {{.Date}}</p>
<p><strong>Total Appointments:</strong> {{.Count}}</p>
<br>
<p>Please find the detailed report attached.</p>
<br>
<p>This is an automated email from the Diagnostic Center Appointment System.</p>
`))

// ReportDate formats t the way report subjects and bodies show dates,
// e.g. "Friday, March 1, 2024".
func ReportDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

// ReportEmail renders the subject and HTML body of a report email.
func ReportEmail(day time.Time, count int) (subject, body string, err error) {
	date := ReportDate(day)
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, struct {
		Date  string
		Count int
	}{date, count}); err != nil {
		return "", "", fmt.Errorf("render report email: %w", err)
	}
	return "Appointments Report - " + date, strings.TrimSpace(buf.String()), nil
}
