// Package notify delivers templated transactional email.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"
)

// Template identifiers.
const (
	TemplateWelcome       = "welcome"
	TemplateOverdueNotice = "overdue_notice"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Message is one outbound email: a template, a recipient and the named
// variables the template renders.
type Message struct {
	Template string
	To       string
	Vars     map[string]any
}

// defaultTimeout bounds one SMTP exchange when SMTPConfig.Timeout is zero.
const defaultTimeout = 30 * time.Second

// Sender delivers a single message. Implementations do not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig describes the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds dialing and the whole SMTP conversation.
	Timeout time.Duration
}

// sendMailFunc delivers a raw message to addr.
type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// mailTemplate pairs a plain-text subject with an HTML-escaped body,
// both parsed from the same file.
type mailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// SMTPSender renders embedded templates and sends them over SMTP.
type SMTPSender struct {
	addr      string
	host      string
	auth      smtp.Auth
	from      string
	timeout   time.Duration
	templates map[string]mailTemplate
	sendMail  sendMailFunc
	logger    *slog.Logger
}

// NewSMTPSender parses the embedded templates and prepares an SMTP sender.
// Authentication is skipped when no username is configured.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	var a smtp.Auth
	if cfg.Username != "" {
		a = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &SMTPSender{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		auth:      a,
		from:      cfg.From,
		timeout:   timeout,
		templates: templates,
		logger:    logger.With(slog.String("component", "mailer")),
	}
	s.sendMail = s.deliver
	return s, nil
}

func loadTemplates() (map[string]mailTemplate, error) {
	result := make(map[string]mailTemplate)
	for _, name := range []string{TemplateWelcome, TemplateOverdueNotice} {
		file := "templates/" + name + ".html"
		subject, err := texttemplate.ParseFS(templatesFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		body, err := htmltemplate.ParseFS(templatesFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		result[name] = mailTemplate{subject: subject, body: body}
	}
	return result, nil
}

// Send renders msg and hands it to the SMTP server.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := s.render(msg)
	if err != nil {
		return err
	}

	to := sanitizeHeader(msg.To)
	if to == "" {
		return fmt.Errorf("empty recipient")
	}

	var b strings.Builder
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)))
	b.WriteString("\r\n")
	b.WriteString(body)

	if err := s.sendMail(ctx, s.addr, s.auth, envelopeAddress(s.from), []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Template, to, err)
	}

	s.logger.Debug("Email sent",
		slog.String("template", msg.Template),
		slog.String("to", to),
	)
	return nil
}

func (s *SMTPSender) render(msg Message) (subject, body string, err error) {
	t, ok := s.templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", msg.Template)
	}

	var sb, bb bytes.Buffer
	if err := t.subject.ExecuteTemplate(&sb, "subject", msg.Vars); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", msg.Template, err)
	}
	if err := t.body.ExecuteTemplate(&bb, "body", msg.Vars); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", msg.Template, err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}

// deliver runs one SMTP conversation. Dialing honors ctx, and the
// connection deadline is the earlier of the ctx deadline and s.timeout.
// Canceling ctx closes the connection.
func (s *SMTPSender) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

func sanitizeHeader(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(v))
}

// envelopeAddress extracts the bare address from "Name <addr>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}
