package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"wingman/pkg/logx"
)

// SMTPConfig is shared by the email and SMS channels; SMS rides the same
// SMTP account to a carrier email-to-SMS gateway.
type SMTPConfig struct {
	Server    string
	Port      int
	Email     string
	Password  string
	Recipient string
	Gateway   string // SMS gateway address, e.g. 5551234567@msg.fi.google.com
}

// EmailChannel sends multipart (text + html) mail over SMTP with STARTTLS.
type EmailChannel struct {
	cfg  SMTPConfig
	log  logx.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(cfg SMTPConfig, log logx.Logger) *EmailChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EmailChannel{cfg: cfg, log: log, send: smtp.SendMail}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, n Notification) bool {
	if c.cfg.Email == "" || c.cfg.Password == "" || c.cfg.Recipient == "" {
		c.log.Warn("email channel not configured, skipping")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	msg := buildMultipart(c.cfg.Email, c.cfg.Recipient, n.Subject, n.TextBody, n.HTMLBody)
	addr := fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)
	auth := smtp.PlainAuth("", c.cfg.Email, c.cfg.Password, c.cfg.Server)

	if err := c.send(addr, auth, c.cfg.Email, []string{c.cfg.Recipient}, msg); err != nil {
		c.log.Error("failed to send email", logx.Err(err))
		return false
	}
	c.log.Info("email sent", logx.String("subject", n.Subject))
	return true
}

const multipartBoundary = "wingman-alt-boundary"

func buildMultipart(from, to, subject, textBody, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", multipartBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", multipartBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", multipartBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", multipartBoundary)
	return []byte(b.String())
}
