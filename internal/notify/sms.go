package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"wingman/pkg/logx"
)

// SMSChannel delivers the plain-text body through a carrier email-to-SMS
// gateway, reusing the SMTP account of the email channel.
type SMSChannel struct {
	cfg  SMTPConfig
	log  logx.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMS(cfg SMTPConfig, log logx.Logger) *SMSChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMSChannel{cfg: cfg, log: log, send: smtp.SendMail}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, n Notification) bool {
	if c.cfg.Email == "" || c.cfg.Password == "" || c.cfg.Gateway == "" {
		c.log.Warn("sms channel not configured, skipping")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	// Gateways only support plain text. Omit the subject; most gateways
	// prepend it awkwardly.
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.Email)
	fmt.Fprintf(&b, "To: %s\r\n", c.cfg.Gateway)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(n.TextBody)
	b.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)
	auth := smtp.PlainAuth("", c.cfg.Email, c.cfg.Password, c.cfg.Server)

	if err := c.send(addr, auth, c.cfg.Email, []string{c.cfg.Gateway}, []byte(b.String())); err != nil {
		c.log.Error("failed to send sms", logx.Err(err))
		return false
	}
	c.log.Info("sms sent", logx.String("gateway", c.cfg.Gateway))
	return true
}
