package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"wingman/pkg/logx"
)

func TestEmailSendBuildsMultipart(t *testing.T) {
	t.Parallel()
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := NewEmail(SMTPConfig{
		Server:    "smtp.example.com",
		Port:      587,
		Email:     "bot@example.com",
		Password:  "secret",
		Recipient: "ops@example.com",
	}, logx.Nop())
	ch.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	ok := ch.Send(context.Background(), Notification{
		Subject:  "[Wingman] BUG REPORT on repo (GitHub)",
		TextBody: "plain",
		HTMLBody: "<html>rich</html>",
	})
	if !ok {
		t.Fatal("Send = false, want true")
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("from/to = %q/%v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "multipart/alternative") {
		t.Fatal("message missing multipart content type")
	}
	if !strings.Contains(msg, "plain") || !strings.Contains(msg, "<html>rich</html>") {
		t.Fatal("message missing a body part")
	}
}

func TestEmailFailsClosedWhenUnconfigured(t *testing.T) {
	t.Parallel()
	ch := NewEmail(SMTPConfig{Server: "smtp.example.com", Port: 587}, logx.Nop())
	ch.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called with missing credentials")
		return nil
	}
	if ch.Send(context.Background(), Notification{Subject: "s"}) {
		t.Fatal("Send = true for unconfigured channel, want false")
	}
}

func TestEmailReportsTransportFailure(t *testing.T) {
	t.Parallel()
	ch := NewEmail(SMTPConfig{
		Server: "smtp.example.com", Port: 587,
		Email: "a@b", Password: "p", Recipient: "r@b",
	}, logx.Nop())
	ch.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection reset")
	}
	if ch.Send(context.Background(), Notification{Subject: "s"}) {
		t.Fatal("Send = true after transport error, want false")
	}
}

func TestSMSUsesGatewayAddress(t *testing.T) {
	t.Parallel()
	var gotTo []string
	ch := NewSMS(SMTPConfig{
		Server: "smtp.example.com", Port: 587,
		Email: "a@b", Password: "p",
		Gateway: "5551234567@msg.example.com",
	}, logx.Nop())
	ch.send = func(_ string, _ smtp.Auth, _ string, to []string, _ []byte) error {
		gotTo = to
		return nil
	}
	if !ch.Send(context.Background(), Notification{TextBody: "alert"}) {
		t.Fatal("Send = false, want true")
	}
	if len(gotTo) != 1 || gotTo[0] != "5551234567@msg.example.com" {
		t.Fatalf("to = %v, want the gateway address", gotTo)
	}
}
