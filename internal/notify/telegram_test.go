package notify

import (
	"testing"

	"wingman/pkg/logx"
)

func TestTelegramSettingsBoundHTTPClient(t *testing.T) {
	t.Parallel()
	s := telegramSettings(TelegramConfig{Token: "123:abc", ChatID: 42})

	if s.Client == nil {
		t.Fatal("settings carry no http client")
	}
	if s.Client.Timeout <= 0 {
		t.Fatal("bot http client has no timeout; a stuck send would leak its goroutine")
	}
	if s.Poller != nil {
		t.Fatal("send-only channel must not poll for updates")
	}
}

func TestNewTelegramRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := NewTelegram(TelegramConfig{ChatID: 42}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
