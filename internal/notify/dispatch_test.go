package notify

import (
	"context"
	"testing"
	"time"

	"wingman/pkg/logx"
)

type stubChannel struct {
	name  string
	ok    bool
	panic bool
	calls int
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(context.Context, Notification) bool {
	c.calls++
	if c.panic {
		panic("channel bug")
	}
	return c.ok
}

func TestDispatchCountsSuccesses(t *testing.T) {
	t.Parallel()
	good := &stubChannel{name: "good", ok: true}
	bad := &stubChannel{name: "bad"}
	d := NewDispatcher(DispatcherConfig{RatePerMin: 600}, logx.Nop(), good, bad)

	got := d.Dispatch(context.Background(), Notification{Subject: "s"})
	if got != 1 {
		t.Fatalf("Dispatch = %d, want 1", got)
	}
	if good.calls != 1 || bad.calls != 1 {
		t.Fatalf("calls = %d/%d, want every channel attempted", good.calls, bad.calls)
	}
}

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	t.Parallel()
	// Channel order must not matter: a failure first does not stop the rest.
	bad := &stubChannel{name: "bad"}
	good := &stubChannel{name: "good", ok: true}
	d := NewDispatcher(DispatcherConfig{RatePerMin: 600}, logx.Nop(), bad, good)

	if got := d.Dispatch(context.Background(), Notification{}); got != 1 {
		t.Fatalf("Dispatch = %d, want 1", got)
	}
	if good.calls != 1 {
		t.Fatal("later channel skipped after earlier failure")
	}
}

func TestDispatchSurvivesPanickingChannel(t *testing.T) {
	t.Parallel()
	mad := &stubChannel{name: "mad", panic: true}
	good := &stubChannel{name: "good", ok: true}
	d := NewDispatcher(DispatcherConfig{RatePerMin: 600}, logx.Nop(), mad, good)

	if got := d.Dispatch(context.Background(), Notification{}); got != 1 {
		t.Fatalf("Dispatch = %d, want 1", got)
	}
}

func TestDispatchWithNoChannels(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(DispatcherConfig{}, logx.Nop())
	if got := d.Dispatch(context.Background(), Notification{}); got != 0 {
		t.Fatalf("Dispatch = %d, want 0", got)
	}
}

func TestDispatchAbortsOnCancelledContext(t *testing.T) {
	t.Parallel()
	ch := &stubChannel{name: "ch", ok: true}
	// Burst of 1 at a slow refill; the second dispatch must wait and then
	// observe the cancelled context.
	d := NewDispatcher(DispatcherConfig{RatePerMin: 1, SendTimeout: time.Second}, logx.Nop(), ch)

	if got := d.Dispatch(context.Background(), Notification{}); got != 1 {
		t.Fatalf("first Dispatch = %d, want 1", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := d.Dispatch(ctx, Notification{}); got != 0 {
		t.Fatalf("cancelled Dispatch = %d, want 0", got)
	}
	if ch.calls != 1 {
		t.Fatalf("channel called %d times, want 1", ch.calls)
	}
}
