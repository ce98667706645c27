package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"wingman/pkg/logx"
)

// Dispatcher fans a formatted notification out to every configured channel.
// Channel failures are logged and isolated; Dispatch never surfaces an
// error to its caller.
type Dispatcher struct {
	channels []Channel
	limiter  *rate.Limiter
	timeout  time.Duration
	log      logx.Logger
}

// DispatcherConfig bounds outgoing sends. RatePerMin caps total dispatches
// across all channels to keep a stuck watcher from flooding recipients.
type DispatcherConfig struct {
	RatePerMin  int
	SendTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig, log logx.Logger, channels ...Channel) *Dispatcher {
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 30
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		channels: channels,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), cfg.RatePerMin),
		timeout:  cfg.SendTimeout,
		log:      log,
	}
}

// Dispatch attempts delivery through all channels independently and reports
// how many succeeded. A zero-channel dispatcher is valid and sends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) int {
	if len(d.channels) == 0 {
		return 0
	}
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warn("dispatch aborted before send", logx.Err(err))
		return 0
	}

	ok := 0
	for _, ch := range d.channels {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		sent := d.sendOne(sctx, ch, n)
		cancel()
		if sent {
			ok++
		}
	}
	d.log.Debug("notification dispatched",
		logx.String("subject", n.Subject),
		logx.Int("channels", len(d.channels)),
		logx.Int("delivered", ok))
	return ok
}

// sendOne shields the dispatcher from a misbehaving channel implementation.
func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, n Notification) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("channel panicked during send",
				logx.String("channel", ch.Name()), logx.Any("panic", r))
			sent = false
		}
	}()
	sent = ch.Send(ctx, n)
	if !sent {
		d.log.Warn("channel delivery failed", logx.String("channel", ch.Name()))
	}
	return sent
}
