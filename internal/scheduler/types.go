package scheduler

import (
	"context"
	"time"

	"wingman/internal/notify"
	"wingman/internal/triage"
	"wingman/internal/watch"
)

// StateStore is the slice of the durable store the scheduler drives. Any
// error from it is fatal for the current cycle.
type StateStore interface {
	IsSeen(ctx context.Context, k watch.Key) (bool, error)
	MarkSeen(ctx context.Context, it watch.Item) error
	UpdateTriage(ctx context.Context, k watch.Key, classification, severity, summary string) error
	UpdateWatcherState(ctx context.Context, name string, successful bool, metadata map[string]string) error
	IsFirstRun(ctx context.Context, name string) (bool, error)
	ConsecutiveFailures(ctx context.Context, name string) (int, error)
	LastSuccessful(ctx context.Context, name string) (time.Time, bool, error)
}

// Dispatcher fans a notification out to the delivery channels. It never
// surfaces errors; the return value is the number of successful channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notification) int
}

// Entry pairs a watcher with its polling interval.
type Entry struct {
	Watcher  watch.Watcher
	Interval time.Duration
}

// Config bounds the scheduler.
//
// Defaults: Workers 2, QueueSize 64, MisfireGrace 5m, RunTimeout 10m,
// EscalateEvery 5.
type Config struct {
	Workers   int
	QueueSize int

	// MisfireGrace drops a tick that sat in the queue past its window
	// instead of running it late.
	MisfireGrace time.Duration

	// RunTimeout bounds a single watcher cycle end to end.
	RunTimeout time.Duration

	// FirstRunNotify disables first-run suppression.
	FirstRunNotify bool

	// EscalateEvery emits a failure escalation on every Nth consecutive
	// failure (N, 2N, 3N, ...).
	EscalateEvery int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MisfireGrace <= 0 {
		c.MisfireGrace = 5 * time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.EscalateEvery <= 0 {
		c.EscalateEvery = 5
	}
	return c
}

// fallbackResult is what the pipeline substitutes when triage fails.
func fallbackResult() triage.Result { return triage.Fallback() }
