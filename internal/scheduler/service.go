// Package scheduler drives the watcher fleet: each watcher gets an
// independent recurring trigger, ticks flow through a bounded queue into a
// small worker pool, and overlapping or stale ticks are dropped rather than
// stacked.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wingman/internal/triage"
	"wingman/pkg/logx"
)

type task struct {
	entry       Entry
	scheduledAt time.Time
}

type Service struct {
	cfg        Config
	log        logx.Logger
	store      StateStore
	analyzer   triage.Analyzer
	dispatcher Dispatcher
	entries    []Entry

	cron  *cron.Cron
	queue chan task

	mu       sync.Mutex
	inFlight map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New wires a scheduler. The analyzer may be nil; every item then gets the
// fallback triage result.
func New(cfg Config, log logx.Logger, store StateStore, analyzer triage.Analyzer, dispatcher Dispatcher, entries []Entry) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg,
		log:        log.With(logx.String("component", "scheduler")),
		store:      store,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		entries:    entries,
		queue:      make(chan task, cfg.QueueSize),
		inFlight:   make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
}

// Start registers the recurring triggers, launches the workers and enqueues
// one immediate run per watcher so a fresh process reports promptly.
func (s *Service) Start() error {
	s.cron = cron.New()
	for _, e := range s.entries {
		e := e
		spec := fmt.Sprintf("@every %s", e.Interval)
		if _, err := s.cron.AddFunc(spec, func() { s.enqueue(e) }); err != nil {
			return fmt.Errorf("schedule %s: %w", e.Watcher.Name(), err)
		}
		s.log.Info("watcher scheduled",
			logx.String("watcher", e.Watcher.Name()),
			logx.Duration("interval", e.Interval))
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	for _, e := range s.entries {
		s.enqueue(e)
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		logx.Int("watchers", len(s.entries)),
		logx.Int("workers", s.cfg.Workers))
	return nil
}

// Stop ceases scheduling and waits for in-flight cycles to finish, up to the
// deadline on ctx. Running cycles are never aborted mid-item.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		close(s.stopCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// enqueue hands a tick to the workers. A tick for a watcher whose previous
// run is still active is coalesced away; a full queue drops the tick rather
// than blocking the cron goroutine.
func (s *Service) enqueue(e Entry) {
	name := e.Watcher.Name()
	s.mu.Lock()
	busy := s.inFlight[name]
	s.mu.Unlock()
	if busy {
		s.log.Debug("tick coalesced, previous run still active", logx.String("watcher", name))
		return
	}

	select {
	case s.queue <- task{entry: e, scheduledAt: time.Now()}:
	default:
		s.log.Warn("queue full, dropping tick", logx.String("watcher", name))
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			s.execute(id, t)
		}
	}
}

func (s *Service) execute(worker int, t task) {
	name := t.entry.Watcher.Name()

	if age := time.Since(t.scheduledAt); age > s.cfg.MisfireGrace {
		s.log.Warn("dropping stale tick",
			logx.String("watcher", name),
			logx.Duration("age", age))
		return
	}

	s.mu.Lock()
	if s.inFlight[name] {
		s.mu.Unlock()
		s.log.Debug("tick coalesced at execution", logx.String("watcher", name))
		return
	}
	s.inFlight[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	s.log.Debug("cycle starting", logx.String("watcher", name), logx.Int("worker", worker))
	s.runWatcher(ctx, t.entry.Watcher)
}
