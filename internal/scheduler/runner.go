package scheduler

import (
	"context"
	"time"

	"wingman/internal/notify"
	"wingman/internal/watch"
	"wingman/pkg/logx"
)

// recordTimeout bounds the failure bookkeeping that runs after a cycle has
// already failed.
const recordTimeout = 30 * time.Second

// runWatcher executes one full check cycle and handles failure accounting.
// Cycle errors increment the consecutive-failure counter; on every Nth
// consecutive failure an escalation notification goes out.
func (s *Service) runWatcher(ctx context.Context, w watch.Watcher) {
	name := w.Name()
	log := s.log.With(logx.String("watcher", name))

	start := time.Now()
	err := s.runCycle(ctx, w, log)
	if err == nil {
		log.Debug("cycle finished", logx.Duration("took", time.Since(start)))
		return
	}
	log.Error("cycle failed", logx.Err(err))

	// The run context may be the very thing that failed (deadline hit by a
	// hung source); bookkeeping must still land, so it gets its own context.
	rctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if serr := s.store.UpdateWatcherState(rctx, name, false, nil); serr != nil {
		log.Error("recording failure state failed", logx.Err(serr))
		return
	}
	failures, ferr := s.store.ConsecutiveFailures(rctx, name)
	if ferr != nil {
		log.Error("reading failure count failed", logx.Err(ferr))
		return
	}
	if failures >= s.cfg.EscalateEvery && failures%s.cfg.EscalateEvery == 0 {
		s.escalate(rctx, name, failures, err, log)
	}
}

// runCycle polls the watcher and feeds each returned item through the
// triage/persist/notify pipeline. The first-run decision is snapshotted once
// before any item is stored so a large initial batch is treated uniformly.
func (s *Service) runCycle(ctx context.Context, w watch.Watcher, log logx.Logger) error {
	items, err := w.Check(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		log.Info("new items found", logx.Int("count", len(items)))
	}

	firstRun, err := s.store.IsFirstRun(ctx, w.Name())
	if err != nil {
		return err
	}

	for _, it := range items {
		if err := s.processItem(ctx, it, firstRun, log); err != nil {
			return err
		}
	}

	return s.store.UpdateWatcherState(ctx, w.Name(), true, nil)
}

// processItem is the per-item pipeline: dedup check, triage (with fallback),
// durable record, then notification. Only storage errors abort the cycle;
// triage and delivery problems are contained to the item.
func (s *Service) processItem(ctx context.Context, it watch.Item, firstRun bool, log logx.Logger) error {
	k := it.Key()

	seen, err := s.store.IsSeen(ctx, k)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("skipping already-seen item", logx.String("source_id", it.SourceID))
		return nil
	}

	res := fallbackResult()
	if s.analyzer != nil {
		r, aerr := s.analyzer.Analyze(ctx, it)
		if aerr != nil {
			log.Warn("triage failed, using fallback",
				logx.String("source_id", it.SourceID), logx.Err(aerr))
		} else {
			res = r
		}
	}

	if err := s.store.MarkSeen(ctx, it); err != nil {
		return err
	}
	if err := s.store.UpdateTriage(ctx, k, res.Classification, res.Severity, res.Summary); err != nil {
		return err
	}

	if firstRun && !s.cfg.FirstRunNotify {
		log.Debug("first run, seeding without notification", logx.String("source_id", it.SourceID))
		return nil
	}

	n := notify.FormatItem(it, res)
	sent := s.dispatcher.Dispatch(ctx, n)
	log.Info("item notified",
		logx.String("source_id", it.SourceID),
		logx.String("classification", res.Classification),
		logx.Int("channels", sent))
	return nil
}

func (s *Service) escalate(ctx context.Context, name string, failures int, lastErr error, log logx.Logger) {
	lastSuccess := "never"
	if t, ok, err := s.store.LastSuccessful(ctx, name); err == nil && ok {
		lastSuccess = t.UTC().Format(time.RFC3339)
	}

	log.Warn("escalating watcher failure",
		logx.Int("consecutive_failures", failures),
		logx.String("last_success", lastSuccess))

	n := notify.FormatWatcherFailure(name, failures, lastErr.Error(), lastSuccess)
	s.dispatcher.Dispatch(ctx, n)
}
