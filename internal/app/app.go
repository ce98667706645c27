// Package app wires configuration, storage, watchers, triage, notification
// channels and the scheduler into one runnable process.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"wingman/internal/config"
	"wingman/internal/notify"
	"wingman/internal/scheduler"
	"wingman/internal/store"
	"wingman/internal/triage"
	"wingman/internal/watch/forge"
	"wingman/internal/watch/github"
	"wingman/internal/watch/reddit"
	"wingman/internal/watch/rss"
	"wingman/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store *store.Store
	sched *scheduler.Service

	watchCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{Path: cfg.General.DatabasePath},
		log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{cfgm: cfgm, logs: logSvc, log: log, store: st}

	sched, err := a.buildScheduler(cfg)
	if err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}
	a.sched = sched

	// Config edits at runtime re-apply the logging section; everything else
	// takes effect on restart.
	cfgm.SetOnChange(func(c *config.Config) {
		logSvc.Apply(logx.Config{
			Level:   c.Logging.Level,
			Console: c.Logging.ConsoleEnabled(),
			File: logx.FileConfig{
				Enabled: c.Logging.File.Enabled,
				Path:    c.Logging.File.Path,
			},
		})
		log.Info("configuration reloaded")
	})

	return a, nil
}

func (a *App) buildScheduler(cfg *config.Config) (*scheduler.Service, error) {
	log := a.log

	var channels []notify.Channel
	if cfg.Notify.SMTP.Email != "" {
		smtp := notify.SMTPConfig{
			Server:    cfg.Notify.SMTP.Server,
			Port:      cfg.Notify.SMTP.Port,
			Email:     cfg.Notify.SMTP.Email,
			Password:  cfg.Notify.SMTP.Password,
			Recipient: cfg.Notify.SMTP.Recipient,
			Gateway:   cfg.Notify.SMTP.SMSGateway,
		}
		channels = append(channels, notify.NewEmail(smtp, log))
		if smtp.Gateway != "" {
			channels = append(channels, notify.NewSMS(smtp, log))
		}
	}
	if cfg.Notify.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		channels = append(channels, tg)
	}
	if len(channels) == 0 {
		log.Warn("no notification channels configured, items will only be recorded")
	}

	sendTimeout, err := config.ParseDurationOrDefault("notify.send_timeout", cfg.Notify.SendTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		RatePerMin:  cfg.Notify.RatePerMin,
		SendTimeout: sendTimeout,
	}, log, channels...)

	var analyzer triage.Analyzer
	if cfg.Triage.APIKey != "" {
		analyzer = triage.New(triage.Config{
			APIKey: cfg.Triage.APIKey,
			Model:  cfg.Triage.Model,
		}, log)
	} else {
		log.Warn("no triage api key, all items will use the fallback classification")
	}

	entries, err := a.buildEntries(cfg)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no watchers enabled")
	}

	grace, err := config.ParseDurationOrDefault("scheduler.misfire_grace", cfg.Scheduler.MisfireGrace, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		MisfireGrace:   grace,
		FirstRunNotify: cfg.General.FirstRunNotify,
	}, log, a.store, analyzer, dispatcher, entries), nil
}

func (a *App) buildEntries(cfg *config.Config) ([]scheduler.Entry, error) {
	var entries []scheduler.Entry
	log := a.log

	if cfg.GitHub.Enabled {
		interval, err := config.ParseDurationOrDefault("github.check_interval", cfg.GitHub.CheckInterval, time.Hour)
		if err != nil {
			return nil, err
		}
		w := github.New(github.Config{
			Token: cfg.GitHub.Token,
			Owner: cfg.GitHub.Owner,
			Repos: cfg.GitHub.Repos,
		}, a.store, a.store, log)
		entries = append(entries, scheduler.Entry{Watcher: w, Interval: interval})
	}

	if cfg.Forge.Enabled {
		interval, err := config.ParseDurationOrDefault("forge.check_interval", cfg.Forge.CheckInterval, time.Hour)
		if err != nil {
			return nil, err
		}
		mods := make([]forge.Mod, 0, len(cfg.Forge.Mods))
		for _, m := range cfg.Forge.Mods {
			mods = append(mods, forge.Mod{Name: m.Name, ID: m.ID, Slug: m.Slug})
		}
		w := forge.New(forge.Config{
			Email:    cfg.Forge.Email,
			Password: cfg.Forge.Password,
			Mods:     mods,
		}, a.store, a.store, log)
		entries = append(entries, scheduler.Entry{Watcher: w, Interval: interval})
	}

	if cfg.Reddit.Enabled {
		interval, err := config.ParseDurationOrDefault("reddit.check_interval", cfg.Reddit.CheckInterval, 30*time.Minute)
		if err != nil {
			return nil, err
		}
		w := reddit.New(reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
			Subreddit:    cfg.Reddit.Subreddit,
		}, a.store, log)
		entries = append(entries, scheduler.Entry{Watcher: w, Interval: interval})
	}

	if cfg.RSS.Enabled {
		interval, err := config.ParseDurationOrDefault("rss.check_interval", cfg.RSS.CheckInterval, 30*time.Minute)
		if err != nil {
			return nil, err
		}
		w := rss.New(rss.Config{Feeds: cfg.RSS.Feeds}, a.store, log)
		entries = append(entries, scheduler.Entry{Watcher: w, Interval: interval})
	}

	return entries, nil
}

// Start launches the scheduler and the config file watcher, then tells
// systemd we are ready. Safe to call when not under systemd.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("wingman started")
	return nil
}

// Stop shuts down in reverse order: stop scheduling, let in-flight cycles
// drain, then close storage and logging.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.watchCancel != nil {
		a.watchCancel()
	}
	err := a.sched.Stop(ctx)
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	a.log.Info("wingman stopped")
	a.logs.Close()
	return err
}
