// Package app wires configuration into the runtime components and exposes the
// operations behind each CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"threadpost/internal/config"
	"threadpost/internal/content"
	"threadpost/internal/eventbus"
	"threadpost/internal/ledger"
	"threadpost/internal/notifier"
	"threadpost/internal/schedule"
	"threadpost/internal/threads"
	logx "threadpost/pkg/logx"
)

// Options configures New.
type Options struct {
	ConfigPath string
	// AllowMissing accepts a missing config file (defaults plus environment).
	AllowMissing bool
	// NeedAPI requires Threads credentials unless dry_run is set.
	NeedAPI bool

	// Out receives human-readable command output. Defaults to stdout.
	Out io.Writer

	// Publisher and Clock override the real ones; used by tests.
	Publisher schedule.Publisher
	Clock     schedule.Clock
}

type App struct {
	cfgm *config.Manager
	out  io.Writer

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	ledger *ledger.Ledger
	sched  *schedule.Scheduler

	notif       *notifier.Service
	notifEvents <-chan eventbus.Event
	notifUnsub  func()
}

// New loads the config, validates it and opens every component. Close
// releases them.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	cfgm := config.NewManager(opts.ConfigPath, opts.AllowMissing)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := ValidateConfig(cfg, opts.NeedAPI); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Alerts are enabled before the notifier exists; records are skipped
	// until SetAlertSender below.
	logs, log := logx.New(mapLoggingConfig(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:       cfgm,
		out:        opts.Out,
		log:        log.With(logx.String("comp", "app")),
		logs:       logs,
		bus:        eventbus.New(),
		notifUnsub: func() {},
	}
	if err := a.open(ctx, cfg, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, cfg *config.Config, opts Options) error {
	loc, err := location(cfg)
	if err != nil {
		return err
	}

	l, err := a.openLedger(ctx, cfg, loc)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	a.ledger = l

	pub := opts.Publisher
	if pub == nil {
		if pub, err = a.openPublisher(cfg); err != nil {
			return err
		}
	}

	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	var uploads content.Source
	if cfg.Paths.UploadListCSV != "" {
		uploads = content.NewCSVSource(cfg.Paths.UploadListCSV)
	}
	a.sched, err = schedule.New(schedule.Options{
		Source:    content.NewCSVSource(cfg.Paths.ScheduleCSV),
		Uploads:   uploads,
		Publisher: pub,
		Ledger:    l,
		Bus:       a.bus,
		Clock:     opts.Clock,
		Log:       a.log.With(logx.String("comp", "scheduler")),
	}, sc)
	if err != nil {
		return err
	}

	var sender notifier.Sender
	if cfg.Notifier.Enabled {
		tg, err := notifier.NewTelegram(cfg.Notifier.Token, cfg.Notifier.ChatID, cfg.Notifier.ThreadID)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		sender = tg
	}
	a.notif = notifier.New(mapNotifierConfig(cfg), sender, a.log)
	if sender != nil {
		a.notifEvents, a.notifUnsub = a.bus.Subscribe(64)
		a.logs.SetAlertSender(a.notif)
	}

	a.log.Info("components ready",
		logx.String("config", a.cfgm.Path()),
		logx.String("ledger", cfg.Ledger.Driver),
		logx.Bool("dry_run", cfg.Dev.DryRun),
		logx.Bool("notifier", sender != nil),
		logx.String("check_interval", sc.CheckInterval.String()),
		logx.String("timezone", sc.Location.String()),
	)
	return nil
}

// openLedger opens the configured ledger. A dry run works on an in-memory
// copy seeded from the persisted entries, so its decisions match a real run.
func (a *App) openLedger(ctx context.Context, cfg *config.Config, loc *time.Location) (*ledger.Ledger, error) {
	lc, err := mapLedgerConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	log := a.log.With(logx.String("comp", "ledger"))
	if !cfg.Dev.DryRun {
		return ledger.Open(ctx, lc, log)
	}

	var seed []ledger.Entry
	if lc.Driver != "memory" {
		if _, err := os.Stat(lc.Path); err == nil {
			lc.ResetOnCorrupt = false
			real, err := ledger.Open(ctx, lc, log)
			if err != nil {
				return nil, err
			}
			seed = real.Entries()
			_ = real.Close()
		}
	}
	l := ledger.New(ledger.NewMemoryStore(seed...), loc, log)
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (a *App) openPublisher(cfg *config.Config) (schedule.Publisher, error) {
	log := a.log.With(logx.String("comp", "threads"))
	if cfg.Dev.DryRun {
		log.Warn("dry run: nothing will be published")
		return threads.NewDryRun(log), nil
	}
	tc, err := mapThreadsConfig(cfg)
	if err != nil {
		return nil, err
	}
	c, err := threads.New(tc, log)
	if err != nil {
		return nil, fmt.Errorf("threads client: %w", err)
	}
	return c, nil
}

// ValidateConfig checks cfg completely. When needAPI is false, missing
// Threads credentials are accepted.
func ValidateConfig(cfg *config.Config, needAPI bool) error {
	return validate(cfg, needAPI)
}

func (a *App) Logger() logx.Logger { return a.log }

// flush delivers pending notifications before a one-shot command exits.
func (a *App) flush() {
	if a.notifEvents == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.notif.Flush(ctx, a.notifEvents)
}

func (a *App) Close() error {
	a.notifUnsub()
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
