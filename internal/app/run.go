package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"threadpost/internal/config"
	"threadpost/internal/eventbus"
	"threadpost/internal/metrics"
	"threadpost/internal/runtime/sdnotify"
	"threadpost/internal/runtime/supervisor"
	logx "threadpost/pkg/logx"
)

const stopTimeout = 15 * time.Second

// Run starts the scheduler loop and its supporting goroutines and blocks until
// ctx is cancelled or the scheduler stops on its own. A scheduler failure is
// returned; a cancelled ctx returns nil.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfgm.Get()
	sd := sdnotify.New(a.log)
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return ValidateConfig(c, true)
	})
	updates := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(updates)

	if a.notifEvents != nil {
		sup.Go("notifier", func(c context.Context) error {
			return a.notif.Run(c, a.notifEvents)
		})
	}

	if cfg.Metrics.Enabled {
		col := metrics.New(a.bus)
		events, unsub := a.bus.Subscribe(128)
		defer unsub()
		sup.Go("metrics.consume", func(c context.Context) error {
			return col.Consume(c, events)
		})
		addr, withPprof := cfg.Metrics.Addr, cfg.Metrics.Pprof
		mlog := a.log.With(logx.String("comp", "metrics"))
		sup.GoRestart("metrics.http", func(c context.Context) error {
			return col.Serve(c, addr, withPprof, mlog)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))
	sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c, updates, sd)
		return nil
	})
	sup.Go("systemd.watchdog", sd.Watchdog)

	sup.Go("scheduler", func(c context.Context) error {
		err := a.sched.Run(c)
		if err == nil {
			// Clean stop: take everything else down with it.
			sup.Cancel()
		}
		return err
	})

	sd.Ready()
	sd.Status("scheduling from %s", cfg.Paths.ScheduleCSV)
	a.log.Info("running", logx.String("schedule", cfg.Paths.ScheduleCSV), logx.Bool("dry_run", cfg.Dev.DryRun))

	<-sup.Context().Done()
	sd.Stopping()
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown timed out", logx.Duration("timeout", stopTimeout))
	}
	a.flush()
	return err
}

// reloadLoop applies each committed config to the live components. Settings
// that are only read at startup are reported but not applied.
func (a *App) reloadLoop(ctx context.Context, updates <-chan *config.Config, sd *sdnotify.Notifier) {
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-updates:
			if !ok {
				return
			}
			next = c
		}
		// Coalesce bursts: keep only the latest.
	drain:
		for {
			select {
			case newer := <-updates:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}

		ch := config.SummarizeChange(last, next)
		if ch.Empty() {
			a.log.Debug("config reload received, but no effective changes detected")
			continue
		}
		sd.Reloading()
		a.apply(next, ch)
		last = next
		sd.Ready()
	}
}

func (a *App) apply(cfg *config.Config, ch config.Change) {
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config change applied", fields...)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("some changes need a restart to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}

	a.logs.Apply(mapLoggingConfig(cfg))
	a.notif.Apply(mapNotifierConfig(cfg))

	sc, err := mapSchedulerConfig(cfg)
	if err == nil {
		// The location is fixed at startup together with the ledger.
		sc.Location = a.sched.Location()
		err = a.sched.Apply(sc)
	}
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: ch.Sections})
}
