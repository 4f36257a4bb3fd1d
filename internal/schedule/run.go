package schedule

import (
	"context"
	"errors"
	"fmt"

	"threadpost/internal/eventbus"
	"threadpost/internal/ledger"
	logx "threadpost/pkg/logx"
)

// Run ticks immediately and then on every check interval activation until ctx
// is cancelled, which returns nil.
//
// A failed tick is retried after RestartDelay. More than MaxRestarts
// consecutive failures returns ErrRestartBudgetExhausted; a successful tick
// resets the count. Ledger integrity errors are returned at once, even when ctx is already cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	failures := 0
	for {
		start := s.clock.Now()
		_, err := s.Tick(ctx)
		cfg := s.config()
		if errors.Is(err, ledger.ErrLedgerWriteFailed) || errors.Is(err, ledger.ErrLedgerCorrupt) {
			s.fatal(err, failures, cfg.MaxRestarts)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			failures++
			if !cfg.AutoRestart {
				s.fatal(err, failures, cfg.MaxRestarts)
				return fmt.Errorf("tick failed and auto restart is disabled: %w", err)
			}
			if failures > cfg.MaxRestarts {
				s.fatal(err, failures, cfg.MaxRestarts)
				return fmt.Errorf("%w after %d consecutive failures: %w", ErrRestartBudgetExhausted, failures, err)
			}
			s.log.Warn("tick failed, restarting",
				logx.Int("attempt", failures),
				logx.Int("max_restarts", cfg.MaxRestarts),
				logx.Duration("delay", cfg.RestartDelay),
				logx.Err(err),
			)
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeTickFailed, Data: eventbus.Failure{
				Err:     err.Error(),
				Attempt: failures,
				Budget:  cfg.MaxRestarts,
			}})
			if err := s.clock.Sleep(ctx, cfg.RestartDelay); err != nil {
				return nil
			}
			continue
		}

		if failures > 0 {
			s.log.Info("tick recovered", logx.Int("after_failures", failures))
		}
		failures = 0

		now := s.clock.Now().In(cfg.Location)
		next := cfg.CheckInterval.Next(start.In(cfg.Location))
		if !next.After(now) {
			next = cfg.CheckInterval.Next(now)
		}
		s.log.Debug("next tick", logx.Time("at", next))
		if err := s.clock.Sleep(ctx, next.Sub(now)); err != nil {
			return nil
		}
	}
}

func (s *Scheduler) fatal(err error, attempt, budget int) {
	s.log.Error("scheduler stopped", logx.Int("failures", attempt), logx.Int("max_restarts", budget), logx.Err(err))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSchedulerFatal, Data: eventbus.Failure{
		Err:      err.Error(),
		Attempt:  attempt,
		Budget:   budget,
		Terminal: true,
	}})
}
