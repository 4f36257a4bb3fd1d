// Package supervisor runs the long-lived goroutines of the run command.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	logx "threadpost/pkg/logx"
)

// Task is a supervised unit of work. It must return once ctx is done.
type Task func(ctx context.Context) error

// Supervisor tracks named tasks sharing one context. A panic in a task is
// turned into an error. Only the first error is kept.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg sync.WaitGroup

	mu  sync.Mutex
	err error
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels the shared context on the first task error.
func WithCancelOnError(enabled bool) Option { return func(s *Supervisor) { s.cancelOnErr = enabled } }

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "supervisor"))
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) record(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

// Go runs task once. context.Canceled is treated as a normal return.
func (s *Supervisor) Go(name string, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log := s.log.With(logx.String("task", name))
		log.Debug("task started")
		if err := s.call(log, task); err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
		}
		log.Debug("task stopped")
	}()
}

func (s *Supervisor) call(log logx.Logger, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(s.ctx)
}

type restartPolicy struct {
	min, max    time.Duration
	maxRestarts int
}

type RestartOption func(*restartPolicy)

func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.min = min
		}
		if max > 0 {
			p.max = max
		}
	}
}

// WithMaxRestarts caps restarts (0 = no cap). Hitting the cap is an error.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.maxRestarts = n } }

// healthyRun resets the backoff when a task survived at least this long.
const healthyRun = 30 * time.Second

// GoRestart is Go with restarts: after an error or panic, task runs again
// following an exponential, jittered delay. A nil return is final.
func (s *Supervisor) GoRestart(name string, task Task, opts ...RestartOption) {
	p := restartPolicy{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&p)
	}
	p.max = max(p.max, p.min)
	s.Go(name, func(ctx context.Context) error { return s.restartLoop(ctx, name, task, p) })
}

func (s *Supervisor) restartLoop(ctx context.Context, name string, task Task, p restartPolicy) error {
	log := s.log.With(logx.String("task", name))
	delay := p.min
	for restarts := 0; ; restarts++ {
		began := time.Now()
		err := s.call(log, task)
		switch {
		case err == nil, ctx.Err() != nil, errors.Is(err, context.Canceled):
			return nil
		case p.maxRestarts > 0 && restarts >= p.maxRestarts:
			log.Error("task gave up", logx.Int("restarts", restarts), logx.Err(err))
			return err
		}
		if time.Since(began) >= healthyRun {
			delay = p.min
		}
		wait := jitter(delay)
		log.Warn("task restarting", logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		delay = min(2*delay, p.max)
	}
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if span := int64(d) / 5; span > 0 {
		return d + time.Duration(rand.Int64N(span+1))
	}
	return d
}

// Wait blocks until every task has returned, or until ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels every task and waits for them.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.Cancel()
	return s.Wait(ctx)
}
