package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"threadpost/internal/eventbus"
	logx "threadpost/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
)

type Config struct {
	Enabled         bool
	RatePerSec      float64
	QueueSize       int
	NotifyPublished bool
	SendTimeout     time.Duration
}

// Service queues messages and sends them one at a time.
type Service struct {
	sender Sender
	log    logx.Logger
	queue  chan string

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		queue:  make(chan string, cfg.QueueSize),
	}
	s.Apply(cfg)
	return s
}

// Apply updates the rate and filters. QueueSize is fixed at construction.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// SendAlert enqueues text. It never blocks.
func (s *Service) SendAlert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, _ := s.snapshot()
	if !cfg.Enabled || s.sender == nil {
		return ErrDisabled
	}
	select {
	case s.queue <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run forwards events and drains the queue until ctx is done.
// A nil events channel only drains the queue.
func (s *Service) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handle(ctx, e)
		case text := <-s.queue:
			s.deliver(ctx, text)
		}
	}
}

// Flush delivers the events already buffered in events and everything queued,
// then returns. One-shot commands call it before exiting.
func (s *Service) Flush(ctx context.Context, events <-chan eventbus.Event) {
	for ctx.Err() == nil {
		select {
		case e, ok := <-events:
			if !ok {
				events = nil
			} else {
				s.handle(ctx, e)
			}
			continue
		default:
		}
		select {
		case text := <-s.queue:
			s.deliver(ctx, text)
		default:
			return
		}
	}
}

func (s *Service) handle(ctx context.Context, e eventbus.Event) {
	cfg, _ := s.snapshot()
	text, ok := Format(e, cfg.NotifyPublished)
	if !ok {
		return
	}
	if err := s.SendAlert(ctx, text); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Warn("notification dropped", logx.String("event", e.Type), logx.Err(err))
	}
}

func (s *Service) deliver(ctx context.Context, text string) {
	cfg, lim := s.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	if err := s.sender.Send(sctx, text); err != nil && ctx.Err() == nil {
		// Debug only: alert delivery failures logged at warn would loop back
		// into the alert sink.
		s.log.Debug("notification send failed", logx.Err(err))
	}
}
