package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"threadpost/internal/content"
	"threadpost/internal/eventbus"
	"threadpost/internal/ledger"
	"threadpost/internal/threads"
	logx "threadpost/pkg/logx"
)

var (
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
	ErrIndexOutOfRange        = errors.New("item index out of range")
	ErrAlreadyPublished       = errors.New("item already published")
)

// recordTimeout bounds the ledger write that follows a confirmed publish.
const recordTimeout = 10 * time.Second

// Publisher is the two-phase remote publishing protocol.
type Publisher interface {
	Stage(ctx context.Context, text, mediaURL string) (threads.Container, error)
	PollUntilReady(ctx context.Context, ct threads.Container, maxAttempts int, interval time.Duration) error
	Confirm(ctx context.Context, ct threads.Container) (string, error)
}

// Ledger is the subset of *ledger.Ledger the scheduler needs.
type Ledger interface {
	IsPublished(it content.Item) bool
	Append(ctx context.Context, it content.Item, publicationID string) error
}

// Config holds the scheduler knobs. It can be replaced at runtime with Apply.
type Config struct {
	CheckInterval Interval
	Window        time.Duration

	// RequestDelay is the settle delay between staging and confirming a text post.
	RequestDelay time.Duration
	// PostDelay paces successful publishes within a tick.
	PostDelay time.Duration

	BatchInterval time.Duration
	BatchMaxPosts int

	PollAttempts int
	PollInterval time.Duration

	AutoRestart  bool
	RestartDelay time.Duration
	MaxRestarts  int

	Location *time.Location
}

func (c Config) normalize() (Config, error) {
	if c.CheckInterval.Schedule == nil {
		iv, err := ParseInterval("5m")
		if err != nil {
			return c, err
		}
		c.CheckInterval = iv
	}
	if c.Window < 0 {
		return c, fmt.Errorf("time window must be >= 0")
	}
	if c.BatchMaxPosts < 0 {
		return c, fmt.Errorf("batch max posts must be >= 0")
	}
	if c.PollAttempts < 1 {
		c.PollAttempts = 1
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c, nil
}

// Options wires the scheduler's collaborators. Uploads is only used by Batch.
type Options struct {
	Source    content.Source
	Uploads   content.Source
	Publisher Publisher
	Ledger    Ledger
	Bus       eventbus.Bus
	Clock     Clock
	Log       logx.Logger
}

// Scheduler is the tick orchestrator. Ticks must not run concurrently.
type Scheduler struct {
	src     content.Source
	uploads content.Source
	pub     Publisher
	ledger  Ledger
	bus     eventbus.Bus
	clock   Clock
	log     logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func New(opts Options, cfg Config) (*Scheduler, error) {
	if opts.Source == nil {
		return nil, errors.New("schedule: source is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("schedule: publisher is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("schedule: ledger is required")
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		src:     opts.Source,
		uploads: opts.Uploads,
		pub:     opts.Publisher,
		ledger:  opts.Ledger,
		bus:     opts.Bus,
		clock:   opts.Clock,
		log:     opts.Log.With(logx.String("comp", "scheduler")),
		cfg:     cfg,
	}, nil
}

// Apply swaps the knobs. A tick already in progress keeps its snapshot.
func (s *Scheduler) Apply(cfg Config) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// Location is the time zone schedule entries are interpreted in.
func (s *Scheduler) Location() *time.Location { return s.config().Location }

func (s *Scheduler) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// TickReport summarizes one pass.
type TickReport struct {
	Candidates int // not yet ledgered
	Due        int
	Published  int
	Failed     int
	Skipped    int // unparseable date/time
}

// Tick runs one full pass: load, drop ledgered items, select due items and
// publish them in source order.
//
// Per-item publisher failures are logged and the pass continues. A ledger
// write failure after a confirmed publish stops the pass and is returned.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	cfg := s.config()
	start := s.clock.Now()
	now := start.In(cfg.Location)
	var rep TickReport

	items, err := s.src.List(ctx)
	if err != nil {
		return rep, err
	}

	due := make([]content.Item, 0, 4)
	for _, it := range items {
		if s.ledger.IsPublished(it) {
			continue
		}
		rep.Candidates++
		ok, err := IsDue(it, now, cfg.Window)
		if err != nil {
			rep.Skipped++
			s.log.Warn("skipping item with invalid schedule",
				logx.String("date", it.Date),
				logx.String("time", it.Time),
				logx.String("text", it.Summary(40)),
				logx.Err(err),
			)
			continue
		}
		if ok {
			due = append(due, it)
		}
	}
	rep.Due = len(due)

	if len(due) == 0 {
		s.log.Debug("no items due", logx.Int("candidates", rep.Candidates), logx.Time("now", now))
	} else {
		s.log.Info("items due", logx.Int("due", len(due)), logx.Int("candidates", rep.Candidates))
	}

	published, failed, err := s.dispatch(ctx, cfg, due, cfg.PostDelay)
	rep.Published, rep.Failed = published, failed
	if err != nil {
		return rep, err
	}

	took := s.clock.Now().Sub(start)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTickDone, Data: eventbus.Tick{
		Candidates: rep.Candidates,
		Due:        rep.Due,
		Published:  rep.Published,
		Failed:     rep.Failed,
		Took:       took,
	}})
	return rep, nil
}

// dispatch publishes items sequentially. After every successful publish
// except the last one, it waits pace before the next item.
// Only context and ledger errors are returned.
func (s *Scheduler) dispatch(ctx context.Context, cfg Config, items []content.Item, pace time.Duration) (published, failed int, err error) {
	waitBeforeNext := false
	for i, it := range items {
		if waitBeforeNext {
			s.log.Debug("pacing", logx.Duration("delay", pace), logx.Int("remaining", len(items)-i))
			if err := s.clock.Sleep(ctx, pace); err != nil {
				return published, failed, err
			}
		}
		waitBeforeNext = false

		log := s.log.With(
			logx.String("date", it.Date),
			logx.String("time", it.Time),
			logx.Int("n", i+1),
			logx.Int("of", len(items)),
		)
		if _, err := s.publish(ctx, cfg, it, log); err != nil {
			if ctx.Err() != nil {
				return published, failed, ctx.Err()
			}
			if errors.Is(err, ledger.ErrLedgerWriteFailed) {
				return published, failed, err
			}
			failed++
			continue
		}
		published++
		waitBeforeNext = i < len(items)-1
	}
	return published, failed, nil
}

// publish drives one item through stage, poll (media only), confirm and record.
// Publisher failures are logged and reported as events before being returned.
func (s *Scheduler) publish(ctx context.Context, cfg Config, it content.Item, log logx.Logger) (string, error) {
	start := s.clock.Now()
	ev := eventbus.Post{
		Date:      it.Date,
		Time:      it.Time,
		Summary:   it.Summary(80),
		MediaType: string(threads.MediaText),
	}
	if it.HasMedia() {
		ev.MediaType = string(threads.MediaImage)
	}
	fail := func(stage string, err error) (string, error) {
		ev.Stage = stage
		ev.Err = err.Error()
		ev.Took = s.clock.Now().Sub(start)
		if ctx.Err() == nil {
			log.Error("publish failed", logx.String("stage", stage), logx.Err(err))
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePostFailed, Data: ev})
		return "", err
	}

	id, err := s.stageAndConfirm(ctx, cfg, it.FullText(), it.MediaURL, log)
	if err != nil {
		return fail(stageOf(err), err)
	}

	// Confirmed means live: record even if ctx was cancelled meanwhile.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	err = s.ledger.Append(rctx, it, id)
	cancel()
	if err != nil {
		// The post is live but not recorded; the next tick may publish it again.
		log.Error("ledger write failed after publish",
			logx.String("severity", "critical"),
			logx.String("post_id", id),
			logx.Err(err),
		)
		ev.PublicationID = id
		ev.Stage = "record"
		ev.Err = err.Error()
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeLedgerWriteFailed, Data: ev})
		return "", err
	}

	ev.PublicationID = id
	ev.Took = s.clock.Now().Sub(start)
	log.Info("published", logx.String("post_id", id), logx.String("media_type", ev.MediaType), logx.Duration("took", ev.Took))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypePostPublished, Data: ev})
	return id, nil
}

// stageAndConfirm runs the remote protocol without touching the ledger.
func (s *Scheduler) stageAndConfirm(ctx context.Context, cfg Config, text, mediaURL string, log logx.Logger) (string, error) {
	ct, err := s.pub.Stage(ctx, text, mediaURL)
	if err != nil {
		return "", &stepError{stage: "stage", err: err}
	}
	log.Debug("staged", logx.String("container_id", ct.ID), logx.String("media_type", string(ct.MediaType)))

	if ct.MediaType == threads.MediaImage {
		if err := s.pub.PollUntilReady(ctx, ct, cfg.PollAttempts, cfg.PollInterval); err != nil {
			return "", &stepError{stage: "poll", err: err}
		}
	} else if err := s.clock.Sleep(ctx, cfg.RequestDelay); err != nil {
		return "", &stepError{stage: "stage", err: err}
	}

	id, err := s.pub.Confirm(ctx, ct)
	if err != nil {
		return "", &stepError{stage: "confirm", err: err}
	}
	return id, nil
}

type stepError struct {
	stage string
	err   error
}

func (e *stepError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stepError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}
