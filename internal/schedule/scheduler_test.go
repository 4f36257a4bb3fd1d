package schedule

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"threadpost/internal/content"
	"threadpost/internal/eventbus"
	"threadpost/internal/ledger"
	"threadpost/internal/threads"
	logx "threadpost/pkg/logx"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
	// onSleep, when set, runs after every Sleep; it may cancel the run.
	onSleep func(n int)
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.slept = append(c.slept, d)
	n := len(c.slept)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type fakePublisher struct {
	mu        sync.Mutex
	staged    []string
	polled    []string
	confirmed []string

	stageErr   map[string]error // keyed by outgoing text
	pollErr    error
	confirmErr error
	seq        int
}

func (p *fakePublisher) Stage(ctx context.Context, text, mediaURL string) (threads.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged = append(p.staged, text)
	if err := p.stageErr[text]; err != nil {
		return threads.Container{}, err
	}
	p.seq++
	mt := threads.MediaText
	if mediaURL != "" {
		mt = threads.MediaImage
	}
	return threads.Container{ID: fmt.Sprintf("c%d", p.seq), MediaType: mt}, nil
}

func (p *fakePublisher) PollUntilReady(ctx context.Context, ct threads.Container, maxAttempts int, interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polled = append(p.polled, ct.ID)
	return p.pollErr
}

func (p *fakePublisher) Confirm(ctx context.Context, ct threads.Container) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, ct.ID)
	if p.confirmErr != nil {
		return "", p.confirmErr
	}
	return "post-" + ct.ID, nil
}

func (p *fakePublisher) stageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.staged)
}

type failingSource struct {
	mu    sync.Mutex
	calls int
	fails int // number of leading calls that fail
	items []content.Item
}

func (s *failingSource) List(ctx context.Context) ([]content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return nil, fmt.Errorf("%w: disk gone", content.ErrSourceUnavailable)
	}
	return s.items, nil
}

var utc = time.UTC

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, utc)
	if err != nil {
		panic(err)
	}
	return t
}

func newLedger(t *testing.T, store *ledger.MemoryStore) *ledger.Ledger {
	t.Helper()
	l := ledger.New(store, utc, logx.Nop())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("ledger load: %v", err)
	}
	return l
}

func testConfig(t *testing.T) Config {
	t.Helper()
	iv, err := ParseInterval("5m")
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		CheckInterval: iv,
		Window:        5 * time.Minute,
		RequestDelay:  5 * time.Second,
		PostDelay:     10 * time.Second,
		BatchInterval: time.Hour,
		BatchMaxPosts: 10,
		PollAttempts:  6,
		PollInterval:  5 * time.Second,
		AutoRestart:   true,
		RestartDelay:  30 * time.Second,
		MaxRestarts:   3,
		Location:      utc,
	}
}

type harness struct {
	s     *Scheduler
	pub   *fakePublisher
	clock *fakeClock
	store *ledger.MemoryStore
	led   *ledger.Ledger
	bus   eventbus.Bus
}

func newHarness(t *testing.T, now string, src content.Source, cfg Config) *harness {
	t.Helper()
	h := &harness{
		pub:   &fakePublisher{},
		clock: newFakeClock(at(now)),
		store: ledger.NewMemoryStore(),
		bus:   eventbus.New(),
	}
	h.led = newLedger(t, h.store)
	s, err := New(Options{
		Source:    src,
		Uploads:   src,
		Publisher: h.pub,
		Ledger:    h.led,
		Bus:       h.bus,
		Clock:     h.clock,
	}, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	h.s = s
	return h
}

func item(date, tm, text string) content.Item {
	return content.Item{Date: date, Time: tm, Text: text}
}

func TestTickPublishesDueItemsOnce(t *testing.T) {
	src := content.StaticSource{
		item("2024-01-01", "09:00", "hello"),
		item("2024-01-01", "12:00", "later"),
		{Date: "2024-01-01", Time: "09:02", Text: "pic", Hashtags: "#a #b", MediaURL: "https://x/p.png"},
	}
	h := newHarness(t, "2024-01-01 09:03", src, testConfig(t))

	rep, err := h.s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if rep.Due != 2 || rep.Published != 2 || rep.Candidates != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if got := h.pub.staged; len(got) != 2 || got[0] != "hello" || got[1] != "pic\n\n#a #b" {
		t.Fatalf("unexpected staged texts: %q", got)
	}
	// Only the media item is polled.
	if len(h.pub.polled) != 1 {
		t.Fatalf("polled = %v, want one media poll", h.pub.polled)
	}
	// Text settle delay, then one pacing delay between the two posts; none after the last.
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if got := h.clock.sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	if !h.led.IsPublished(src[0]) || !h.led.IsPublished(src[2]) || h.led.IsPublished(src[1]) {
		t.Fatal("ledger state mismatch")
	}

	// Second tick, same instant: nothing new.
	before := h.pub.stageCount()
	if _, err := h.s.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick error: %v", err)
	}
	if h.pub.stageCount() != before {
		t.Fatalf("second tick staged %d more items", h.pub.stageCount()-before)
	}
}

func TestTickSkipsLedgeredItem(t *testing.T) {
	it := item("2024-01-01", "09:00", "hello")
	h := newHarness(t, "2024-01-01 09:00", content.StaticSource{it}, testConfig(t))
	if err := h.led.Append(context.Background(), it, "old"); err != nil {
		t.Fatal(err)
	}

	if _, err := h.s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if n := h.pub.stageCount(); n != 0 {
		t.Fatalf("stage called %d times for a ledgered item", n)
	}
}

func TestTickPollTimeoutNeverConfirms(t *testing.T) {
	it := content.Item{Date: "2024-01-01", Time: "09:00", Text: "pic", MediaURL: "https://x/p.png"}
	h := newHarness(t, "2024-01-01 09:00", content.StaticSource{it}, testConfig(t))
	h.pub.pollErr = &threads.PollError{ContainerID: "c1", Timeout: true, Attempts: 6, Message: "IN_PROGRESS"}

	rep, err := h.s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if rep.Failed != 1 || rep.Published != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(h.pub.confirmed) != 0 {
		t.Fatalf("confirm called after poll failure: %v", h.pub.confirmed)
	}
	if h.led.IsPublished(it) {
		t.Fatal("item must stay unledgered")
	}
}

func TestTickItemFailureDoesNotBlockOthers(t *testing.T) {
	src := content.StaticSource{
		item("2024-01-01", "09:00", "bad"),
		item("2024-01-01", "09:01", "good"),
	}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	h.pub.stageErr = map[string]error{"bad": fmt.Errorf("%w: too long", threads.ErrStageRejected)}

	events, unsub := h.bus.Subscribe(8)
	defer unsub()

	rep, err := h.s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if rep.Failed != 1 || rep.Published != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !h.led.IsPublished(src[1]) || h.led.IsPublished(src[0]) {
		t.Fatal("ledger state mismatch")
	}
	// No pacing after a failure: only the text settle delay of "good".
	if got := h.clock.sleeps(); len(got) != 1 || got[0] != 5*time.Second {
		t.Fatalf("sleeps = %v", got)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{eventbus.TypePostFailed, eventbus.TypePostPublished, eventbus.TypeTickDone}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func TestTickLedgerFailureIsFatal(t *testing.T) {
	src := content.StaticSource{
		item("2024-01-01", "09:00", "one"),
		item("2024-01-01", "09:01", "two"),
	}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	h.store.FailCommit = errors.New("disk full")

	_, err := h.s.Tick(context.Background())
	if !errors.Is(err, ledger.ErrLedgerWriteFailed) {
		t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
	}
	if n := h.pub.stageCount(); n != 1 {
		t.Fatalf("stage called %d times, want 1 (no dispatch after ledger failure)", n)
	}
}

// cancellingPublisher stops the run right after the remote post went live.
type cancellingPublisher struct {
	*fakePublisher
	cancel context.CancelFunc
}

func (p cancellingPublisher) Confirm(ctx context.Context, ct threads.Container) (string, error) {
	id, err := p.fakePublisher.Confirm(ctx, ct)
	p.cancel()
	return id, err
}

func TestRunRecordsPublishConfirmedDuringShutdown(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			cfg := ledger.Config{Driver: driver, Path: filepath.Join(t.TempDir(), "ledger"), Location: utc}
			led, err := ledger.Open(context.Background(), cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open ledger: %v", err)
			}

			it := item("2024-01-01", "09:00", "hello")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pub := cancellingPublisher{fakePublisher: &fakePublisher{}, cancel: cancel}
			s, err := New(Options{
				Source:    content.StaticSource{it},
				Publisher: pub,
				Ledger:    led,
				Clock:     newFakeClock(at("2024-01-01 09:00")),
			}, testConfig(t))
			if err != nil {
				t.Fatal(err)
			}

			if err := s.Run(ctx); err != nil {
				t.Fatalf("Run error: %v", err)
			}
			if len(pub.confirmed) != 1 {
				t.Fatalf("confirmed = %v, want one", pub.confirmed)
			}
			if err := led.Close(); err != nil {
				t.Fatal(err)
			}

			reopened, err := ledger.Open(context.Background(), cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen ledger: %v", err)
			}
			defer reopened.Close()
			if !reopened.IsPublished(it) || reopened.Stats().Total != 1 {
				t.Fatalf("confirmed post not recorded: %+v", reopened.Stats())
			}
		})
	}
}

func TestRunLedgerFailureDuringShutdownIsFatal(t *testing.T) {
	src := content.StaticSource{item("2024-01-01", "09:00", "one")}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	h.store.FailCommit = errors.New("read-only")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.s.pub = cancellingPublisher{fakePublisher: h.pub, cancel: cancel}

	err := h.s.Run(ctx)
	if !errors.Is(err, ledger.ErrLedgerWriteFailed) {
		t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
	}
}

func TestTickSkipsInvalidSchedule(t *testing.T) {
	src := content.StaticSource{
		item("01/01/2024", "9am", "weird"),
		item("2024-01-01", "09:00", "ok"),
	}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))

	rep, err := h.s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if rep.Skipped != 1 || rep.Published != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestTickSourceUnavailable(t *testing.T) {
	src := &failingSource{fails: 1}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))

	_, err := h.s.Tick(context.Background())
	if !errors.Is(err, content.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestRunRestartBudgetExhausted(t *testing.T) {
	src := &failingSource{fails: 100}
	cfg := testConfig(t)
	cfg.MaxRestarts = 2
	h := newHarness(t, "2024-01-01 09:00", src, cfg)

	err := h.s.Run(context.Background())
	if !errors.Is(err, ErrRestartBudgetExhausted) || !errors.Is(err, content.ErrSourceUnavailable) {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("ticks = %d, want 3", src.calls)
	}
	want := []time.Duration{30 * time.Second, 30 * time.Second}
	if got := h.clock.sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
}

func TestRunResetsFailureCountAfterSuccess(t *testing.T) {
	src := &failingSource{fails: 2}
	cfg := testConfig(t)
	cfg.MaxRestarts = 2
	h := newHarness(t, "2024-01-01 09:00", src, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Two failures, a success, then stop while waiting for the next tick.
	h.clock.onSleep = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	if err := h.s.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	got := h.clock.sleeps()
	if len(got) != 3 || got[2] != 5*time.Minute {
		t.Fatalf("sleeps = %v, want two restart delays then the check interval", got)
	}
}

func TestRunAutoRestartDisabled(t *testing.T) {
	src := &failingSource{fails: 1}
	cfg := testConfig(t)
	cfg.AutoRestart = false
	h := newHarness(t, "2024-01-01 09:00", src, cfg)

	err := h.s.Run(context.Background())
	if err == nil || !errors.Is(err, content.ErrSourceUnavailable) {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("ticks = %d, want 1", src.calls)
	}
}

func TestRunLedgerFailureSkipsRestart(t *testing.T) {
	src := content.StaticSource{item("2024-01-01", "09:00", "one")}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	h.store.FailCommit = errors.New("read-only")

	err := h.s.Run(context.Background())
	if !errors.Is(err, ledger.ErrLedgerWriteFailed) {
		t.Fatalf("expected ErrLedgerWriteFailed, got %v", err)
	}
	if errors.Is(err, ErrRestartBudgetExhausted) {
		t.Fatal("ledger failure must not go through the restart budget")
	}
}

func TestRunAlignsToCheckInterval(t *testing.T) {
	src := content.StaticSource{}
	cfg := testConfig(t)
	iv, err := ParseInterval("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	cfg.CheckInterval = iv
	h := newHarness(t, "2024-01-01 09:03", src, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	if err := h.s.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []time.Duration{2 * time.Minute, 5 * time.Minute}
	if got := h.clock.sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
}

func TestBatchPublishesFirstN(t *testing.T) {
	var src content.StaticSource
	for i := 1; i <= 12; i++ {
		src = append(src, item("2020-01-01", "00:00", fmt.Sprintf("post %02d", i)))
	}
	cfg := testConfig(t)
	cfg.RequestDelay = 0
	h := newHarness(t, "2024-01-01 09:00", src, cfg)

	rep, err := h.s.Batch(context.Background())
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if rep.Published != 10 || rep.Selected != 10 || rep.Listed != 12 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	for i, text := range h.pub.staged {
		if want := fmt.Sprintf("post %02d", i+1); text != want {
			t.Fatalf("staged[%d] = %q, want %q", i, text, want)
		}
	}
	var pacing int
	for _, d := range h.clock.sleeps() {
		if d == time.Hour {
			pacing++
		}
	}
	if pacing != 9 {
		t.Fatalf("batch interval waits = %d, want 9", pacing)
	}
	if h.led.IsPublished(src[10]) {
		t.Fatal("item 11 must not be published")
	}

	// A second batch continues with the remainder.
	rep, err = h.s.Batch(context.Background())
	if err != nil {
		t.Fatalf("second Batch error: %v", err)
	}
	if rep.Published != 2 {
		t.Fatalf("second batch published %d, want 2", rep.Published)
	}
}

func TestPublishIndex(t *testing.T) {
	src := content.StaticSource{
		item("2030-01-01", "09:00", "future"),
		item("2030-01-02", "09:00", "another"),
	}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	ctx := context.Background()

	it, id, err := h.s.PublishIndex(ctx, 1)
	if err != nil {
		t.Fatalf("PublishIndex error: %v", err)
	}
	if it.Text != "another" || !strings.HasPrefix(id, "post-") {
		t.Fatalf("unexpected result: %+v %q", it, id)
	}
	if !h.led.IsPublished(src[1]) {
		t.Fatal("item not ledgered")
	}

	if _, _, err := h.s.PublishIndex(ctx, 1); !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
	if _, _, err := h.s.PublishIndex(ctx, 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, _, err := h.s.PublishIndex(ctx, -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestProbeDoesNotRecord(t *testing.T) {
	h := newHarness(t, "2024-01-01 09:00", content.StaticSource{}, testConfig(t))
	id, err := h.s.Probe(context.Background(), "threadpost test")
	if err != nil || id == "" {
		t.Fatalf("Probe = %q, %v", id, err)
	}
	if len(h.led.Entries()) != 0 {
		t.Fatal("probe must not write the ledger")
	}
}

func TestUpcoming(t *testing.T) {
	src := content.StaticSource{
		item("2024-01-03", "09:00", "c"),
		item("2023-12-31", "09:00", "past"),
		item("2024-01-02", "09:00", "b"),
		item("bad", "bad", "invalid"),
		item("2024-01-01", "10:00", "a"),
		item("2024-01-04", "09:00", "d"),
	}
	h := newHarness(t, "2024-01-01 09:00", src, testConfig(t))
	if err := h.led.Append(context.Background(), src[0], "x"); err != nil {
		t.Fatal(err)
	}

	got, err := h.s.Upcoming(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Item.Text != "a" || got[1].Item.Text != "b" {
		t.Fatalf("unexpected upcoming: %+v", got)
	}
	if !got[0].At.Equal(at("2024-01-01 10:00")) {
		t.Fatalf("At = %v", got[0].At)
	}
}

func TestApplyRejectsInvalid(t *testing.T) {
	h := newHarness(t, "2024-01-01 09:00", content.StaticSource{}, testConfig(t))
	cfg := testConfig(t)
	cfg.Window = -time.Minute
	if err := h.s.Apply(cfg); err == nil {
		t.Fatal("expected error for negative window")
	}
	cfg.Window = time.Minute
	if err := h.s.Apply(cfg); err != nil {
		t.Fatal(err)
	}
	if h.s.config().Window != time.Minute {
		t.Fatal("config not applied")
	}
}
