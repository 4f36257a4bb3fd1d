package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"threadpost/internal/config"
	"threadpost/internal/schedule"
	"threadpost/internal/threads"
)

const scheduleCSV = `date,time,text,hashtags,image_url,content_type
2024-05-01,09:00,first post,#a,,text
2024-05-01,12:00,second post,,https://example.com/a.jpg,image
2024-06-01,08:00,future post,,,text
`

var testNow = time.Date(2024, 5, 1, 9, 1, 0, 0, time.UTC)

// stillClock stands at testNow. Short sleeps return at once; long ones wait
// for cancellation so Run parks between ticks.
type stillClock struct{}

func (stillClock) Now() time.Time { return testNow }

func (stillClock) Sleep(ctx context.Context, d time.Duration) error {
	if d < time.Hour {
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordPublisher struct {
	mu     sync.Mutex
	staged []string
	seq    int
}

func (p *recordPublisher) Stage(ctx context.Context, text, mediaURL string) (threads.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged = append(p.staged, text)
	p.seq++
	mt := threads.MediaText
	if mediaURL != "" {
		mt = threads.MediaImage
	}
	return threads.Container{ID: fmt.Sprintf("c%d", p.seq), MediaType: mt}, nil
}

func (p *recordPublisher) PollUntilReady(ctx context.Context, ct threads.Container, maxAttempts int, interval time.Duration) error {
	return nil
}

func (p *recordPublisher) Confirm(ctx context.Context, ct threads.Container) (string, error) {
	return "post-" + ct.ID, nil
}

func (p *recordPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.staged)
}

type fixture struct {
	dir     string
	cfgPath string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("schedule.csv", scheduleCSV)
	write("uploads.csv", scheduleCSV)
	cfg := fmt.Sprintf(`threads:
  user_id: "u1"
  access_token: "tok-abcdefghijkl"
paths:
  schedule_csv: %q
  upload_list_csv: %q
ledger:
  driver: file
  path: %q
scheduler:
  check_interval: "2h"
  timezone: UTC
batch:
  interval: "1m"
  max_posts: 2
logging:
  level: error
%s`, filepath.Join(dir, "schedule.csv"), filepath.Join(dir, "uploads.csv"), filepath.Join(dir, "posted.json"), extra)
	write("threadpost.yaml", cfg)
	return fixture{dir: dir, cfgPath: filepath.Join(dir, "threadpost.yaml")}
}

func (f fixture) open(t *testing.T, pub schedule.Publisher, out *bytes.Buffer) *App {
	t.Helper()
	a, err := New(context.Background(), Options{
		ConfigPath: f.cfgPath,
		NeedAPI:    true,
		Out:        out,
		Publisher:  pub,
		Clock:      stillClock{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestValidateConfig(t *testing.T) {
	cfg := config.Default()
	if err := ValidateConfig(cfg, true); err == nil {
		t.Fatal("expected missing credentials error")
	}
	if err := ValidateConfig(cfg, false); err != nil {
		t.Fatalf("credentials should be optional: %v", err)
	}

	cfg.Scheduler.CheckInterval = "sometimes"
	err := ValidateConfig(cfg, false)
	if err == nil || !strings.Contains(err.Error(), "scheduler.check_interval") {
		t.Fatalf("expected check_interval error, got %v", err)
	}
}

func TestPostNowRecordsAndRefusesRepeat(t *testing.T) {
	f := newFixture(t, "")
	pub := &recordPublisher{}
	var out bytes.Buffer

	a := f.open(t, pub, &out)
	if err := a.PostNow(context.Background(), 0); err != nil {
		t.Fatalf("PostNow: %v", err)
	}
	if !strings.Contains(out.String(), "as post-c1") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if pub.staged[0] != "first post\n\n#a" {
		t.Fatalf("staged text = %q", pub.staged[0])
	}
	_ = a.Close()

	b := f.open(t, pub, &out)
	if err := b.PostNow(context.Background(), 0); !errors.Is(err, schedule.ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
	if err := b.PostNow(context.Background(), 9); !errors.Is(err, schedule.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("staged %d times, want 1", pub.count())
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")
	var out bytes.Buffer
	a := f.open(t, &recordPublisher{}, &out)
	if err := a.PostNow(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	out.Reset()

	if err := a.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	got := out.String()
	for _, want := range []string{"published total: 1", "id:   post-c1", "next 2:", "1. 2024-05-01 12:00", "2. 2024-06-01 08:00"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
}

func TestStatusReportsUnreadableSchedule(t *testing.T) {
	f := newFixture(t, "")
	if err := os.Remove(filepath.Join(f.dir, "schedule.csv")); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	a := f.open(t, &recordPublisher{}, &out)
	if err := a.Status(context.Background()); err != nil {
		t.Fatalf("Status should not fail: %v", err)
	}
	if !strings.Contains(out.String(), "schedule unreadable") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestBatchHonorsMaxPosts(t *testing.T) {
	f := newFixture(t, "")
	pub := &recordPublisher{}
	var out bytes.Buffer
	a := f.open(t, pub, &out)

	if err := a.Batch(context.Background()); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if pub.count() != 2 {
		t.Fatalf("published %d, want 2", pub.count())
	}
	if !strings.Contains(out.String(), "3 listed, 2 selected, 2 published, 0 failed") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestDryRunDoesNotTouchLedger(t *testing.T) {
	f := newFixture(t, "")
	var out bytes.Buffer
	live := f.open(t, &recordPublisher{}, &out)
	if err := live.PostNow(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	_ = live.Close()
	before, err := os.ReadFile(filepath.Join(f.dir, "posted.json"))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(config.EnvDryRun, "true")
	dry, err := New(context.Background(), Options{ConfigPath: f.cfgPath, NeedAPI: true, Out: &out, Clock: stillClock{}})
	if err != nil {
		t.Fatalf("New dry run: %v", err)
	}
	defer dry.Close()

	if err := dry.PostNow(context.Background(), 0); !errors.Is(err, schedule.ErrAlreadyPublished) {
		t.Fatalf("dry run should see persisted entries, got %v", err)
	}
	if err := dry.PostNow(context.Background(), 1); err != nil {
		t.Fatalf("dry run PostNow: %v", err)
	}
	after, err := os.ReadFile(filepath.Join(f.dir, "posted.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("dry run modified the ledger file")
	}
}

func TestTestPostIsNotRecorded(t *testing.T) {
	f := newFixture(t, "")
	pub := &recordPublisher{}
	var out bytes.Buffer
	a := f.open(t, pub, &out)

	if err := a.TestPost(context.Background()); err != nil {
		t.Fatalf("TestPost: %v", err)
	}
	if !strings.HasPrefix(pub.staged[0], "threadpost test post") {
		t.Fatalf("staged %q", pub.staged[0])
	}
	if a.ledger.Stats().Total != 0 {
		t.Fatal("test post was recorded")
	}
}

func TestPrintConfigMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Threads.AccessToken = "THQWJabcdefghijklmnop"
	var out bytes.Buffer
	if err := PrintConfig(&out, cfg); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "abcdefghijklmnop") {
		t.Fatalf("token leaked: %s", out.String())
	}
	if !strings.Contains(out.String(), `"check_interval": "5m"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRunPublishesDueItemsAndStops(t *testing.T) {
	f := newFixture(t, "")
	pub := &recordPublisher{}
	var out bytes.Buffer
	a := f.open(t, pub, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for a.ledger.Stats().Total < 1 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timed out waiting for the first tick")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if pub.count() != 1 || a.ledger.Stats().Total != 1 {
		t.Fatalf("staged %d, ledger %d; want 1 and 1", pub.count(), a.ledger.Stats().Total)
	}
}

func TestReloadAppliesSchedulerChanges(t *testing.T) {
	f := newFixture(t, "")
	pub := &recordPublisher{}
	var out bytes.Buffer
	a := f.open(t, pub, &out)

	next := *a.cfgm.Get()
	next.Batch.MaxPosts = 1
	a.apply(&next, config.SummarizeChange(a.cfgm.Get(), &next))

	if err := a.Batch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d, want 1 after reload", pub.count())
	}
}
