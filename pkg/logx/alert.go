package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AlertConfig forwards records at or above MinLevel to the AlertSender,
// at most RatePerSec per second. Excess records are dropped.
type AlertConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// AlertSender delivers a short operator-facing message, such as a chat message.
type AlertSender interface {
	SendAlert(ctx context.Context, text string) error
}

const (
	alertQueueSize   = 64
	alertSendTimeout = 10 * time.Second
	alertMaxLen      = 3500
	alertFieldMaxLen = 600
)

// alertSink is a zerolog.LevelWriter that queues formatted records for a
// background sender. Writes never block.
type alertSink struct {
	queue chan string

	mu       sync.Mutex
	sender   AlertSender
	enabled  bool
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newAlertSink(sender AlertSender) *alertSink {
	return &alertSink{queue: make(chan string, alertQueueSize), sender: sender}
}

func (a *alertSink) setSender(sender AlertSender) {
	a.mu.Lock()
	a.sender = sender
	a.mu.Unlock()
}

func (a *alertSink) configure(cfg AlertConfig) {
	perSec := max(cfg.RatePerSec, 1)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = cfg.Enabled
	a.minLevel = parseLevel(cfg.MinLevel, LevelWarn)
	a.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	if a.enabled && a.sender != nil && a.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.done = make(chan struct{})
		go a.deliver(ctx, a.done)
	}
}

func (a *alertSink) active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled && a.sender != nil
}

func (a *alertSink) stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (a *alertSink) deliver(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			a.mu.Lock()
			sender := a.sender
			a.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
			_ = sender.SendAlert(sctx, msg)
			cancel()
		}
	}
}

func (a *alertSink) Write(p []byte) (int, error) { return a.WriteLevel(LevelInfo, p) }

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	pass := a.enabled && level >= a.minLevel && a.limiter.Allow()
	a.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	if msg := FormatAlert(p); msg != "" {
		select {
		case a.queue <- msg:
		default:
		}
	}
	return len(p), nil
}

// FormatAlert turns one JSON log line into "[LEVEL] message" followed by a
// sorted "- key=value" line per field. time and caller are left out.
// Lines that are not JSON are returned trimmed.
func FormatAlert(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return clip(raw, alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), alertFieldMaxLen))
	}
	return clip(b.String(), alertMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
