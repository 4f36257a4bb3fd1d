package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"error","time":"x","message":"publish failed","stage":"poll","caller":"a.go:1"}`)
	got := FormatAlert(line)
	want := "[ERROR] publish failed\n- stage=poll"
	if got != want {
		t.Fatalf("FormatAlert = %q, want %q", got, want)
	}
	if got := FormatAlert([]byte(" not json ")); got != "not json" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "debug", "INFO", "warning", " error "} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Error("ValidLevel(loud) = true")
	}
}

func TestNopAndWriter(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() || Nop().IsZero() {
		t.Fatal("IsZero mismatch")
	}

	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))
	log.Debug("hidden")
	log.Info("shown", Int("n", 2), Err(errors.New("boom")))
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"comp":"test"`) || !strings.Contains(out, `"boom"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

type chanSender chan string

func (c chanSender) SendAlert(ctx context.Context, text string) error {
	c <- text
	return nil
}

func TestAlertsForwardedAtMinLevel(t *testing.T) {
	sender := make(chanSender, 4)
	svc, log := New(Config{Level: "debug", Alert: AlertConfig{Enabled: true, MinLevel: "error", RatePerSec: 10}}, nil)
	defer svc.Close()
	svc.SetAlertSender(sender)

	log.Warn("below threshold")
	log.Error("ledger write failed", String("severity", "critical"))

	select {
	case msg := <-sender:
		if !strings.HasPrefix(msg, "[ERROR] ledger write failed") || !strings.Contains(msg, "severity=critical") {
			t.Fatalf("unexpected alert: %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert not delivered")
	}
	select {
	case msg := <-sender:
		t.Fatalf("unexpected second alert: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
