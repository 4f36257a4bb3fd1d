package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "threadpost/pkg/logx"
)

var placeholders = map[string]bool{
	"your_access_token_here": true,
	"your_user_id_here":      true,
	"your_token_here":        true,
}

// IsUnset treats blank and template placeholder values as missing.
func IsUnset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || placeholders[strings.ToLower(v)]
}

// Validate checks the parts of cfg that need no other package to interpret.
// All problems are returned joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !cfg.Dev.DryRun {
		if IsUnset(cfg.Threads.UserID) {
			add("threads.user_id is not set (config or %s)", EnvUserID)
		}
		if IsUnset(cfg.Threads.AccessToken) {
			add("threads.access_token is not set (config or %s)", EnvAccessToken)
		}
	}
	if cfg.Threads.RequestsPerMinute < 0 {
		add("threads.requests_per_minute must be >= 0")
	}

	durations := []struct {
		path     string
		raw      string
		positive bool
	}{
		{"threads.request_timeout", cfg.Threads.RequestTimeout, true},
		{"ledger.busy_timeout", cfg.Ledger.BusyTimeout, false},
		{"scheduler.time_window", cfg.Scheduler.TimeWindow, false},
		{"scheduler.wait_between_requests", cfg.Scheduler.WaitBetweenRequests, false},
		{"scheduler.wait_between_posts", cfg.Scheduler.WaitBetweenPosts, false},
		{"batch.interval", cfg.Batch.Interval, false},
		{"image.retry_interval", cfg.Image.RetryInterval, true},
		{"error.restart_delay", cfg.Error.RestartDelay, false},
	}
	for _, d := range durations {
		v, err := ParseDurationField(d.path, d.raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d.positive && v <= 0 {
			add("%s: must be > 0", d.path)
		}
	}

	if strings.TrimSpace(cfg.Scheduler.CheckInterval) == "" {
		add("scheduler.check_interval is required")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("scheduler.timezone: %v", err)
		}
	}

	if cfg.Batch.MaxPosts < 1 {
		add("batch.max_posts must be >= 1")
	}
	if cfg.Image.MaxRetries < 1 {
		add("image.max_retries must be >= 1")
	}
	if cfg.Error.MaxRestarts < 0 {
		add("error.max_restarts must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "memory":
	default:
		add("ledger.driver: unknown driver %q (use file, sqlite or memory)", cfg.Ledger.Driver)
	}
	if strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)) != "memory" && strings.TrimSpace(cfg.Ledger.Path) == "" {
		add("ledger.path is required")
	}
	if strings.TrimSpace(cfg.Paths.ScheduleCSV) == "" {
		add("paths.schedule_csv is required")
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Telegram.Enabled {
		if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
			add("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel)
		}
		if !cfg.Notifier.Enabled {
			add("logging.telegram requires notifier.enabled")
		}
	}

	if cfg.Notifier.Enabled {
		if IsUnset(cfg.Notifier.Token) {
			add("notifier.token is not set (config or %s)", EnvTelegramToken)
		}
		if cfg.Notifier.ChatID == 0 {
			add("notifier.chat_id is required when the notifier is enabled")
		}
		if cfg.Notifier.RatePerSec < 0 {
			add("notifier.rate_per_sec must be >= 0")
		}
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		add("metrics.addr is required when metrics are enabled")
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print: secrets keep only a short prefix.
func Redacted(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cp := *cfg
	cp.Threads.AccessToken = mask(cp.Threads.AccessToken)
	cp.Notifier.Token = mask(cp.Notifier.Token)
	return &cp
}

func mask(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:6] + "..."
	}
}
