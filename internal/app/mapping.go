package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"threadpost/internal/config"
	"threadpost/internal/ledger"
	"threadpost/internal/notifier"
	"threadpost/internal/schedule"
	"threadpost/internal/threads"
	logx "threadpost/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Notifier.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func location(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapLedgerConfig(cfg *config.Config, loc *time.Location) (ledger.Config, error) {
	busy, err := config.ParseDurationOrDefault("ledger.busy_timeout", cfg.Ledger.BusyTimeout, 5*time.Second)
	if err != nil {
		return ledger.Config{}, err
	}
	return ledger.Config{
		Driver:         strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)),
		Path:           strings.TrimSpace(cfg.Ledger.Path),
		BusyTimeout:    busy,
		Location:       loc,
		ResetOnCorrupt: cfg.Ledger.ResetOnCorrupt,
	}, nil
}

func mapThreadsConfig(cfg *config.Config) (threads.Config, error) {
	timeout, err := config.ParseDurationOrDefault("threads.request_timeout", cfg.Threads.RequestTimeout, 15*time.Second)
	if err != nil {
		return threads.Config{}, err
	}
	return threads.Config{
		BaseURL:           cfg.Threads.BaseURL,
		APIVersion:        cfg.Threads.APIVersion,
		UserID:            strings.TrimSpace(cfg.Threads.UserID),
		AccessToken:       strings.TrimSpace(cfg.Threads.AccessToken),
		Timeout:           timeout,
		RequestsPerMinute: cfg.Threads.RequestsPerMinute,
		StatusRetries:     2,
		StatusRetryBase:   time.Second,
		StatusRetryMax:    5 * time.Second,
	}, nil
}

// mapSchedulerConfig converts and validates every scheduler knob, returning
// all problems at once.
func mapSchedulerConfig(cfg *config.Config) (schedule.Config, error) {
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := config.ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	iv, err := schedule.ParseInterval(cfg.Scheduler.CheckInterval)
	if err != nil {
		errs = append(errs, fmt.Errorf("scheduler.check_interval: %w", err))
	}
	loc, err := location(cfg)
	if err != nil {
		errs = append(errs, err)
	}

	sc := schedule.Config{
		CheckInterval: iv,
		Window:        dur("scheduler.time_window", cfg.Scheduler.TimeWindow, 5*time.Minute),
		RequestDelay:  dur("scheduler.wait_between_requests", cfg.Scheduler.WaitBetweenRequests, 0),
		PostDelay:     dur("scheduler.wait_between_posts", cfg.Scheduler.WaitBetweenPosts, 0),
		BatchInterval: dur("batch.interval", cfg.Batch.Interval, 0),
		BatchMaxPosts: cfg.Batch.MaxPosts,
		PollAttempts:  cfg.Image.MaxRetries,
		PollInterval:  dur("image.retry_interval", cfg.Image.RetryInterval, 5*time.Second),
		AutoRestart:   cfg.Error.AutoRestartEnabled(),
		RestartDelay:  dur("error.restart_delay", cfg.Error.RestartDelay, 0),
		MaxRestarts:   cfg.Error.MaxRestarts,
		Location:      loc,
	}
	return sc, errors.Join(errs...)
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Enabled:         cfg.Notifier.Enabled,
		RatePerSec:      cfg.Notifier.RatePerSec,
		NotifyPublished: cfg.Notifier.NotifyPublished,
	}
}

// validate checks cfg fully. Without needAPI, missing credentials are accepted.
func validate(cfg *config.Config, needAPI bool) error {
	check := cfg
	if !needAPI && !cfg.Dev.DryRun {
		cp := *cfg
		cp.Dev.DryRun = true
		check = &cp
	}
	err := config.Validate(check)
	if _, ierr := schedule.ParseInterval(cfg.Scheduler.CheckInterval); ierr != nil {
		err = errors.Join(err, fmt.Errorf("scheduler.check_interval: %w", ierr))
	}
	return err
}
