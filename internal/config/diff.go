package config

import (
	"strings"

	logx "threadpost/pkg/logx"
)

// Change describes the difference between two configs.
//
// Sections lists changed top-level sections. Fields are log attributes for
// the new values and never contain secrets. RestartRequired lists changed
// settings that only take effect after a restart.
type Change struct {
	Sections        []string
	Fields          []logx.Field
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeChange compares oldCfg and newCfg.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	section := func(name string, changed bool, fields ...logx.Field) {
		if changed {
			ch.Sections = append(ch.Sections, name)
			ch.Fields = append(ch.Fields, fields...)
		}
	}
	restart := func(name string, changed bool) {
		if changed {
			ch.RestartRequired = append(ch.RestartRequired, name)
		}
	}
	o, n := oldCfg, newCfg

	credsChanged := o.Threads.UserID != n.Threads.UserID || o.Threads.AccessToken != n.Threads.AccessToken
	section("threads", credsChanged || o.Threads.APIVersion != n.Threads.APIVersion ||
		o.Threads.BaseURL != n.Threads.BaseURL || o.Threads.RequestTimeout != n.Threads.RequestTimeout ||
		o.Threads.RequestsPerMinute != n.Threads.RequestsPerMinute,
		logx.String("threads.api_version", n.Threads.APIVersion),
		logx.Bool("threads.credentials_changed", credsChanged),
		logx.Int("threads.requests_per_minute", n.Threads.RequestsPerMinute),
	)
	restart("threads", o.Threads != n.Threads)

	section("paths", o.Paths != n.Paths,
		logx.String("paths.schedule_csv", n.Paths.ScheduleCSV),
		logx.String("paths.upload_list_csv", n.Paths.UploadListCSV),
	)
	restart("paths", o.Paths != n.Paths)

	section("ledger", o.Ledger != n.Ledger,
		logx.String("ledger.driver", n.Ledger.Driver),
		logx.String("ledger.path", n.Ledger.Path),
	)
	restart("ledger", o.Ledger != n.Ledger)

	section("scheduler", o.Scheduler != n.Scheduler,
		logx.String("scheduler.check_interval", n.Scheduler.CheckInterval),
		logx.String("scheduler.time_window", n.Scheduler.TimeWindow),
		logx.String("scheduler.wait_between_posts", n.Scheduler.WaitBetweenPosts),
		logx.String("scheduler.timezone", n.Scheduler.Timezone),
	)
	restart("scheduler.timezone", strings.TrimSpace(o.Scheduler.Timezone) != strings.TrimSpace(n.Scheduler.Timezone))

	section("batch", o.Batch != n.Batch,
		logx.String("batch.interval", n.Batch.Interval),
		logx.Int("batch.max_posts", n.Batch.MaxPosts),
	)
	section("image", o.Image != n.Image,
		logx.Int("image.max_retries", n.Image.MaxRetries),
		logx.String("image.retry_interval", n.Image.RetryInterval),
	)
	section("error", o.Error.AutoRestartEnabled() != n.Error.AutoRestartEnabled() ||
		o.Error.RestartDelay != n.Error.RestartDelay || o.Error.MaxRestarts != n.Error.MaxRestarts,
		logx.Bool("error.auto_restart", n.Error.AutoRestartEnabled()),
		logx.String("error.restart_delay", n.Error.RestartDelay),
		logx.Int("error.max_restarts", n.Error.MaxRestarts),
	)

	section("logging", o.Logging != n.Logging,
		logx.String("logging.level", n.Logging.Level),
		logx.Bool("logging.console", n.Logging.Console),
		logx.Bool("logging.file_enabled", n.Logging.File.Enabled),
		logx.Bool("logging.telegram_enabled", n.Logging.Telegram.Enabled),
	)

	notifierChanged := o.Notifier != n.Notifier
	section("notifier", notifierChanged,
		logx.Bool("notifier.enabled", n.Notifier.Enabled),
		logx.Bool("notifier.token_set", !IsUnset(n.Notifier.Token)),
		logx.Bool("notifier.notify_published", n.Notifier.NotifyPublished),
	)
	restart("notifier", o.Notifier.Enabled != n.Notifier.Enabled || o.Notifier.Token != n.Notifier.Token ||
		o.Notifier.ChatID != n.Notifier.ChatID || o.Notifier.ThreadID != n.Notifier.ThreadID)

	section("metrics", o.Metrics != n.Metrics,
		logx.Bool("metrics.enabled", n.Metrics.Enabled),
		logx.String("metrics.addr", n.Metrics.Addr),
	)
	restart("metrics", o.Metrics != n.Metrics)

	section("dev", o.Dev != n.Dev, logx.Bool("dev.dry_run", n.Dev.DryRun))
	restart("dev", o.Dev != n.Dev)

	return ch
}
