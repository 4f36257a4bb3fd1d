package config

import "strings"

const (
	DefaultPath = "threadpost.yaml"

	defaultAPIVersion = "v18.0"
	defaultBaseURL    = "https://graph.threads.net"
	defaultMetrics    = "127.0.0.1:9464"
)

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills empty fields in place. Zero numbers count as unset
// except where zero is meaningful (requests_per_minute, max_restarts).
func ApplyDefaults(cfg *Config) {
	def := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}

	def(&cfg.Threads.APIVersion, defaultAPIVersion)
	def(&cfg.Threads.BaseURL, defaultBaseURL)
	def(&cfg.Threads.RequestTimeout, "15s")

	def(&cfg.Paths.ScheduleCSV, "data/content_schedule.csv")
	def(&cfg.Paths.UploadListCSV, "data/upload_list.csv")

	def(&cfg.Ledger.Driver, "file")
	def(&cfg.Ledger.Path, "data/posted_log.json")
	def(&cfg.Ledger.BusyTimeout, "5s")

	def(&cfg.Scheduler.CheckInterval, "5m")
	def(&cfg.Scheduler.TimeWindow, "5m")
	def(&cfg.Scheduler.WaitBetweenRequests, "5s")
	def(&cfg.Scheduler.WaitBetweenPosts, "10s")

	def(&cfg.Batch.Interval, "60m")
	if cfg.Batch.MaxPosts == 0 {
		cfg.Batch.MaxPosts = 10
	}

	if cfg.Image.MaxRetries == 0 {
		cfg.Image.MaxRetries = 6
	}
	def(&cfg.Image.RetryInterval, "5s")

	def(&cfg.Error.RestartDelay, "30s")
	if cfg.Error.MaxRestarts == 0 {
		cfg.Error.MaxRestarts = 10
	}

	def(&cfg.Logging.Level, "info")
	def(&cfg.Logging.Telegram.MinLevel, "error")
	if cfg.Logging.Telegram.RatePerSec == 0 {
		cfg.Logging.Telegram.RatePerSec = 1
	}
	def(&cfg.Logging.File.Path, "threadpost.log")

	if cfg.Notifier.RatePerSec == 0 {
		cfg.Notifier.RatePerSec = 1
	}
	def(&cfg.Metrics.Addr, defaultMetrics)
}
