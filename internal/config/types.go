package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("5s", "10m") except scheduler.check_interval, which also accepts HH:MM and
// cron expressions.
type Config struct {
	Threads   ThreadsConfig   `json:"threads"`
	Paths     PathsConfig     `json:"paths"`
	Ledger    LedgerConfig    `json:"ledger"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Batch     BatchConfig     `json:"batch"`
	Image     ImageConfig     `json:"image"`
	Error     ErrorConfig     `json:"error"`
	Logging   LoggingConfig   `json:"logging"`
	Notifier  NotifierConfig  `json:"notifier"`
	Metrics   MetricsConfig   `json:"metrics"`
	Dev       DevConfig       `json:"dev"`
}

// ThreadsConfig holds API credentials. user_id and access_token are usually
// supplied through THREADS_USER_ID and ACCESS_TOKEN.
type ThreadsConfig struct {
	UserID            string `json:"user_id"`
	AccessToken       string `json:"access_token"`
	APIVersion        string `json:"api_version"`
	BaseURL           string `json:"base_url"`
	RequestTimeout    string `json:"request_timeout"`
	RequestsPerMinute int    `json:"requests_per_minute"`
}

type PathsConfig struct {
	ScheduleCSV   string `json:"schedule_csv"`
	UploadListCSV string `json:"upload_list_csv"`
}

// LedgerConfig selects the publication ledger backend: file (JSON), sqlite or memory.
type LedgerConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	BusyTimeout    string `json:"busy_timeout"`
	ResetOnCorrupt bool   `json:"reset_on_corrupt"`
}

type SchedulerConfig struct {
	CheckInterval       string `json:"check_interval"`
	TimeWindow          string `json:"time_window"`
	WaitBetweenRequests string `json:"wait_between_requests"`
	WaitBetweenPosts    string `json:"wait_between_posts"`
	Timezone            string `json:"timezone"`
}

type BatchConfig struct {
	Interval string `json:"interval"`
	MaxPosts int    `json:"max_posts"`
}

// ImageConfig bounds media container polling.
type ImageConfig struct {
	MaxRetries    int    `json:"max_retries"`
	RetryInterval string `json:"retry_interval"`
}

type ErrorConfig struct {
	// AutoRestart is a pointer so an omitted value defaults to true.
	AutoRestart  *bool  `json:"auto_restart,omitempty"`
	RestartDelay string `json:"restart_delay"`
	MaxRestarts  int    `json:"max_restarts"`
}

func (e ErrorConfig) AutoRestartEnabled() bool { return e.AutoRestart == nil || *e.AutoRestart }

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log records at or above min_level through the notifier.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type NotifierConfig struct {
	Enabled         bool    `json:"enabled"`
	Token           string  `json:"token"`
	ChatID          int64   `json:"chat_id"`
	ThreadID        int     `json:"thread_id"`
	RatePerSec      float64 `json:"rate_per_sec"`
	NotifyPublished bool    `json:"notify_published"`
}

// MetricsConfig serves Prometheus metrics; pprof adds /debug/pprof/ on the same listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Pprof   bool   `json:"pprof"`
}

// DevConfig: dry_run swaps in a logging publisher and an in-memory ledger.
type DevConfig struct {
	DryRun bool `json:"dry_run"`
}
