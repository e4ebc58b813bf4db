package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "10s", "30m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	NHL       NHLConfig       `json:"nhl"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Tracker   TrackerConfig   `json:"tracker"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Commands  CommandsConfig  `json:"commands"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied through NHLBOT_TELEGRAM_TOKEN.
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings and errors into an operator chat.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NHLConfig points at the stats API.
//
// Defaults: base_url statsapi, timeout "10s", retry_max 3, retry_base
// "500ms", rate_per_sec 5.
type NHLConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RetryMax   *int   `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	// Teams always get a window, subscribed or not. Three-letter codes.
	Teams []string `json:"teams,omitempty"`
	// CatalogueTeams limits which schedules are loaded; empty means all.
	CatalogueTeams []string `json:"catalogue_teams,omitempty"`

	Period string `json:"period,omitempty"` // default "30m"
	// SeasonStart and SeasonEnd are YYYY-MM-DD; empty derives the season
	// around today.
	SeasonStart string `json:"season_start,omitempty"`
	SeasonEnd   string `json:"season_end,omitempty"`

	// RefreshCron is a standard 5-field cron spec; "-" disables refresh.
	RefreshCron      string `json:"refresh_cron,omitempty"` // default "0 */6 * * *"
	Timezone         string `json:"timezone,omitempty"`
	FetchConcurrency int    `json:"fetch_concurrency,omitempty"`
}

type TrackerConfig struct {
	LiveInterval string `json:"live_interval,omitempty"`
	IdleInterval string `json:"idle_interval,omitempty"`
	WarmupWindow string `json:"warmup_window,omitempty"`
}

// NotifierConfig controls the outgoing message pipeline. Rate, retry and
// dedup settings apply on reload; workers and queue size need a restart.
type NotifierConfig struct {
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./nhlbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type CommandsConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// DebugConfig controls the pprof and /metrics HTTP server.
//
// Prefer a loopback address. A non-loopback address needs a token or
// allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
