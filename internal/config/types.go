package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Notify is optional: without it the scheduler runs with an
	// observer.Nop until the caller registers one programmatically.
	Notify *NotifyConfig `json:"notify,omitempty"`
}

// StorageConfig selects and configures the persistence backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./alertsched_store" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file", "sqlite", or "none"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the scheduler's tunables. All durations are Go
// duration strings (e.g. "500ms", "10s", "5m").
type SchedulerConfig struct {
	// PastDueTolerance bounds how far behind scheduledTime "now" may drift
	// before an alert is treated as past-due rather than fired normally.
	PastDueTolerance string `json:"past_due_tolerance"`

	// ReconcileSpec is a robfig/cron spec (including "@every ..." specs)
	// controlling how often the housekeeping sweep re-arms the timer from
	// the scheduled set. The sweep does not re-check past-due status.
	// Empty disables the sweep.
	ReconcileSpec string `json:"reconcile_spec,omitempty"`
}

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

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifyConfig configures the reference Telegram Observer
// (internal/notify/telegram). A device integrator using a different
// transport ignores this block entirely and registers their own
// observer.Observer at startup.
type NotifyConfig struct {
	Telegram *NotifyTelegramConfig `json:"telegram,omitempty"`
}

type NotifyTelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}
