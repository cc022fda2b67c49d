package config

import (
	"reflect"
	"sort"
	"strings"

	logx "alertsched/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like the Telegram
// bot token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.ThreadID != newCfg.Logging.Telegram.ThreadID ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage.Driver != newCfg.Storage.Driver ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.PastDueTolerance) != strings.TrimSpace(newCfg.Scheduler.PastDueTolerance) ||
		strings.TrimSpace(oldCfg.Scheduler.ReconcileSpec) != strings.TrimSpace(newCfg.Scheduler.ReconcileSpec) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.past_due_tolerance", strings.TrimSpace(newCfg.Scheduler.PastDueTolerance)),
			logx.String("scheduler.reconcile_spec", strings.TrimSpace(newCfg.Scheduler.ReconcileSpec)),
		)
	}

	// Notify (never log the Telegram token)
	oldNotify := notifyOrZero(oldCfg.Notify)
	newNotify := notifyOrZero(newCfg.Notify)
	if !reflect.DeepEqual(redactNotify(oldNotify), redactNotify(newNotify)) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.telegram_set", newNotify.Telegram != nil),
		)
		if newNotify.Telegram != nil {
			attrs = append(attrs,
				logx.Int64("notify.telegram.chat_id", newNotify.Telegram.ChatID),
				logx.Int("notify.telegram.thread_id", newNotify.Telegram.ThreadID),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}

func notifyOrZero(n *NotifyConfig) NotifyConfig {
	if n == nil {
		return NotifyConfig{}
	}
	return *n
}

// redactNotify strips the bot token before comparison/logging, so a
// token-only rotation is not reported as a change and the token value
// never reaches a log line.
func redactNotify(n NotifyConfig) NotifyConfig {
	if n.Telegram == nil {
		return n
	}
	cp := *n.Telegram
	cp.Token = ""
	n.Telegram = &cp
	return n
}
