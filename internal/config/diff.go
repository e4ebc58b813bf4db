package config

import (
	"reflect"
	"strings"

	"nhlbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// safe fields describing the new values. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		fields = append(fields, logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.NHL, newCfg.NHL) {
		changed = append(changed, "nhl")
		fields = append(fields, logx.String("nhl.base_url", newCfg.NHL.BaseURL))
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.Strings("scheduler.teams", newCfg.Scheduler.Teams),
			logx.String("scheduler.refresh_cron", newCfg.Scheduler.RefreshSpec()),
		)
	}
	if oldCfg.Tracker != newCfg.Tracker {
		changed = append(changed, "tracker")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		fields = append(fields,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.String("notifier.dedup_window", newCfg.Notifier.DedupWindow),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}
	return changed, fields
}

// LiveSections are applied without a restart; changes elsewhere are logged
// and take effect on the next start.
var LiveSections = map[string]bool{
	"logging":  true,
	"notifier": true,
}
