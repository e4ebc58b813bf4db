package app

import (
	"strings"
	"time"

	"nhlbot/internal/commands"
	"nhlbot/internal/config"
	"nhlbot/internal/nhl/statsapi"
	"nhlbot/internal/notifier"
	"nhlbot/internal/observability/debug"
	"nhlbot/internal/scheduler"
	"nhlbot/internal/storage"
	"nhlbot/internal/tracker"
	"nhlbot/pkg/logx"
)

// Mapping functions turn validated config into component configs. They
// still return errors so a config that skipped Validate cannot panic.

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			ChatID:     l.Chat.ChatID,
			ThreadID:   l.Chat.ThreadID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

func mapStatsAPI(cfg *config.Config) (statsapi.Config, error) {
	n := cfg.NHL
	timeout, err := config.ParseDurationField("nhl.timeout", n.Timeout)
	if err != nil {
		return statsapi.Config{}, err
	}
	base, err := config.ParseDurationField("nhl.retry_base", n.RetryBase)
	if err != nil {
		return statsapi.Config{}, err
	}
	out := statsapi.Config{
		BaseURL:    strings.TrimSpace(n.BaseURL),
		Timeout:    timeout,
		RetryBase:  base,
		RatePerSec: float64(n.RatePerSec),
	}
	// statsapi reads 0 as "default" and negative as "no retries"
	if n.RetryMax != nil {
		out.RetryMax = *n.RetryMax
		if out.RetryMax == 0 {
			out.RetryMax = -1
		}
	}
	return out, nil
}

func mapTracker(cfg *config.Config) (tracker.Config, error) {
	t := cfg.Tracker
	live, err := config.ParseDurationField("tracker.live_interval", t.LiveInterval)
	if err != nil {
		return tracker.Config{}, err
	}
	idle, err := config.ParseDurationField("tracker.idle_interval", t.IdleInterval)
	if err != nil {
		return tracker.Config{}, err
	}
	warm, err := config.ParseDurationField("tracker.warmup_window", t.WarmupWindow)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{LiveInterval: live, IdleInterval: idle, WarmupWindow: warm}, nil
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	teams, err := config.Teams("scheduler.teams", sc.Teams)
	if err != nil {
		return scheduler.Config{}, err
	}
	catalogue, err := config.Teams("scheduler.catalogue_teams", sc.CatalogueTeams)
	if err != nil {
		return scheduler.Config{}, err
	}
	period, err := config.ParseDurationField("scheduler.period", sc.Period)
	if err != nil {
		return scheduler.Config{}, err
	}
	loc, err := config.Location("scheduler.timezone", sc.Timezone)
	if err != nil {
		return scheduler.Config{}, err
	}
	start, err := config.ParseDate("scheduler.season_start", sc.SeasonStart, loc)
	if err != nil {
		return scheduler.Config{}, err
	}
	end, err := config.ParseDate("scheduler.season_end", sc.SeasonEnd, loc)
	if err != nil {
		return scheduler.Config{}, err
	}
	tr, err := mapTracker(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Teams:            teams,
		CatalogueTeams:   catalogue,
		Period:           period,
		SeasonStart:      start,
		SeasonEnd:        end,
		RefreshCron:      sc.RefreshSpec(),
		Location:         loc,
		FetchConcurrency: sc.FetchConcurrency,
		Tracker:          tr,
	}, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	out := notifier.Config{
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	// goal posts must not repeat after a restart, so dedup is on by default
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, 6*time.Hour); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapCommands(cfg *config.Config) (commands.RouterConfig, error) {
	c := cfg.Commands
	timeout, err := config.ParseDurationField("commands.timeout", c.Timeout)
	if err != nil {
		return commands.RouterConfig{}, err
	}
	return commands.RouterConfig{Workers: c.Workers, QueueSize: c.QueueSize, DefaultTimeout: timeout}, nil
}

func mapDebug(cfg *config.Config) (debug.Config, error) {
	d := cfg.Debug
	out := debug.Config{Addr: strings.TrimSpace(d.Addr), Token: strings.TrimSpace(d.Token), AllowInsecure: d.AllowInsecure}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 10*time.Second); err != nil {
		return debug.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("debug.write_timeout", d.WriteTimeout); err != nil {
		return debug.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, time.Minute); err != nil {
		return debug.Config{}, err
	}
	return out, nil
}
