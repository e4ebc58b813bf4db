package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nhlbot/internal/nhl"
)

// DefaultRefreshCron refetches the catalogue four times a day.
const DefaultRefreshCron = "0 */6 * * *"

// Teams resolves three-letter codes; unknown codes are an error.
func Teams(path string, codes []string) ([]nhl.Team, error) {
	out := make([]nhl.Team, 0, len(codes))
	for i, c := range codes {
		t, ok := nhl.TeamByCode(c)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: %w: %q", path, i, nhl.ErrUnknownTeam, c)
		}
		out = append(out, t)
	}
	return out, nil
}

// Location loads an IANA zone; empty is UTC.
func Location(path, tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return loc, nil
}

// RefreshSpec is the effective cron spec; "" means refresh is disabled.
func (c SchedulerConfig) RefreshSpec() string {
	s := strings.TrimSpace(c.RefreshCron)
	switch s {
	case "":
		return DefaultRefreshCron
	case "-":
		return ""
	}
	return s
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}

	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	if cfg.Logging.Chat.Enabled && cfg.Logging.Chat.ChatID == 0 {
		check(errors.New("logging.chat.chat_id: required when logging.chat.enabled"))
	}

	dur("nhl.timeout", cfg.NHL.Timeout)
	dur("nhl.retry_base", cfg.NHL.RetryBase)
	if cfg.NHL.RetryMax != nil && *cfg.NHL.RetryMax < 0 {
		check(errors.New("nhl.retry_max: must be >= 0"))
	}

	sc := cfg.Scheduler
	_, err := Teams("scheduler.teams", sc.Teams)
	check(err)
	_, err = Teams("scheduler.catalogue_teams", sc.CatalogueTeams)
	check(err)
	dur("scheduler.period", sc.Period)
	loc, err := Location("scheduler.timezone", sc.Timezone)
	check(err)
	if loc == nil {
		loc = time.UTC
	}
	start, err := ParseDate("scheduler.season_start", sc.SeasonStart, loc)
	check(err)
	end, err := ParseDate("scheduler.season_end", sc.SeasonEnd, loc)
	check(err)
	if start.IsZero() != end.IsZero() {
		check(errors.New("scheduler.season_start/season_end: set both or neither"))
	} else if !start.IsZero() && !end.After(start) {
		check(errors.New("scheduler.season_end: must be after season_start"))
	}
	if spec := sc.RefreshSpec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			check(fmt.Errorf("scheduler.refresh_cron: %w", err))
		}
	}

	dur("tracker.live_interval", cfg.Tracker.LiveInterval)
	dur("tracker.idle_interval", cfg.Tracker.IdleInterval)
	dur("tracker.warmup_window", cfg.Tracker.WarmupWindow)

	dur("notifier.retry_base", cfg.Notifier.RetryBase)
	dur("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay)
	dur("notifier.send_timeout", cfg.Notifier.SendTimeout)
	dur("notifier.dedup_window", cfg.Notifier.DedupWindow)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			check(errors.New("storage.path: required for sqlite"))
		}
	default:
		check(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	dur("commands.timeout", cfg.Commands.Timeout)

	if cfg.Debug.Enabled {
		dur("debug.read_timeout", cfg.Debug.ReadTimeout)
		dur("debug.write_timeout", cfg.Debug.WriteTimeout)
		dur("debug.idle_timeout", cfg.Debug.IdleTimeout)
		if !isLoopback(cfg.Debug.Addr) && strings.TrimSpace(cfg.Debug.Token) == "" && !cfg.Debug.AllowInsecure {
			check(fmt.Errorf("debug.addr: %q is not loopback; set debug.token or debug.allow_insecure", cfg.Debug.Addr))
		}
	}

	return errors.Join(errs...)
}

// isLoopback treats an empty address as the loopback default.
func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
