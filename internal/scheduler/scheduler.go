// Package scheduler owns the season catalogue, each followed team's window of
// recent games, and the trackers polling the games in those windows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"nhlbot/internal/eventbus"
	"nhlbot/internal/nhl"
	"nhlbot/internal/runtime/supervisor"
	"nhlbot/internal/subscription"
	"nhlbot/internal/tracker"
	"nhlbot/pkg/logx"
)

// WindowSize is the steady-state length of a team's window: the last final
// game plus the current or next one.
const WindowSize = 2

// Source supplies schedules and single-game refreshes.
type Source interface {
	Schedule(ctx context.Context, team nhl.Team, from, to time.Time) ([]nhl.Snapshot, error)
	Game(ctx context.Context, gamePk int) (nhl.Snapshot, error)
}

// Channels is the part of the channel manager reconciliation needs.
type Channels interface {
	Delete(ctx context.Context, target subscription.Target, name string) error
	List(ctx context.Context, target subscription.Target) ([]string, error)
}

// Recorder receives scheduler and tracker metrics.
type Recorder interface {
	tracker.Recorder
	SetActiveTrackers(n int)
	ScheduleFetch(result string)
}

// Config controls windows, the catalogue range and the reconciliation cadence.
type Config struct {
	// Teams always get a window, subscribed or not.
	Teams []nhl.Team
	// CatalogueTeams are the schedules loaded into the catalogue; empty means
	// the whole league. Followed teams are always added.
	CatalogueTeams []nhl.Team

	Period      time.Duration // between reconciliation passes
	SeasonStart time.Time     // zero derives the season around now
	SeasonEnd   time.Time

	RefreshCron string // empty disables catalogue refresh
	Location    *time.Location

	FetchConcurrency int
	Tracker          tracker.Config
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 30 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	return c
}

// Deps are the collaborators a Scheduler needs. Bus, Recorder, Log and Now
// are optional.
type Deps struct {
	Source   Source
	Channels Channels
	Sink     tracker.Sink
	Subs     *subscription.Registry
	Bus      eventbus.Bus
	Recorder Recorder
	Log      logx.Logger
	Now      func() time.Time
}

// Scheduler owns the season catalogue, each followed team's window and one
// tracker per non-terminal window game.
type Scheduler struct {
	cfg      Config
	src      Source
	channels Channels
	sink     tracker.Sink
	subs     *subscription.Registry
	bus      eventbus.Bus
	rec      Recorder
	base     logx.Logger
	log      logx.Logger
	now      func() time.Time

	sup  *supervisor.Supervisor
	cron *cron.Cron

	mu       sync.RWMutex
	loaded   bool
	games    []*nhl.Game // ascending by date
	byID     map[int]*nhl.Game
	windows  map[nhl.Team][]*nhl.Game
	trackers map[int]*tracker.Tracker
}

func New(cfg Config, d Deps) *Scheduler {
	s := &Scheduler{
		cfg:      cfg.withDefaults(),
		src:      d.Source,
		channels: d.Channels,
		sink:     d.Sink,
		subs:     d.Subs,
		bus:      d.Bus,
		rec:      d.Recorder,
		base:     d.Log,
		log:      d.Log.With(logx.String("comp", "scheduler")),
		now:      d.Now,
		byID:     map[int]*nhl.Game{},
		windows:  map[nhl.Team][]*nhl.Game{},
		trackers: map[int]*tracker.Tracker{},
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.sup = supervisor.New(context.Background(), supervisor.WithLogger(s.log))
	return s
}

// Start loads the catalogue, starts trackers, removes stale channels and
// launches the reconciliation loop and refresh trigger. Canceling ctx stops
// everything; Stop waits for it.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	context.AfterFunc(ctx, s.sup.Cancel)

	s.StartTrackers()
	s.CleanupStaleChannels(ctx)

	if s.cfg.RefreshCron != "" {
		c := cron.New(cron.WithLocation(s.cfg.Location))
		if _, err := c.AddFunc(s.cfg.RefreshCron, s.scheduledRefresh); err != nil {
			return fmt.Errorf("refresh cron %q: %w", s.cfg.RefreshCron, err)
		}
		s.cron = c
		c.Start()
	}

	s.sup.Go("scheduler.loop", func(ctx context.Context) error {
		return s.Run(ctx, s.cfg.Period)
	})
	s.log.Info("scheduler started", logx.Duration("period", s.cfg.Period), logx.String("refresh_cron", s.cfg.RefreshCron))
	return nil
}

// Stop cancels the loop and all trackers and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	err := s.sup.Stop(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Initialize loads the season catalogue and builds every followed team's
// window. It fails only when the catalogue cannot be loaded.
func (s *Scheduler) Initialize(ctx context.Context) error {
	games, err := s.loadCatalogue(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	s.mu.Lock()
	s.games = games
	s.byID = make(map[int]*nhl.Game, len(games))
	for _, g := range games {
		s.byID[g.ID()] = g
	}
	s.windows = map[nhl.Team][]*nhl.Game{}
	for _, team := range s.followedTeams() {
		s.windows[team] = s.buildWindowLocked(team)
	}
	s.loaded = true
	summary := s.windowSummaryLocked()
	s.mu.Unlock()

	s.log.Info("catalogue loaded", logx.Int("games", len(games)), logx.Strings("windows", summary))
	return nil
}

// followedTeams is configured teams plus teams with subscribers, by id.
func (s *Scheduler) followedTeams() []nhl.Team {
	set := map[nhl.Team]struct{}{}
	for _, t := range s.cfg.Teams {
		if t.Valid() {
			set[t] = struct{}{}
		}
	}
	if s.subs != nil {
		for _, t := range s.subs.Teams() {
			set[t] = struct{}{}
		}
	}
	return sortedTeams(set)
}

func (s *Scheduler) catalogueTeams() []nhl.Team {
	set := map[nhl.Team]struct{}{}
	src := s.cfg.CatalogueTeams
	if len(src) == 0 {
		src = nhl.AllTeams()
	}
	for _, t := range src {
		set[t] = struct{}{}
	}
	for _, t := range s.followedTeams() {
		set[t] = struct{}{}
	}
	return sortedTeams(set)
}

// loadCatalogue fetches every catalogue team's schedule and returns the
// games ordered by date.
func (s *Scheduler) loadCatalogue(ctx context.Context) ([]*nhl.Game, error) {
	from, to := s.season()
	snaps, err := s.fetchSnapshots(ctx, from, to)
	if err != nil {
		return nil, err
	}
	games := make([]*nhl.Game, 0, len(snaps))
	for _, snap := range snaps {
		game, err := nhl.Parse(snap)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	sortGames(games)
	return games, nil
}

// fetchSnapshots fetches the catalogue teams' schedules concurrently and
// dedups them by game id.
func (s *Scheduler) fetchSnapshots(ctx context.Context, from, to time.Time) ([]nhl.Snapshot, error) {
	teams := s.catalogueTeams()
	results := make([][]nhl.Snapshot, len(teams))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, team := range teams {
		i, team := i, team
		g.Go(func() error {
			snaps, err := s.src.Schedule(gctx, team, from, to)
			if err != nil {
				s.rec.ScheduleFetch("error")
				return err
			}
			s.rec.ScheduleFetch("ok")
			results[i] = snaps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := map[int]struct{}{}
	var out []nhl.Snapshot
	for _, snaps := range results {
		for _, snap := range snaps {
			if _, dup := seen[snap.GamePk]; dup {
				continue
			}
			seen[snap.GamePk] = struct{}{}
			out = append(out, snap)
		}
	}
	return out, nil
}

// season returns the configured range or, by default, Aug 1 to Jun 30 of the
// season that contains now.
func (s *Scheduler) season() (time.Time, time.Time) {
	if !s.cfg.SeasonStart.IsZero() && !s.cfg.SeasonEnd.IsZero() {
		return s.cfg.SeasonStart, s.cfg.SeasonEnd
	}
	now := s.now().In(s.cfg.Location)
	year := now.Year()
	if now.Month() < time.August {
		year--
	}
	from := time.Date(year, time.August, 1, 0, 0, 0, 0, s.cfg.Location)
	to := time.Date(year+1, time.June, 30, 0, 0, 0, 0, s.cfg.Location)
	return from, to
}

func sortGames(games []*nhl.Game) {
	sort.SliceStable(games, func(i, j int) bool {
		if !games[i].Date().Equal(games[j].Date()) {
			return games[i].Date().Before(games[j].Date())
		}
		return games[i].ID() < games[j].ID()
	})
}

func sortedTeams(set map[nhl.Team]struct{}) []nhl.Team {
	out := make([]nhl.Team, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scheduler) windowSummaryLocked() []string {
	out := make([]string, 0, len(s.windows))
	for _, team := range s.windowTeamsLocked() {
		line := team.Code() + ":"
		for _, g := range s.windows[team] {
			line += fmt.Sprintf(" %d(%s)", g.ID(), g.Status())
		}
		out = append(out, line)
	}
	return out
}

func (s *Scheduler) windowTeamsLocked() []nhl.Team {
	set := make(map[nhl.Team]struct{}, len(s.windows))
	for t := range s.windows {
		set[t] = struct{}{}
	}
	return sortedTeams(set)
}

type nopRecorder struct{}

func (nopRecorder) TrackerPoll(string)    {}
func (nopRecorder) SetActiveTrackers(int) {}
func (nopRecorder) ScheduleFetch(string)  {}
