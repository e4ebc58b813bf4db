package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"nhlbot/internal/eventbus"
	"nhlbot/internal/nhl"
	"nhlbot/internal/subscription"
	"nhlbot/internal/tracker"
	"nhlbot/pkg/logx"
)

// buildWindowLocked returns [last final, current in-progress or next preview],
// skipping whichever does not exist.
func (s *Scheduler) buildWindowLocked(team nhl.Team) []*nhl.Game {
	var last, current, next *nhl.Game
	for _, g := range s.games {
		if !g.HasTeam(team) {
			continue
		}
		switch g.Status() {
		case nhl.StatusFinal:
			last = g
		case nhl.StatusInProgress:
			if current == nil {
				current = g
			}
		case nhl.StatusPreview:
			if next == nil {
				next = g
			}
		}
	}
	w := make([]*nhl.Game, 0, WindowSize+1)
	if last != nil {
		w = append(w, last)
	}
	if current != nil {
		w = append(w, current)
	} else if next != nil {
		w = append(w, next)
	}
	return w
}

// nextPreviewLocked is team's earliest preview game not already in its window.
func (s *Scheduler) nextPreviewLocked(team nhl.Team) *nhl.Game {
	for _, g := range s.games {
		if g.HasTeam(team) && g.IsPreview() && !containsGame(s.windows[team], g) {
			return g
		}
	}
	return nil
}

// StartTrackers makes sure every non-terminal window game has a running
// tracker. Games already tracked are left alone.
func (s *Scheduler) StartTrackers() {
	s.mu.Lock()
	var started []*tracker.Tracker
	for _, team := range s.windowTeamsLocked() {
		for _, g := range s.windows[team] {
			if g.IsTerminal() {
				continue
			}
			if tr := s.ensureTrackerLocked(g); tr != nil {
				started = append(started, tr)
			}
		}
	}
	active := len(s.trackers)
	s.mu.Unlock()

	s.afterStart(started, active)
}

// ensureTrackerLocked returns the tracker it started, or nil when the game
// already had one.
func (s *Scheduler) ensureTrackerLocked(g *nhl.Game) *tracker.Tracker {
	// a tracker is launched when it is created, so an existing entry is
	// running or finished
	if _, ok := s.trackers[g.ID()]; ok {
		s.log.Debug("tracker already active", logx.Int("game", g.ID()))
		return nil
	}
	tr := tracker.New(g, s.src, s.sink, s.cfg.Tracker, s.base, tracker.WithRecorder(s.rec), tracker.WithClock(s.now))
	s.trackers[g.ID()] = tr
	s.sup.Go(trackerName(g), tr.Run)
	return tr
}

func (s *Scheduler) afterStart(started []*tracker.Tracker, active int) {
	s.rec.SetActiveTrackers(active)
	for _, tr := range started {
		s.log.Info("tracker started", logx.Int("game", tr.ID()), logx.String("channel", tr.Game().ChannelName()))
		s.bus.Publish(eventbus.Event{Type: eventbus.TrackerStarted, Data: tr.ID()})
	}
}

func trackerName(g *nhl.Game) string { return "tracker:" + strconv.Itoa(g.ID()) }

// ReapTrackers drops finished trackers. Every followed team that just
// finished a game and has nothing else left to play gets its next preview
// game appended to its window, with a tracker started for it.
func (s *Scheduler) ReapTrackers() {
	s.mu.Lock()
	var (
		finished []int
		entered  []*nhl.Game
		started  []*tracker.Tracker
	)
	for id, tr := range s.trackers {
		if !tr.Finished() {
			continue
		}
		delete(s.trackers, id)
		finished = append(finished, id)

		for _, team := range tr.Game().Teams() {
			w, followed := s.windows[team]
			if !followed || !containsGame(w, tr.Game()) || hasPending(w) {
				continue
			}
			next := s.nextPreviewLocked(team)
			if next == nil {
				continue
			}
			s.windows[team] = append(w, next)
			entered = append(entered, next)
			if nt := s.ensureTrackerLocked(next); nt != nil {
				started = append(started, nt)
			}
		}
	}
	active := len(s.trackers)
	s.mu.Unlock()

	for _, id := range finished {
		s.log.Info("tracker finished", logx.Int("game", id))
		s.bus.Publish(eventbus.Event{Type: eventbus.TrackerFinished, Data: id})
	}
	for _, g := range entered {
		s.bus.Publish(eventbus.Event{Type: eventbus.GameEntered, Data: g.ID()})
	}
	s.afterStart(started, active)
}

type eviction struct {
	team nhl.Team
	game *nhl.Game
}

type deletion struct {
	target subscription.Target
	name   string
	game   int
}

// EvictOldGames trims every window back to WindowSize, oldest first, then
// deletes the evicted games' channels. A channel that another followed
// window of the same chat still holds is kept.
func (s *Scheduler) EvictOldGames(ctx context.Context) {
	s.mu.Lock()
	var evicted []eviction
	for _, team := range s.windowTeamsLocked() {
		w := s.windows[team]
		if len(w) <= WindowSize {
			continue
		}
		drop := len(w) - WindowSize
		for _, g := range w[:drop] {
			evicted = append(evicted, eviction{team: team, game: g})
		}
		s.windows[team] = append([]*nhl.Game(nil), w[drop:]...)
	}

	var dels []deletion
	seen := map[deletion]struct{}{}
	for _, ev := range evicted {
		for _, target := range s.targets(ev.team) {
			if s.heldForChatLocked(ev.game, target.ChatID) {
				continue
			}
			d := deletion{target: target, name: ev.game.ChannelName(), game: ev.game.ID()}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			dels = append(dels, d)
		}
	}
	s.mu.Unlock()

	for _, ev := range evicted {
		s.log.Info("game evicted from window", logx.String("team", ev.team.Code()), logx.Int("game", ev.game.ID()))
		s.bus.Publish(eventbus.Event{Type: eventbus.GameEvicted, Data: ev.game.ID()})
	}
	s.deleteChannels(ctx, dels)
}

// heldForChatLocked reports whether g is in the window of any team chatID follows.
func (s *Scheduler) heldForChatLocked(g *nhl.Game, chatID int64) bool {
	if s.subs == nil {
		return false
	}
	for _, team := range s.subs.TeamsFor(chatID) {
		if containsGame(s.windows[team], g) {
			return true
		}
	}
	return false
}

// CleanupStaleChannels deletes, for every target of every followed team,
// channels named after one of the team's catalogue games that is not in
// the team's window.
func (s *Scheduler) CleanupStaleChannels(ctx context.Context) {
	type plan struct {
		targets []subscription.Target
		stale   map[string]int // lower-case channel name -> game id
	}

	s.mu.RLock()
	plans := make([]plan, 0, len(s.windows))
	for _, team := range s.windowTeamsLocked() {
		p := plan{targets: s.targets(team), stale: map[string]int{}}
		if len(p.targets) == 0 {
			continue
		}
		for _, g := range s.games {
			if g.HasTeam(team) && !containsGame(s.windows[team], g) {
				p.stale[strings.ToLower(g.ChannelName())] = g.ID()
			}
		}
		plans = append(plans, p)
	}
	// names a chat must keep because some window it follows holds them
	held := map[int64]map[string]struct{}{}
	for _, p := range plans {
		for _, target := range p.targets {
			if _, done := held[target.ChatID]; done {
				continue
			}
			keep := map[string]struct{}{}
			if s.subs != nil {
				for _, team := range s.subs.TeamsFor(target.ChatID) {
					for _, g := range s.windows[team] {
						keep[strings.ToLower(g.ChannelName())] = struct{}{}
					}
				}
			}
			held[target.ChatID] = keep
		}
	}
	s.mu.RUnlock()

	var dels []deletion
	seen := map[deletion]struct{}{}
	for _, p := range plans {
		for _, target := range p.targets {
			names, err := s.channels.List(ctx, target)
			if err != nil {
				s.log.Warn("list channels failed", logx.Int64("chat_id", target.ChatID), logx.Err(err))
				continue
			}
			for _, name := range names {
				key := strings.ToLower(name)
				id, stale := p.stale[key]
				if !stale {
					continue
				}
				if _, keep := held[target.ChatID][key]; keep {
					continue
				}
				d := deletion{target: target, name: name, game: id}
				if _, dup := seen[d]; dup {
					continue
				}
				seen[d] = struct{}{}
				dels = append(dels, d)
			}
		}
	}
	if len(dels) > 0 {
		s.log.Info("removing stale channels", logx.Int("count", len(dels)))
	}
	s.deleteChannels(ctx, dels)
}

func (s *Scheduler) deleteChannels(ctx context.Context, dels []deletion) {
	for _, d := range dels {
		if err := s.channels.Delete(ctx, d.target, d.name); err != nil {
			s.log.Warn("delete channel failed",
				logx.Int64("chat_id", d.target.ChatID),
				logx.String("channel", d.name),
				logx.Int("game", d.game),
				logx.Err(err),
			)
			continue
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.ChannelDeleted, Data: d.name})
	}
}

func (s *Scheduler) targets(team nhl.Team) []subscription.Target {
	if s.subs == nil {
		return nil
	}
	return s.subs.List(team)
}

// Run reconciles every period until ctx is canceled. Cancellation is only
// observed between passes.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = s.cfg.Period
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		// a pass runs to completion even if ctx is canceled midway
		s.ReapTrackers()
		s.EvictOldGames(context.WithoutCancel(ctx))
		timer.Reset(period)
	}
}

func containsGame(w []*nhl.Game, g *nhl.Game) bool {
	for _, x := range w {
		if x.Same(g) {
			return true
		}
	}
	return false
}
