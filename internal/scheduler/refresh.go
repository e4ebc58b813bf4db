package scheduler

import (
	"context"
	"fmt"
	"time"

	"nhlbot/internal/eventbus"
	"nhlbot/internal/nhl"
	"nhlbot/internal/subscription"
	"nhlbot/internal/tracker"
	"nhlbot/pkg/logx"
)

const refreshTimeout = 5 * time.Minute

// Subscribe records target for team. A team followed for the first time
// gets a window and trackers right away; the sink is asked to open channels
// for the team's live and upcoming window games.
func (s *Scheduler) Subscribe(ctx context.Context, team nhl.Team, target subscription.Target) error {
	if err := s.subs.Subscribe(ctx, team, target); err != nil {
		return err
	}

	s.mu.Lock()
	var started []*tracker.Tracker
	if _, ok := s.windows[team]; !ok && s.loaded {
		s.windows[team] = s.buildWindowLocked(team)
		for _, g := range s.windows[team] {
			if !g.IsTerminal() {
				if tr := s.ensureTrackerLocked(g); tr != nil {
					started = append(started, tr)
				}
			}
		}
	}
	var open []*nhl.Game
	for _, g := range s.windows[team] {
		if !g.IsTerminal() {
			open = append(open, g)
		}
	}
	active := len(s.trackers)
	s.mu.Unlock()

	s.afterStart(started, active)
	s.bus.Publish(eventbus.Event{Type: eventbus.Subscribed, Data: team.Code()})
	s.log.Info("subscribed", logx.String("team", team.Code()), logx.Int64("chat_id", target.ChatID))

	// Trackers already running opened channels before this target existed.
	for _, g := range open {
		if err := s.sink.Open(ctx, g); err != nil {
			s.log.Warn("open channels for new subscriber failed", logx.Int("game", g.ID()), logx.Err(err))
		}
	}
	return nil
}

// Refresh refetches the catalogue. Known games are updated in place, new ones
// inserted in date order, newly followed teams get windows and windows with
// nothing left to play get their next game. Trackers are started as needed.
func (s *Scheduler) Refresh(ctx context.Context) error {
	from, to := s.season()
	fresh, err := s.fetchSnapshots(ctx, from, to)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	var added, updated, rejected int
	for _, snap := range fresh {
		if g, ok := s.byID[snap.GamePk]; ok {
			if err := g.Update(snap); err != nil {
				rejected++
				s.log.Warn("refresh snapshot rejected", logx.Int("game", snap.GamePk), logx.Err(err))
				continue
			}
			updated++
			continue
		}
		g, err := nhl.Parse(snap)
		if err != nil {
			rejected++
			s.log.Warn("refresh snapshot rejected", logx.Int("game", snap.GamePk), logx.Err(err))
			continue
		}
		s.games = append(s.games, g)
		s.byID[g.ID()] = g
		added++
	}
	sortGames(s.games)

	var (
		started []*tracker.Tracker
		entered []*nhl.Game
	)
	for _, team := range s.followedTeams() {
		w, ok := s.windows[team]
		if !ok {
			s.windows[team] = s.buildWindowLocked(team)
			entered = append(entered, s.windows[team]...)
		} else if !hasPending(w) && !s.trackedLocked(w) {
			if next := s.nextPreviewLocked(team); next != nil {
				s.windows[team] = append(w, next)
				entered = append(entered, next)
			}
		}
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

	for _, g := range entered {
		s.bus.Publish(eventbus.Event{Type: eventbus.GameEntered, Data: g.ID()})
	}
	s.afterStart(started, active)
	s.log.Info("catalogue refreshed",
		logx.Int("added", added),
		logx.Int("updated", updated),
		logx.Int("rejected", rejected),
		logx.Int("trackers_started", len(started)),
	)
	return nil
}

func (s *Scheduler) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(s.sup.Context(), refreshTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("scheduled refresh failed", logx.Err(err))
	}
}

// trackedLocked reports whether a window game still has a tracker that has
// not been reaped. ReapTrackers advances such a window.
func (s *Scheduler) trackedLocked(w []*nhl.Game) bool {
	for _, g := range w {
		if _, ok := s.trackers[g.ID()]; ok {
			return true
		}
	}
	return false
}

func hasPending(w []*nhl.Game) bool {
	for _, g := range w {
		if !g.IsTerminal() {
			return true
		}
	}
	return false
}
