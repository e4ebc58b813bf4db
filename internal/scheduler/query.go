package scheduler

import (
	"sort"
	"strings"

	"nhlbot/internal/nhl"
	"nhlbot/internal/subscription"
)

func (s *Scheduler) filterLocked(team nhl.Team, status nhl.Status) []*nhl.Game {
	var out []*nhl.Game
	for _, g := range s.games {
		if g.HasTeam(team) && g.Status() == status {
			out = append(out, g)
		}
	}
	return out
}

// FutureGame returns team's index-th upcoming game. An index past the end
// yields the last scheduled game.
func (s *Scheduler) FutureGame(team nhl.Team, index int) (*nhl.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	previews := s.filterLocked(team, nhl.StatusPreview)
	if len(previews) == 0 {
		return nil, false
	}
	return previews[clamp(index, len(previews))], true
}

func (s *Scheduler) NextGame(team nhl.Team) (*nhl.Game, bool) { return s.FutureGame(team, 0) }

// PreviousGame returns team's index-th most recent final game, 0 being the
// latest. An index past the end yields the earliest final game.
func (s *Scheduler) PreviousGame(team nhl.Team, index int) (*nhl.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	finals := s.filterLocked(team, nhl.StatusFinal)
	if len(finals) == 0 {
		return nil, false
	}
	return finals[len(finals)-1-clamp(index, len(finals))], true
}

func (s *Scheduler) LastGame(team nhl.Team) (*nhl.Game, bool) { return s.PreviousGame(team, 0) }

// CurrentGame returns team's game in progress, if any.
func (s *Scheduler) CurrentGame(team nhl.Team) (*nhl.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if g.HasTeam(team) && g.IsInProgress() {
			return g, true
		}
	}
	return nil, false
}

// GameByChannelName finds the catalogue game whose channel name matches,
// ignoring case.
func (s *Scheduler) GameByChannelName(name string) (*nhl.Game, bool) {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if strings.EqualFold(g.ChannelName(), name) {
			return g, true
		}
	}
	return nil, false
}

// Subscribers returns a copy of team's targets.
func (s *Scheduler) Subscribers(team nhl.Team) []subscription.Target {
	return s.targets(team)
}

// Window returns a copy of team's window.
func (s *Scheduler) Window(team nhl.Team) []*nhl.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*nhl.Game(nil), s.windows[team]...)
}

// Windows returns a copy of every window keyed by team.
func (s *Scheduler) Windows() map[nhl.Team][]*nhl.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[nhl.Team][]*nhl.Game, len(s.windows))
	for team, w := range s.windows {
		out[team] = append([]*nhl.Game(nil), w...)
	}
	return out
}

// ActiveTrackers lists the ids of games with a live tracker, ascending.
func (s *Scheduler) ActiveTrackers() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.trackers))
	for id := range s.trackers {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}
