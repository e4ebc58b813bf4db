package nhl

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Event is one scoring play. Events are immutable once built.
type Event struct {
	ID          int
	Period      int
	PeriodType  string
	Ordinal     string
	PeriodTime  string
	Team        Team
	Description string
	Strength    string
}

// State is the mutable part of a game, replaced as a whole on every update.
type State struct {
	AwayScore int
	HomeScore int
	Status    Status
	Detailed  string
	Events    []Event
}

func (s State) clone() State {
	out := s
	if s.Events != nil {
		out.Events = append([]Event(nil), s.Events...)
	}
	return out
}

// Game is one scheduled or played contest. Identity (id, date, teams) is fixed
// at Parse; everything else is derived from the latest snapshot.
type Game struct {
	id   int
	date time.Time
	away Team
	home Team

	mu    sync.RWMutex
	state State
}

// Parse builds a Game from its first snapshot.
func Parse(s Snapshot) (*Game, error) {
	if s.GamePk <= 0 {
		return nil, fmt.Errorf("%w: missing gamePk", ErrMalformedSnapshot)
	}
	if s.GameDate.IsZero() {
		return nil, fmt.Errorf("%w: game %d has no date", ErrMalformedSnapshot, s.GamePk)
	}
	away, ok := TeamByID(s.Teams.Away.Team.ID)
	if !ok {
		return nil, fmt.Errorf("%w: away team id %d", ErrUnknownTeam, s.Teams.Away.Team.ID)
	}
	home, ok := TeamByID(s.Teams.Home.Team.ID)
	if !ok {
		return nil, fmt.Errorf("%w: home team id %d", ErrUnknownTeam, s.Teams.Home.Team.ID)
	}
	g := &Game{id: s.GamePk, date: s.GameDate.UTC(), away: away, home: home}
	if err := g.Update(s); err != nil {
		return nil, err
	}
	return g, nil
}

// Update replaces scores, status and the event list from s. The snapshot is
// validated in full before anything is applied.
func (g *Game) Update(s Snapshot) error {
	next, err := g.derive(s)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.state = next
	g.mu.Unlock()
	return nil
}

func (g *Game) derive(s Snapshot) (State, error) {
	if s.GamePk != g.id {
		return State{}, fmt.Errorf("%w: snapshot for game %d applied to game %d", ErrMalformedSnapshot, s.GamePk, g.id)
	}
	if s.Teams.Away.Team.ID != g.away.ID() || s.Teams.Home.Team.ID != g.home.ID() {
		return State{}, fmt.Errorf("%w: game %d teams changed", ErrMalformedSnapshot, g.id)
	}
	status, err := ParseStatusCode(s.Status.StatusCode)
	if err != nil {
		return State{}, fmt.Errorf("game %d: %w", g.id, err)
	}
	events := make([]Event, 0, len(s.ScoringPlays))
	for _, p := range s.ScoringPlays {
		team, ok := TeamByID(p.Team.ID)
		if !ok || (team != g.away && team != g.home) {
			return State{}, fmt.Errorf("%w: game %d event %d scored by team %d", ErrUnknownTeam, g.id, p.About.EventID, p.Team.ID)
		}
		events = append(events, Event{
			ID:          p.About.EventID,
			Period:      p.About.Period,
			PeriodType:  p.About.PeriodType,
			Ordinal:     p.About.OrdinalNum,
			PeriodTime:  p.About.PeriodTime,
			Team:        team,
			Description: p.Result.Description,
			Strength:    p.Result.Strength.Code,
		})
	}
	return State{
		AwayScore: s.Teams.Away.Score,
		HomeScore: s.Teams.Home.Score,
		Status:    status,
		Detailed:  s.Status.DetailedState,
		Events:    events,
	}, nil
}

func (g *Game) ID() int         { return g.id }
func (g *Game) Date() time.Time { return g.date }
func (g *Game) Away() Team      { return g.away }
func (g *Game) Home() Team      { return g.home }

// Teams returns away then home.
func (g *Game) Teams() []Team { return []Team{g.away, g.home} }

func (g *Game) HasTeam(t Team) bool { return t == g.away || t == g.home }

// State returns a copy of the derived state.
func (g *Game) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.clone()
}

func (g *Game) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Status
}

func (g *Game) IsTerminal() bool   { return g.Status() == StatusFinal }
func (g *Game) IsInProgress() bool { return g.Status() == StatusInProgress }
func (g *Game) IsPreview() bool    { return g.Status() == StatusPreview }

// Same reports whether both values describe the same game.
func (g *Game) Same(o *Game) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.id == o.id
}

// ChannelName is "<away>-vs-<home>-<yy-mm-dd>" in lower case, dated in the
// home team's timezone.
func (g *Game) ChannelName() string {
	day := g.date.In(g.home.Location()).Format("06-01-02")
	return strings.ToLower(fmt.Sprintf("%s-vs-%s-%s", g.away.Code(), g.home.Code(), day))
}

func (g *Game) String() string {
	return fmt.Sprintf("%d %s@%s %s", g.id, g.away.Code(), g.home.Code(), g.date.Format(time.RFC3339))
}
