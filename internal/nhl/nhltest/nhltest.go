// Package nhltest builds stats API snapshots for tests.
package nhltest

import (
	"time"

	"nhlbot/internal/nhl"
)

// Status codes as the stats API reports them.
const (
	Preview    = "1"
	InProgress = "3"
	Final      = "7"
)

// Snapshot returns a minimal valid snapshot for game id between away and home.
func Snapshot(id int, date time.Time, away, home nhl.Team, code string) nhl.Snapshot {
	return nhl.Snapshot{
		GamePk:   id,
		GameDate: date,
		Status:   nhl.SnapshotStatus{StatusCode: code},
		Teams: nhl.SnapshotTeams{
			Away: nhl.SnapshotSide{Team: nhl.TeamRef{ID: away.ID(), Name: away.Name()}},
			Home: nhl.SnapshotSide{Team: nhl.TeamRef{ID: home.ID(), Name: home.Name()}},
		},
	}
}

// WithScore sets both scores.
func WithScore(s nhl.Snapshot, away, home int) nhl.Snapshot {
	s.Teams.Away.Score = away
	s.Teams.Home.Score = home
	return s
}

// WithGoal appends a scoring play and bumps the scorer's score.
func WithGoal(s nhl.Snapshot, eventID int, team nhl.Team, period int, clock, desc string) nhl.Snapshot {
	p := nhl.ScoringPlay{Team: nhl.TeamRef{ID: team.ID()}}
	p.About.EventID = eventID
	p.About.Period = period
	p.About.PeriodType = "REGULAR"
	p.About.OrdinalNum = ordinal(period)
	p.About.PeriodTime = clock
	p.Result.Event = "Goal"
	p.Result.Description = desc
	p.Result.Strength = nhl.PlayStrength{Code: "EVEN", Name: "Even"}
	s.ScoringPlays = append(append([]nhl.ScoringPlay(nil), s.ScoringPlays...), p)
	if team.ID() == s.Teams.Away.Team.ID {
		s.Teams.Away.Score++
	} else {
		s.Teams.Home.Score++
	}
	return s
}

// WithStatus replaces the status code.
func WithStatus(s nhl.Snapshot, code string) nhl.Snapshot {
	s.Status.StatusCode = code
	return s
}

// MustParse parses s or panics.
func MustParse(s nhl.Snapshot) *nhl.Game {
	g, err := nhl.Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

func ordinal(p int) string {
	switch p {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return "OT"
	}
}
