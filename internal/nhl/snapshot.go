package nhl

import "time"

// Snapshot is one game as returned by the stats API schedule endpoint
// (with the schedule.scoringplays expansion).
type Snapshot struct {
	GamePk       int            `json:"gamePk"`
	GameDate     time.Time      `json:"gameDate"`
	Status       SnapshotStatus `json:"status"`
	Teams        SnapshotTeams  `json:"teams"`
	ScoringPlays []ScoringPlay  `json:"scoringPlays"`
}

type SnapshotStatus struct {
	AbstractGameState string `json:"abstractGameState"`
	DetailedState     string `json:"detailedState"`
	StatusCode        string `json:"statusCode"`
}

type SnapshotTeams struct {
	Away SnapshotSide `json:"away"`
	Home SnapshotSide `json:"home"`
}

type SnapshotSide struct {
	Score int     `json:"score"`
	Team  TeamRef `json:"team"`
}

type TeamRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

type ScoringPlay struct {
	Result PlayResult `json:"result"`
	About  PlayAbout  `json:"about"`
	Team   TeamRef    `json:"team"`
}

type PlayResult struct {
	Event       string       `json:"event"`
	Description string       `json:"description"`
	Strength    PlayStrength `json:"strength"`
}

type PlayStrength struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type PlayAbout struct {
	EventID    int    `json:"eventId"`
	Period     int    `json:"period"`
	PeriodType string `json:"periodType"`
	OrdinalNum string `json:"ordinalNum"`
	PeriodTime string `json:"periodTime"`
}
