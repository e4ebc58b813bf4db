package nhl

import (
	"fmt"
	"strings"
	"time"
)

// DetailsMessage describes the matchup and start time in loc (home team's
// timezone when loc is nil).
func (g *Game) DetailsMessage(loc *time.Location) string {
	if loc == nil {
		loc = g.home.Location()
	}
	start := g.date.In(loc).Format("Mon 2 Jan 2006, 3:04 PM MST")
	return fmt.Sprintf("%s at %s\n%s", g.away.Name(), g.home.Name(), start)
}

// ScoreMessage renders the current score and status.
func (g *Game) ScoreMessage() string {
	st := g.State()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d - %d %s", g.away.Code(), st.AwayScore, st.HomeScore, g.home.Code())
	switch st.Status {
	case StatusFinal:
		b.WriteString(" (final)")
	case StatusPreview:
		b.WriteString(" (not started)")
	case StatusInProgress:
		if n := len(st.Events); n > 0 {
			last := st.Events[n-1]
			fmt.Fprintf(&b, " (last goal %s %s)", last.Ordinal, last.PeriodTime)
		}
	}
	return b.String()
}

// GoalMessage renders one scoring play.
func (g *Game) GoalMessage(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s goal! %s period, %s", e.Team.Name(), e.Ordinal, e.PeriodTime)
	if e.Strength != "" && e.Strength != "EVEN" {
		fmt.Fprintf(&b, " (%s)", e.Strength)
	}
	if e.Description != "" {
		b.WriteString("\n")
		b.WriteString(e.Description)
	}
	return b.String()
}

// StatusMessage announces a transition into s. Previews have no message.
func (g *Game) StatusMessage(s Status) string {
	switch s {
	case StatusInProgress:
		return fmt.Sprintf("%s at %s is under way.", g.away.Name(), g.home.Name())
	case StatusFinal:
		st := g.State()
		return fmt.Sprintf("Game over. Final score %s %d - %d %s", g.away.Code(), st.AwayScore, st.HomeScore, g.home.Code())
	default:
		return ""
	}
}
