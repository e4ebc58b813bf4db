package nhl_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/nhl"
	"nhlbot/internal/nhl/nhltest"
)

var opening = time.Date(2016, time.October, 13, 2, 0, 0, 0, time.UTC)

func TestParseEstablishesIdentity(t *testing.T) {
	t.Parallel()
	g, err := nhl.Parse(nhltest.Snapshot(2016020001, opening, nhl.CalgaryFlames, nhl.EdmontonOilers, nhltest.Preview))
	require.NoError(t, err)

	assert.Equal(t, 2016020001, g.ID())
	assert.Equal(t, nhl.CalgaryFlames, g.Away())
	assert.Equal(t, nhl.EdmontonOilers, g.Home())
	assert.True(t, g.HasTeam(nhl.EdmontonOilers))
	assert.False(t, g.HasTeam(nhl.VancouverCanucks))
	assert.Equal(t, nhl.StatusPreview, g.Status())
	assert.False(t, g.IsTerminal())
}

func TestParseRejectsBadSnapshots(t *testing.T) {
	t.Parallel()
	good := nhltest.Snapshot(1, opening, nhl.CalgaryFlames, nhl.EdmontonOilers, nhltest.Preview)

	tests := []struct {
		name   string
		mutate func(*nhl.Snapshot)
		want   error
	}{
		{name: "no id", mutate: func(s *nhl.Snapshot) { s.GamePk = 0 }, want: nhl.ErrMalformedSnapshot},
		{name: "no date", mutate: func(s *nhl.Snapshot) { s.GameDate = time.Time{} }, want: nhl.ErrMalformedSnapshot},
		{name: "unknown home", mutate: func(s *nhl.Snapshot) { s.Teams.Home.Team.ID = 11 }, want: nhl.ErrUnknownTeam},
		{name: "unknown away", mutate: func(s *nhl.Snapshot) { s.Teams.Away.Team.ID = 99 }, want: nhl.ErrUnknownTeam},
		{name: "unknown status", mutate: func(s *nhl.Snapshot) { s.Status.StatusCode = "42" }, want: nhl.ErrUnknownStatus},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := good
			tt.mutate(&s)
			_, err := nhl.Parse(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	t.Parallel()
	s := nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress)
	s = nhltest.WithGoal(s, 51, nhl.TorontoMapleLeafs, 1, "05:12", "Auston Matthews (1) Wrist Shot")
	s = nhltest.WithGoal(s, 88, nhl.OttawaSenators, 2, "11:40", "Kyle Turris (1) Snap Shot")
	g := nhltest.MustParse(s)

	require.NoError(t, g.Update(s))
	first := g.State()
	require.NoError(t, g.Update(s))
	second := g.State()

	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.AwayScore)
	assert.Equal(t, 1, second.HomeScore)
	require.Len(t, second.Events, 2)
	assert.Equal(t, 51, second.Events[0].ID)
	assert.Equal(t, "1st", second.Events[0].Ordinal)
}

func TestUpdateReplacesWholeState(t *testing.T) {
	t.Parallel()
	s := nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress)
	withGoal := nhltest.WithGoal(s, 51, nhl.TorontoMapleLeafs, 1, "05:12", "goal")
	g := nhltest.MustParse(withGoal)
	require.Len(t, g.State().Events, 1)

	// A disallowed goal disappears from the feed and must disappear here too.
	require.NoError(t, g.Update(nhltest.WithStatus(s, nhltest.Final)))
	st := g.State()
	assert.Empty(t, st.Events)
	assert.Equal(t, 0, st.AwayScore)
	assert.True(t, g.IsTerminal())
}

func TestUpdateRejectsForeignSnapshotWithoutApplying(t *testing.T) {
	t.Parallel()
	g := nhltest.MustParse(nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress))
	before := g.State()

	err := g.Update(nhltest.WithStatus(nhltest.Snapshot(8, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress), nhltest.Final))
	require.ErrorIs(t, err, nhl.ErrMalformedSnapshot)

	bad := nhltest.WithStatus(nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress), "0")
	bad = nhltest.WithScore(bad, 3, 3)
	require.ErrorIs(t, g.Update(bad), nhl.ErrUnknownStatus)

	assert.Equal(t, before, g.State())
}

func TestStateIsACopy(t *testing.T) {
	t.Parallel()
	s := nhltest.WithGoal(nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress), 1, nhl.TorontoMapleLeafs, 1, "00:30", "goal")
	g := nhltest.MustParse(s)

	st := g.State()
	st.Events[0].Description = "changed"
	assert.Equal(t, "goal", g.State().Events[0].Description)
}

func TestChannelName(t *testing.T) {
	t.Parallel()
	// 02:00 UTC on Oct 13 is still Oct 12 in Edmonton.
	g := nhltest.MustParse(nhltest.Snapshot(1, opening, nhl.CalgaryFlames, nhl.EdmontonOilers, nhltest.Preview))
	assert.Equal(t, "cgy-vs-edm-16-10-12", g.ChannelName())
	assert.Equal(t, g.ChannelName(), g.ChannelName())

	// 22:00 in Toronto.
	g2 := nhltest.MustParse(nhltest.Snapshot(2, opening, nhl.EdmontonOilers, nhl.TorontoMapleLeafs, nhltest.Preview))
	assert.Equal(t, "edm-vs-tor-16-10-12", g2.ChannelName())
}

func TestSameIsIdentity(t *testing.T) {
	t.Parallel()
	a := nhltest.MustParse(nhltest.Snapshot(5, opening, nhl.BostonBruins, nhl.BuffaloSabres, nhltest.Preview))
	b := nhltest.MustParse(nhltest.WithStatus(nhltest.Snapshot(5, opening, nhl.BostonBruins, nhl.BuffaloSabres, nhltest.Preview), nhltest.Final))
	c := nhltest.MustParse(nhltest.Snapshot(6, opening, nhl.BostonBruins, nhl.BuffaloSabres, nhltest.Preview))

	assert.True(t, a.Same(b))
	assert.NotEqual(t, a.State(), b.State())
	assert.False(t, a.Same(c))
}

func TestStatusCodes(t *testing.T) {
	t.Parallel()
	for code, want := range map[string]nhl.Status{
		"1": nhl.StatusPreview, "2": nhl.StatusPreview, "8": nhl.StatusPreview, "9": nhl.StatusPreview,
		"3": nhl.StatusInProgress, "4": nhl.StatusInProgress,
		"5": nhl.StatusFinal, "6": nhl.StatusFinal, "7": nhl.StatusFinal,
	} {
		got, err := nhl.ParseStatusCode(code)
		require.NoError(t, err, code)
		assert.Equal(t, want, got, code)
	}
	_, err := nhl.ParseStatusCode("")
	assert.ErrorIs(t, err, nhl.ErrUnknownStatus)
}

func TestTeamLookup(t *testing.T) {
	t.Parallel()
	team, ok := nhl.TeamByCode(" van ")
	require.True(t, ok)
	assert.Equal(t, nhl.VancouverCanucks, team)
	assert.Equal(t, "America/Vancouver", team.Location().String())

	_, ok = nhl.TeamByCode("XYZ")
	assert.False(t, ok)
	_, ok = nhl.TeamByID(11)
	assert.False(t, ok)

	all := nhl.AllTeams()
	assert.Len(t, all, 32)
	assert.Equal(t, nhl.NewJerseyDevils, all[0])
	assert.Equal(t, nhl.SeattleKraken, all[len(all)-1])
}

func TestMessages(t *testing.T) {
	t.Parallel()
	s := nhltest.Snapshot(7, opening, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress)
	s = nhltest.WithGoal(s, 51, nhl.TorontoMapleLeafs, 1, "05:12", "Auston Matthews (1)")
	g := nhltest.MustParse(s)

	assert.Equal(t, "TOR 1 - 0 OTT (last goal 1st 05:12)", g.ScoreMessage())
	assert.Equal(t, "Toronto Maple Leafs goal! 1st period, 05:12\nAuston Matthews (1)", g.GoalMessage(g.State().Events[0]))
	assert.Contains(t, g.DetailsMessage(nil), "Toronto Maple Leafs at Ottawa Senators")
	assert.Contains(t, g.DetailsMessage(nil), "Wed 12 Oct 2016, 10:00 PM EDT")
	assert.Empty(t, g.StatusMessage(nhl.StatusPreview))
	assert.Equal(t, "Game over. Final score TOR 1 - 0 OTT", g.StatusMessage(nhl.StatusFinal))
}
