package nhl

import (
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // team timezones must resolve on hosts without zoneinfo
)

// Team is one of the league's franchises. The value is the stable NHL team id;
// the set is closed and only the constants below are valid.
type Team int

const (
	NewJerseyDevils     Team = 1
	NewYorkIslanders    Team = 2
	NewYorkRangers      Team = 3
	PhiladelphiaFlyers  Team = 4
	PittsburghPenguins  Team = 5
	BostonBruins        Team = 6
	BuffaloSabres       Team = 7
	MontrealCanadiens   Team = 8
	OttawaSenators      Team = 9
	TorontoMapleLeafs   Team = 10
	CarolinaHurricanes  Team = 12
	FloridaPanthers     Team = 13
	TampaBayLightning   Team = 14
	WashingtonCapitals  Team = 15
	ChicagoBlackhawks   Team = 16
	DetroitRedWings     Team = 17
	NashvillePredators  Team = 18
	StLouisBlues        Team = 19
	CalgaryFlames       Team = 20
	ColoradoAvalanche   Team = 21
	EdmontonOilers      Team = 22
	VancouverCanucks    Team = 23
	AnaheimDucks        Team = 24
	DallasStars         Team = 25
	LosAngelesKings     Team = 26
	SanJoseSharks       Team = 28
	ColumbusBlueJackets Team = 29
	MinnesotaWild       Team = 30
	WinnipegJets        Team = 52
	ArizonaCoyotes      Team = 53
	VegasGoldenKnights  Team = 54
	SeattleKraken       Team = 55
)

type teamInfo struct {
	code     string
	name     string
	timezone string
	loc      *time.Location
}

var teams = map[Team]*teamInfo{
	NewJerseyDevils:     {code: "NJD", name: "New Jersey Devils", timezone: "America/New_York"},
	NewYorkIslanders:    {code: "NYI", name: "New York Islanders", timezone: "America/New_York"},
	NewYorkRangers:      {code: "NYR", name: "New York Rangers", timezone: "America/New_York"},
	PhiladelphiaFlyers:  {code: "PHI", name: "Philadelphia Flyers", timezone: "America/New_York"},
	PittsburghPenguins:  {code: "PIT", name: "Pittsburgh Penguins", timezone: "America/New_York"},
	BostonBruins:        {code: "BOS", name: "Boston Bruins", timezone: "America/New_York"},
	BuffaloSabres:       {code: "BUF", name: "Buffalo Sabres", timezone: "America/New_York"},
	MontrealCanadiens:   {code: "MTL", name: "Montréal Canadiens", timezone: "America/Montreal"},
	OttawaSenators:      {code: "OTT", name: "Ottawa Senators", timezone: "America/Toronto"},
	TorontoMapleLeafs:   {code: "TOR", name: "Toronto Maple Leafs", timezone: "America/Toronto"},
	CarolinaHurricanes:  {code: "CAR", name: "Carolina Hurricanes", timezone: "America/New_York"},
	FloridaPanthers:     {code: "FLA", name: "Florida Panthers", timezone: "America/New_York"},
	TampaBayLightning:   {code: "TBL", name: "Tampa Bay Lightning", timezone: "America/New_York"},
	WashingtonCapitals:  {code: "WSH", name: "Washington Capitals", timezone: "America/New_York"},
	ChicagoBlackhawks:   {code: "CHI", name: "Chicago Blackhawks", timezone: "America/Chicago"},
	DetroitRedWings:     {code: "DET", name: "Detroit Red Wings", timezone: "America/Detroit"},
	NashvillePredators:  {code: "NSH", name: "Nashville Predators", timezone: "America/Chicago"},
	StLouisBlues:        {code: "STL", name: "St. Louis Blues", timezone: "America/Chicago"},
	CalgaryFlames:       {code: "CGY", name: "Calgary Flames", timezone: "America/Edmonton"},
	ColoradoAvalanche:   {code: "COL", name: "Colorado Avalanche", timezone: "America/Denver"},
	EdmontonOilers:      {code: "EDM", name: "Edmonton Oilers", timezone: "America/Edmonton"},
	VancouverCanucks:    {code: "VAN", name: "Vancouver Canucks", timezone: "America/Vancouver"},
	AnaheimDucks:        {code: "ANA", name: "Anaheim Ducks", timezone: "America/Los_Angeles"},
	DallasStars:         {code: "DAL", name: "Dallas Stars", timezone: "America/Chicago"},
	LosAngelesKings:     {code: "LAK", name: "Los Angeles Kings", timezone: "America/Los_Angeles"},
	SanJoseSharks:       {code: "SJS", name: "San Jose Sharks", timezone: "America/Los_Angeles"},
	ColumbusBlueJackets: {code: "CBJ", name: "Columbus Blue Jackets", timezone: "America/New_York"},
	MinnesotaWild:       {code: "MIN", name: "Minnesota Wild", timezone: "America/Chicago"},
	WinnipegJets:        {code: "WPG", name: "Winnipeg Jets", timezone: "America/Winnipeg"},
	ArizonaCoyotes:      {code: "ARI", name: "Arizona Coyotes", timezone: "America/Phoenix"},
	VegasGoldenKnights:  {code: "VGK", name: "Vegas Golden Knights", timezone: "America/Los_Angeles"},
	SeattleKraken:       {code: "SEA", name: "Seattle Kraken", timezone: "America/Los_Angeles"},
}

func init() {
	for _, info := range teams {
		loc, err := time.LoadLocation(info.timezone)
		if err != nil {
			loc = time.UTC
		}
		info.loc = loc
	}
}

// TeamByID resolves an NHL team id.
func TeamByID(id int) (Team, bool) {
	t := Team(id)
	_, ok := teams[t]
	return t, ok
}

// TeamByCode resolves a 3-letter code, case-insensitively.
func TeamByCode(code string) (Team, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for t, info := range teams {
		if info.code == code {
			return t, true
		}
	}
	return 0, false
}

// AllTeams returns every team ordered by id.
func AllTeams() []Team {
	out := make([]Team, 0, len(teams))
	for t := range teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t Team) Valid() bool {
	_, ok := teams[t]
	return ok
}

func (t Team) ID() int { return int(t) }

func (t Team) Code() string {
	if info, ok := teams[t]; ok {
		return info.code
	}
	return "UNK"
}

func (t Team) Name() string {
	if info, ok := teams[t]; ok {
		return info.name
	}
	return "Unknown"
}

// Location is the team's home timezone.
func (t Team) Location() *time.Location {
	if info, ok := teams[t]; ok {
		return info.loc
	}
	return time.UTC
}

func (t Team) String() string { return t.Code() }
