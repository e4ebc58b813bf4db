package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nhlbot/internal/nhl"
	"nhlbot/internal/subscription"
)

// Games is the scheduler's query and subscribe surface.
type Games interface {
	FutureGame(team nhl.Team, index int) (*nhl.Game, bool)
	PreviousGame(team nhl.Team, index int) (*nhl.Game, bool)
	CurrentGame(team nhl.Team) (*nhl.Game, bool)
	GameByChannelName(name string) (*nhl.Game, bool)
	Subscribers(team nhl.Team) []subscription.Target
	Subscribe(ctx context.Context, team nhl.Team, target subscription.Target) error
}

type ChatTeams interface {
	TeamsFor(chatID int64) []nhl.Team
}

type ChannelResolver interface {
	Resolve(ctx context.Context, chatID int64, threadID int) (string, bool, error)
}

type Handlers struct {
	games    Games
	teams    ChatTeams
	channels ChannelResolver
}

func NewHandlers(games Games, teams ChatTeams, channels ChannelResolver) *Handlers {
	return &Handlers{games: games, teams: teams, channels: channels}
}

func (h *Handlers) Commands() []Command {
	return []Command{
		{
			Name:        "nextgame",
			Aliases:     []string{"next"},
			Description: "next scheduled game",
			Usage:       "/nextgame [TEAM] [N]",
			Handle:      h.nextGame,
		},
		{
			Name:        "lastgame",
			Aliases:     []string{"last"},
			Description: "most recent final score",
			Usage:       "/lastgame [TEAM] [N]",
			Handle:      h.lastGame,
		},
		{
			Name:        "score",
			Description: "score of this channel's game, or your team's live game",
			Usage:       "/score [TEAM]",
			Handle:      h.score,
		},
		{
			Name:        "subscribe",
			Description: "follow a team in this chat",
			Usage:       "/subscribe TEAM",
			Handle:      h.subscribe,
		},
		{
			Name:        "subscribers",
			Description: "how many chats follow a team",
			Usage:       "/subscribers TEAM",
			Handle:      h.subscribers,
		},
	}
}

var errNoTeam = errors.New("no team")

// teamArg takes a team code from args[0] when it is one, falling back to
// the first team the chat follows. The remaining args are returned.
func (h *Handlers) teamArg(req *Request) (nhl.Team, []string, error) {
	args := req.Args
	if len(args) > 0 {
		if t, ok := nhl.TeamByCode(args[0]); ok {
			return t, args[1:], nil
		}
		if _, err := strconv.Atoi(args[0]); err != nil {
			return 0, nil, fmt.Errorf("unknown team %q", args[0])
		}
	}
	if followed := h.teams.TeamsFor(req.Chat.ChatID); len(followed) > 0 {
		return followed[0], args, nil
	}
	return 0, nil, errNoTeam
}

// indexArg reads an optional 1-based position; garbage means the first.
func indexArg(args []string) int {
	if len(args) == 0 {
		return 0
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0
	}
	return n - 1
}

// resolveTeam replies with the reason when no team could be determined.
func (h *Handlers) resolveTeam(ctx context.Context, req *Request, usage string) (nhl.Team, []string, bool) {
	team, rest, err := h.teamArg(req)
	switch {
	case errors.Is(err, errNoTeam):
		req.Reply(ctx, "This chat follows no team. Usage: "+usage)
		return 0, nil, false
	case err != nil:
		req.Reply(ctx, capitalize(err.Error())+". Usage: "+usage)
		return 0, nil, false
	}
	return team, rest, true
}

func (h *Handlers) nextGame(ctx context.Context, req *Request) error {
	team, rest, ok := h.resolveTeam(ctx, req, "/nextgame [TEAM] [N]")
	if !ok {
		return nil
	}
	g, found := h.games.FutureGame(team, indexArg(rest))
	if !found {
		req.Reply(ctx, fmt.Sprintf("No upcoming games for %s.", team.Name()))
		return nil
	}
	req.Reply(ctx, g.DetailsMessage(nil))
	return nil
}

func (h *Handlers) lastGame(ctx context.Context, req *Request) error {
	team, rest, ok := h.resolveTeam(ctx, req, "/lastgame [TEAM] [N]")
	if !ok {
		return nil
	}
	g, found := h.games.PreviousGame(team, indexArg(rest))
	if !found {
		req.Reply(ctx, fmt.Sprintf("No finished games for %s.", team.Name()))
		return nil
	}
	req.Reply(ctx, g.DetailsMessage(nil)+"\n"+g.ScoreMessage())
	return nil
}

func (h *Handlers) score(ctx context.Context, req *Request) error {
	if req.Chat.ThreadID != 0 && len(req.Args) == 0 {
		name, ok, err := h.channels.Resolve(ctx, req.Chat.ChatID, req.Chat.ThreadID)
		if err != nil {
			return err
		}
		if ok {
			if g, found := h.games.GameByChannelName(name); found {
				req.Reply(ctx, g.ScoreMessage())
				return nil
			}
		}
	}
	team, _, ok := h.resolveTeam(ctx, req, "/score [TEAM]")
	if !ok {
		return nil
	}
	g, found := h.games.CurrentGame(team)
	if !found {
		req.Reply(ctx, fmt.Sprintf("%s are not playing right now.", team.Name()))
		return nil
	}
	req.Reply(ctx, g.ScoreMessage())
	return nil
}

func (h *Handlers) subscribe(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		req.Reply(ctx, "Usage: /subscribe TEAM")
		return nil
	}
	team, ok := nhl.TeamByCode(req.Args[0])
	if !ok {
		req.Reply(ctx, fmt.Sprintf("Unknown team %q. Usage: /subscribe TEAM", req.Args[0]))
		return nil
	}
	if err := h.games.Subscribe(ctx, team, subscription.Target{ChatID: req.Chat.ChatID}); err != nil {
		return err
	}
	req.Reply(ctx, fmt.Sprintf("Subscribed to %s. Game channels will appear here.", team.Name()))
	return nil
}

func (h *Handlers) subscribers(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		req.Reply(ctx, "Usage: /subscribers TEAM")
		return nil
	}
	team, ok := nhl.TeamByCode(req.Args[0])
	if !ok {
		req.Reply(ctx, fmt.Sprintf("Unknown team %q.", req.Args[0]))
		return nil
	}
	chats := map[int64]struct{}{}
	for _, t := range h.games.Subscribers(team) {
		chats[t.ChatID] = struct{}{}
	}
	req.Reply(ctx, fmt.Sprintf("%s: %d subscribed chat(s).", team.Name(), len(chats)))
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
