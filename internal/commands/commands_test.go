package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/nhl"
	"nhlbot/internal/nhl/nhltest"
	"nhlbot/internal/subscription"
	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

type chatLog struct {
	mu   sync.Mutex
	sent []transport.Notification
}

func (c *chatLog) Start(context.Context, chan<- transport.Message) error { return nil }
func (c *chatLog) Stop(context.Context) error                            { return nil }

func (c *chatLog) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, transport.Notification{Target: to, Text: text})
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}, nil
}

func (c *chatLog) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Text)
	}
	return out
}

type fakeGames struct {
	future     map[nhl.Team][]*nhl.Game
	past       map[nhl.Team][]*nhl.Game
	current    map[nhl.Team]*nhl.Game
	byChannel  map[string]*nhl.Game
	subs       map[nhl.Team][]subscription.Target
	subscribed []nhl.Team
	subErr     error
}

func pick(gs []*nhl.Game, i int) (*nhl.Game, bool) {
	if len(gs) == 0 {
		return nil, false
	}
	return gs[min(i, len(gs)-1)], true
}

func (f *fakeGames) FutureGame(t nhl.Team, i int) (*nhl.Game, bool)   { return pick(f.future[t], i) }
func (f *fakeGames) PreviousGame(t nhl.Team, i int) (*nhl.Game, bool) { return pick(f.past[t], i) }

func (f *fakeGames) CurrentGame(t nhl.Team) (*nhl.Game, bool) {
	g, ok := f.current[t]
	return g, ok
}

func (f *fakeGames) GameByChannelName(name string) (*nhl.Game, bool) {
	g, ok := f.byChannel[name]
	return g, ok
}

func (f *fakeGames) Subscribers(t nhl.Team) []subscription.Target { return f.subs[t] }

func (f *fakeGames) Subscribe(_ context.Context, t nhl.Team, _ subscription.Target) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed = append(f.subscribed, t)
	return nil
}

type followed map[int64][]nhl.Team

func (f followed) TeamsFor(chatID int64) []nhl.Team { return f[chatID] }

type threads map[int]string

func (t threads) Resolve(_ context.Context, _ int64, threadID int) (string, bool, error) {
	n, ok := t[threadID]
	return n, ok, nil
}

const chatID = -1001

var (
	date    = time.Date(2016, 10, 12, 23, 0, 0, 0, time.UTC)
	preview = nhltest.MustParse(nhltest.Snapshot(2016020001, date, nhl.CalgaryFlames, nhl.EdmontonOilers, nhltest.Preview))
	later   = nhltest.MustParse(nhltest.Snapshot(2016020002, date.AddDate(0, 0, 2), nhl.EdmontonOilers, nhl.VancouverCanucks, nhltest.Preview))
	final   = nhltest.MustParse(nhltest.WithScore(nhltest.Snapshot(2016010001, date.AddDate(0, 0, -2), nhl.EdmontonOilers, nhl.WinnipegJets, nhltest.Final), 3, 2))
	live    = nhltest.MustParse(nhltest.WithScore(nhltest.Snapshot(2016020003, date, nhl.TorontoMapleLeafs, nhl.OttawaSenators, nhltest.InProgress), 1, 0))
)

func newGames() *fakeGames {
	return &fakeGames{
		future:    map[nhl.Team][]*nhl.Game{nhl.EdmontonOilers: {preview, later}},
		past:      map[nhl.Team][]*nhl.Game{nhl.EdmontonOilers: {final}},
		current:   map[nhl.Team]*nhl.Game{nhl.TorontoMapleLeafs: live},
		byChannel: map[string]*nhl.Game{live.ChannelName(): live},
		subs: map[nhl.Team][]subscription.Target{
			nhl.EdmontonOilers: {{ChatID: 1}, {ChatID: 2}, {ChatID: 1}},
		},
	}
}

func run(t *testing.T, h *Handlers, fn HandlerFunc, thread int, args ...string) []string {
	t.Helper()
	out := &chatLog{}
	req := &Request{
		Chat:   transport.ChatTarget{ChatID: chatID, ThreadID: thread},
		Args:   args,
		Log:    logx.Nop(),
		sender: out,
	}
	require.NoError(t, fn(context.Background(), req))
	return out.texts()
}

func TestNextGame(t *testing.T) {
	t.Parallel()
	h := NewHandlers(newGames(), followed{chatID: {nhl.EdmontonOilers}}, threads{})

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "default team", want: "Calgary Flames at Edmonton Oilers"},
		{name: "explicit team", args: []string{"edm"}, want: "Calgary Flames at Edmonton Oilers"},
		{name: "second game", args: []string{"EDM", "2"}, want: "Edmonton Oilers at Vancouver Canucks"},
		{name: "index past end clamps", args: []string{"9"}, want: "Edmonton Oilers at Vancouver Canucks"},
		{name: "no games", args: []string{"TOR"}, want: "No upcoming games for Toronto Maple Leafs."},
		{name: "unknown team", args: []string{"XYZ"}, want: `Unknown team "XYZ". Usage: /nextgame [TEAM] [N]`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := run(t, h, h.nextGame, 0, tc.args...)
			require.Len(t, got, 1)
			assert.Contains(t, got[0], tc.want)
		})
	}
}

func TestNextGameWithoutFollowedTeam(t *testing.T) {
	t.Parallel()
	h := NewHandlers(newGames(), followed{}, threads{})
	got := run(t, h, h.nextGame, 0)
	assert.Equal(t, []string{"This chat follows no team. Usage: /nextgame [TEAM] [N]"}, got)
}

func TestLastGame(t *testing.T) {
	t.Parallel()
	h := NewHandlers(newGames(), followed{chatID: {nhl.EdmontonOilers}}, threads{})
	got := run(t, h, h.lastGame, 0)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "EDM 3 - 2 WPG (final)")
}

func TestScore(t *testing.T) {
	t.Parallel()
	h := NewHandlers(newGames(), followed{chatID: {nhl.TorontoMapleLeafs}}, threads{42: live.ChannelName()})

	assert.Equal(t, []string{live.ScoreMessage()}, run(t, h, h.score, 42))
	assert.Equal(t, []string{live.ScoreMessage()}, run(t, h, h.score, 0))
	assert.Equal(t, []string{"Edmonton Oilers are not playing right now."}, run(t, h, h.score, 0, "EDM"))
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	games := newGames()
	h := NewHandlers(games, followed{}, threads{})

	assert.Equal(t, []string{"Subscribed to Edmonton Oilers. Game channels will appear here."}, run(t, h, h.subscribe, 0, "edm"))
	assert.Equal(t, []nhl.Team{nhl.EdmontonOilers}, games.subscribed)
	assert.Equal(t, []string{"Usage: /subscribe TEAM"}, run(t, h, h.subscribe, 0))
	assert.Len(t, games.subscribed, 1)
}

func TestSubscribeFailureIsReturned(t *testing.T) {
	t.Parallel()
	games := newGames()
	games.subErr = errors.New("database is locked")
	h := NewHandlers(games, followed{}, threads{})

	req := &Request{Chat: transport.ChatTarget{ChatID: chatID}, Args: []string{"EDM"}, Log: logx.Nop(), sender: &chatLog{}}
	require.Error(t, h.subscribe(context.Background(), req))
}

func TestSubscribersCountsChats(t *testing.T) {
	t.Parallel()
	h := NewHandlers(newGames(), followed{}, threads{})
	assert.Equal(t, []string{"Edmonton Oilers: 2 subscribed chat(s)."}, run(t, h, h.subscribers, 0, "EDM"))
}

func TestParse(t *testing.T) {
	t.Parallel()
	name, args, ok := parse("/NextGame@nhl_bot  edm 2")
	require.True(t, ok)
	assert.Equal(t, "nextgame", name)
	assert.Equal(t, []string{"edm", "2"}, args)

	_, _, ok = parse("great goal")
	assert.False(t, ok)
	_, _, ok = parse("/")
	assert.False(t, ok)
}

func TestRouterDispatch(t *testing.T) {
	t.Parallel()
	out := &chatLog{}
	r := NewRouter(RouterConfig{Workers: 1}, out, logx.Nop())
	h := NewHandlers(newGames(), followed{chatID: {nhl.EdmontonOilers}}, threads{})
	r.Register(h.Commands()...)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan transport.Message)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, in) }()

	in <- transport.Message{ChatID: chatID, ThreadID: 5, Text: "/next"}
	in <- transport.Message{ChatID: chatID, Text: "/bogus"}
	in <- transport.Message{ChatID: chatID, Text: "hello"}

	require.Eventually(t, func() bool { return len(out.texts()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	texts := out.texts()
	assert.Contains(t, texts, "Unknown command. Try /help")
	out.mu.Lock()
	defer out.mu.Unlock()
	for _, n := range out.sent {
		if n.Text != "Unknown command. Try /help" {
			assert.Equal(t, 5, n.Target.ThreadID)
			assert.Contains(t, n.Text, "Calgary Flames at Edmonton Oilers")
		}
	}
}

func TestMenuAndHelp(t *testing.T) {
	t.Parallel()
	r := NewRouter(RouterConfig{}, &chatLog{}, logx.Nop())
	r.Register(NewHandlers(newGames(), followed{}, threads{}).Commands()...)

	var names []string
	for _, c := range r.Menu() {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"help", "lastgame", "nextgame", "score", "subscribe", "subscribers"}, names)
	assert.Contains(t, r.helpText(), "/subscribe TEAM - follow a team in this chat")
}

func TestBusyQueue(t *testing.T) {
	t.Parallel()
	r := NewRouter(RouterConfig{QueueSize: 1}, &chatLog{}, logx.Nop())
	r.Register()
	ctx := context.Background()
	require.NoError(t, r.Dispatch(ctx, transport.Message{ChatID: chatID, Text: "/help"}))
	require.ErrorIs(t, r.Dispatch(ctx, transport.Message{ChatID: chatID, Text: "/help"}), ErrBusy)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()
	out := &chatLog{}
	req := &Request{Log: logx.Nop(), sender: out}
	h := Chain(func(context.Context, *Request) error { panic("boom") }, ReplyOnError(), RecoverPanics())
	err := h(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []string{"Something went wrong, try again later."}, out.texts())
}
