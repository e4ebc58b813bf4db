package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nhlbot/internal/nhl"
	"nhlbot/internal/nhl/nhltest"
	"nhlbot/internal/storage"
	"nhlbot/internal/subscription"
	"nhlbot/internal/tracker"
	"nhlbot/pkg/logx"
)

func day(n int) time.Time { return time.Date(2016, time.October, n, 23, 0, 0, 0, time.UTC) }

// fakeSource serves a mutable set of snapshots.
type fakeSource struct {
	mu          sync.Mutex
	games       map[int]nhl.Snapshot
	scheduleErr error
	calls       int
}

func newFakeSource(snaps ...nhl.Snapshot) *fakeSource {
	f := &fakeSource{games: map[int]nhl.Snapshot{}}
	for _, s := range snaps {
		f.games[s.GamePk] = s
	}
	return f
}

func (f *fakeSource) set(s nhl.Snapshot) {
	f.mu.Lock()
	f.games[s.GamePk] = s
	f.mu.Unlock()
}

func (f *fakeSource) Schedule(_ context.Context, team nhl.Team, _, _ time.Time) ([]nhl.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	var out []nhl.Snapshot
	for _, s := range f.games {
		if s.Teams.Away.Team.ID == team.ID() || s.Teams.Home.Team.ID == team.ID() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameDate.Before(out[j].GameDate) })
	return out, nil
}

func (f *fakeSource) Game(_ context.Context, id int) (nhl.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.games[id]
	if !ok {
		return nhl.Snapshot{}, errors.New("no such game")
	}
	return s, nil
}

// fakeChannels holds channel names per chat and records deletions.
type fakeChannels struct {
	mu        sync.Mutex
	names     map[int64][]string
	deleted   []string // "chat/name"
	deleteErr error
}

func newFakeChannels() *fakeChannels { return &fakeChannels{names: map[int64][]string{}} }

func (f *fakeChannels) add(chatID int64, names ...string) {
	f.mu.Lock()
	f.names[chatID] = append(f.names[chatID], names...)
	f.mu.Unlock()
}

func (f *fakeChannels) List(_ context.Context, target subscription.Target) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names[target.ChatID]...), nil
}

func (f *fakeChannels) Delete(_ context.Context, target subscription.Target, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, formatDeletion(target.ChatID, name))
	kept := f.names[target.ChatID][:0]
	for _, n := range f.names[target.ChatID] {
		if !strings.EqualFold(n, name) {
			kept = append(kept, n)
		}
	}
	f.names[target.ChatID] = kept
	return nil
}

func (f *fakeChannels) deletions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func formatDeletion(chatID int64, name string) string {
	return fmt.Sprintf("%d/%s", chatID, strings.ToLower(name))
}

type nopSink struct {
	mu     sync.Mutex
	opened []int
}

func (s *nopSink) Open(_ context.Context, g *nhl.Game) error {
	s.mu.Lock()
	s.opened = append(s.opened, g.ID())
	s.mu.Unlock()
	return nil
}

func (*nopSink) Post(context.Context, *nhl.Game, string) error { return nil }

type harness struct {
	s        *Scheduler
	src      *fakeSource
	channels *fakeChannels
	sink     *nopSink
	subs     *subscription.Registry
}

func newHarness(t *testing.T, cfg Config, snaps ...nhl.Snapshot) *harness {
	t.Helper()
	h := &harness{
		src:      newFakeSource(snaps...),
		channels: newFakeChannels(),
		sink:     &nopSink{},
		subs:     subscription.NewRegistry(storage.NewMemory(), logx.Nop()),
	}
	if cfg.Tracker == (tracker.Config{}) {
		cfg.Tracker = tracker.Config{LiveInterval: time.Millisecond, IdleInterval: time.Millisecond, WarmupWindow: time.Hour}
	}
	h.s = New(cfg, Deps{
		Source:   h.src,
		Channels: h.channels,
		Sink:     h.sink,
		Subs:     h.subs,
		Log:      logx.Nop(),
		Now:      func() time.Time { return day(10) },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.s.Stop(ctx))
	})
	return h
}

func (h *harness) follow(t *testing.T, team nhl.Team, chatIDs ...int64) {
	t.Helper()
	for _, id := range chatIDs {
		require.NoError(t, h.subs.Subscribe(context.Background(), team, subscription.Target{ChatID: id}))
	}
}

func (h *harness) game(id int) *nhl.Game {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.byID[id]
}

func (h *harness) waitFinished(t *testing.T, id int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.s.mu.RLock()
		defer h.s.mu.RUnlock()
		tr, ok := h.s.trackers[id]
		return ok && tr.Finished()
	}, 5*time.Second, time.Millisecond)
}

func windowIDs(w []*nhl.Game) []int {
	out := make([]int, 0, len(w))
	for _, g := range w {
		out = append(out, g.ID())
	}
	return out
}

func channelName(s nhl.Snapshot) string { return nhltest.MustParse(s).ChannelName() }
