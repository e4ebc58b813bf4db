// Package tracker polls one game until it is final and reports what changed.
package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"nhlbot/internal/nhl"
	"nhlbot/pkg/logx"
)

// Source refreshes a single game.
type Source interface {
	Game(ctx context.Context, gamePk int) (nhl.Snapshot, error)
}

// Sink receives the messages a tracker produces. Open is called once when
// tracking starts; Post at most once per new goal or status transition.
type Sink interface {
	Open(ctx context.Context, g *nhl.Game) error
	Post(ctx context.Context, g *nhl.Game, text string) error
}

// Recorder observes poll outcomes ("ok", "fetch_error", "update_error").
type Recorder interface {
	TrackerPoll(result string)
}

type Config struct {
	LiveInterval time.Duration // while in progress or about to start
	IdleInterval time.Duration // otherwise
	WarmupWindow time.Duration // how long before puck drop to switch to LiveInterval
}

func (c Config) withDefaults() Config {
	if c.LiveInterval <= 0 {
		c.LiveInterval = 10 * time.Second
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 5 * time.Minute
	}
	if c.IdleInterval < c.LiveInterval {
		c.IdleInterval = c.LiveInterval
	}
	if c.WarmupWindow <= 0 {
		c.WarmupWindow = 30 * time.Minute
	}
	return c
}

// Tracker is bound to one game for its whole life. Two trackers are
// duplicates when their ID matches.
type Tracker struct {
	game *nhl.Game
	src  Source
	sink Sink
	rec  Recorder
	cfg  Config
	log  logx.Logger
	now  func() time.Time

	started  atomic.Bool
	finished atomic.Bool
	done     chan struct{}

	// owned by the Run goroutine
	seen       map[int]struct{}
	lastStatus nhl.Status
}

type Option func(*Tracker)

func WithRecorder(r Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.rec = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(g *nhl.Game, src Source, sink Sink, cfg Config, log logx.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		game: g,
		src:  src,
		sink: sink,
		rec:  nopRecorder{},
		cfg:  cfg.withDefaults(),
		log:  log.With(logx.String("comp", "tracker"), logx.Int("game", g.ID())),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) ID() int               { return t.game.ID() }
func (t *Tracker) Game() *nhl.Game       { return t.game }
func (t *Tracker) Started() bool         { return t.started.Load() }
func (t *Tracker) Finished() bool        { return t.finished.Load() }
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Run polls until the game is final or ctx is canceled. Only the first call
// does anything; later calls return nil immediately.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	defer close(t.done)

	st := t.game.State()
	t.seen = make(map[int]struct{}, len(st.Events))
	for _, e := range st.Events {
		t.seen[e.ID] = struct{}{}
	}
	t.lastStatus = st.Status
	if st.Status == nhl.StatusFinal {
		t.finished.Store(true)
		return nil
	}

	t.log.Info("tracking game", logx.String("matchup", t.game.ChannelName()), logx.String("status", st.Status.String()))
	if err := t.sink.Open(ctx, t.game); err != nil {
		t.log.Warn("open game channels failed", logx.Err(err))
	}

	timer := time.NewTimer(t.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Debug("tracker stopped", logx.Err(ctx.Err()))
			return ctx.Err()
		case <-timer.C:
		}
		if t.poll(ctx) {
			t.finished.Store(true)
			t.log.Info("game final, tracker finished", logx.String("score", t.game.ScoreMessage()))
			return nil
		}
		timer.Reset(t.nextDelay())
	}
}

// poll refreshes the game once and reports whether it is now final.
func (t *Tracker) poll(ctx context.Context) bool {
	snap, err := t.src.Game(ctx, t.game.ID())
	if err != nil {
		t.rec.TrackerPoll("fetch_error")
		t.log.Warn("game refresh failed", logx.Err(err))
		return false
	}
	if err := t.game.Update(snap); err != nil {
		t.rec.TrackerPoll("update_error")
		t.log.Warn("game snapshot rejected", logx.Err(err))
		return false
	}
	t.rec.TrackerPoll("ok")

	st := t.game.State()
	if st.Status != t.lastStatus {
		t.log.Info("game status changed", logx.String("from", t.lastStatus.String()), logx.String("to", st.Status.String()))
		t.lastStatus = st.Status
		if msg := t.game.StatusMessage(st.Status); msg != "" {
			t.post(ctx, msg)
		}
	}
	for _, e := range st.Events {
		if _, ok := t.seen[e.ID]; ok {
			continue
		}
		t.seen[e.ID] = struct{}{}
		t.post(ctx, t.game.GoalMessage(e))
	}
	return st.Status == nhl.StatusFinal
}

func (t *Tracker) post(ctx context.Context, text string) {
	if err := t.sink.Post(ctx, t.game, text); err != nil {
		t.log.Warn("post failed", logx.Err(err))
	}
}

func (t *Tracker) nextDelay() time.Duration {
	if t.game.IsInProgress() {
		return t.cfg.LiveInterval
	}
	untilWarmup := t.game.Date().Sub(t.now()) - t.cfg.WarmupWindow
	switch {
	case untilWarmup <= 0:
		return t.cfg.LiveInterval
	case untilWarmup < t.cfg.IdleInterval:
		return max(untilWarmup, t.cfg.LiveInterval)
	default:
		return t.cfg.IdleInterval
	}
}

type nopRecorder struct{}

func (nopRecorder) TrackerPoll(string) {}
