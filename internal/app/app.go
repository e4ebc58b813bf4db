// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"nhlbot/internal/channel"
	"nhlbot/internal/commands"
	"nhlbot/internal/config"
	"nhlbot/internal/eventbus"
	"nhlbot/internal/gameday"
	"nhlbot/internal/metrics"
	"nhlbot/internal/nhl/statsapi"
	"nhlbot/internal/notifier"
	"nhlbot/internal/observability/debug"
	"nhlbot/internal/runtime/supervisor"
	"nhlbot/internal/scheduler"
	"nhlbot/internal/storage"
	"nhlbot/internal/subscription"
	"nhlbot/internal/transport"
	"nhlbot/internal/transport/telegram/adapter"
	"nhlbot/pkg/logx"
)

// ChatAdapter is what the bot needs from a chat platform.
type ChatAdapter interface {
	transport.Adapter
	transport.TopicAdapter
}

type Option func(*options)

type options struct {
	adapter ChatAdapter
	source  scheduler.Source
}

// WithAdapter replaces the Telegram adapter.
func WithAdapter(a ChatAdapter) Option { return func(o *options) { o.adapter = a } }

// WithSource replaces the stats API client.
func WithSource(s scheduler.Source) Option { return func(o *options) { o.source = s } }

type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	rec   *metrics.Recorder

	adapter ChatAdapter
	subs    *subscription.Registry
	notif   *notifier.Service
	sched   *scheduler.Scheduler
	router  *commands.Router
	debug   *debug.Server

	sup   *supervisor.Supervisor
	inbox chan transport.Message
}

// New builds every component from the manager's current config. Nothing is
// started and no network calls are made.
func New(cfgm *config.Manager, opts ...Option) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	chat := o.adapter
	if chat == nil {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := adapter.New(adapter.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, logx.NewConsole(cfg.Logging.Level))
		if err != nil {
			return nil, err
		}
		chat = tg
	}

	logs, log := logx.New(mapLogging(cfg), chat)
	applog := log.With(logx.String("comp", "app"))

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	src := o.source
	if src == nil {
		ac, err := mapStatsAPI(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		src = statsapi.New(ac, log)
	}

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rcfg, err := mapCommands(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	rec := metrics.New()
	subs := subscription.NewRegistry(store, log)
	notif := notifier.New(ncfg, chat, store, rec, log)
	channels := channel.NewTopicManager(chat, store, rec, log)
	// game times default to the home team's zone
	var postLoc *time.Location
	if strings.TrimSpace(cfg.Scheduler.Timezone) != "" {
		postLoc = schedCfg.Location
	}
	publisher := gameday.New(subs, channels, notif, bus, postLoc, log)
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Source:   src,
		Channels: channels,
		Sink:     publisher,
		Subs:     subs,
		Bus:      bus,
		Recorder: rec,
		Log:      log,
	})
	router := commands.NewRouter(rcfg, chat, log)
	router.Register(commands.NewHandlers(sched, subs, channels).Commands()...)

	a := &App{
		cfgm:    cfgm,
		log:     applog,
		logs:    logs,
		bus:     bus,
		store:   store,
		rec:     rec,
		adapter: chat,
		subs:    subs,
		notif:   notif,
		sched:   sched,
		router:  router,
		inbox:   make(chan transport.Message, 256),
	}
	if cfg.Debug.Enabled {
		dc, err := mapDebug(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.debug = debug.New(dc, rec.Handler(), a.Status, log)
	}
	return a, nil
}

// Scheduler exposes the game scheduler, mainly for tests.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Start runs every component. A failure to load the season catalogue is
// returned; everything else degrades and is logged.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	if err := a.subs.Load(ctx); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	a.sup.Go0("metrics.events", func(c context.Context) { a.rec.Watch(c, a.bus) })
	a.notif.Start(sctx)

	if err := a.sched.Start(sctx); err != nil {
		return err
	}
	if err := a.adapter.Start(sctx, a.inbox); err != nil {
		return fmt.Errorf("chat adapter: %w", err)
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.inbox)
	})
	if up, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, a.router.Menu()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}
	if a.debug != nil {
		a.sup.GoRestart("debug.http", a.debug.Run, 500*time.Millisecond, 10*time.Second)
	}
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.sup.Go0("config.watch", func(c context.Context) { _ = a.cfgm.Watch(c) })
	updates := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		a.applyLoop(c, updates)
	})

	a.log.Info("started", logx.Strings("followed", teamCodes(a.sched)))
	return nil
}

// Stop shuts components down in dependency order: no new game events, then
// drain outgoing messages, then the chat connection and storage.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.notif.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if err := a.adapter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat adapter: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("stopped with errors", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	_ = a.logs.Close()
	return err
}

// Done is closed when a supervised component fails or Stop is called.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

type status struct {
	Windows    map[string][]int `json:"windows"`
	Trackers   []int            `json:"trackers"`
	Goroutines []string         `json:"goroutines"`
}

// Status is served on the debug server's /status.
func (a *App) Status() any {
	st := status{Windows: map[string][]int{}, Trackers: a.sched.ActiveTrackers()}
	for team, games := range a.sched.Windows() {
		ids := make([]int, 0, len(games))
		for _, g := range games {
			ids = append(ids, g.ID())
		}
		st.Windows[team.Code()] = ids
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Running()
	}
	return st
}

func (a *App) applyLoop(ctx context.Context, updates <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		return
	}
	var restart []string
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(next))
		case "notifier":
			ncfg, err := mapNotifier(next)
			if err != nil {
				a.log.Warn("notifier config not applied", logx.Err(err))
				continue
			}
			a.notif.Apply(ncfg)
		}
		if !config.LiveSections[s] {
			restart = append(restart, s)
		}
	}
	fields = append(fields, logx.String("changed", strings.Join(sections, ",")))
	a.log.Info("config applied", fields...)
	if len(restart) > 0 {
		a.log.Warn("config sections need a restart", logx.Strings("sections", restart))
	}
}

func teamCodes(s *scheduler.Scheduler) []string {
	var out []string
	for team := range s.Windows() {
		out = append(out, team.Code())
	}
	sort.Strings(out)
	return out
}
