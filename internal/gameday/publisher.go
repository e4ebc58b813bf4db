// Package gameday turns tracker output into chat messages: it opens a game
// channel in every chat following either team and posts into it.
package gameday

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"nhlbot/internal/channel"
	"nhlbot/internal/eventbus"
	"nhlbot/internal/nhl"
	"nhlbot/internal/subscription"
	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

type Subscribers interface {
	List(team nhl.Team) []subscription.Target
}

// Publisher implements tracker.Sink.
type Publisher struct {
	subs     Subscribers
	channels channel.Manager
	notify   Notifier
	bus      eventbus.Bus
	loc      *time.Location
	log      logx.Logger
}

// New builds a Publisher. loc is the zone game times are shown in; nil
// means each game's home team zone.
func New(subs Subscribers, channels channel.Manager, notify Notifier, bus eventbus.Bus, loc *time.Location, log logx.Logger) *Publisher {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Publisher{
		subs:     subs,
		channels: channels,
		notify:   notify,
		bus:      bus,
		loc:      loc,
		log:      log.With(logx.String("comp", "gameday")),
	}
}

// Open makes sure every following chat has the game's channel. A newly
// created channel gets the game details as its first message.
func (p *Publisher) Open(ctx context.Context, g *nhl.Game) error {
	name := g.ChannelName()
	var errs []error
	for _, t := range p.targets(g) {
		_, existed, err := p.channels.Lookup(ctx, t, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if existed {
			continue
		}
		ch, err := p.channels.Create(ctx, t, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.bus.Publish(eventbus.Event{Type: eventbus.ChannelCreated, Data: name})

		n := transport.Notification{
			Target: transport.ChatTarget{ChatID: ch.ChatID, ThreadID: ch.ThreadID},
			Text:   g.DetailsMessage(p.loc),
			Key:    fmt.Sprintf("details:%d", g.ID()),
		}
		if err := p.notify.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("post details for %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Post sends text to the game's channel in every following chat, creating
// the channel first if it went missing.
func (p *Publisher) Post(ctx context.Context, g *nhl.Game, text string) error {
	if text == "" {
		return nil
	}
	name := g.ChannelName()
	var errs []error
	for _, t := range p.targets(g) {
		ch, err := p.channels.Create(ctx, t, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n := transport.Notification{
			Target: transport.ChatTarget{ChatID: ch.ChatID, ThreadID: ch.ThreadID},
			Text:   text,
			Key:    fmt.Sprintf("post:%d:%s", g.ID(), text),
		}
		if err := p.notify.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("post to %s in %d: %w", name, t.ChatID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.log.Warn("post incomplete", logx.Int("game", g.ID()), logx.Err(err))
		return err
	}
	return nil
}

// targets is the union of both teams' subscribers, one per chat.
func (p *Publisher) targets(g *nhl.Game) []subscription.Target {
	seen := map[int64]bool{}
	var out []subscription.Target
	for _, team := range g.Teams() {
		for _, t := range p.subs.List(team) {
			if seen[t.ChatID] {
				continue
			}
			seen[t.ChatID] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}
