// Package subscription maps teams to the chats that follow them.
package subscription

import (
	"context"
	"fmt"
	"sync"

	"nhlbot/internal/nhl"
	"nhlbot/internal/storage"
	"nhlbot/pkg/logx"
)

// Target is a chat that receives a team's game channels.
type Target struct {
	ChatID int64
}

// Registry is team -> ordered targets. Subscribing the same pair twice keeps
// both entries.
type Registry struct {
	store storage.Store
	log   logx.Logger

	mu   sync.RWMutex
	subs map[nhl.Team][]Target
}

func NewRegistry(store storage.Store, log logx.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log.With(logx.String("comp", "subscriptions")),
		subs:  map[nhl.Team][]Target{},
	}
}

// Load replaces the in-memory state with what storage holds.
func (r *Registry) Load(ctx context.Context) error {
	rows, err := r.store.Subscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	subs := map[nhl.Team][]Target{}
	for _, row := range rows {
		team, ok := nhl.TeamByID(row.Team)
		if !ok {
			r.log.Warn("skipping subscription for unknown team", logx.Int("team", row.Team), logx.Int64("chat_id", row.ChatID))
			continue
		}
		subs[team] = append(subs[team], Target{ChatID: row.ChatID})
	}
	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
	r.log.Info("subscriptions loaded", logx.Int("rows", len(rows)), logx.Int("teams", len(subs)))
	return nil
}

// Subscribe persists and appends target to team's list.
func (r *Registry) Subscribe(ctx context.Context, team nhl.Team, target Target) error {
	if !team.Valid() {
		return fmt.Errorf("subscribe: %w: %d", nhl.ErrUnknownTeam, team)
	}
	if err := r.store.AddSubscription(ctx, storage.Subscription{Team: team.ID(), ChatID: target.ChatID}); err != nil {
		return fmt.Errorf("subscribe %s: %w", team.Code(), err)
	}
	r.mu.Lock()
	r.subs[team] = append(r.subs[team], target)
	r.mu.Unlock()

	if err := r.store.AppendAudit(ctx, storage.AuditEntry{ChatID: target.ChatID, Action: "subscribe", Target: team.Code()}); err != nil {
		r.log.Warn("audit append failed", logx.Err(err))
	}
	return nil
}

// List returns a copy of team's targets.
func (r *Registry) List(team nhl.Team) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Target(nil), r.subs[team]...)
}

// Teams lists every team with at least one target, ordered by id.
func (r *Registry) Teams() []nhl.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []nhl.Team
	for _, t := range nhl.AllTeams() {
		if len(r.subs[t]) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TeamsFor lists the teams chatID follows, ordered by id.
func (r *Registry) TeamsFor(chatID int64) []nhl.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []nhl.Team
	for _, t := range nhl.AllTeams() {
		for _, target := range r.subs[t] {
			if target.ChatID == chatID {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
