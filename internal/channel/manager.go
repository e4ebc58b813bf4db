// Package channel keeps one chat channel per tracked game and target.
//
// On Telegram a channel is a forum topic. The Bot API cannot enumerate
// topics, so the channel registry in storage is what List reads.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"nhlbot/internal/storage"
	"nhlbot/internal/subscription"
	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

type Channel struct {
	ChatID   int64
	Name     string
	ThreadID int
}

// Manager creates, deletes and enumerates channels for a target.
type Manager interface {
	Create(ctx context.Context, target subscription.Target, name string) (Channel, error)
	// Delete is a no-op when the channel does not exist.
	Delete(ctx context.Context, target subscription.Target, name string) error
	List(ctx context.Context, target subscription.Target) ([]string, error)
	Lookup(ctx context.Context, target subscription.Target, name string) (Channel, bool, error)
	// Resolve maps a thread back to the channel name it was created for.
	Resolve(ctx context.Context, chatID int64, threadID int) (string, bool, error)
}

// Recorder observes channel operations.
type Recorder interface {
	ChannelOp(op, result string)
}

type TopicManager struct {
	topics transport.TopicAdapter
	store  storage.Store
	rec    Recorder
	log    logx.Logger

	// serializes create/delete per chat so concurrent trackers cannot open
	// the same topic twice
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewTopicManager(topics transport.TopicAdapter, store storage.Store, rec Recorder, log logx.Logger) *TopicManager {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &TopicManager{
		topics: topics,
		store:  store,
		rec:    rec,
		log:    log.With(logx.String("comp", "channels")),
		locks:  map[int64]*sync.Mutex{},
	}
}

func (m *TopicManager) chatLock(chatID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[chatID] = l
	}
	return l
}

// Create returns the existing channel when one is already recorded.
func (m *TopicManager) Create(ctx context.Context, target subscription.Target, name string) (Channel, error) {
	l := m.chatLock(target.ChatID)
	l.Lock()
	defer l.Unlock()

	if ch, ok, err := m.Lookup(ctx, target, name); err != nil {
		return Channel{}, err
	} else if ok {
		return ch, nil
	}

	threadID, err := m.topics.CreateTopic(ctx, target.ChatID, name)
	if err != nil {
		m.rec.ChannelOp("create", "error")
		return Channel{}, fmt.Errorf("create channel %s in %d: %w", name, target.ChatID, err)
	}
	if err := m.store.PutChannel(ctx, storage.ChannelRecord{ChatID: target.ChatID, Name: name, ThreadID: threadID}); err != nil {
		m.rec.ChannelOp("create", "error")
		return Channel{}, fmt.Errorf("record channel %s: %w", name, err)
	}
	m.rec.ChannelOp("create", "ok")
	m.audit(ctx, target, "channel.create", name, nil)
	m.log.Info("channel created", logx.Int64("chat_id", target.ChatID), logx.String("name", name), logx.Int("thread_id", threadID))
	return Channel{ChatID: target.ChatID, Name: name, ThreadID: threadID}, nil
}

func (m *TopicManager) Delete(ctx context.Context, target subscription.Target, name string) error {
	l := m.chatLock(target.ChatID)
	l.Lock()
	defer l.Unlock()

	ch, ok, err := m.Lookup(ctx, target, name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	err = m.topics.DeleteTopic(ctx, target.ChatID, ch.ThreadID)
	if err != nil && !errors.Is(err, transport.ErrTopicNotFound) {
		m.rec.ChannelOp("delete", "error")
		m.audit(ctx, target, "channel.delete", name, err)
		return fmt.Errorf("delete channel %s in %d: %w", name, target.ChatID, err)
	}
	if _, err := m.store.DeleteChannel(ctx, target.ChatID, ch.Name); err != nil {
		m.rec.ChannelOp("delete", "error")
		return fmt.Errorf("forget channel %s: %w", name, err)
	}
	m.rec.ChannelOp("delete", "ok")
	m.audit(ctx, target, "channel.delete", name, nil)
	m.log.Info("channel deleted", logx.Int64("chat_id", target.ChatID), logx.String("name", name))
	return nil
}

func (m *TopicManager) List(ctx context.Context, target subscription.Target) ([]string, error) {
	recs, err := m.store.Channels(ctx, target.ChatID)
	if err != nil {
		return nil, fmt.Errorf("list channels in %d: %w", target.ChatID, err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out, nil
}

// Lookup matches names case-insensitively.
func (m *TopicManager) Lookup(ctx context.Context, target subscription.Target, name string) (Channel, bool, error) {
	recs, err := m.store.Channels(ctx, target.ChatID)
	if err != nil {
		return Channel{}, false, fmt.Errorf("lookup channel %s: %w", name, err)
	}
	for _, r := range recs {
		if strings.EqualFold(r.Name, name) {
			return Channel{ChatID: r.ChatID, Name: r.Name, ThreadID: r.ThreadID}, true, nil
		}
	}
	return Channel{}, false, nil
}

func (m *TopicManager) Resolve(ctx context.Context, chatID int64, threadID int) (string, bool, error) {
	if threadID == 0 {
		return "", false, nil
	}
	recs, err := m.store.Channels(ctx, chatID)
	if err != nil {
		return "", false, err
	}
	for _, r := range recs {
		if r.ThreadID == threadID {
			return r.Name, true, nil
		}
	}
	return "", false, nil
}

func (m *TopicManager) audit(ctx context.Context, target subscription.Target, action, name string, opErr error) {
	e := storage.AuditEntry{ChatID: target.ChatID, Action: action, Target: name}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := m.store.AppendAudit(ctx, e); err != nil {
		m.log.Debug("audit append failed", logx.Err(err))
	}
}

type nopRecorder struct{}

func (nopRecorder) ChannelOp(string, string) {}
