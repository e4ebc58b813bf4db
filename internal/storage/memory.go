package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.Mutex
	closed   bool
	subs     []Subscription
	channels map[int64]map[string]ChannelRecord
	audit    []AuditEntry
	dedup    map[string]time.Time
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memoryStore{
		channels: map[int64]map[string]ChannelRecord{},
		dedup:    map[string]time.Time{},
	}
}

func (m *memoryStore) AddSubscription(_ context.Context, s Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.subs = append(m.subs, s)
	return nil
}

func (m *memoryStore) Subscriptions(context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]Subscription(nil), m.subs...), nil
}

func (m *memoryStore) PutChannel(_ context.Context, c ChannelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	byName := m.channels[c.ChatID]
	if byName == nil {
		byName = map[string]ChannelRecord{}
		m.channels[c.ChatID] = byName
	}
	byName[c.Name] = c
	return nil
}

func (m *memoryStore) DeleteChannel(_ context.Context, chatID int64, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	byName := m.channels[chatID]
	if _, ok := byName[name]; !ok {
		return false, nil
	}
	delete(byName, name)
	return true, nil
}

func (m *memoryStore) Channels(_ context.Context, chatID int64) ([]ChannelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]ChannelRecord, 0, len(m.channels[chatID]))
	for _, c := range m.channels[chatID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *memoryStore) PutDedup(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if key == "" {
		return nil
	}
	m.dedup[key] = until
	now := time.Now()
	for k, u := range m.dedup {
		if u.Before(now) {
			delete(m.dedup, k)
		}
	}
	return nil
}

func (m *memoryStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return time.Time{}, false, ErrClosed
	}
	until, ok := m.dedup[key]
	return until, ok, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// AuditLog returns the audit entries of a memory store, oldest first.
// It returns nil for other drivers.
func AuditLog(s Store) []AuditEntry {
	m, ok := s.(*memoryStore)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}
