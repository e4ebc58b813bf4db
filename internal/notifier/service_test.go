package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/storage"
	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int // fail this many calls before succeeding
	calls int
	sent  []transport.Notification
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return transport.MessageRef{}, errors.New("flood wait")
	}
	f.sent = append(f.sent, transport.Notification{Target: to, Text: text})
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) snapshot() (int, []transport.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]transport.Notification(nil), f.sent...)
}

type results struct {
	mu sync.Mutex
	n  map[string]int
}

func (r *results) Notification(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == nil {
		r.n = map[string]int{}
	}
	r.n[result]++
}

func (r *results) get(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n[result]
}

func fastConfig() Config {
	return Config{
		Workers:     1,
		QueueSize:   8,
		RatePerSec:  1000,
		RetryMax:    2,
		RetryBase:   time.Millisecond,
		DedupWindow: time.Minute,
	}
}

func target(thread int) transport.ChatTarget {
	return transport.ChatTarget{ChatID: -100, ThreadID: thread}
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	rec := &results{}
	s := New(fastConfig(), snd, nil, rec, logx.Nop())
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), transport.Notification{Target: target(7), Text: "Edmonton Oilers goal!"}))
	stop(t, s)

	_, sent := snd.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, target(7), sent[0].Target)
	assert.Equal(t, 1, rec.get("sent"))
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 2}
	rec := &results{}
	s := New(fastConfig(), snd, nil, rec, logx.Nop())
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), transport.Notification{Target: target(7), Text: "x"}))
	stop(t, s)

	calls, sent := snd.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, sent, 1)
	assert.Equal(t, 0, rec.get("failed"))
}

func TestNotifyGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 100}
	rec := &results{}
	s := New(fastConfig(), snd, nil, rec, logx.Nop())
	s.Start(context.Background())

	require.NoError(t, s.Notify(context.Background(), transport.Notification{Target: target(7), Text: "x"}))
	stop(t, s)

	calls, sent := snd.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, sent)
	assert.Equal(t, 1, rec.get("failed"))
}

func TestDedupSuppressesRepeats(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	rec := &results{}
	s := New(fastConfig(), snd, nil, rec, logx.Nop())
	s.Start(context.Background())

	ctx := context.Background()
	n := transport.Notification{Target: target(7), Text: "same", Key: "goal:2016020001:55"}
	require.NoError(t, s.Notify(ctx, n))
	require.NoError(t, s.Notify(ctx, n))
	// same text in another thread is a different message
	require.NoError(t, s.Notify(ctx, transport.Notification{Target: target(8), Text: "same", Key: n.Key}))
	stop(t, s)

	_, sent := snd.snapshot()
	assert.Len(t, sent, 2)
	assert.Equal(t, 1, rec.get("deduped"))
}

func TestPersistedDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	cfg := fastConfig()
	cfg.PersistDedup = true
	n := transport.Notification{Target: target(7), Text: "goal", Key: "goal:1:1"}

	first := &fakeSender{}
	s1 := New(cfg, first, store, nil, logx.Nop())
	s1.Start(context.Background())
	require.NoError(t, s1.Notify(context.Background(), n))
	stop(t, s1)

	second := &fakeSender{}
	s2 := New(cfg, second, store, nil, logx.Nop())
	s2.Start(context.Background())
	require.NoError(t, s2.Notify(context.Background(), n))
	stop(t, s2)

	_, a := first.snapshot()
	_, b := second.snapshot()
	assert.Len(t, a, 1)
	assert.Empty(t, b)
}

func TestNotifyAfterStop(t *testing.T) {
	t.Parallel()
	s := New(fastConfig(), &fakeSender{}, nil, nil, logx.Nop())
	err := s.Notify(context.Background(), transport.Notification{Target: target(1), Text: "x"})
	require.ErrorIs(t, err, ErrStopped)

	s.Start(context.Background())
	stop(t, s)
	err = s.Notify(context.Background(), transport.Notification{Target: target(1), Text: "x"})
	require.ErrorIs(t, err, ErrStopped)
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	snd := &blockingSender{release: block, entered: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	cfg.DedupWindow = 0
	rec := &results{}
	s := New(cfg, snd, nil, rec, logx.Nop())
	s.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, transport.Notification{Target: target(1), Text: "a"}))
	<-snd.entered
	require.NoError(t, s.Notify(ctx, transport.Notification{Target: target(1), Text: "b"}))
	err := s.Notify(ctx, transport.Notification{Target: target(1), Text: "c"})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, rec.get("dropped"))

	close(block)
	stop(t, s)
}

type blockingSender struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingSender) SendText(ctx context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return transport.MessageRef{}, ctx.Err()
	}
	return transport.MessageRef{ChatID: to.ChatID}, nil
}
