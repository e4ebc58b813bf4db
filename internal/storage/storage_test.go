package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nhlbot.db")}, logx.Nop())
	require.NoError(t, err)
	mem, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sq.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func TestSubscriptionsKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.AddSubscription(ctx, Subscription{Team: 22, ChatID: -100}))
			require.NoError(t, st.AddSubscription(ctx, Subscription{Team: 23, ChatID: -200}))
			require.NoError(t, st.AddSubscription(ctx, Subscription{Team: 22, ChatID: -100}))

			subs, err := st.Subscriptions(ctx)
			require.NoError(t, err)
			require.Len(t, subs, 3)
			assert.Equal(t, 22, subs[0].Team)
			assert.Equal(t, int64(-200), subs[1].ChatID)
			assert.False(t, subs[2].CreatedAt.IsZero())
		})
	}
}

func TestChannelRegistry(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.PutChannel(ctx, ChannelRecord{ChatID: -100, Name: "van-vs-edm-16-10-12", ThreadID: 7}))
			require.NoError(t, st.PutChannel(ctx, ChannelRecord{ChatID: -100, Name: "cgy-vs-edm-16-10-15", ThreadID: 9}))
			require.NoError(t, st.PutChannel(ctx, ChannelRecord{ChatID: -200, Name: "cgy-vs-edm-16-10-15", ThreadID: 3}))

			got, err := st.Channels(ctx, -100)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "cgy-vs-edm-16-10-15", got[0].Name)
			assert.Equal(t, 7, got[1].ThreadID)

			removed, err := st.DeleteChannel(ctx, -100, "van-vs-edm-16-10-12")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = st.DeleteChannel(ctx, -100, "van-vs-edm-16-10-12")
			require.NoError(t, err)
			assert.False(t, removed)

			got, err = st.Channels(ctx, -300)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			require.NoError(t, st.PutDedup(ctx, "goal:1:51", until))

			got, ok, err := st.GetDedup(ctx, "goal:1:51")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, until.Equal(got))

			_, ok, err = st.GetDedup(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	t.Parallel()
	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Close())
			require.NoError(t, st.Close())
			err := st.AppendAudit(context.Background(), AuditEntry{Action: "channel.create"})
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis"}, logx.Logger{})
	assert.Error(t, err)
}

func TestMemoryAuditLog(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{Action: "subscribe", Target: "EDM"}))
	log := AuditLog(st)
	require.Len(t, log, 1)
	assert.Equal(t, "EDM", log[0].Target)
}
