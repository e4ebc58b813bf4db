package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/transport"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "tracker"), Int("game", 2021020101))

	log.Debug("skipped")
	log.Info("polled", String("status", "LIVE"), Err(nil))
	log.Warn("fetch failed", Err(errors.New("timeout")), Duration("backoff", time.Second))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "polled", lines[0]["message"])
	assert.Equal(t, "tracker", lines[0]["comp"])
	assert.EqualValues(t, 2021020101, lines[0]["game"])
	assert.Equal(t, "LIVE", lines[0]["status"])
	assert.NotContains(t, lines[0], "error")
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Contains(t, lines[1]["caller"], "logging_test.go")
}

func TestWithDoesNotAlias(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriter(&buf, "debug").With(String("comp", "a"))
	x := base.With(String("k", "x"))
	y := base.With(String("k", "y"))
	x.Info("one")
	y.Info("two")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "x", lines[0]["k"])
	assert.Equal(t, "y", lines[1]["k"])
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	assert.False(t, Nop().IsZero())
	log.Error("nothing happens", String("k", "v"))
	assert.False(t, log.Enabled(LevelError))
}

func TestFormatChatLine(t *testing.T) {
	line := `{"level":"warn","time":"2024-01-01T00:00:00Z","message":"channel delete failed","team":"VAN","chat":-100}`
	assert.Equal(t, "[WARN] channel delete failed\n- chat=-100\n- team=VAN", formatChatLine([]byte(line)))
	assert.Equal(t, "not json", formatChatLine([]byte("  not json \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warning ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.TraceLevel, parseLevel("TRACE", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", zerolog.InfoLevel))
}

type chatSender struct {
	mu   sync.Mutex
	sent []string
	to   []transport.ChatTarget
}

func (c *chatSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (c *chatSender) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	sender := &chatSender{}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, ChatID: -1001, ThreadID: 7, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	defer func() { _ = svc.Close() }()

	log.Info("window built")
	log.Warn("schedule fetch failed", String("team", "EDM"))

	require.Eventually(t, func() bool { return len(sender.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := sender.messages()[0]
	assert.True(t, strings.HasPrefix(msg, "[WARN] schedule fetch failed"))
	assert.Contains(t, msg, "- team=EDM")
	assert.Equal(t, transport.ChatTarget{ChatID: -1001, ThreadID: 7}, sender.to[0])
}

func TestApplyRaisesLevel(t *testing.T) {
	sender := &chatSender{}
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, ChatID: 1, MinLevel: "trace", RatePerSec: 10}}, sender)
	defer func() { _ = svc.Close() }()
	assert.True(t, log.Enabled(LevelDebug))

	svc.Apply(Config{Level: "error", Chat: ChatConfig{Enabled: true, ChatID: 1, MinLevel: "trace", RatePerSec: 10}})
	assert.False(t, log.Enabled(LevelWarn))
	log.Warn("suppressed")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sender.messages())
}
