package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/transport"
	"nhlbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{name: "short", in: "TOR 1 - 0 OTT", limit: 100, want: []string{"TOR 1 - 0 OTT"}},
		{name: "hard cut", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "newline boundary", in: "aaaa\nbbbb\ncc", limit: 8, want: []string{"aaaa", "bbbb\ncc"}},
		{name: "multibyte", in: "ééééé", limit: 2, want: []string{"éé", "éé", "é"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, splitText(tc.in, tc.limit))
		})
	}
}

func TestSplitTextKeepsEverything(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("Goal!\n", 2000)
	chunks := splitText(in, textLimit)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), textLimit)
	}
	assert.Equal(t, strings.Count(in, "Goal!"), strings.Count(strings.Join(chunks, "\n"), "Goal!"))
}

func TestMapError(t *testing.T) {
	t.Parallel()
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(errors.New("telegram: Bad Request: message thread not found (400)")), transport.ErrTopicNotFound)
	assert.ErrorIs(t, mapError(errors.New("telegram: Bad Request: TOPIC_ID_INVALID (400)")), transport.ErrTopicNotFound)
	other := errors.New("telegram: Forbidden: bot was kicked (403)")
	assert.Same(t, other, mapError(other))
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Stop(context.Background()))
}
