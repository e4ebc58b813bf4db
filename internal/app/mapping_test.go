package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nhlbot/internal/config"
)

func TestMapStatsAPIRetryMax(t *testing.T) {
	intp := func(n int) *int { return &n }
	tests := []struct {
		name string
		in   *int
		want int
	}{
		{"unset keeps client default", nil, 0},
		{"explicit zero disables retries", intp(0), -1},
		{"explicit count", intp(5), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{NHL: config.NHLConfig{RetryMax: tt.in}}
			out, err := mapStatsAPI(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.RetryMax)
		})
	}
}
