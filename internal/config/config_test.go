package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgridgo/internal/worker"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, worker.DefaultSize, cfg.Workers)
	assert.Empty(t, cfg.GraphsPath)
}

func TestNewNormalizes(t *testing.T) {
	t.Parallel()

	cfg, err := New(Config{LogFormat: "TEXT", LogLevel: "Debug", Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
}

func TestNewRejectsInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "bad format", cfg: Config{LogFormat: "yaml"}},
		{name: "bad level", cfg: Config{LogLevel: "verbose"}},
		{name: "negative workers", cfg: Config{Workers: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.cfg)
			assert.Error(t, err)
		})
	}
}
