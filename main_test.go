package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"error+2": slog.LevelError + 2,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input), "level %q", input)
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("environment override", func(t *testing.T) {
		// Given:
		t.Setenv(configPathEnv, "/etc/polyhex/config.yml")

		// When:
		path, err := configPath()

		// Then:
		require.NoError(t, err)
		assert.Equal(t, "/etc/polyhex/config.yml", path)
	})

	t.Run("working directory by default", func(t *testing.T) {
		// Given:
		t.Setenv(configPathEnv, "")
		wd, err := os.Getwd()
		require.NoError(t, err)

		// When:
		path, err := configPath()

		// Then:
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(wd, "config.yml"), path)
	})
}
