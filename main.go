package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	app "github.com/rocketscienceinc/polyhex-backend/internal"
	"github.com/rocketscienceinc/polyhex-backend/internal/config"
)

// configPathEnv points the server at a config file other than ./config.yml.
const configPathEnv = "POLYHEX_CONFIG"

// main - is the entry point of the game server. It loads the config, builds the logger and runs the application.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	path, err := configPath()
	if err != nil {
		panic(err)
	}

	conf := config.MustLoad(path)
	logger := newLogger(conf.LogLevel)

	logger.Info("starting polyhex server", "config", path, "httpPort", conf.HTTPPort, "socketPort", conf.SocketPort)

	if err = app.RunApp(logger, conf); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

func configPath() (string, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		return path, nil
	}

	baseDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return filepath.Join(baseDir, "config.yml"), nil
}

// newLogger writes JSON records to stdout. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return parsed
}
