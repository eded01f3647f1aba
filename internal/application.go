package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/board"
	"github.com/rocketscienceinc/polyhex-backend/internal/config"
	"github.com/rocketscienceinc/polyhex-backend/internal/metrics"
	"github.com/rocketscienceinc/polyhex-backend/internal/repository"
	"github.com/rocketscienceinc/polyhex-backend/internal/repository/storage"
	"github.com/rocketscienceinc/polyhex-backend/internal/usecase"
	"github.com/rocketscienceinc/polyhex-backend/transport/rest"
	"github.com/rocketscienceinc/polyhex-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	settings, err := newSettings(conf.Game)
	if err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedis(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	ledgerPool, err := storage.NewPostgres(ctx, conf.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("could not connect to postgres: %w", err)
	}
	defer ledgerPool.Close()

	if err = storage.InitLedger(ctx, ledgerPool); err != nil {
		return fmt.Errorf("could not init ledger schema: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(redisStorage)
	playerRepo := repository.NewPlayerRepository(redisStorage)
	ledgerRepo := repository.NewLedgerRepository(ledgerPool)
	gameMetrics := metrics.New(prometheus.DefaultRegisterer)

	sessionManager, err := usecase.NewSessionManager(logger, settings, sessionRepo, playerRepo, ledgerRepo, gameMetrics)
	if err != nil {
		return fmt.Errorf("could not create session manager: %w", err)
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, conf.HTTPPort, rest.NewHandler(prometheus.DefaultGatherer)); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, sessionManager)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// newSettings turns the game section of the config into session rules.
func newSettings(game config.Game) (usecase.Settings, error) {
	settings := usecase.DefaultSettings()

	stake, err := decimal.NewFromString(game.Stake)
	if err != nil {
		return usecase.Settings{}, fmt.Errorf("stake %q: %w", game.Stake, err)
	}

	feeRate, err := decimal.NewFromString(game.FeeRate)
	if err != nil {
		return usecase.Settings{}, fmt.Errorf("fee rate %q: %w", game.FeeRate, err)
	}

	settings.Stake = stake
	settings.FeeRate = feeRate

	if game.TurnTimeout > 0 {
		settings.TurnTimeout = game.TurnTimeout
	}

	if game.QueueTTL > 0 {
		settings.QueueTTL = game.QueueTTL
	}

	if game.BoardCells > 0 {
		settings.Board.GridSize = board.GridSizeFor(game.BoardCells)
		settings.Board.Tolerance = board.ToleranceFor(settings.Board.Width, settings.Board.GridSize)
	}

	return settings, nil
}
