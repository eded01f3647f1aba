package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 4096

	// timeoutGrace pushes the watcher past the turn deadline, which is strict.
	timeoutGrace = 250 * time.Millisecond
)

type sessionUseCase interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)

	Queue(ctx context.Context, playerID string) (*entity.Session, error)
	CancelQueue(ctx context.Context, playerID string) (*entity.Session, error)

	ApplyMove(ctx context.Context, sessionID, playerID string, cell int) (*entity.Session, *entity.MoveResult, error)
	CheckTimeout(ctx context.Context, sessionID string) (*entity.Session, *entity.TimeoutResult, error)
	Forfeit(ctx context.Context, sessionID, playerID string) (*entity.Session, string, error)

	GetState(ctx context.Context, sessionID, playerID string) (*entity.SessionView, error)
	ActiveSession(ctx context.Context, playerID string) (*entity.SessionView, error)
	Balance(ctx context.Context, playerID string) (decimal.Decimal, error)
}

type handlerFunc func(ctx context.Context, msg *Message, conn *connection) error

type Server struct {
	logger   *slog.Logger
	sessions sessionUseCase
	upgrader websocket.Upgrader

	connections      map[string]*connection
	connectionsMutex sync.RWMutex

	handlers map[string]handlerFunc

	timers      map[string]*time.Timer
	timersMutex sync.Mutex
}

func New(logger *slog.Logger, sessions sessionUseCase) *Server {
	server := &Server{
		logger:   logger.With("component", "websocket"),
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		connections: make(map[string]*connection),
		timers:      make(map[string]*time.Timer),
	}

	server.handlers = map[string]handlerFunc{
		actionConnect:     server.handleConnect,
		actionQueue:       server.handleQueue,
		actionCancelQueue: server.handleCancelQueue,
		actionState:       server.handleState,
		actionTurn:        server.handleTurn,
		actionForfeit:     server.handleForfeit,
		actionBalance:     server.handleBalance,
	}

	return server
}

// Handler routes /ws to the websocket endpoint. Handlers run with ctx.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{ws: ws}
	defer func() {
		that.handleDisconnect(conn)
		_ = ws.Close()
	}()

	log.Info("WebSocket connection established")

	done := make(chan struct{})
	defer close(done)

	go conn.keepAlive(done)

	if err = that.handleMessages(ctx, conn); err != nil {
		log.Info("connection closed", "error", err)
	}
}

// handleMessages - processes messages from the client until the connection drops.
func (that *Server) handleMessages(ctx context.Context, conn *connection) error {
	log := that.logger.With("method", "handleMessages")

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, body, err := conn.ws.ReadMessage()
		if err != nil {
			return err
		}

		var message Message
		if err = json.Unmarshal(body, &message); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			_ = that.sendErrorResponse(conn, actionError, "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			_ = that.sendErrorResponse(conn, message.Action, "unknown action")
			continue
		}

		if err = handler(ctx, &message, conn); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) register(playerID string, conn *connection) {
	conn.setPlayer(playerID)

	that.connectionsMutex.Lock()
	that.connections[playerID] = conn
	that.connectionsMutex.Unlock()
}

func (that *Server) connectionOf(playerID string) (*connection, bool) {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	conn, ok := that.connections[playerID]

	return conn, ok
}

func (that *Server) handleDisconnect(conn *connection) {
	playerID := conn.player()
	if playerID == "" {
		return
	}

	that.connectionsMutex.Lock()
	if that.connections[playerID] == conn {
		delete(that.connections, playerID)
	}
	that.connectionsMutex.Unlock()

	that.logger.Info("player disconnected", "method", "handleDisconnect", "playerID", playerID)
}

// connection serialises writes; gorilla allows one concurrent writer.
type connection struct {
	ws *websocket.Conn

	mu       sync.Mutex
	playerID string
}

func (that *connection) setPlayer(playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.playerID = playerID
}

func (that *connection) player() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.playerID
}

func (that *connection) send(message *Message) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return that.ws.WriteJSON(message)
}

func (that *connection) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			that.mu.Lock()
			err := that.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			that.mu.Unlock()

			if err != nil {
				return
			}
		}
	}
}
