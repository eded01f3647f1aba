package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

func (that *Server) handleConnect(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleConnect")

	req, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	if req.Player == nil {
		log.Warn("player is missing in payload")
		return that.sendErrorResponse(conn, msg.Action, "player is required")
	}

	player, err := that.sessions.GetOrCreatePlayer(ctx, req.Player.ID)
	if err != nil {
		log.Error("failed to create or get player", "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to create a new player")
	}

	that.register(player.ID, conn)

	resp := &Payload{Player: player}

	if player.InSession() {
		view, err := that.sessions.ActiveSession(ctx, player.ID)
		switch {
		case err == nil:
			resp.Session = view
			that.watchTurn(ctx, view.Session)
		case !errors.Is(err, apperror.ErrSessionNotFound):
			log.Warn("failed to load active session", "playerID", player.ID, "error", err)
		}
	}

	log.Info("player connected", "playerID", player.ID)

	return that.sendMessage(conn, msg.Action, resp)
}

func (that *Server) handleQueue(ctx context.Context, msg *Message, conn *connection) error {
	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	session, err := that.sessions.Queue(ctx, playerID)
	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	that.broadcast(ctx, msg.Action, session, nil)

	return nil
}

func (that *Server) handleCancelQueue(ctx context.Context, msg *Message, conn *connection) error {
	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	session, err := that.sessions.CancelQueue(ctx, playerID)
	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	view, err := session.ViewFor(playerID)
	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	return that.sendMessage(conn, msg.Action, &Payload{Session: view})
}

func (that *Server) handleState(ctx context.Context, msg *Message, conn *connection) error {
	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	req, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	var view *entity.SessionView
	if req.SessionID == "" {
		view, err = that.sessions.ActiveSession(ctx, playerID)
	} else {
		view, err = that.sessions.GetState(ctx, req.SessionID, playerID)
	}

	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	return that.sendMessage(conn, msg.Action, &Payload{Session: view})
}

func (that *Server) handleTurn(ctx context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleTurn")

	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	req, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	if req.SessionID == "" || req.Cell == nil {
		return that.sendErrorResponse(conn, msg.Action, "session_id and cell are required")
	}

	session, result, err := that.sessions.ApplyMove(ctx, req.SessionID, playerID, *req.Cell)

	switch {
	case err == nil:
		that.broadcast(ctx, msg.Action, session, result)
		return nil
	case errors.Is(err, apperror.ErrGameFinished) && result != nil && result.Winner != "":
		// the turn ran out before this move arrived
		that.broadcast(ctx, actionTimeout, session, result)
		return nil
	case errors.Is(err, apperror.ErrInvalidMove):
		log.Info("move rejected", "sessionID", req.SessionID, "playerID", playerID, "error", err)
		return that.sendMessage(conn, msg.Action, &Payload{Move: result, Error: errorText(err)})
	default:
		return that.replyError(conn, msg.Action, err)
	}
}

func (that *Server) handleForfeit(ctx context.Context, msg *Message, conn *connection) error {
	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	req, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	if req.SessionID == "" {
		return that.sendErrorResponse(conn, msg.Action, "session_id is required")
	}

	session, _, err := that.sessions.Forfeit(ctx, req.SessionID, playerID)
	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	that.broadcast(ctx, msg.Action, session, nil)

	return nil
}

func (that *Server) handleBalance(ctx context.Context, msg *Message, conn *connection) error {
	playerID, ok := that.requirePlayer(conn, msg.Action)
	if !ok {
		return nil
	}

	balance, err := that.sessions.Balance(ctx, playerID)
	if err != nil {
		return that.replyError(conn, msg.Action, err)
	}

	return that.sendMessage(conn, msg.Action, &Payload{Balance: &balance})
}

// requirePlayer returns the id bound by connect, replying with an error when there is none.
func (that *Server) requirePlayer(conn *connection, action string) (string, bool) {
	playerID := conn.player()
	if playerID == "" {
		_ = that.sendErrorResponse(conn, action, "connect first")
		return "", false
	}

	return playerID, true
}

func (that *Server) replyError(conn *connection, action string, err error) error {
	text := errorText(err)
	if text == "internal error" {
		that.logger.Error("request failed", "action", action, "error", err)
	}

	return that.sendErrorResponse(conn, action, text)
}

// broadcast sends every connected participant its own view of the session.
func (that *Server) broadcast(ctx context.Context, action string, session *entity.Session, move *entity.MoveResult) {
	log := that.logger.With("method", "broadcast", "sessionID", session.ID)

	for _, player := range session.Players {
		conn, ok := that.connectionOf(player.ID)
		if !ok {
			log.Warn("connection not found for player", "playerID", player.ID)
			continue
		}

		view, err := session.ViewFor(player.ID)
		if err != nil {
			log.Error("failed to build view", "playerID", player.ID, "error", err)
			continue
		}

		resp := &Payload{
			Player:  player,
			Session: view,
			Move:    move,
			Winner:  session.Winner,
		}

		if err = that.sendMessage(conn, action, resp); err != nil {
			log.Error("failed to send session update", "playerID", player.ID, "error", err)
		}
	}

	that.watchTurn(ctx, session)
}

// watchTurn arms a timer that settles the current turn once it runs out, so
// players are told about a timeout without having to ask.
func (that *Server) watchTurn(ctx context.Context, session *entity.Session) {
	that.timersMutex.Lock()
	defer that.timersMutex.Unlock()

	if timer, ok := that.timers[session.ID]; ok {
		timer.Stop()
		delete(that.timers, session.ID)
	}

	if !session.IsOngoing() {
		return
	}

	sessionID := session.ID
	delay := time.Until(session.TurnStartTime.Add(session.TurnTimeout)) + timeoutGrace

	that.timers[sessionID] = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}

		expired, result, err := that.sessions.CheckTimeout(ctx, sessionID)
		if err != nil {
			that.logger.Error("failed to check timeout", "method", "watchTurn", "sessionID", sessionID, "error", err)
			return
		}

		if !result.TimedOut {
			that.watchTurn(ctx, expired)
			return
		}

		that.broadcast(ctx, actionTimeout, expired, nil)
	})
}
