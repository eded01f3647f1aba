package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

const (
	actionConnect     = "connect"
	actionQueue       = "game:queue"
	actionCancelQueue = "game:cancel"
	actionState       = "game:state"
	actionTurn        = "game:turn"
	actionForfeit     = "game:forfeit"
	actionBalance     = "balance"

	// server-initiated
	actionTimeout = "game:timeout"
	actionError   = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	Player    *entity.Player      `json:"player,omitempty"`
	Session   *entity.SessionView `json:"session,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Cell      *int                `json:"cell,omitempty"`
	Move      *entity.MoveResult  `json:"move,omitempty"`
	Winner    string              `json:"winner,omitempty"`
	Balance   *decimal.Decimal    `json:"balance,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// clientErrors are reported verbatim; anything else is an internal failure.
var clientErrors = []error{
	apperror.ErrInvalidMove,
	apperror.ErrGameFinished,
	apperror.ErrGameIsNotStarted,
	apperror.ErrSessionNotFound,
	apperror.ErrNotAParticipant,
	apperror.ErrAlreadyQueued,
	apperror.ErrNotQueued,
	apperror.ErrInsufficientFunds,
	apperror.ErrConcurrentUpdate,
}

func errorText(err error) string {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return err.Error()
		}
	}

	return "internal error"
}

func decodePayload(msg *Message) (*Payload, error) {
	payload := &Payload{}
	if len(msg.Payload) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}

func (that *Server) sendMessage(conn *connection, action string, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err = conn.send(&Message{Action: action, Payload: body}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Server) sendErrorResponse(conn *connection, action, text string) error {
	return that.sendMessage(conn, action, &Payload{Error: text})
}
