package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")

	// ErrInvalidMove is the parent of every rejected move.
	ErrInvalidMove  = errors.New("invalid move")
	ErrNotYourTurn  = fmt.Errorf("%w: it's not your turn", ErrInvalidMove)
	ErrCellOccupied = fmt.Errorf("%w: cell is already occupied", ErrInvalidMove)
	ErrInvalidCell  = fmt.Errorf("%w: invalid cell index", ErrInvalidMove)
	ErrTurnExpired  = fmt.Errorf("%w: turn time is over", ErrInvalidMove)

	ErrSessionNotFound  = errors.New("session not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrNotAParticipant  = errors.New("player is not a participant of the session")
	ErrMalformedLayout  = errors.New("malformed board layout")
	ErrAlreadyQueued    = errors.New("player already has an active session")
	ErrSessionStarted   = errors.New("session has already started")
	ErrNotQueued        = errors.New("player is not waiting for an opponent")
	ErrConcurrentUpdate = errors.New("session was modified concurrently")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)
