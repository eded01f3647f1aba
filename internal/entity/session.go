package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/board"
	"github.com/rocketscienceinc/polyhex-backend/internal/payout"
	"github.com/rocketscienceinc/polyhex-backend/internal/resolver"
)

const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	PlayerX   = resolver.MarkX
	PlayerO   = resolver.MarkO
	EmptyCell = resolver.MarkEmpty
)

const (
	OutcomeConnection = "connection"
	OutcomeDraw       = "draw"
	OutcomeTimeout    = "timeout"
	OutcomeForfeit    = "forfeit"
	OutcomeCancelled  = "cancelled"
	OutcomeExpired    = "expired"
)

const DefaultTurnTimeout = 20 * time.Second

var ErrUnknownSessionStatus = errors.New("unknown session status")

// Session is one staked match. Players[0] plays X and moves first.
// The layout is not serialised: it is rebuilt from Seed and attached on load.
type Session struct {
	ID          string          `json:"id"`
	Players     []*Player       `json:"players"`
	Stake       decimal.Decimal `json:"stake"`
	FeeRate     decimal.Decimal `json:"fee_rate"`
	Status      string          `json:"status"`
	Seed        int64           `json:"seed"`
	Board       []string        `json:"board"`
	TurnTimeout time.Duration   `json:"turn_timeout"`

	CurrentPlayerIndex int       `json:"current_player_index"`
	TurnStartTime      time.Time `json:"turn_start_time"`
	MoveCount          int       `json:"move_count"`
	LastMover          string    `json:"last_mover,omitempty"`

	Winner  string          `json:"winner,omitempty"`
	Loser   string          `json:"loser,omitempty"`
	Outcome string          `json:"outcome,omitempty"`
	Payout  decimal.Decimal `json:"payout"`
	// Settled is set once the payout has reached the ledger.
	Settled bool `json:"settled"`

	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	layout *board.Layout
}

type MoveResult struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	Cell     int              `json:"cell"`
	Mark     string           `json:"mark,omitempty"`
	Outcome  resolver.Outcome `json:"outcome,omitempty"`
	Winner   string           `json:"winner,omitempty"`
	Loser    string           `json:"loser,omitempty"`
	Payout   decimal.Decimal  `json:"payout"`
}

type TimeoutResult struct {
	TimedOut bool            `json:"timed_out"`
	Winner   string          `json:"winner,omitempty"`
	Loser    string          `json:"loser,omitempty"`
	Payout   decimal.Decimal `json:"payout"`
}

// NewSession opens a queued session owned by creator, who will play X.
func NewSession(id string, creator *Player, stake, feeRate decimal.Decimal, turnTimeout time.Duration, now time.Time) *Session {
	creator.Mark = PlayerX
	creator.SessionID = id

	return &Session{
		ID:          id,
		Players:     []*Player{creator},
		Stake:       stake,
		FeeRate:     feeRate,
		Status:      StatusQueued,
		TurnTimeout: turnTimeout,
		CreatedAt:   now,
	}
}

// Start pairs the queued session with an opponent and deals a fresh board.
func (that *Session) Start(opponent *Player, layout *board.Layout, now time.Time) error {
	switch {
	case that.IsFinished():
		return apperror.ErrGameFinished
	case !that.IsQueued():
		return apperror.ErrSessionStarted
	}

	if len(that.Players) != 1 {
		return fmt.Errorf("%w: queued session has %d players", apperror.ErrSessionStarted, len(that.Players))
	}

	if that.Players[0].ID == opponent.ID {
		return apperror.ErrAlreadyQueued
	}

	if err := layout.Validate(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	opponent.Mark = PlayerO
	opponent.SessionID = that.ID

	that.Players = append(that.Players, opponent)
	that.Seed = layout.Seed
	that.Board = make([]string, layout.Size())
	that.CurrentPlayerIndex = 0
	that.TurnStartTime = now
	that.Status = StatusInProgress
	that.layout = layout

	return nil
}

// AttachLayout binds a rebuilt layout to a loaded session.
func (that *Session) AttachLayout(layout *board.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}

	if layout.Seed != that.Seed {
		return fmt.Errorf("%w: layout seed %d, session seed %d", apperror.ErrMalformedLayout, layout.Seed, that.Seed)
	}

	if len(that.Board) != layout.Size() {
		return fmt.Errorf("%w: board has %d cells, layout %d", apperror.ErrMalformedLayout, len(that.Board), layout.Size())
	}

	that.layout = layout

	return nil
}

func (that *Session) Layout() *board.Layout {
	return that.layout
}

// ApplyMove places the caller's mark on cell. A rejected move leaves the
// session untouched and reports the reason both in the result and the error.
func (that *Session) ApplyMove(playerID string, cell int, now time.Time) (*MoveResult, error) {
	result := &MoveResult{Cell: cell, Outcome: resolver.Continuing}

	reject := func(err error) (*MoveResult, error) {
		result.Outcome = ""
		result.Reason = err.Error()
		return result, err
	}

	if err := that.ConfirmOngoingState(); err != nil {
		return reject(err)
	}

	index, ok := that.PlayerIndex(playerID)
	if !ok {
		return reject(apperror.ErrNotAParticipant)
	}

	if index != that.CurrentPlayerIndex {
		return reject(apperror.ErrNotYourTurn)
	}

	if that.IsTimedOut(now) {
		return reject(apperror.ErrTurnExpired)
	}

	if that.layout == nil {
		return reject(fmt.Errorf("%w: layout is not attached", apperror.ErrMalformedLayout))
	}

	if cell < 0 || cell >= that.layout.Size() || cell >= len(that.Board) {
		return reject(fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell))
	}

	if that.Board[cell] != EmptyCell {
		return reject(fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell))
	}

	mark := that.Players[index].Mark
	that.Board[cell] = mark
	that.MoveCount++
	that.LastMover = playerID

	resolution := resolver.Resolve(that.Board, that.layout)
	switch resolution.Outcome {
	case resolver.Win:
		that.complete(that.indexOfMark(resolution.Winner), OutcomeConnection, now)
	case resolver.Draw:
		// the last mover loses a draw
		that.complete(1-index, OutcomeDraw, now)
	default:
		that.CurrentPlayerIndex = 1 - index
		that.TurnStartTime = now
	}

	result.Accepted = true
	result.Mark = mark
	result.Outcome = resolution.Outcome

	if that.IsFinished() {
		result.Winner = that.Winner
		result.Loser = that.Loser
		result.Payout = that.Payout
	}

	return result, nil
}

// CheckTimeout forfeits the player on turn once strictly more than the turn
// timeout has passed since the turn started.
func (that *Session) CheckTimeout(now time.Time) *TimeoutResult {
	if !that.IsOngoing() || !that.IsTimedOut(now) {
		return &TimeoutResult{}
	}

	that.complete(1-that.CurrentPlayerIndex, OutcomeTimeout, now)

	return &TimeoutResult{
		TimedOut: true,
		Winner:   that.Winner,
		Loser:    that.Loser,
		Payout:   that.Payout,
	}
}

// Forfeit ends the session in favour of the caller's opponent and returns the winner id.
func (that *Session) Forfeit(playerID string, now time.Time) (string, error) {
	if err := that.ConfirmOngoingState(); err != nil {
		return "", err
	}

	index, ok := that.PlayerIndex(playerID)
	if !ok {
		return "", apperror.ErrNotAParticipant
	}

	that.complete(1-index, OutcomeForfeit, now)

	return that.Winner, nil
}

// Cancel closes a queued session at the creator's request.
func (that *Session) Cancel(now time.Time) error {
	return that.closeQueued(OutcomeCancelled, now)
}

// Expire closes a queued session nobody joined in time.
func (that *Session) Expire(now time.Time) error {
	return that.closeQueued(OutcomeExpired, now)
}

func (that *Session) closeQueued(outcome string, now time.Time) error {
	if !that.IsQueued() {
		return apperror.ErrNotQueued
	}

	that.Status = StatusCompleted
	that.Outcome = outcome
	that.CompletedAt = &now

	return nil
}

func (that *Session) complete(winnerIndex int, outcome string, now time.Time) {
	that.Status = StatusCompleted
	that.Outcome = outcome
	that.Winner = that.Players[winnerIndex].ID
	that.Loser = that.Players[1-winnerIndex].ID
	that.Payout = payout.Amount(that.Stake, that.FeeRate)
	that.CompletedAt = &now
}

func (that *Session) IsTimedOut(now time.Time) bool {
	timeout := that.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}

	return now.Sub(that.TurnStartTime) > timeout
}

// IsQueueStale reports a queued session older than ttl.
func (that *Session) IsQueueStale(now time.Time, ttl time.Duration) bool {
	return that.IsQueued() && now.Sub(that.CreatedAt) > ttl
}

func (that *Session) PlayerIndex(playerID string) (int, bool) {
	for i, player := range that.Players {
		if player.ID == playerID {
			return i, true
		}
	}

	return -1, false
}

func (that *Session) IsParticipant(playerID string) bool {
	_, ok := that.PlayerIndex(playerID)
	return ok
}

func (that *Session) CurrentPlayer() *Player {
	if that.CurrentPlayerIndex < 0 || that.CurrentPlayerIndex >= len(that.Players) {
		return nil
	}

	return that.Players[that.CurrentPlayerIndex]
}

// NeedsSettlement is true for a finished match whose payout is not yet credited.
func (that *Session) NeedsSettlement() bool {
	return that.IsFinished() && that.Winner != "" && !that.Settled
}

func (that *Session) indexOfMark(mark string) int {
	for i, player := range that.Players {
		if player.Mark == mark {
			return i
		}
	}

	return 0
}

func (that *Session) IsFinished() bool {
	return that.Status == StatusCompleted
}

func (that *Session) IsOngoing() bool {
	return that.Status == StatusInProgress
}

func (that *Session) IsQueued() bool {
	return that.Status == StatusQueued
}

func (that *Session) ConfirmOngoingState() error {
	switch {
	case that.IsQueued():
		return apperror.ErrGameIsNotStarted
	case that.IsFinished():
		return apperror.ErrGameFinished
	case that.IsOngoing():
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSessionStatus, that.Status)
	}
}
