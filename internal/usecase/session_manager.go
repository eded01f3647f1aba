package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/board"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
	"github.com/rocketscienceinc/polyhex-backend/internal/metrics"
	"github.com/rocketscienceinc/polyhex-backend/internal/payout"
	"github.com/rocketscienceinc/polyhex-backend/internal/pkg"
)

const defaultLayoutCacheSize = 256

type sessionRepo interface {
	Create(ctx context.Context, session *entity.Session) error
	Update(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)

	DeleteByID(ctx context.Context, id string) error

	DequeueOrEnqueue(ctx context.Context, stake decimal.Decimal, sessionID string) (string, error)
	RemoveFromQueue(ctx context.Context, stake decimal.Decimal, sessionID string) error
}

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	Release(ctx context.Context, playerID, sessionID string) (bool, error)
}

type ledger interface {
	Credit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Debit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error)
	Balance(ctx context.Context, playerID string) (decimal.Decimal, error)
}

// Settings are the game rules a manager applies to new sessions.
type Settings struct {
	Stake       decimal.Decimal
	FeeRate     decimal.Decimal
	TurnTimeout time.Duration
	QueueTTL    time.Duration
	Board       board.Options

	LayoutCacheSize int
}

// SessionManager runs matchmaking and every session transition. Transitions
// of one session are serialised in process by a per-session lock; the session
// store rejects writes from a stale copy.
type SessionManager struct {
	logger   *slog.Logger
	settings Settings

	sessionRepo sessionRepo
	playerRepo  playerRepo
	ledger      ledger
	metrics     *metrics.Metrics

	locks   *keyedLocker
	layouts *lru.Cache[int64, *board.Layout]

	clock      func() time.Time
	seedSource func() (int64, error)
}

func NewSessionManager(
	logger *slog.Logger,
	settings Settings,
	sessionRepo sessionRepo,
	playerRepo playerRepo,
	ledger ledger,
	metrics *metrics.Metrics,
) (*SessionManager, error) {
	if settings.FeeRate.IsNegative() || settings.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: fee rate %s", apperror.ErrInvalidAmount, settings.FeeRate)
	}

	if !settings.Stake.IsPositive() {
		return nil, fmt.Errorf("%w: stake %s", apperror.ErrInvalidAmount, settings.Stake)
	}

	if settings.TurnTimeout <= 0 {
		settings.TurnTimeout = entity.DefaultTurnTimeout
	}

	if settings.LayoutCacheSize <= 0 {
		settings.LayoutCacheSize = defaultLayoutCacheSize
	}

	layouts, err := lru.New[int64, *board.Layout](settings.LayoutCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create layout cache: %w", err)
	}

	return &SessionManager{
		logger:   logger.With("component", "session_manager"),
		settings: settings,

		sessionRepo: sessionRepo,
		playerRepo:  playerRepo,
		ledger:      ledger,
		metrics:     metrics,

		locks:   newKeyedLocker(),
		layouts: layouts,

		clock:      time.Now,
		seedSource: pkg.GenerateSeed,
	}, nil
}

func (that *SessionManager) SetClock(clock func() time.Time) {
	that.clock = clock
}

func (that *SessionManager) SetSeedSource(seedSource func() (int64, error)) {
	that.seedSource = seedSource
}

// GetOrCreatePlayer returns the player with id, registering it on first sight.
// An empty id gets a freshly generated one.
func (that *SessionManager) GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error) {
	if id == "" {
		id = pkg.GeneratePlayerID()
	}

	player, err := that.playerRepo.GetByID(ctx, id)
	if err == nil {
		return player, nil
	}

	if !errors.Is(err, apperror.ErrPlayerNotFound) {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	player = &entity.Player{ID: id}
	if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

// Queue escrows the stake and seats the player: it joins the oldest waiting
// session of the same stake, or opens a new one and waits.
func (that *SessionManager) Queue(ctx context.Context, playerID string) (*entity.Session, error) {
	log := that.logger.With("method", "Queue", "playerID", playerID)

	unlock := that.locks.Lock(playerLockKey(playerID))
	defer unlock()

	player, err := that.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if player.InSession() {
		active, err := that.liveSession(ctx, player.SessionID)
		if err != nil {
			return nil, err
		}

		if active != nil {
			return active, fmt.Errorf("%w: %s", apperror.ErrAlreadyQueued, active.ID)
		}

		player.Leave()
	}

	ticket := pkg.GenerateTicketID()
	if _, err = that.ledger.Debit(ctx, player.ID, that.settings.Stake, escrowReference(ticket)); err != nil {
		return nil, fmt.Errorf("failed to escrow stake: %w", err)
	}

	session, err := that.matchOrEnqueue(ctx, player)
	if err != nil {
		if _, refundErr := that.ledger.Credit(ctx, player.ID, that.settings.Stake, refundReference(ticket)); refundErr != nil {
			log.Error("failed to refund escrow", "ticket", ticket, "error", refundErr)
		}

		return nil, err
	}

	log.Info("player queued", "sessionID", session.ID, "status", session.Status)

	return session, nil
}

// CancelQueue withdraws the player's waiting session and refunds the stake.
func (that *SessionManager) CancelQueue(ctx context.Context, playerID string) (*entity.Session, error) {
	log := that.logger.With("method", "CancelQueue", "playerID", playerID)

	unlock := that.locks.Lock(playerLockKey(playerID))
	defer unlock()

	player, err := that.playerRepo.GetByID(ctx, playerID)
	if errors.Is(err, apperror.ErrPlayerNotFound) {
		return nil, apperror.ErrNotQueued
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.InSession() {
		return nil, apperror.ErrNotQueued
	}

	unlockSession := that.locks.Lock(sessionLockKey(player.SessionID))
	defer unlockSession()

	session, err := that.sessionRepo.GetByID(ctx, player.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !session.IsQueued() {
		return session, apperror.ErrNotQueued
	}

	if err = that.sessionRepo.RemoveFromQueue(ctx, session.Stake, session.ID); err != nil {
		return nil, err
	}

	if err = session.Cancel(that.clock()); err != nil {
		return nil, err
	}

	if err = that.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to cancel session: %w", err)
	}

	that.refund(ctx, session)
	that.releasePlayers(ctx, session)
	that.metrics.SessionCompleted(session.Outcome)

	log.Info("queue cancelled", "sessionID", session.ID)

	return session, nil
}

// ApplyMove submits a move. A turn that already ran out is settled as a
// timeout first and the move is refused with ErrGameFinished.
func (that *SessionManager) ApplyMove(ctx context.Context, sessionID, playerID string, cell int) (*entity.Session, *entity.MoveResult, error) {
	log := that.logger.With("method", "ApplyMove", "sessionID", sessionID, "playerID", playerID)

	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if !session.IsParticipant(playerID) {
		that.metrics.Move(moveLabel(apperror.ErrNotAParticipant))
		return nil, nil, apperror.ErrNotAParticipant
	}

	now := that.clock()

	if timeout := session.CheckTimeout(now); timeout.TimedOut {
		if err = that.finish(ctx, session); err != nil {
			return nil, nil, err
		}

		that.metrics.Move(moveLabel(apperror.ErrTurnExpired))

		return session, &entity.MoveResult{
			Cell:   cell,
			Reason: apperror.ErrTurnExpired.Error(),
			Winner: timeout.Winner,
			Loser:  timeout.Loser,
			Payout: timeout.Payout,
		}, apperror.ErrGameFinished
	}

	result, err := session.ApplyMove(playerID, cell, now)
	that.metrics.Move(moveLabel(err))

	if err != nil {
		return session, result, err
	}

	if session.IsFinished() {
		if err = that.finish(ctx, session); err != nil {
			return nil, nil, err
		}

		log.Info("session finished", "outcome", session.Outcome, "winner", session.Winner)

		return session, result, nil
	}

	if err = that.sessionRepo.Update(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, result, nil
}

// CheckTimeout forfeits the player on turn if their time is up.
func (that *SessionManager) CheckTimeout(ctx context.Context, sessionID string) (*entity.Session, *entity.TimeoutResult, error) {
	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	result := session.CheckTimeout(that.clock())
	if !result.TimedOut {
		return session, result, nil
	}

	if err = that.finish(ctx, session); err != nil {
		return nil, nil, err
	}

	that.logger.Info("turn timed out", "method", "CheckTimeout", "sessionID", sessionID, "loser", result.Loser)

	return session, result, nil
}

// Forfeit ends the session in favour of the caller's opponent.
func (that *SessionManager) Forfeit(ctx context.Context, sessionID, playerID string) (*entity.Session, string, error) {
	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.loadSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	if !session.IsParticipant(playerID) {
		return nil, "", apperror.ErrNotAParticipant
	}

	now := that.clock()

	if timeout := session.CheckTimeout(now); timeout.TimedOut {
		if err = that.finish(ctx, session); err != nil {
			return nil, "", err
		}

		return session, session.Winner, apperror.ErrGameFinished
	}

	winner, err := session.Forfeit(playerID, now)
	if err != nil {
		return session, "", err
	}

	if err = that.finish(ctx, session); err != nil {
		return nil, "", err
	}

	that.logger.Info("player forfeited", "method", "Forfeit", "sessionID", sessionID, "playerID", playerID)

	return session, winner, nil
}

// GetState returns the session as seen by playerID, after settling an expired turn.
func (that *SessionManager) GetState(ctx context.Context, sessionID, playerID string) (*entity.SessionView, error) {
	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsParticipant(playerID) {
		return nil, apperror.ErrNotAParticipant
	}

	if session.CheckTimeout(that.clock()).TimedOut {
		if err = that.finish(ctx, session); err != nil {
			return nil, err
		}
	}

	return session.ViewFor(playerID)
}

// ActiveSession returns the session the player currently sits in.
func (that *SessionManager) ActiveSession(ctx context.Context, playerID string) (*entity.SessionView, error) {
	player, err := that.playerRepo.GetByID(ctx, playerID)
	if errors.Is(err, apperror.ErrPlayerNotFound) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.InSession() {
		return nil, apperror.ErrSessionNotFound
	}

	return that.GetState(ctx, player.SessionID, playerID)
}

func (that *SessionManager) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	balance, err := that.ledger.Balance(ctx, playerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// matchOrEnqueue joins the oldest waiting session of the stake, or queues a
// fresh session owned by player. The store pops or pushes in one step, so
// players arriving together at an empty queue are paired with each other.
func (that *SessionManager) matchOrEnqueue(ctx context.Context, player *entity.Player) (*entity.Session, error) {
	log := that.logger.With("method", "matchOrEnqueue", "playerID", player.ID)

	creator := *player
	candidate := entity.NewSession(
		pkg.GenerateSessionID(),
		&creator,
		that.settings.Stake,
		that.settings.FeeRate,
		that.settings.TurnTimeout,
		that.clock(),
	)

	if err := that.sessionRepo.Create(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	for {
		waitingID, err := that.sessionRepo.DequeueOrEnqueue(ctx, that.settings.Stake, candidate.ID)
		if err != nil {
			that.discard(ctx, candidate)
			return nil, fmt.Errorf("failed to join queue: %w", err)
		}

		if waitingID == "" {
			if err = that.playerRepo.CreateOrUpdate(ctx, &creator); err != nil {
				that.discard(ctx, candidate)
				return nil, fmt.Errorf("failed to update player: %w", err)
			}

			*player = creator

			return candidate, nil
		}

		session, err := that.claim(ctx, waitingID, player)
		if err != nil {
			log.Warn("skipping queued session", "sessionID", waitingID, "error", err)
			continue
		}

		if session != nil {
			that.discard(ctx, candidate)
			return session, nil
		}
	}
}

// discard drops a candidate session that is still waiting. A candidate that a
// joiner has already started is left alone.
func (that *SessionManager) discard(ctx context.Context, candidate *entity.Session) {
	log := that.logger.With("method", "discard", "sessionID", candidate.ID)

	unlock := that.locks.Lock(sessionLockKey(candidate.ID))
	defer unlock()

	stored, err := that.sessionRepo.GetByID(ctx, candidate.ID)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return
	}

	if err != nil {
		log.Error("failed to get session", "error", err)
		return
	}

	if !stored.IsQueued() {
		log.Warn("candidate session already started", "status", stored.Status)
		return
	}

	if err = that.sessionRepo.RemoveFromQueue(ctx, candidate.Stake, candidate.ID); err != nil {
		log.Error("failed to remove session from queue", "error", err)
	}

	if err = that.sessionRepo.DeleteByID(ctx, candidate.ID); err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
		log.Error("failed to delete session", "error", err)
	}
}

// claim starts the queued session with player as O. It returns nil without an
// error when the entry is no longer joinable.
func (that *SessionManager) claim(ctx context.Context, sessionID string, player *entity.Player) (*entity.Session, error) {
	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !session.IsQueued() {
		return nil, nil
	}

	now := that.clock()

	if that.settings.QueueTTL > 0 && session.IsQueueStale(now, that.settings.QueueTTL) {
		that.expire(ctx, session, now)
		return nil, nil
	}

	seed, err := that.seedSource()
	if err != nil {
		return nil, fmt.Errorf("failed to draw seed: %w", err)
	}

	opponent := *player
	if err = session.Start(&opponent, that.layoutFor(seed), now); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if err = that.sessionRepo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	*player = opponent

	for _, seated := range session.Players {
		if err = that.playerRepo.CreateOrUpdate(ctx, seated); err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}
	}

	that.metrics.SessionStarted()

	return session, nil
}

// expire closes a queued session nobody joined and returns the stake.
func (that *SessionManager) expire(ctx context.Context, session *entity.Session, now time.Time) {
	log := that.logger.With("method", "expire", "sessionID", session.ID)

	if err := session.Expire(now); err != nil {
		log.Error("failed to expire session", "error", err)
		return
	}

	if err := that.sessionRepo.Update(ctx, session); err != nil {
		log.Error("failed to update session", "error", err)
		return
	}

	that.refund(ctx, session)
	that.releasePlayers(ctx, session)
	that.metrics.SessionCompleted(session.Outcome)

	log.Info("stale session expired")
}

// liveSession returns the session if it still needs the player, nil otherwise.
func (that *SessionManager) liveSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	unlock := that.locks.Lock(sessionLockKey(sessionID))
	defer unlock()

	session, err := that.loadSession(ctx, sessionID)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if session.CheckTimeout(that.clock()).TimedOut {
		if err = that.finish(ctx, session); err != nil {
			return nil, err
		}
	}

	if session.IsFinished() {
		return nil, nil
	}

	return session, nil
}

// loadSession reads a session, rebuilds its board and retries an unfinished settlement.
func (that *SessionManager) loadSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(session.Board) > 0 {
		if err = session.AttachLayout(that.layoutFor(session.Seed)); err != nil {
			return nil, fmt.Errorf("failed to rebuild board: %w", err)
		}
	}

	if session.NeedsSettlement() {
		if err = that.settle(ctx, session); err != nil {
			that.logger.Error("failed to settle session", "method", "loadSession", "sessionID", sessionID, "error", err)
		}
	}

	return session, nil
}

// finish persists a completed session, pays the winner and frees both players.
func (that *SessionManager) finish(ctx context.Context, session *entity.Session) error {
	if err := that.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	that.metrics.SessionCompleted(session.Outcome)
	that.releasePlayers(ctx, session)

	if err := that.settle(ctx, session); err != nil {
		// the session stays unsettled and the next load retries the credit
		that.logger.Error("failed to settle session", "method", "finish", "sessionID", session.ID, "error", err)
	}

	return nil
}

// settle credits the payout once. The ledger reference is derived from the
// session id, so a retry after a partial failure cannot pay twice.
func (that *SessionManager) settle(ctx context.Context, session *entity.Session) error {
	if !session.NeedsSettlement() {
		return nil
	}

	if session.Payout.IsPositive() {
		_, err := that.ledger.Credit(ctx, session.Winner, session.Payout, payoutReference(session.ID))
		if err != nil {
			return fmt.Errorf("failed to credit payout: %w", err)
		}
	}

	session.Settled = true

	if err := that.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to mark session settled: %w", err)
	}

	return nil
}

func (that *SessionManager) refund(ctx context.Context, session *entity.Session) {
	if len(session.Players) == 0 {
		return
	}

	creator := session.Players[0]
	if _, err := that.ledger.Credit(ctx, creator.ID, session.Stake, refundReference(session.ID)); err != nil {
		that.logger.Error("failed to refund stake", "method", "refund", "sessionID", session.ID, "playerID", creator.ID, "error", err)
	}
}

// releasePlayers detaches every participant still pointing at the session.
func (that *SessionManager) releasePlayers(ctx context.Context, session *entity.Session) {
	log := that.logger.With("method", "releasePlayers", "sessionID", session.ID)

	for _, seated := range session.Players {
		released, err := that.playerRepo.Release(ctx, seated.ID, session.ID)
		if err != nil {
			log.Error("failed to release player", "playerID", seated.ID, "error", err)
			continue
		}

		if released {
			log.Debug("player released", "playerID", seated.ID)
		}
	}
}

func (that *SessionManager) layoutFor(seed int64) *board.Layout {
	if layout, ok := that.layouts.Get(seed); ok {
		return layout
	}

	start := time.Now()
	layout := board.Generate(seed, that.settings.Board)
	that.metrics.BoardGenerated(time.Since(start))

	that.layouts.Add(seed, layout)

	return layout
}

func escrowReference(ticket string) string {
	return "escrow:" + ticket
}

func refundReference(id string) string {
	return "refund:" + id
}

func payoutReference(sessionID string) string {
	return "payout:" + sessionID
}

func moveLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, apperror.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, apperror.ErrCellOccupied):
		return "occupied"
	case errors.Is(err, apperror.ErrInvalidCell):
		return "invalid_cell"
	case errors.Is(err, apperror.ErrTurnExpired):
		return "expired"
	case errors.Is(err, apperror.ErrNotAParticipant):
		return "not_participant"
	case errors.Is(err, apperror.ErrGameFinished), errors.Is(err, apperror.ErrGameIsNotStarted):
		return "not_in_progress"
	default:
		return "error"
	}
}

// DefaultSettings are the reference rules: stake 10, 2.5% fee, 20s turns.
func DefaultSettings() Settings {
	return Settings{
		Stake:       decimal.NewFromInt(10),
		FeeRate:     payout.DefaultFeeRate,
		TurnTimeout: entity.DefaultTurnTimeout,
		QueueTTL:    2 * time.Minute,
		Board:       board.DefaultOptions(),
	}
}
