package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

// completed sessions are kept for a day so late readers still see the result
const completedSessionTTL = 24 * time.Hour

var ErrSessionExists = errors.New("session already exists")

type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	Update(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error

	DequeueOrEnqueue(ctx context.Context, stake decimal.Decimal, sessionID string) (string, error)
	RemoveFromQueue(ctx context.Context, stake decimal.Decimal, sessionID string) error
}

type dbSession struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) SessionRepository {
	return &dbSession{
		client: client,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func queueKey(stake decimal.Decimal) string {
	return "queue:" + stake.String()
}

func (that *dbSession) Create(ctx context.Context, session *entity.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	created, err := that.client.SetNX(ctx, sessionKey(session.ID), sessionJSON, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: %s", ErrSessionExists, session.ID)
	}

	return nil
}

// Update writes the session only if nobody changed it since it was read.
// The stored version must equal session.Version; on success the version is bumped.
func (that *dbSession) Update(ctx context.Context, session *entity.Session) error {
	key := sessionKey(session.ID)

	next := *session
	next.Version++

	txFn := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperror.ErrSessionNotFound
		}

		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var stored entity.Session
		if err = json.Unmarshal(response, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if stored.Version != session.Version {
			return fmt.Errorf("%w: stored version %d, have %d", apperror.ErrConcurrentUpdate, stored.Version, session.Version)
		}

		sessionJSON, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("could not marshal session: %w", err)
		}

		var ttl time.Duration
		if next.IsFinished() {
			ttl = completedSessionTTL
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, sessionJSON, ttl)
			return nil
		})

		return err
	}

	err := that.client.Watch(ctx, txFn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return apperror.ErrConcurrentUpdate
	}

	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	session.Version = next.Version

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	response, err := that.client.Get(ctx, sessionKey(id)).Result()

	if errors.Is(err, redis.Nil) {
		return &entity.Session{}, apperror.ErrSessionNotFound
	}

	if err != nil {
		return &entity.Session{}, fmt.Errorf("failed to get session by id: %w", err)
	}

	var existingSession entity.Session
	if err = json.Unmarshal([]byte(response), &existingSession); err != nil {
		return &entity.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &existingSession, nil
}

func (that *dbSession) DeleteByID(ctx context.Context, id string) error {
	deleted, err := that.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session by ID: %w", err)
	}

	if deleted == 0 {
		return apperror.ErrSessionNotFound
	}

	return nil
}

// dequeueOrEnqueue pops the oldest waiting session, or queues ARGV[1] when
// nobody is waiting. Returns nil in the second case.
var dequeueOrEnqueue = redis.NewScript(`
local waiting = redis.call('LPOP', KEYS[1])
if waiting then
	return waiting
end
redis.call('RPUSH', KEYS[1], ARGV[1])
return false
`)

// DequeueOrEnqueue returns the oldest waiting session for stake, or queues
// sessionID and returns "" when the queue is empty. Both branches run as one
// script, so two callers on an empty queue always end up paired.
func (that *dbSession) DequeueOrEnqueue(ctx context.Context, stake decimal.Decimal, sessionID string) (string, error) {
	waitingID, err := dequeueOrEnqueue.Run(ctx, that.client, []string{queueKey(stake)}, sessionID).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to join queue: %w", err)
	}

	return waitingID, nil
}

func (that *dbSession) RemoveFromQueue(ctx context.Context, stake decimal.Decimal, sessionID string) error {
	if err := that.client.LRem(ctx, queueKey(stake), 0, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to remove session from queue: %w", err)
	}

	return nil
}
