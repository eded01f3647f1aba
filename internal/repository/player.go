package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

// PlayerRepository indexes players by id and remembers their current session.
type PlayerRepository interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	Release(ctx context.Context, playerID, sessionID string) (bool, error)
}

type dbPlayer struct {
	client *redis.Client
}

func NewPlayerRepository(client *redis.Client) PlayerRepository {
	return &dbPlayer{
		client: client,
	}
}

func playerKey(id string) string {
	return "player:" + id
}

func (that *dbPlayer) CreateOrUpdate(ctx context.Context, player *entity.Player) error {
	if player.ID == "" {
		return apperror.ErrPlayerNotFound
	}

	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	if err = that.client.Set(ctx, playerKey(player.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set player: %w", err)
	}

	return nil
}

func (that *dbPlayer) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	if id == "" {
		return &entity.Player{}, apperror.ErrPlayerNotFound
	}

	return decodePlayer(that.client.Get(ctx, playerKey(id)))
}

// Release detaches the player only while it still points at sessionID, so a
// finished session never unseats a player who has already joined another one.
// It reports whether the record changed.
func (that *dbPlayer) Release(ctx context.Context, playerID, sessionID string) (bool, error) {
	key := playerKey(playerID)
	released := false

	txFn := func(tx *redis.Tx) error {
		player, err := decodePlayer(tx.Get(ctx, key))
		if err != nil {
			return err
		}

		if player.SessionID != sessionID {
			return nil
		}

		player.Leave()

		data, err := json.Marshal(player)
		if err != nil {
			return fmt.Errorf("failed to marshal player: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			released = true
		}

		return err
	}

	err := that.client.Watch(ctx, txFn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, apperror.ErrConcurrentUpdate
	}

	if err != nil {
		return false, err
	}

	return released, nil
}

func decodePlayer(cmd *redis.StringCmd) (*entity.Player, error) {
	response, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return &entity.Player{}, apperror.ErrPlayerNotFound
	}

	if err != nil {
		return &entity.Player{}, fmt.Errorf("failed to get player by ID: %w", err)
	}

	var player entity.Player
	if err = json.Unmarshal([]byte(response), &player); err != nil {
		return &entity.Player{}, fmt.Errorf("failed to unmarshal player: %w", err)
	}

	return &player, nil
}
