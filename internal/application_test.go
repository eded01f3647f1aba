package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/polyhex-backend/internal/board"
	"github.com/rocketscienceinc/polyhex-backend/internal/config"
)

func TestNewSettings(t *testing.T) {
	t.Run("parses money and durations", func(t *testing.T) {
		// Given:
		game := config.Game{
			Stake:       "2.50",
			FeeRate:     "0.05",
			TurnTimeout: 30 * time.Second,
			QueueTTL:    time.Minute,
			BoardCells:  100,
		}

		// When:
		settings, err := newSettings(game)

		// Then:
		require.NoError(t, err)
		assert.True(t, settings.Stake.Equal(decimal.RequireFromString("2.5")))
		assert.True(t, settings.FeeRate.Equal(decimal.RequireFromString("0.05")))
		assert.Equal(t, 30*time.Second, settings.TurnTimeout)
		assert.Equal(t, time.Minute, settings.QueueTTL)
		assert.Equal(t, 5, settings.Board.GridSize)
		assert.InDelta(t, 6.4, settings.Board.Tolerance, 1e-9)
	})

	t.Run("larger boards keep adjacency on the grid", func(t *testing.T) {
		// Given:
		settings, err := newSettings(config.Game{Stake: "10", FeeRate: "0.025", BoardCells: 144})
		require.NoError(t, err)

		// When:
		layout := board.Generate(5, settings.Board)

		// Then:
		require.Equal(t, 144, layout.Size())
		require.NoError(t, layout.Validate())
		for id := range layout.Cells {
			assert.LessOrEqual(t, len(layout.Neighbors(id)), 4, "cell %d", id)
		}
	})

	t.Run("zero values keep the defaults", func(t *testing.T) {
		// Given:
		game := config.Game{Stake: "10", FeeRate: "0.025"}

		// When:
		settings, err := newSettings(game)

		// Then:
		require.NoError(t, err)
		assert.Equal(t, 20*time.Second, settings.TurnTimeout)
		assert.Equal(t, 2*time.Minute, settings.QueueTTL)
		assert.Equal(t, board.DefaultGridSize, settings.Board.GridSize)
		assert.InDelta(t, board.DefaultTolerance, settings.Board.Tolerance, 0)
	})

	t.Run("malformed stake", func(t *testing.T) {
		// When:
		_, err := newSettings(config.Game{Stake: "ten", FeeRate: "0.025"})

		// Then:
		require.Error(t, err)
	})
}
