package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/polyhex-backend/internal/board"
)

// squareLayout is a 2x2 board:
//
//	0 1
//	2 3
func squareLayout() *board.Layout {
	return &board.Layout{
		Adjacency: [][]int{{1, 2}, {0, 3}, {0, 3}, {1, 2}},
		Edges: board.EdgeRegions{
			Top:    []int{0, 1},
			Bottom: []int{2, 3},
			Left:   []int{0, 2},
			Right:  []int{1, 3},
		},
	}
}

func mark(size int, m string, ids ...int) []string {
	marks := make([]string, size)
	for _, id := range ids {
		marks[id] = m
	}

	return marks
}

func TestResolve(t *testing.T) {
	leftColumn := []int{0, 4, 8, 12, 44, 40, 36, 32}
	topRow := []int{0, 1, 2, 3, 19, 18, 17, 16}

	t.Run("Empty board continues", func(t *testing.T) {
		layout := board.GenerateBoard(42)

		result := Resolve(make([]string, layout.Size()), layout)

		require.Equal(t, Result{Outcome: Continuing}, result)
		assert.False(t, result.IsTerminal())
	})

	t.Run("X wins by linking top and bottom", func(t *testing.T) {
		// Given: X owns the whole left column
		layout := board.GenerateBoard(42)
		marks := mark(layout.Size(), MarkX, leftColumn...)

		// When: the board is resolved
		result := Resolve(marks, layout)

		// Then: X is the winner
		require.Equal(t, Result{Outcome: Win, Winner: MarkX}, result)
		assert.True(t, result.IsTerminal())
	})

	t.Run("An unfinished chain does not win", func(t *testing.T) {
		// Given: X owns seven of the eight cells of the column
		layout := board.GenerateBoard(42)
		marks := mark(layout.Size(), MarkX, leftColumn[:7]...)

		// Then: the game goes on
		require.Equal(t, Continuing, Resolve(marks, layout).Outcome)
	})

	t.Run("O wins by linking left and right", func(t *testing.T) {
		// Given: O owns the whole top row
		layout := board.GenerateBoard(42)
		marks := mark(layout.Size(), MarkO, topRow...)

		// Then: O is the winner
		require.Equal(t, Result{Outcome: Win, Winner: MarkO}, Resolve(marks, layout))
	})

	t.Run("X is checked first when both connect", func(t *testing.T) {
		// Given: a board where both marks complete a chain at once
		layout := &board.Layout{
			Adjacency: [][]int{{1}, {0}, {3}, {2}},
			Edges: board.EdgeRegions{
				Top:    []int{0},
				Bottom: []int{1},
				Left:   []int{2},
				Right:  []int{3},
			},
		}
		marks := []string{MarkX, MarkX, MarkO, MarkO}

		// Then: X takes the win
		require.Equal(t, Result{Outcome: Win, Winner: MarkX}, Resolve(marks, layout))
	})

	t.Run("Full board without a chain is a draw", func(t *testing.T) {
		// Given: X on the diagonal, O on the anti-diagonal
		marks := []string{MarkX, MarkO, MarkO, MarkX}

		// Then: nobody connects and no cell is left
		require.Equal(t, Result{Outcome: Draw}, Resolve(marks, squareLayout()))
	})

	t.Run("Opponent cells block the walk", func(t *testing.T) {
		// Given: X on top-left, O below it
		marks := []string{MarkX, MarkEmpty, MarkO, MarkEmpty}

		// Then: nothing is decided yet
		require.Equal(t, Continuing, Resolve(marks, squareLayout()).Outcome)
	})
}

func TestHasPath(t *testing.T) {
	t.Run("Ignores ids outside the board", func(t *testing.T) {
		// Given: adjacency pointing past the marks
		adjacency := [][]int{{1, 9}, {0, -1}}
		marks := []string{MarkX, MarkX}

		// Then: the walk still finds the chain
		assert.True(t, HasPath(marks, MarkX, []int{0, 5}, []int{1}, adjacency))
		assert.False(t, HasPath(marks, MarkO, []int{0}, []int{1}, adjacency))
	})

	t.Run("A single cell on both edges is a chain", func(t *testing.T) {
		marks := []string{MarkO}

		assert.True(t, HasPath(marks, MarkO, []int{0}, []int{0}, [][]int{{}}))
	})
}

func TestOpponent(t *testing.T) {
	assert.Equal(t, MarkO, Opponent(MarkX))
	assert.Equal(t, MarkX, Opponent(MarkO))
}
