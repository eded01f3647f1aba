// Package resolver decides the state of a board after every move.
//
// X wins by connecting the top edge with the bottom edge, O wins by
// connecting the left edge with the right edge. Connectivity is walked over
// the layout adjacency graph only.
package resolver

import (
	"github.com/rocketscienceinc/polyhex-backend/internal/board"
)

const (
	MarkX     = "X"
	MarkO     = "O"
	MarkEmpty = ""
)

type Outcome string

const (
	Continuing Outcome = "continuing"
	Win        Outcome = "win"
	Draw       Outcome = "draw"
)

type Result struct {
	Outcome Outcome `json:"outcome"`
	Winner  string  `json:"winner,omitempty"`
}

func (that Result) IsTerminal() bool {
	return that.Outcome != Continuing
}

// Resolve checks X before O so a board where both connect favours X. A full
// board with no connection is a draw.
func Resolve(marks []string, layout *board.Layout) Result {
	if HasPath(marks, MarkX, layout.Edges.Top, layout.Edges.Bottom, layout.Adjacency) {
		return Result{Outcome: Win, Winner: MarkX}
	}

	if HasPath(marks, MarkO, layout.Edges.Left, layout.Edges.Right, layout.Adjacency) {
		return Result{Outcome: Win, Winner: MarkO}
	}

	for _, mark := range marks {
		if mark == MarkEmpty {
			return Result{Outcome: Continuing}
		}
	}

	return Result{Outcome: Draw}
}

// HasPath reports whether cells carrying mark link any cell of from with any
// cell of to. Ids outside marks are ignored.
func HasPath(marks []string, mark string, from, to []int, adjacency [][]int) bool {
	target := make(map[int]struct{}, len(to))
	for _, id := range to {
		target[id] = struct{}{}
	}

	visited := make([]bool, len(marks))
	queue := make([]int, 0, len(marks))

	for _, id := range from {
		if id < 0 || id >= len(marks) || visited[id] || marks[id] != mark {
			continue
		}

		visited[id] = true
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if _, ok := target[current]; ok {
			return true
		}

		if current >= len(adjacency) {
			continue
		}

		for _, next := range adjacency[current] {
			if next < 0 || next >= len(marks) || visited[next] || marks[next] != mark {
				continue
			}

			visited[next] = true
			queue = append(queue, next)
		}
	}

	return false
}

// Opponent returns the other mark.
func Opponent(mark string) string {
	if mark == MarkX {
		return MarkO
	}

	return MarkX
}
