package board

import (
	"fmt"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Cell struct {
	ID       int     `json:"id"`
	Center   Point   `json:"center"`
	Vertices []Point `json:"vertices"`
}

// EdgeRegions lists the cells touching each side of the board.
// X connects Top with Bottom, O connects Left with Right.
type EdgeRegions struct {
	Top    []int `json:"top"`
	Bottom []int `json:"bottom"`
	Left   []int `json:"left"`
	Right  []int `json:"right"`
}

// Layout is the immutable board derived from a seed.
// Adjacency[i] holds the sorted neighbour ids of cell i.
type Layout struct {
	Seed      int64       `json:"seed"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	Cells     []Cell      `json:"cells"`
	Adjacency [][]int     `json:"adjacency"`
	Edges     EdgeRegions `json:"edges"`
}

func (that *Layout) Size() int {
	return len(that.Cells)
}

func (that *Layout) Neighbors(id int) []int {
	if id < 0 || id >= len(that.Adjacency) {
		return nil
	}

	return that.Adjacency[id]
}

func (that *Layout) IsAdjacent(a, b int) bool {
	for _, n := range that.Neighbors(a) {
		if n == b {
			return true
		}
	}

	return false
}

// Validate rejects layouts whose ids, polygons or adjacency cannot be trusted.
func (that *Layout) Validate() error {
	size := len(that.Cells)
	if size == 0 {
		return fmt.Errorf("%w: no cells", apperror.ErrMalformedLayout)
	}

	if len(that.Adjacency) != size {
		return fmt.Errorf("%w: adjacency has %d entries for %d cells", apperror.ErrMalformedLayout, len(that.Adjacency), size)
	}

	for i, cell := range that.Cells {
		if cell.ID != i {
			return fmt.Errorf("%w: cell at index %d has id %d", apperror.ErrMalformedLayout, i, cell.ID)
		}

		if len(cell.Vertices) < 3 {
			return fmt.Errorf("%w: cell %d has %d vertices", apperror.ErrMalformedLayout, i, len(cell.Vertices))
		}
	}

	for a, neighbors := range that.Adjacency {
		for _, b := range neighbors {
			if b < 0 || b >= size || b == a {
				return fmt.Errorf("%w: cell %d lists neighbour %d", apperror.ErrMalformedLayout, a, b)
			}

			if !that.IsAdjacent(b, a) {
				return fmt.Errorf("%w: adjacency %d-%d is not symmetric", apperror.ErrMalformedLayout, a, b)
			}
		}
	}

	regions := [][]int{that.Edges.Top, that.Edges.Bottom, that.Edges.Left, that.Edges.Right}
	for _, region := range regions {
		if len(region) == 0 {
			return fmt.Errorf("%w: empty edge region", apperror.ErrMalformedLayout)
		}

		for _, id := range region {
			if id < 0 || id >= size {
				return fmt.Errorf("%w: edge region lists cell %d", apperror.ErrMalformedLayout, id)
			}
		}
	}

	return nil
}
