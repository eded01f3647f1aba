package board

// DefaultTolerance is the distance under which two vertices count as shared.
const DefaultTolerance = 8.0

// minSharedVertices makes two cells neighbours. A single touching corner is not enough.
const minSharedVertices = 2

// BuildAdjacency links every pair of cells that share at least two vertices
// within tolerance. Neighbour lists come out sorted and symmetric.
func BuildAdjacency(cells []Cell, tolerance float64) [][]int {
	adjacency := make([][]int, len(cells))
	for i := range adjacency {
		adjacency[i] = []int{}
	}

	for a := range cells {
		for b := a + 1; b < len(cells); b++ {
			if sharedVertices(cells[a], cells[b], tolerance) >= minSharedVertices {
				adjacency[a] = append(adjacency[a], b)
				adjacency[b] = append(adjacency[b], a)
			}
		}
	}

	return adjacency
}

func sharedVertices(a, b Cell, tolerance float64) int {
	limit := tolerance * tolerance

	count := 0
	for _, p := range a.Vertices {
		for _, q := range b.Vertices {
			dx, dy := p.X-q.X, p.Y-q.Y
			if dx*dx+dy*dy <= limit {
				count++
			}
		}
	}

	return count
}
