package board

import (
	"math"
	"sort"
)

const (
	DefaultWidth    = 500
	DefaultHeight   = 500
	DefaultGridSize = 4

	// perturbation of interior lattice points, as a fraction of the cell side
	perturbRatio = 0.2
	// minimum distance a moved lattice point keeps from its neighbours' midlines
	perturbMargin = 5.0

	maxExtraVertices = 4
	edgesPerCell     = 4

	// extra vertices never sit closer to a corner than this share of the edge
	maxCornerGap = 0.45
)

// Options control the board geometry. Zero values fall back to defaults.
type Options struct {
	Width     float64
	Height    float64
	GridSize  int
	Tolerance float64
}

func DefaultOptions() Options {
	return Options{
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		GridSize:  DefaultGridSize,
		Tolerance: DefaultTolerance,
	}
}

// GridSizeFor returns the largest quadrant grid whose board fits in the
// requested number of cells. The real board holds 4*g*g cells.
func GridSizeFor(cells int) int {
	g := int(math.Sqrt(float64(cells) / 4))
	for (g+1)*(g+1)*4 <= cells {
		g++
	}

	for g > 1 && g*g*4 > cells {
		g--
	}

	return max(g, 1)
}

// ToleranceFor scales DefaultTolerance to the cell side of a board with the
// given width and quadrant grid, so larger grids keep the same proportions.
func ToleranceFor(width float64, grid int) float64 {
	if width <= 0 {
		width = DefaultWidth
	}

	if grid <= 0 {
		grid = DefaultGridSize
	}

	defaultSide := float64(DefaultWidth) / 2 / DefaultGridSize

	return DefaultTolerance * (width / 2 / float64(grid)) / defaultSide
}

// GenerateBoard builds the default 500x500 board with 64 cells.
func GenerateBoard(seed int64) *Layout {
	return Generate(seed, DefaultOptions())
}

// Generate builds a board from seed. The same seed and options always give
// the same cells, adjacency and edge regions.
func Generate(seed int64, opts Options) *Layout {
	opts = opts.withDefaults()

	side := (opts.Width / 2) / float64(opts.GridSize)
	gap := cornerGap(side, opts.Tolerance)
	quadrant := generateQuadrant(NewRand(seed), opts.GridSize, side, gap)
	cells := mirrorQuadrant(quadrant, opts.Width, opts.Height)

	return &Layout{
		Seed:      seed,
		Width:     opts.Width,
		Height:    opts.Height,
		Cells:     cells,
		Adjacency: BuildAdjacency(cells, opts.Tolerance),
		Edges:     ClassifyEdges(cells, opts.Width, opts.Height, side),
	}
}

func (that Options) withDefaults() Options {
	if that.Width <= 0 {
		that.Width = DefaultWidth
	}

	if that.Height <= 0 {
		that.Height = DefaultHeight
	}

	if that.GridSize <= 0 {
		that.GridSize = DefaultGridSize
	}

	if that.Tolerance <= 0 {
		that.Tolerance = ToleranceFor(that.Width, that.GridSize)
	}

	return that
}

// cornerGap is the edge parameter an extra vertex keeps from both corners.
// The shortest lattice edge is side minus twice the perturbation limit, so an
// extra vertex never lands within tolerance of a corner it could share with a
// diagonal cell. Otherwise cells touching at one point would become neighbours.
func cornerGap(side, tolerance float64) float64 {
	shortest := side - 2*perturbLimit(side)
	if shortest <= 0 {
		return maxCornerGap
	}

	return math.Min(maxCornerGap, tolerance/shortest)
}

func perturbLimit(side float64) float64 {
	return math.Max(0, math.Min(side*perturbRatio, side/2-perturbMargin))
}

// baseCell is a unit square in lattice coordinates with extra vertices
// recorded per edge as a parameter in [gap, 1-gap).
type baseCell struct {
	row, col int
	extras   [edgesPerCell][]float64
}

type lattice [][]Point

func generateQuadrant(rng *Rand, grid int, side, gap float64) []Cell {
	bases := make([]baseCell, 0, grid*grid)
	for row := range grid {
		for col := range grid {
			base := baseCell{row: row, col: col}

			count := rng.Intn(maxExtraVertices)
			for range count {
				edge := rng.Intn(edgesPerCell)
				pos := gap + rng.Float64()*(1-2*gap)
				base.extras[edge] = append(base.extras[edge], pos)
			}

			bases = append(bases, base)
		}
	}

	points := perturbLattice(rng, grid, side)

	cells := make([]Cell, 0, len(bases))
	for i, base := range bases {
		cells = append(cells, Cell{
			ID:       i,
			Center:   points.warp(base.row, base.col, 0.5, 0.5),
			Vertices: base.ring(points),
		})
	}

	return cells
}

// perturbLattice moves every interior lattice point. Points on the quadrant
// border stay fixed so mirrored quadrants meet exactly.
func perturbLattice(rng *Rand, grid int, side float64) lattice {
	points := make(lattice, grid+1)
	for j := range points {
		points[j] = make([]Point, grid+1)
		for i := range points[j] {
			points[j][i] = Point{X: float64(i) * side, Y: float64(j) * side}
		}
	}

	maxOffset := side * perturbRatio
	limit := perturbLimit(side)

	for j := 1; j < grid; j++ {
		for i := 1; i < grid; i++ {
			dx := clamp((rng.Float64()-0.5)*2*maxOffset, limit)
			dy := clamp((rng.Float64()-0.5)*2*maxOffset, limit)
			points[j][i] = Point{X: float64(i)*side + dx, Y: float64(j)*side + dy}
		}
	}

	return points
}

// warp maps (s, t) in the unit square onto the deformed cell at row, col.
func (that lattice) warp(row, col int, s, t float64) Point {
	tl := that[row][col]
	tr := that[row][col+1]
	br := that[row+1][col+1]
	bl := that[row+1][col]

	return Point{
		X: (1-s)*(1-t)*tl.X + s*(1-t)*tr.X + s*t*br.X + (1-s)*t*bl.X,
		Y: (1-s)*(1-t)*tl.Y + s*(1-t)*tr.Y + s*t*br.Y + (1-s)*t*bl.Y,
	}
}

// ring walks the cell boundary clockwise from the top-left corner, placing
// each edge's extra vertices between that edge's two corners.
func (that baseCell) ring(points lattice) []Point {
	vertices := make([]Point, 0, edgesPerCell+maxExtraVertices)

	for edge := range edgesPerCell {
		s, t := edgeParam(edge, 0)
		vertices = append(vertices, points.warp(that.row, that.col, s, t))

		extras := append([]float64(nil), that.extras[edge]...)
		sort.Float64s(extras)

		for _, v := range extras {
			s, t = edgeParam(edge, v)
			vertices = append(vertices, points.warp(that.row, that.col, s, t))
		}
	}

	return vertices
}

func edgeParam(edge int, v float64) (float64, float64) {
	switch edge {
	case 0:
		return v, 0
	case 1:
		return 1, v
	case 2:
		return 1 - v, 1
	default:
		return 0, 1 - v
	}
}

// mirrorQuadrant reflects the top-left quadrant into the other three.
// Ids run quadrant by quadrant: original, mirrored in x, in y, in both.
func mirrorQuadrant(quadrant []Cell, width, height float64) []Cell {
	reflections := [][2]bool{{false, false}, {true, false}, {false, true}, {true, true}}

	cells := make([]Cell, 0, len(quadrant)*len(reflections))
	for _, r := range reflections {
		flipX, flipY := r[0], r[1]

		mirror := func(p Point) Point {
			if flipX {
				p.X = width - p.X
			}

			if flipY {
				p.Y = height - p.Y
			}

			return p
		}

		for _, cell := range quadrant {
			vertices := make([]Point, len(cell.Vertices))
			for i, v := range cell.Vertices {
				vertices[i] = mirror(v)
			}

			cells = append(cells, Cell{
				ID:       len(cells),
				Center:   mirror(cell.Center),
				Vertices: vertices,
			})
		}
	}

	return cells
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
