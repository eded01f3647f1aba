package board

// ClassifyEdges assigns cells to board sides by centre position. A cell whose
// centre lies within threshold of a side belongs to it; corners belong to two.
func ClassifyEdges(cells []Cell, width, height, threshold float64) EdgeRegions {
	regions := EdgeRegions{
		Top:    []int{},
		Bottom: []int{},
		Left:   []int{},
		Right:  []int{},
	}

	for _, cell := range cells {
		if cell.Center.Y < threshold {
			regions.Top = append(regions.Top, cell.ID)
		}

		if cell.Center.Y > height-threshold {
			regions.Bottom = append(regions.Bottom, cell.ID)
		}

		if cell.Center.X < threshold {
			regions.Left = append(regions.Left, cell.ID)
		}

		if cell.Center.X > width-threshold {
			regions.Right = append(regions.Right, cell.ID)
		}
	}

	return regions
}
