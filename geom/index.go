// Package geom provides the integer index arithmetic shared by the
// Lagrangian data manager and the AMR grid collaborator: cell index
// computation from physical coordinates, refine/coarsen index maps, and
// cell-centered index boxes.
package geom

import "math"

// IntVect is a cell index or integer width in the grid index space.
type IntVect [3]int

// Point is a physical-space position.
type Point [3]float64

func (v IntVect) Plus(w IntVect) IntVect {
	return IntVect{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

func (v IntVect) Minus(w IntVect) IntVect {
	return IntVect{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// UniformIntVect returns an IntVect with every component equal to n.
func UniformIntVect(n int) IntVect {
	return IntVect{n, n, n}
}

func (p Point) Plus(q Point) Point {
	return Point{p[0] + q[0], p[1] + q[1], p[2] + q[2]}
}

func (p Point) Minus(q Point) Point {
	return Point{p[0] - q[0], p[1] - q[1], p[2] - q[2]}
}

// CellIndexForPoint maps a physical position to the index of the grid cell
// containing it. For each dimension the offset is measured from whichever
// of the lower or upper domain bound is nearer before flooring by the cell
// spacing, so that two abutting patches sharing a face compute the same
// cell index for a point exactly on that face.
//
// NOTE: This expression guarantees consistency between neighboring patches,
// but it is still possible to get inconsistent mappings on disjoint patches.
func CellIndexForPoint(x, xLower, xUpper Point, dx [3]float64, iLower, iUpper IntVect) IntVect {
	var idx IntVect
	for d := 0; d < 3; d++ {
		dXLower := x[d] - xLower[d]
		dXUpper := x[d] - xUpper[d]
		if math.Abs(dXLower) <= math.Abs(dXUpper) {
			idx[d] = iLower[d] + int(math.Floor(dXLower/dx[d]))
		} else {
			idx[d] = iUpper[d] + int(math.Floor(dXUpper/dx[d])) + 1
		}
	}
	return idx
}

// CoarsenIndex maps a fine-grid cell index to the containing coarse-grid
// cell index. The floor division is exact for negative indices.
func CoarsenIndex(fine, ratio IntVect) IntVect {
	var coarse IntVect
	for d := 0; d < 3; d++ {
		if fine[d] < 0 {
			coarse[d] = (fine[d]+1)/ratio[d] - 1
		} else {
			coarse[d] = fine[d] / ratio[d]
		}
	}
	return coarse
}

// RefineIndex maps a coarse-grid cell index to the lower corner of the
// corresponding block of fine-grid cells.
func RefineIndex(coarse, ratio IntVect) IntVect {
	return IntVect{coarse[0] * ratio[0], coarse[1] * ratio[1], coarse[2] * ratio[2]}
}
