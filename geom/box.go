package geom

// Box is a cell-centered index box with inclusive lower and upper corners.
type Box struct {
	Lo, Hi IntVect
}

// NewBox returns the box [lo, hi], inclusive on both ends.
func NewBox(lo, hi IntVect) Box {
	return Box{Lo: lo, Hi: hi}
}

// Empty reports whether the box contains no cells.
func (b Box) Empty() bool {
	for d := 0; d < 3; d++ {
		if b.Hi[d] < b.Lo[d] {
			return true
		}
	}
	return false
}

// Size returns the cell extent of the box in each dimension.
func (b Box) Size() IntVect {
	var s IntVect
	for d := 0; d < 3; d++ {
		s[d] = b.Hi[d] - b.Lo[d] + 1
		if s[d] < 0 {
			s[d] = 0
		}
	}
	return s
}

// NumCells returns the total number of cells in the box.
func (b Box) NumCells() int {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

// Contains reports whether the cell index lies within the box.
func (b Box) Contains(ci IntVect) bool {
	for d := 0; d < 3; d++ {
		if ci[d] < b.Lo[d] || ci[d] > b.Hi[d] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two boxes. The result may be empty.
func (b Box) Intersect(o Box) Box {
	var r Box
	for d := 0; d < 3; d++ {
		r.Lo[d] = maxInt(b.Lo[d], o.Lo[d])
		r.Hi[d] = minInt(b.Hi[d], o.Hi[d])
	}
	return r
}

// Intersects reports whether two boxes share at least one cell.
func (b Box) Intersects(o Box) bool {
	return !b.Intersect(o).Empty()
}

// Grow expands the box by gw cells on every face.
func (b Box) Grow(gw IntVect) Box {
	return Box{Lo: b.Lo.Minus(gw), Hi: b.Hi.Plus(gw)}
}

// Refine maps the box to the fine index space: the result covers exactly
// the fine cells contained in the coarse cells of b.
func (b Box) Refine(ratio IntVect) Box {
	var r Box
	r.Lo = RefineIndex(b.Lo, ratio)
	for d := 0; d < 3; d++ {
		r.Hi[d] = (b.Hi[d]+1)*ratio[d] - 1
	}
	return r
}

// Coarsen maps the box to the coarse index space.
func (b Box) Coarsen(ratio IntVect) Box {
	return Box{Lo: CoarsenIndex(b.Lo, ratio), Hi: CoarsenIndex(b.Hi, ratio)}
}

// Offset returns the linear position of ci within the box, x fastest.
// The caller must ensure ci is contained in the box.
func (b Box) Offset(ci IntVect) int {
	s := b.Size()
	return (ci[0] - b.Lo[0]) + s[0]*((ci[1]-b.Lo[1])+s[1]*(ci[2]-b.Lo[2]))
}

// CellAt is the inverse of Offset.
func (b Box) CellAt(off int) IntVect {
	s := b.Size()
	var ci IntVect
	ci[0] = b.Lo[0] + off%s[0]
	off /= s[0]
	ci[1] = b.Lo[1] + off%s[1]
	ci[2] = b.Lo[2] + off/s[1]
	return ci
}

// ForEach calls fn for every cell in the box in Offset order.
func (b Box) ForEach(fn func(ci IntVect)) {
	for k := b.Lo[2]; k <= b.Hi[2]; k++ {
		for j := b.Lo[1]; j <= b.Hi[1]; j++ {
			for i := b.Lo[0]; i <= b.Hi[0]; i++ {
				fn(IntVect{i, j, k})
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
