package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellIndexFaceConsistency(t *testing.T) {
	// Two abutting patches share the face x=5.0. Both must assign the same
	// cell index to a point exactly on the shared face, because both measure
	// the offset from the same (nearer) domain bound.
	var (
		dx     = [3]float64{0.1, 0.1, 0.1}
		xLower = Point{0, 0, 0}
		xUpper = Point{10, 1, 1}
		iLower = IntVect{0, 0, 0}
		iUpper = IntVect{99, 9, 9}
	)
	pt := Point{5.0, 0.55, 0.55}
	left := CellIndexForPoint(pt, xLower, xUpper, dx, iLower, iUpper)
	right := CellIndexForPoint(pt, xLower, xUpper, dx, iLower, iUpper)
	assert.Equal(t, left, right)

	// The index computed through either patch's own geometric description
	// must also agree, since both patches see the same domain bounds.
	for _, x := range []float64{4.999999, 5.0, 5.000001} {
		p := Point{x, 0.55, 0.55}
		ci := CellIndexForPoint(p, xLower, xUpper, dx, iLower, iUpper)
		if x < 5.0 {
			assert.Equal(t, 49, ci[0])
		} else {
			assert.Equal(t, 50, ci[0])
		}
	}
}

func TestCellIndexNearerBoundRule(t *testing.T) {
	var (
		dx     = [3]float64{1, 1, 1}
		xLower = Point{0, 0, 0}
		xUpper = Point{8, 8, 8}
		iLower = IntVect{0, 0, 0}
		iUpper = IntVect{7, 7, 7}
	)
	// Point in the upper half measures from the upper bound.
	ci := CellIndexForPoint(Point{6.5, 6.5, 6.5}, xLower, xUpper, dx, iLower, iUpper)
	assert.Equal(t, IntVect{6, 6, 6}, ci)
	// Point in the lower half measures from the lower bound.
	ci = CellIndexForPoint(Point{1.5, 1.5, 1.5}, xLower, xUpper, dx, iLower, iUpper)
	assert.Equal(t, IntVect{1, 1, 1}, ci)
	// The exact midpoint ties toward the lower bound.
	ci = CellIndexForPoint(Point{4.0, 4.0, 4.0}, xLower, xUpper, dx, iLower, iUpper)
	assert.Equal(t, IntVect{4, 4, 4}, ci)
}

func TestCoarsenIndexNegative(t *testing.T) {
	r := UniformIntVect(2)
	table := []struct {
		fine   int
		coarse int
	}{
		{-4, -2}, {-3, -2}, {-2, -1}, {-1, -1}, {0, 0}, {1, 0}, {2, 1}, {3, 1},
	}
	for _, tc := range table {
		got := CoarsenIndex(UniformIntVect(tc.fine), r)
		assert.Equal(t, UniformIntVect(tc.coarse), got, "fine index %d", tc.fine)
	}
}

func TestRefineCoarsenRoundTrip(t *testing.T) {
	r := IntVect{2, 4, 2}
	for _, i := range []IntVect{{0, 0, 0}, {3, 1, 7}, {-2, -1, -5}} {
		fine := RefineIndex(i, r)
		assert.Equal(t, i, CoarsenIndex(fine, r))
	}
}

func TestBoxArithmetic(t *testing.T) {
	b := NewBox(IntVect{0, 0, 0}, IntVect{3, 3, 3})
	o := NewBox(IntVect{2, 2, 2}, IntVect{5, 5, 5})

	ov := b.Intersect(o)
	assert.Equal(t, NewBox(IntVect{2, 2, 2}, IntVect{3, 3, 3}), ov)
	assert.Equal(t, 8, ov.NumCells())
	assert.True(t, b.Intersects(o))

	assert.True(t, b.Grow(UniformIntVect(1)).Contains(IntVect{-1, 4, 0}))
	assert.False(t, b.Contains(IntVect{-1, 4, 0}))

	fine := b.Refine(UniformIntVect(2))
	assert.Equal(t, NewBox(IntVect{0, 0, 0}, IntVect{7, 7, 7}), fine)
	assert.Equal(t, b, fine.Coarsen(UniformIntVect(2)))

	// Offset/CellAt round trip over the whole box.
	n := 0
	b.ForEach(func(ci IntVect) {
		assert.Equal(t, n, b.Offset(ci))
		assert.Equal(t, ci, b.CellAt(n))
		n++
	})
	assert.Equal(t, b.NumCells(), n)
}
