package lagrangian

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelLookup(t *testing.T) {
	for _, name := range []string{PiecewiseConstant, PiecewiseLinear, IB3, IB4} {
		k, err := KernelByName(name)
		assert.NoError(t, err)
		assert.Equal(t, name, k.Name)
	}
	_, err := KernelByName("IB_7")
	assert.ErrorIs(t, err, ErrUnknownKernel)

	assert.Equal(t, 1, kernelTable[PiecewiseConstant].GhostCells())
	assert.Equal(t, 1, kernelTable[PiecewiseLinear].GhostCells())
	assert.Equal(t, 2, kernelTable[IB3].GhostCells())
	assert.Equal(t, 2, kernelTable[IB4].GhostCells())
}

// Every kernel's stencil weights sum to one for any marker offset inside
// a cell, the cell-face offset 0.5 included.
func TestKernelPartitionOfUnity(t *testing.T) {
	offsets := []float64{0, 0.125, 0.25, 0.375, 0.49, 0.5}
	for name, k := range kernelTable {
		for _, c := range offsets {
			var sum float64
			for i := -4; i <= 4; i++ {
				sum += k.Weight(float64(i) - c)
			}
			assert.InDelta(t, 1.0, sum, 1e-12, "kernel %s at offset %v", name, c)
		}
	}
}

// A marker sitting exactly on a cell face weights exactly one cell under
// the constant kernel, matching the cell classifier.
func TestConstantKernelFace(t *testing.T) {
	k := kernelTable[PiecewiseConstant]
	assert.Equal(t, 1.0, k.Weight(-0.5))
	assert.Equal(t, 0.0, k.Weight(0.5))
	assert.Equal(t, 1.0, k.Weight(0))
}

func TestKernelShapes(t *testing.T) {
	lin := kernelTable[PiecewiseLinear]
	assert.Equal(t, 1.0, lin.Weight(0))
	assert.Equal(t, 0.5, lin.Weight(0.5))
	assert.Equal(t, 0.0, lin.Weight(1.0))

	ib4 := kernelTable[IB4]
	assert.InDelta(t, 0.5, ib4.Weight(0), 1e-12)
	assert.Equal(t, 0.0, ib4.Weight(2.0))
	assert.Equal(t, ib4.Weight(1.25), ib4.Weight(-1.25))
}
