package lagrangian

import (
	"fmt"
	"math"
)

// Weighting-function names accepted by the manager. The support is the
// stencil width in cells per dimension; the ghost cell requirement of a
// kernel is derived from it.
const (
	PiecewiseConstant = "PIECEWISE_CONSTANT"
	PiecewiseLinear   = "PIECEWISE_LINEAR"
	IB3               = "IB_3"
	IB4               = "IB_4"
)

// Kernel is a regularized delta function in normalized cell coordinates.
// The one-dimensional weights of a kernel sum to one over its stencil; the
// three-dimensional weight is the product of the per-dimension weights.
type Kernel struct {
	Name    string
	Support int
	phi     func(r float64) float64
}

var kernelTable = map[string]*Kernel{
	PiecewiseConstant: {Name: PiecewiseConstant, Support: 1, phi: phiConstant},
	PiecewiseLinear:   {Name: PiecewiseLinear, Support: 2, phi: phiLinear},
	IB3:               {Name: IB3, Support: 3, phi: phiIB3},
	IB4:               {Name: IB4, Support: 4, phi: phiIB4},
}

// KernelByName resolves a weighting-function name.
func KernelByName(name string) (*Kernel, error) {
	k, ok := kernelTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return k, nil
}

// Weight evaluates the one-dimensional kernel at displacement r, measured
// in cells.
func (k *Kernel) Weight(r float64) float64 { return k.phi(r) }

// GhostCells returns the ghost width the kernel's stencil requires.
func (k *Kernel) GhostCells() int { return (k.Support + 1) / 2 }

func phiConstant(r float64) float64 {
	// Half-open so a marker on a cell face weights exactly one cell, like
	// the cell classifier.
	if r >= -0.5 && r < 0.5 {
		return 1
	}
	return 0
}

func phiLinear(r float64) float64 {
	a := math.Abs(r)
	if a < 1 {
		return 1 - a
	}
	return 0
}

func phiIB3(r float64) float64 {
	a := math.Abs(r)
	switch {
	case a < 0.5:
		return (1 + math.Sqrt(1-3*a*a)) / 3
	case a < 1.5:
		return (5 - 3*a - math.Sqrt(1-3*(1-a)*(1-a))) / 6
	default:
		return 0
	}
}

func phiIB4(r float64) float64 {
	a := math.Abs(r)
	switch {
	case a < 1:
		return (3 - 2*a + math.Sqrt(1+4*a-4*a*a)) / 8
	case a < 2:
		return (5 - 2*a - math.Sqrt(-7+12*a-4*a*a)) / 8
	default:
		return 0
	}
}
