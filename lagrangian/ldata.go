package lagrangian

import "github.com/ibmesh/goimb/parvec"

// Reserved quantity names. The canonical position quantity is created by
// the manager itself and may not be reallocated.
const (
	// PositionDataName holds the current marker positions.
	PositionDataName = "X"

	// InitPositionDataName holds the marker positions at initialization;
	// structure reinitialization restores from it.
	InitPositionDataName = "X0"

	// VelocityDataName is the conventional name for marker velocities.
	VelocityDataName = "U"
)

func isReservedName(name string) bool {
	return name == PositionDataName || name == InitPositionDataName
}

// LData is one named Lagrangian quantity on one level: a distributed
// vector in the current parallel ordering with a ghost extension for the
// nonlocal markers visible to this rank. The generation ties the data to
// the distribution rebuild it was created under; the manager rejects use
// of data whose generation is no longer current.
type LData struct {
	name     string
	depth    int
	maintain bool
	vec      *parvec.Vec
}

// Name returns the quantity name.
func (ld *LData) Name() string { return ld.name }

// Depth returns the number of components per marker.
func (ld *LData) Depth() int { return ld.depth }

// Maintained reports whether the quantity survives redistribution and
// hierarchy reconfiguration.
func (ld *LData) Maintained() bool { return ld.maintain }

// Vec returns the backing distributed vector. Entries [0, LocalSize())
// are the markers owned by this rank in parallel order; the ghost
// extension follows in nonlocal-index order.
func (ld *LData) Vec() *parvec.Vec { return ld.vec }

// Generation returns the distribution generation the data belongs to.
func (ld *LData) Generation() int { return ld.vec.Generation() }
