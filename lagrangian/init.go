package lagrangian

import "github.com/ibmesh/goimb/geom"

// StructureSpec names a contiguous range [FirstLag, LastLag) of global
// Lagrangian indices forming one structure.
type StructureSpec struct {
	Name     string
	FirstLag int
	LastLag  int
}

// MarkerInitializer supplies the initial marker configuration of a level.
// It is consulted once per level, when the hierarchy inserts the level for
// the first time.
//
// InitialPositions must return the same slice contents on every rank; the
// slice index is the marker's global Lagrangian index, so positions are
// dense over [0, N). Ownership is derived geometrically from the level's
// patch configuration.
type MarkerInitializer interface {
	LevelHasMarkers(ln int) bool
	InitialPositions(ln int) []geom.Point
	Structures(ln int) []StructureSpec
}
