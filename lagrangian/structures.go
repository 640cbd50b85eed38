package lagrangian

import (
	"fmt"
	"math"
	"sort"

	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
)

// Sentinels returned by structure queries that find nothing. Queries are
// routinely speculative, so unknown names and IDs are not errors.
const (
	StructureIDNone      = -1
	UnknownStructureName = "UNKNOWN"
)

// structureRegistry holds the per-level structure metadata. It is
// replicated identically on every rank; only activation changes after
// registration, and activation changes are collective.
type structureRegistry struct {
	byName map[string]int
	specs  map[int]StructureSpec
	ids    []int // ascending
	active map[int]bool
}

// newStructureRegistry validates and indexes the structure specs of a
// level. IDs are assigned in spec order. Index ranges of distinct
// structures must not overlap.
func newStructureRegistry(specs []StructureSpec) (*structureRegistry, error) {
	reg := &structureRegistry{
		byName: make(map[string]int),
		specs:  make(map[int]StructureSpec),
		active: make(map[int]bool),
	}
	for id, spec := range specs {
		if spec.FirstLag < 0 || spec.LastLag < spec.FirstLag {
			return nil, fmt.Errorf("structure %q: bad index range [%d, %d)", spec.Name, spec.FirstLag, spec.LastLag)
		}
		if _, dup := reg.byName[spec.Name]; dup {
			return nil, fmt.Errorf("%w: structure %q", ErrDuplicateName, spec.Name)
		}
		reg.byName[spec.Name] = id
		reg.specs[id] = spec
		reg.ids = append(reg.ids, id)
		reg.active[id] = true
	}
	bySpan := append([]int(nil), reg.ids...)
	sort.Slice(bySpan, func(i, j int) bool {
		return reg.specs[bySpan[i]].FirstLag < reg.specs[bySpan[j]].FirstLag
	})
	for i := 1; i < len(bySpan); i++ {
		prev, cur := reg.specs[bySpan[i-1]], reg.specs[bySpan[i]]
		if cur.FirstLag < prev.LastLag {
			return nil, fmt.Errorf("structures %q and %q: overlapping index ranges", prev.Name, cur.Name)
		}
	}
	return reg, nil
}

func (reg *structureRegistry) idForMarker(lag int) int {
	for _, id := range reg.ids {
		spec := reg.specs[id]
		if lag >= spec.FirstLag && lag < spec.LastLag {
			return id
		}
	}
	return StructureIDNone
}

// StructureIDs returns the structure IDs of a level in ascending order.
func (m *Manager) StructureIDs(ln int) []int {
	s := m.state(ln)
	return append([]int(nil), s.structures.ids...)
}

// StructureNames returns the structure names of a level in ID order.
func (m *Manager) StructureNames(ln int) []string {
	s := m.state(ln)
	names := make([]string, 0, len(s.structures.ids))
	for _, id := range s.structures.ids {
		names = append(names, s.structures.specs[id].Name)
	}
	return names
}

// StructureID returns the ID of the named structure, or StructureIDNone.
func (m *Manager) StructureID(name string, ln int) int {
	s := m.state(ln)
	if id, ok := s.structures.byName[name]; ok {
		return id
	}
	return StructureIDNone
}

// StructureIDForMarker returns the ID of the structure containing the
// given global Lagrangian index, or StructureIDNone.
func (m *Manager) StructureIDForMarker(lag, ln int) int {
	return m.state(ln).structures.idForMarker(lag)
}

// StructureName returns the name of the structure with the given ID, or
// UnknownStructureName.
func (m *Manager) StructureName(id, ln int) string {
	s := m.state(ln)
	if spec, ok := s.structures.specs[id]; ok {
		return spec.Name
	}
	return UnknownStructureName
}

// StructureIndexRange returns the [first, last) global Lagrangian index
// range of the structure, or (-1, -1).
func (m *Manager) StructureIndexRange(id, ln int) (first, last int) {
	s := m.state(ln)
	if spec, ok := s.structures.specs[id]; ok {
		return spec.FirstLag, spec.LastLag
	}
	return -1, -1
}

// StructureIsActive reports the activation flag of the structure; unknown
// IDs report false.
func (m *Manager) StructureIsActive(id, ln int) bool {
	return m.state(ln).structures.active[id]
}

// ActivateStructures activates the structures with the given IDs. The
// call is collective, but each rank may submit a different subset: the
// union of all submissions is applied, so the registry converges to the
// same activation state everywhere. Activating an active structure is a
// no-op. Unknown IDs are ignored.
func (m *Manager) ActivateStructures(ids []int, ln int) {
	m.setActivation(ids, ln, true)
}

// InactivateStructures inactivates the structures with the given IDs,
// with the same collective union semantics as ActivateStructures.
func (m *Manager) InactivateStructures(ids []int, ln int) {
	m.setActivation(ids, ln, false)
}

func (m *Manager) setActivation(ids []int, ln int, flag bool) {
	s := m.state(ln)
	merged := make(map[int]bool)
	for _, row := range comm.AllGather(m.rank, ids) {
		for _, id := range row {
			merged[id] = true
		}
	}
	for id := range merged {
		if _, known := s.structures.specs[id]; known {
			s.structures.active[id] = flag
		}
	}
}

// ZeroInactivated zeroes the entries of the quantity, including its ghost
// extension, that belong to inactivated structures.
func (m *Manager) ZeroInactivated(name string, ln int) error {
	s := m.state(ln)
	ld, ok := s.quantities[name]
	if !ok {
		return fmt.Errorf("zero inactivated: no quantity %q on level %d", name, ln)
	}
	zero := func(entry, lag int) {
		id := s.structures.idForMarker(lag)
		if id == StructureIDNone || s.structures.active[id] {
			return
		}
		for d := 0; d < ld.depth; d++ {
			ld.vec.Set(entry, d, 0)
		}
	}
	for j, lag := range s.localLag {
		zero(j, lag)
	}
	for k, lag := range s.nonlocalLag {
		zero(len(s.localLag)+k, lag)
	}
	return nil
}

// StructureCenterOfMass returns the arithmetic mean of the structure's
// member positions. Collective. Unknown IDs yield the zero vector.
func (m *Manager) StructureCenterOfMass(id, ln int) geom.Point {
	var com geom.Point
	s := m.state(ln)
	spec, known := s.structures.specs[id]
	if !known {
		return com
	}
	part := m.foldStructure(s, spec, PositionDataName)
	if part.n == 0 {
		return com
	}
	for d := 0; d < 3; d++ {
		com[d] = part.sum[d] / float64(part.n)
	}
	return com
}

// StructureBoundingBox returns the component-wise min/max of the
// structure's member positions. Collective. Unknown IDs yield the full
// numeric range (lower = +MaxFloat64, upper = -MaxFloat64), a sentinel
// meaning "no valid box".
func (m *Manager) StructureBoundingBox(id, ln int) (lower, upper geom.Point) {
	return m.structureBoundingBoxOf(id, ln, PositionDataName)
}

func (m *Manager) structureBoundingBoxOf(id, ln int, quantity string) (lower, upper geom.Point) {
	for d := 0; d < 3; d++ {
		lower[d] = math.MaxFloat64
		upper[d] = -math.MaxFloat64
	}
	s := m.state(ln)
	spec, known := s.structures.specs[id]
	if !known {
		return lower, upper
	}
	part := m.foldStructure(s, spec, quantity)
	if part.n == 0 {
		return lower, upper
	}
	return part.lo, part.hi
}

// structureFold is the per-rank reduction over a structure's local
// members, combined across ranks by foldStructure.
type structureFold struct {
	n      int
	sum    geom.Point
	lo, hi geom.Point
}

func (m *Manager) foldStructure(s *levelState, spec StructureSpec, quantity string) structureFold {
	ld := s.quantities[quantity]
	local := structureFold{}
	for d := 0; d < 3; d++ {
		local.lo[d] = math.MaxFloat64
		local.hi[d] = -math.MaxFloat64
	}
	for j, lag := range s.localLag {
		if lag < spec.FirstLag || lag >= spec.LastLag {
			continue
		}
		local.n++
		for d := 0; d < 3; d++ {
			v := ld.vec.At(j, d)
			local.sum[d] += v
			local.lo[d] = math.Min(local.lo[d], v)
			local.hi[d] = math.Max(local.hi[d], v)
		}
	}

	// Pack as [n, sum, lo, hi] and fold over all ranks.
	packed := []float64{float64(local.n),
		local.sum[0], local.sum[1], local.sum[2],
		local.lo[0], local.lo[1], local.lo[2],
		local.hi[0], local.hi[1], local.hi[2]}
	total := structureFold{}
	for d := 0; d < 3; d++ {
		total.lo[d] = math.MaxFloat64
		total.hi[d] = -math.MaxFloat64
	}
	for _, row := range comm.AllGather(m.rank, packed) {
		total.n += int(row[0])
		for d := 0; d < 3; d++ {
			total.sum[d] += row[1+d]
			total.lo[d] = math.Min(total.lo[d], row[4+d])
			total.hi[d] = math.Max(total.hi[d], row[7+d])
		}
	}
	return total
}

// ReinitStructure resets the structure's positions to the stored initial
// configuration, shifted so the structure's bounding box is centered at
// center. Collective. The operation is only valid immediately before a
// redistribution; later use leaves ghost data stale until the next
// rebuild.
func (m *Manager) ReinitStructure(center geom.Point, id, ln int) error {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return fmt.Errorf("reinit structure %d on level %d: %w", id, ln, ErrPrecondition)
	}
	spec, known := s.structures.specs[id]
	if !known {
		return fmt.Errorf("%w: id %d on level %d", ErrUnknownStructure, id, ln)
	}
	lo, hi := m.structureBoundingBoxOf(id, ln, InitPositionDataName)
	var shift geom.Point
	for d := 0; d < 3; d++ {
		shift[d] = center[d] - (lo[d]+hi[d])/2
	}
	var (
		x  = s.quantities[PositionDataName]
		x0 = s.quantities[InitPositionDataName]
	)
	for j, lag := range s.localLag {
		if lag < spec.FirstLag || lag >= spec.LastLag {
			continue
		}
		for d := 0; d < 3; d++ {
			x.vec.Set(j, d, x0.vec.At(j, d)+shift[d])
		}
	}
	return nil
}

// DisplaceStructure shifts the structure's positions by dX. Collective
// only in its ordering contract; no communication occurs. Like
// ReinitStructure it is only valid immediately before a redistribution.
func (m *Manager) DisplaceStructure(dX geom.Point, id, ln int) error {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return fmt.Errorf("displace structure %d on level %d: %w", id, ln, ErrPrecondition)
	}
	spec, known := s.structures.specs[id]
	if !known {
		return fmt.Errorf("%w: id %d on level %d", ErrUnknownStructure, id, ln)
	}
	x := s.quantities[PositionDataName]
	for j, lag := range s.localLag {
		if lag < spec.FirstLag || lag >= spec.LastLag {
			continue
		}
		for d := 0; d < 3; d++ {
			x.vec.Add(j, d, dX[d])
		}
	}
	return nil
}
