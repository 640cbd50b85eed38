package lagrangian

import (
	"fmt"
	"log"

	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
	"github.com/ibmesh/goimb/parvec"
)

// Manager owns the distribution of Lagrangian marker data over one patch
// hierarchy: which rank owns which markers, the ordering between the
// fixed Lagrangian index space and the current parallel layout, the named
// per-level quantities, and the transfer operations against cell data.
//
// A manager is bound to a single goroutine rank; collective operations
// must be invoked in the same order on every rank of the group.
type Manager struct {
	name string
	rank *comm.Rank

	interp     *Kernel
	spread     *Kernel
	ghostWidth geom.IntVect

	alphaWork float64
	betaWork  float64

	hierarchy   *amr.Hierarchy
	initializer MarkerInitializer

	levels map[int]*levelState

	// workload and nodeCount are cell data caches rebuilt on demand and
	// invalidated by hierarchy reconfiguration.
	workload  *amr.HierarchyData
	nodeCount *amr.HierarchyData
}

// Name returns the manager's registry name.
func (m *Manager) Name() string { return m.name }

// Rank returns the rank the manager is bound to.
func (m *Manager) Rank() *comm.Rank { return m.rank }

// GhostCellWidth returns the ghost width the manager's kernels require.
func (m *Manager) GhostCellWidth() geom.IntVect { return m.ghostWidth }

// SetMarkerInitializer installs the initial-configuration source. It must
// be set before the hierarchy inserts its first level.
func (m *Manager) SetMarkerInitializer(init MarkerInitializer) {
	m.initializer = init
}

// AttachHierarchy binds the manager to a hierarchy and registers it for
// lifecycle callbacks.
func (m *Manager) AttachHierarchy(h *amr.Hierarchy) {
	m.hierarchy = h
	h.RegisterHooks(m)
}

// Hierarchy returns the attached hierarchy.
func (m *Manager) Hierarchy() *amr.Hierarchy { return m.hierarchy }

func (m *Manager) state(ln int) *levelState {
	s, ok := m.levels[ln]
	if !ok {
		panic(fmt.Sprintf("manager %q: no marker state on level %d", m.name, ln))
	}
	return s
}

// LevelContainsMarkers reports whether the level carries marker state.
func (m *Manager) LevelContainsMarkers(ln int) bool {
	_, ok := m.levels[ln]
	return ok
}

// NumNodes returns the global marker count of the level.
func (m *Manager) NumNodes(ln int) int { return m.state(ln).numNodes }

// NumLocalNodes returns the number of markers owned by this rank.
func (m *Manager) NumLocalNodes(ln int) int { return len(m.state(ln).localLag) }

// NodeOffset returns this rank's exclusive prefix count, the parallel
// index of its first owned marker.
func (m *Manager) NodeOffset(ln int) int { return m.state(ln).nodeOffset }

// Generation returns the level's distribution generation. It increments
// on every rebuild; data stamped with an older generation is stale.
func (m *Manager) Generation(ln int) int { return m.state(ln).generation }

// LocalLagrangianIndices returns the owned global Lagrangian indices in
// parallel order.
func (m *Manager) LocalLagrangianIndices(ln int) []int {
	return append([]int(nil), m.state(ln).localLag...)
}

// NonlocalLagrangianIndices returns the ghost-visible nonlocal indices in
// ghost storage order.
func (m *Manager) NonlocalLagrangianIndices(ln int) []int {
	return append([]int(nil), m.state(ln).nonlocalLag...)
}

// PatchMarkerEntries returns the entry indices of the owned markers whose
// cell lies inside the given local patch.
func (m *Manager) PatchMarkerEntries(p, ln int) []int {
	return append([]int(nil), m.state(ln).patchMarkers[p]...)
}

// AO returns the level's current application ordering.
func (m *Manager) AO(ln int) *parvec.AO { return m.state(ln).ao }

// MapLagrangianToParallel maps global Lagrangian indices to the current
// parallel ordering in place.
func (m *Manager) MapLagrangianToParallel(inds []int, ln int) error {
	return m.state(ln).ao.ApplicationToParallel(inds)
}

// MapParallelToLagrangian maps parallel indices back to the Lagrangian
// index space in place.
func (m *Manager) MapParallelToLagrangian(inds []int, ln int) error {
	return m.state(ln).ao.ParallelToApplication(inds)
}

// CreateLevelData allocates a named zeroed quantity on the level under the
// current distribution. Quiescent phase only; names must be unique on the
// level and may not shadow the reserved position quantities. Quantities
// created with maintain survive redistribution; others are dropped by it.
func (m *Manager) CreateLevelData(name string, ln, depth int, maintain bool) (*LData, error) {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return nil, fmt.Errorf("create %q on level %d during %s: %w", name, ln, s.phase, ErrPrecondition)
	}
	if isReservedName(name) {
		return nil, fmt.Errorf("%w: %q is reserved", ErrDuplicateName, name)
	}
	if _, exists := s.quantities[name]; exists {
		return nil, fmt.Errorf("%w: quantity %q on level %d", ErrDuplicateName, name, ln)
	}
	if depth < 1 {
		return nil, fmt.Errorf("create %q on level %d: depth %d out of bounds", name, ln, depth)
	}

	ghostPar := append([]int(nil), s.nonlocalLag...)
	if err := s.ao.ApplicationToParallel(ghostPar); err != nil {
		return nil, err
	}
	vec := parvec.NewGhostVec(m.rank, len(s.localLag), depth, ghostPar)
	vec.SetGeneration(s.generation)
	ld := &LData{name: name, depth: depth, maintain: maintain, vec: vec}
	s.quantities[name] = ld
	s.defs = append(s.defs, quantityDef{name: name, depth: depth, maintain: maintain})
	return ld, nil
}

// LevelData returns the named quantity on the level.
func (m *Manager) LevelData(name string, ln int) (*LData, error) {
	s := m.state(ln)
	ld, ok := s.quantities[name]
	if !ok {
		return nil, fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	return ld, nil
}

// FreeLevelData releases a named quantity. The reserved position
// quantities may not be freed.
func (m *Manager) FreeLevelData(name string, ln int) error {
	s := m.state(ln)
	if isReservedName(name) {
		return fmt.Errorf("quantity %q on level %d is reserved", name, ln)
	}
	if _, ok := s.quantities[name]; !ok {
		return fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	delete(s.quantities, name)
	for i, d := range s.defs {
		if d.name == name {
			s.defs = append(s.defs[:i], s.defs[i+1:]...)
			break
		}
	}
	return nil
}

// LevelDataIsCurrent reports whether a held quantity reference was
// allocated under the level's current distribution. References from
// before the last rebuild read stale layouts and must be re-fetched.
func (m *Manager) LevelDataIsCurrent(ld *LData, ln int) bool {
	return ld.vec.Generation() == m.state(ln).generation
}

// checkGeneration rejects data allocated under a superseded distribution.
func (m *Manager) checkGeneration(s *levelState, ld *LData) error {
	if ld.vec.Generation() != s.generation {
		return fmt.Errorf("quantity %q: generation %d, level %d at %d: %w",
			ld.name, ld.vec.Generation(), s.ln, s.generation, ErrStaleIndex)
	}
	return nil
}

// RefreshGhosts refreshes the ghost extension of the named quantity from
// the owning ranks. Collective.
func (m *Manager) RefreshGhosts(name string, ln int) error {
	s := m.state(ln)
	ld, ok := s.quantities[name]
	if !ok {
		return fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	ld.vec.UpdateGhosts()
	return nil
}

// ScatterLagrangianToParallel permutes src, laid out in Lagrangian order,
// into dst in the current parallel ordering. Collective.
func (m *Manager) ScatterLagrangianToParallel(src, dst *parvec.Vec, ln int) error {
	s := m.state(ln)
	// Owned source entries hold Lagrangian indices offset..offset+n; their
	// destinations are the parallel positions of those indices.
	dstIndex := make([]int, src.LocalSize())
	for j := range dstIndex {
		dstIndex[j] = src.Offset() + j
	}
	if err := s.ao.ApplicationToParallel(dstIndex); err != nil {
		return err
	}
	return parvec.Permute(m.rank, src, dst, dstIndex)
}

// ScatterParallelToLagrangian permutes src, laid out in the current
// parallel ordering, into dst in Lagrangian order. Collective.
func (m *Manager) ScatterParallelToLagrangian(src, dst *parvec.Vec, ln int) error {
	s := m.state(ln)
	dstIndex := make([]int, src.LocalSize())
	for j := range dstIndex {
		dstIndex[j] = src.Offset() + j
	}
	if err := s.ao.ParallelToApplication(dstIndex); err != nil {
		return err
	}
	return parvec.Permute(m.rank, src, dst, dstIndex)
}

// GatherQuantityToRank collects a quantity's full global content, in
// parallel order with depth interleaved, on the root rank; other ranks
// return nil. Collective.
func (m *Manager) GatherQuantityToRank(name string, ln, root int) ([]float64, error) {
	s := m.state(ln)
	ld, ok := s.quantities[name]
	if !ok {
		return nil, fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	return parvec.GatherToRank(m.rank, ld.vec, root), nil
}

// GatherQuantityToAll collects a quantity's full global content on every
// rank. Collective.
func (m *Manager) GatherQuantityToAll(name string, ln int) ([]float64, error) {
	s := m.state(ln)
	ld, ok := s.quantities[name]
	if !ok {
		return nil, fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	return parvec.GatherToAll(m.rank, ld.vec), nil
}

// MarkerHandle is a generation-tagged reference to a marker entry visible
// on this rank. Handles are invalidated by redistribution; stale handles
// are rejected, never dereferenced.
type MarkerHandle struct {
	Lag   int
	entry int
	gen   int
}

// LocateMarker resolves a global Lagrangian index to a handle if the
// marker is locally owned or ghost-visible.
func (m *Manager) LocateMarker(lag, ln int) (MarkerHandle, bool) {
	s := m.state(ln)
	entry, ok := s.entryOf(lag)
	if !ok {
		return MarkerHandle{}, false
	}
	return MarkerHandle{Lag: lag, entry: entry, gen: s.generation}, true
}

// MarkerIsLocal reports whether the handle refers to an owned marker, as
// opposed to a ghost-visible one.
func (m *Manager) MarkerIsLocal(h MarkerHandle, ln int) bool {
	return h.entry < len(m.state(ln).localLag)
}

// MarkerPosition returns the current position of the marker the handle
// refers to. Handles from before the last rebuild are rejected.
func (m *Manager) MarkerPosition(h MarkerHandle, ln int) (geom.Point, error) {
	s := m.state(ln)
	if h.gen != s.generation {
		return geom.Point{}, fmt.Errorf("handle for marker %d from generation %d, level %d at %d: %w",
			h.Lag, h.gen, ln, s.generation, ErrStaleIndex)
	}
	return pointAt(s.quantities[PositionDataName].vec, h.entry), nil
}

// MarkerValues returns the handle's entry of a named quantity, aliased.
func (m *Manager) MarkerValues(h MarkerHandle, name string, ln int) ([]float64, error) {
	s := m.state(ln)
	if h.gen != s.generation {
		return nil, fmt.Errorf("handle for marker %d from generation %d, level %d at %d: %w",
			h.Lag, h.gen, ln, s.generation, ErrStaleIndex)
	}
	ld, ok := s.quantities[name]
	if !ok {
		return nil, fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	return ld.vec.Values(h.entry), nil
}

// OnLevelInserted initializes marker state when the level first appears
// and redistributes in place when the level is regridded.
func (m *Manager) OnLevelInserted(h *amr.Hierarchy, ln int, initial bool) error {
	if initial {
		return m.initializeLevel(ln)
	}
	s, ok := m.levels[ln]
	if !ok {
		return nil
	}
	if s.phase != phaseQuiescent {
		return fmt.Errorf("level %d regridded during %s: %w", ln, s.phase, ErrPrecondition)
	}
	// The patch configuration changed under the markers. Reclassify
	// ownership against the new patches and rebuild immediately.
	dest := m.classifyOwners(s)
	return m.migrateAndRebuild(s, dest)
}

// OnReconfigured drops the cached workload and node-count data; they are
// recomputed on demand against the new configuration.
func (m *Manager) OnReconfigured(h *amr.Hierarchy, coarsest, finest int) error {
	m.workload = nil
	m.nodeCount = nil
	for ln := coarsest; ln <= finest; ln++ {
		if s, ok := m.levels[ln]; ok && s.phase == phaseQuiescent {
			if level := h.Level(ln); level != nil {
				m.bindPatches(s, level)
			}
		}
	}
	return nil
}

// initializeLevel builds first-time marker state from the initializer.
func (m *Manager) initializeLevel(ln int) error {
	if m.initializer == nil || !m.initializer.LevelHasMarkers(ln) {
		return nil
	}
	level := m.hierarchy.Level(ln)
	positions := m.initializer.InitialPositions(ln)
	structures, err := newStructureRegistry(m.initializer.Structures(ln))
	if err != nil {
		return fmt.Errorf("initialize level %d: %w", ln, err)
	}

	s := &levelState{
		ln: ln,
		defs: []quantityDef{
			{name: PositionDataName, depth: 3, maintain: true},
			{name: InitPositionDataName, depth: 3, maintain: true},
		},
		structures: structures,
	}
	m.levels[ln] = s

	// Every rank sees the full dense position list; each claims the
	// markers whose cell its patches own. Markers outside every patch
	// fall to rank 0 so the index space stays fully owned.
	var (
		mine    []int
		carried = map[string]map[int][]float64{
			PositionDataName:     make(map[int][]float64),
			InitPositionDataName: make(map[int][]float64),
		}
	)
	for lag, x := range positions {
		owner := level.OwnerOf(level.CellIndex(x))
		if owner < 0 {
			if m.rank.ID() == 0 {
				log.Printf("manager %q: marker %d at %v outside level %d patches, assigning to rank 0",
					m.name, lag, x, ln)
			}
			owner = 0
		}
		if owner != m.rank.ID() {
			continue
		}
		mine = append(mine, lag)
		carried[PositionDataName][lag] = []float64{x[0], x[1], x[2]}
		carried[InitPositionDataName][lag] = []float64{x[0], x[1], x[2]}
	}
	return m.rebuildLevel(s, mine, carried)
}

// OnTagCells marks every cell of the level holding a locally owned marker
// so refinement tracks the structures.
func (m *Manager) OnTagCells(h *amr.Hierarchy, ln int, tags *amr.CellData) error {
	s, ok := m.levels[ln]
	if !ok {
		return nil
	}
	level := h.Level(ln)
	x := s.quantities[PositionDataName]
	for _, p := range tags.LocalPatches() {
		box := level.Patches[p].Box
		for _, j := range s.patchMarkers[p] {
			ci := level.CellIndex(pointAt(x.vec, j))
			if box.Contains(ci) {
				tags.Set(p, ci, 0, 1)
			}
		}
	}
	return nil
}

// ResetLevels discards marker state outside the given level range, for
// hierarchies that shrink.
func (m *Manager) ResetLevels(coarsest, finest int) {
	for ln := range m.levels {
		if ln < coarsest || ln > finest {
			delete(m.levels, ln)
		}
	}
	m.workload = nil
	m.nodeCount = nil
}
