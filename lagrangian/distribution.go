package lagrangian

import (
	"fmt"
	"sort"

	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
	"github.com/ibmesh/goimb/parvec"
)

func pointOf(vals []float64) geom.Point {
	var x geom.Point
	copy(x[:], vals)
	return x
}

func pointAt(v *parvec.Vec, entry int) geom.Point {
	return pointOf(v.Values(entry))
}

// phase is the redistribution protocol state of one level.
type phase int

const (
	phaseQuiescent phase = iota
	phaseRedistributing
)

func (p phase) String() string {
	switch p {
	case phaseQuiescent:
		return "quiescent"
	case phaseRedistributing:
		return "redistributing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// quantityDef records the allocation parameters of a quantity so the
// rebuild can reallocate it under the new distribution.
type quantityDef struct {
	name     string
	depth    int
	maintain bool
}

// levelState is the complete per-level distribution state. Everything in
// it except the structure registry and the quantity definitions is
// rebuilt from scratch on every redistribution.
type levelState struct {
	ln         int
	generation int
	phase      phase

	numNodes   int
	nodeOffset int

	// localLag holds the global Lagrangian indices owned by this rank in
	// ascending order, which is also their parallel order. nonlocalLag
	// holds the ghost-visible nonlocal indices, ascending; entry
	// len(localLag)+k of every quantity addresses nonlocalLag[k].
	localLag    []int
	nonlocalLag []int

	ao *parvec.AO

	defs       []quantityDef
	quantities map[string]*LData

	structures *structureRegistry

	// patchMarkers lists, per local patch, the entry indices of the owned
	// markers whose cell lies in the patch interior. patchGhosts lists the
	// ghost entries whose cell lies in the patch's grown box.
	patchMarkers map[int][]int
	patchGhosts  map[int][]int

	// departing is filled by BeginRedistribute: destination rank per owned
	// marker, -1 for markers staying local.
	departing []int
}

func (s *levelState) entryOf(lag int) (int, bool) {
	if j := sort.SearchInts(s.localLag, lag); j < len(s.localLag) && s.localLag[j] == lag {
		return j, true
	}
	if k := sort.SearchInts(s.nonlocalLag, lag); k < len(s.nonlocalLag) && s.nonlocalLag[k] == lag {
		return len(s.localLag) + k, true
	}
	return -1, false
}

func (s *levelState) def(name string) (quantityDef, bool) {
	for _, d := range s.defs {
		if d.name == name {
			return d, true
		}
	}
	return quantityDef{}, false
}

// rebuildLevel installs a fresh distribution for the level from this
// rank's owned Lagrangian indices and the carried quantity payloads,
// keyed by quantity name and global Lagrangian index. Collective. Every
// derived object is rebuilt: offsets, the application ordering, the ghost
// sets, the quantity vectors and the patch marker lists.
func (m *Manager) rebuildLevel(s *levelState, lags []int, carried map[string]map[int][]float64) error {
	level := m.hierarchy.Level(s.ln)
	if level == nil {
		return fmt.Errorf("rebuild: level %d does not exist", s.ln)
	}
	sort.Ints(lags)
	s.localLag = lags
	s.nodeOffset, s.numNodes = comm.Offsets(m.rank, len(lags))

	ao, err := parvec.NewAO(m.rank, lags)
	if err != nil {
		return fmt.Errorf("rebuild level %d: %w", s.ln, err)
	}
	s.ao = ao
	s.generation++

	// Ghost discovery. Each owner announces its markers to every rank
	// holding a patch whose grown box covers the marker's cell.
	announce := make(map[int]map[int]bool)
	for _, lag := range lags {
		x := pointOf(carried[PositionDataName][lag])
		ci := level.CellIndex(x)
		for _, patch := range level.Patches {
			if patch.Owner == m.rank.ID() {
				continue
			}
			if patch.Box.Grow(m.ghostWidth).Contains(ci) {
				if announce[patch.Owner] == nil {
					announce[patch.Owner] = make(map[int]bool)
				}
				announce[patch.Owner][lag] = true
			}
		}
	}
	out := make(map[int][]int)
	for dst, set := range announce {
		for lag := range set {
			out[dst] = append(out[dst], lag)
		}
		sort.Ints(out[dst])
	}
	seen := make(map[int]bool)
	for _, row := range comm.Exchange(m.rank, out) {
		for _, lag := range row {
			seen[lag] = true
		}
	}
	s.nonlocalLag = s.nonlocalLag[:0]
	for lag := range seen {
		s.nonlocalLag = append(s.nonlocalLag, lag)
	}
	sort.Ints(s.nonlocalLag)

	// Ghost slots are addressed by parallel index inside the vectors.
	ghostPar := append([]int(nil), s.nonlocalLag...)
	if err := s.ao.ApplicationToParallel(ghostPar); err != nil {
		return fmt.Errorf("rebuild level %d: %w", s.ln, err)
	}

	// Reallocate every quantity under the new distribution, in name order
	// so the collective allocation and ghost refresh sequence agrees
	// across ranks.
	sort.Slice(s.defs, func(i, j int) bool { return s.defs[i].name < s.defs[j].name })
	s.quantities = make(map[string]*LData, len(s.defs))
	for _, def := range s.defs {
		vec := parvec.NewGhostVec(m.rank, len(lags), def.depth, ghostPar)
		vec.SetGeneration(s.generation)
		if payload := carried[def.name]; payload != nil {
			for j, lag := range lags {
				if vals, ok := payload[lag]; ok {
					copy(vec.Values(j), vals)
				}
			}
		}
		vec.UpdateGhosts()
		s.quantities[def.name] = &LData{
			name:     def.name,
			depth:    def.depth,
			maintain: def.maintain,
			vec:      vec,
		}
	}

	m.bindPatches(s, level)
	s.departing = nil
	s.phase = phaseQuiescent
	return nil
}

// bindPatches recomputes the per-patch marker and ghost-marker lists from
// the current positions.
func (m *Manager) bindPatches(s *levelState, level *amr.Level) {
	s.patchMarkers = make(map[int][]int)
	s.patchGhosts = make(map[int][]int)
	x := s.quantities[PositionDataName]
	for _, p := range level.LocalPatches(m.rank.ID()) {
		box := level.Patches[p].Box
		grown := box.Grow(m.ghostWidth)
		for j := range s.localLag {
			ci := level.CellIndex(pointAt(x.vec, j))
			if box.Contains(ci) {
				s.patchMarkers[p] = append(s.patchMarkers[p], j)
			}
		}
		for k := range s.nonlocalLag {
			entry := len(s.localLag) + k
			ci := level.CellIndex(pointAt(x.vec, entry))
			if grown.Contains(ci) {
				s.patchGhosts[p] = append(s.patchGhosts[p], entry)
			}
		}
	}
}
