package lagrangian

import (
	"fmt"
	"sort"

	"github.com/ibmesh/goimb/comm"
)

// markerMsg is one migrating marker: its global Lagrangian index and the
// maintained quantity payloads packed in quantity name order.
type markerMsg struct {
	Lag  int
	Vals []float64
}

// BeginRedistribute opens the two-phase redistribution of a level. It
// classifies every owned marker against the current patch configuration
// and records which must migrate; no data moves yet. Collective. The
// level enters the redistributing phase, in which data allocation and
// structure mutation are rejected; a second Begin without an intervening
// End is rejected too.
func (m *Manager) BeginRedistribute(ln int) error {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return fmt.Errorf("begin redistribute on level %d during %s: %w", ln, s.phase, ErrPrecondition)
	}
	s.departing = m.classifyOwners(s)
	s.phase = phaseRedistributing
	return nil
}

// EndRedistribute completes the redistribution opened by
// BeginRedistribute: departing markers carry their maintained quantities
// to their new owners, non-maintained quantities are dropped, and every
// derived object is rebuilt from scratch under the new ownership.
// Collective. Calling it on a quiescent level is rejected.
func (m *Manager) EndRedistribute(ln int) error {
	s := m.state(ln)
	if s.phase != phaseRedistributing {
		return fmt.Errorf("end redistribute on level %d during %s: %w", ln, s.phase, ErrPrecondition)
	}
	return m.migrateAndRebuild(s, s.departing)
}

// classifyOwners computes the destination rank of every owned marker from
// its current position, -1 for markers staying on this rank. Markers
// outside every patch fall to rank 0.
func (m *Manager) classifyOwners(s *levelState) []int {
	level := m.hierarchy.Level(s.ln)
	x := s.quantities[PositionDataName]
	dest := make([]int, len(s.localLag))
	for j := range s.localLag {
		owner := level.OwnerOf(level.CellIndex(pointAt(x.vec, j)))
		if owner < 0 {
			owner = 0
		}
		if owner == m.rank.ID() {
			owner = -1
		}
		dest[j] = owner
	}
	return dest
}

// maintainedDefs returns the quantity definitions surviving a rebuild, in
// name order. Quantity creation is collective, so the list is identical
// on every rank and fixes the migration payload layout.
func (s *levelState) maintainedDefs() []quantityDef {
	var defs []quantityDef
	for _, d := range s.defs {
		if d.maintain {
			defs = append(defs, d)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].name < defs[j].name })
	return defs
}

// migrateAndRebuild moves departing markers to their destination ranks
// and rebuilds the level's distribution state. Collective.
func (m *Manager) migrateAndRebuild(s *levelState, dest []int) error {
	defs := s.maintainedDefs()

	pack := func(j int) []float64 {
		var vals []float64
		for _, d := range defs {
			vals = append(vals, s.quantities[d.name].vec.Values(j)...)
		}
		return vals
	}

	var (
		out     = make(map[int][]markerMsg)
		lags    []int
		carried = make(map[string]map[int][]float64, len(defs))
	)
	for _, d := range defs {
		carried[d.name] = make(map[int][]float64)
	}
	keep := func(lag int, vals []float64) {
		lags = append(lags, lag)
		k := 0
		for _, d := range defs {
			carried[d.name][lag] = vals[k : k+d.depth]
			k += d.depth
		}
	}

	for j, lag := range s.localLag {
		if dest[j] >= 0 {
			out[dest[j]] = append(out[dest[j]], markerMsg{Lag: lag, Vals: pack(j)})
			continue
		}
		keep(lag, pack(j))
	}
	for _, msgs := range comm.Exchange(m.rank, out) {
		for _, msg := range msgs {
			keep(msg.Lag, msg.Vals)
		}
	}

	s.defs = defs
	return m.rebuildLevel(s, lags, carried)
}
