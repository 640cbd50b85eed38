package lagrangian

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"

	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/geom"
)

// couplingMatrix assembles the sparse transfer operator between the
// markers listed in entries and the cells of the grown box of local patch
// p: row = grown-box cell offset, column = position in entries, value =
// the product of the per-dimension kernel weights. Spreading applies the
// matrix, interpolation applies its transpose.
func (m *Manager) couplingMatrix(s *levelState, level *amr.Level, p int, entries []int, k *Kernel) *sparse.CSR {
	var (
		gb   = level.Patches[p].Box.Grow(m.ghostWidth)
		x    = s.quantities[PositionDataName].vec
		dx   = level.Dx()
		geo  = level.Geometry()
		dom  = level.Domain()
		half = float64(k.Support) / 2
		dok  = sparse.NewDOK(gb.NumCells(), len(entries))
	)
	for col, entry := range entries {
		pos := pointAt(x, entry)

		// Continuous stencil center in level index space, measured in
		// cell-center coordinates.
		var c geom.Point
		var lo, hi geom.IntVect
		for d := 0; d < 3; d++ {
			c[d] = float64(dom.Lo[d]) + (pos[d]-geo.XLower[d])/dx[d] - 0.5
			lo[d] = int(math.Ceil(c[d] - half))
			hi[d] = int(math.Floor(c[d] + half))
		}
		stencil := geom.Box{Lo: lo, Hi: hi}.Intersect(gb)
		stencil.ForEach(func(ci geom.IntVect) {
			w := 1.0
			for d := 0; d < 3; d++ {
				w *= k.Weight(float64(ci[d]) - c[d])
			}
			if w != 0 {
				dok.Set(gb.Offset(ci), col, w)
			}
		})
	}
	return dok.ToCSR()
}

// SpreadValue spreads the named quantity onto cell data as plain values:
// each marker's components are added to the surrounding cells weighted by
// the spread kernel. Owner-side contributions landing in ghost cells are
// drained into the owning patches, so the operation is conservative.
// Collective.
func (m *Manager) SpreadValue(cd *amr.CellData, name string, ln int) error {
	return m.spreadScaled(cd, name, "", ln, 1)
}

// SpreadDensity spreads the named quantity as a density: each marker's
// contribution is scaled by its entry of the depth-1 weight quantity and
// divided by the cell volume, so integrating the result over the grid
// recovers the summed marker values. Collective.
func (m *Manager) SpreadDensity(cd *amr.CellData, name, weightName string, ln int) error {
	level := m.hierarchy.Level(ln)
	dx := level.Dx()
	return m.spreadScaled(cd, name, weightName, ln, 1/(dx[0]*dx[1]*dx[2]))
}

func (m *Manager) spreadScaled(cd *amr.CellData, name, weightName string, ln int, scale float64) error {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return fmt.Errorf("spread %q on level %d during %s: %w", name, ln, s.phase, ErrPrecondition)
	}
	ld, ok := s.quantities[name]
	if !ok {
		return fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	if err := m.checkGeneration(s, ld); err != nil {
		return err
	}
	if cd.Depth() != ld.depth {
		return fmt.Errorf("spread %q: quantity depth %d, cell data depth %d", name, ld.depth, cd.Depth())
	}
	if cd.GhostWidth() != m.ghostWidth {
		return fmt.Errorf("spread %q: cell data ghost width %v, manager requires %v", name, cd.GhostWidth(), m.ghostWidth)
	}
	var weight *LData
	if weightName != "" {
		w, ok := s.quantities[weightName]
		if !ok {
			return fmt.Errorf("no weight quantity %q on level %d", weightName, ln)
		}
		if w.depth != 1 {
			return fmt.Errorf("weight quantity %q has depth %d, want 1", weightName, w.depth)
		}
		weight = w
	}

	level := m.hierarchy.Level(ln)
	for _, p := range cd.LocalPatches() {
		entries := s.patchMarkers[p]
		if len(entries) == 0 {
			continue
		}
		var (
			mat  = m.couplingMatrix(s, level, p, entries, m.spread)
			vals = cd.Values(p)
		)
		mat.DoNonZero(func(row, col int, w float64) {
			entry := entries[col]
			ws := w * scale
			if weight != nil {
				ws *= weight.vec.At(entry, 0)
			}
			for d := 0; d < ld.depth; d++ {
				vals[row*ld.depth+d] += ws * ld.vec.At(entry, d)
			}
		})
	}
	cd.AccumulateGhosts()
	return nil
}

// levelRange resolves a caller-specified level range. Each negative bound
// defaults independently to the corresponding extreme of the levels
// carrying marker state.
func (m *Manager) levelRange(coarsest, finest int) (int, int) {
	lo, hi := -1, -1
	for ln := range m.levels {
		if lo < 0 || ln < lo {
			lo = ln
		}
		if ln > hi {
			hi = ln
		}
	}
	if coarsest < 0 {
		coarsest = lo
	}
	if finest < 0 {
		finest = hi
	}
	return coarsest, finest
}

// SpreadValueOnLevels spreads the named quantity on every level of the
// range that carries marker state, each level independently. Negative
// bounds select the manager's full registered range. Collective.
func (m *Manager) SpreadValueOnLevels(hd *amr.HierarchyData, name string, coarsest, finest int) error {
	return m.eachLevel(hd, coarsest, finest, func(cd *amr.CellData, ln int) error {
		return m.SpreadValue(cd, name, ln)
	})
}

// SpreadDensityOnLevels is the density form of SpreadValueOnLevels.
func (m *Manager) SpreadDensityOnLevels(hd *amr.HierarchyData, name, weightName string, coarsest, finest int) error {
	return m.eachLevel(hd, coarsest, finest, func(cd *amr.CellData, ln int) error {
		return m.SpreadDensity(cd, name, weightName, ln)
	})
}

// InterpOnLevels interpolates on every level of the range that carries
// marker state, each level independently. Collective.
func (m *Manager) InterpOnLevels(hd *amr.HierarchyData, name string, coarsest, finest int, fillGhosts bool) error {
	return m.eachLevel(hd, coarsest, finest, func(cd *amr.CellData, ln int) error {
		return m.Interp(cd, name, ln, fillGhosts)
	})
}

func (m *Manager) eachLevel(hd *amr.HierarchyData, coarsest, finest int, op func(*amr.CellData, int) error) error {
	lo, hi := m.levelRange(coarsest, finest)
	for ln := lo; ln <= hi && ln >= 0; ln++ {
		if !m.LevelContainsMarkers(ln) {
			continue
		}
		cd := hd.Level(ln)
		if cd == nil {
			return fmt.Errorf("no cell data registered for level %d", ln)
		}
		if err := op(cd, ln); err != nil {
			return err
		}
	}
	return nil
}

// Interp interpolates cell data onto the named quantity at the owned
// marker positions: each marker's components are overwritten with the
// kernel-weighted sum over the surrounding cells. When fillGhosts is set
// the cell data's ghost cells are refreshed first so stencils straddling
// patch boundaries see current values. Collective.
func (m *Manager) Interp(cd *amr.CellData, name string, ln int, fillGhosts bool) error {
	s := m.state(ln)
	if s.phase != phaseQuiescent {
		return fmt.Errorf("interp %q on level %d during %s: %w", name, ln, s.phase, ErrPrecondition)
	}
	ld, ok := s.quantities[name]
	if !ok {
		return fmt.Errorf("no quantity %q on level %d", name, ln)
	}
	if err := m.checkGeneration(s, ld); err != nil {
		return err
	}
	if cd.Depth() != ld.depth {
		return fmt.Errorf("interp %q: quantity depth %d, cell data depth %d", name, ld.depth, cd.Depth())
	}
	if cd.GhostWidth() != m.ghostWidth {
		return fmt.Errorf("interp %q: cell data ghost width %v, manager requires %v", name, cd.GhostWidth(), m.ghostWidth)
	}

	if fillGhosts {
		cd.FillGhosts()
	}
	for j := 0; j < len(s.localLag); j++ {
		for d := 0; d < ld.depth; d++ {
			ld.vec.Set(j, d, 0)
		}
	}
	level := m.hierarchy.Level(ln)
	for _, p := range cd.LocalPatches() {
		entries := s.patchMarkers[p]
		if len(entries) == 0 {
			continue
		}
		var (
			mat  = m.couplingMatrix(s, level, p, entries, m.interp)
			vals = cd.Values(p)
		)
		mat.DoNonZero(func(row, col int, w float64) {
			entry := entries[col]
			for d := 0; d < ld.depth; d++ {
				ld.vec.Add(entry, d, w*vals[row*ld.depth+d])
			}
		})
	}
	return nil
}
