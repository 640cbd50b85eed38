package lagrangian

import (
	"fmt"

	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/geom"
)

// UpdateNodeCounts recomputes the per-cell marker counts over the level
// range: each interior cell of each level holds the number of markers it
// contains, with counts from finer levels summed down so a coarse cell
// also accounts for the markers of the cells refining it. Collective. The
// result is cached until the hierarchy reconfigures.
func (m *Manager) UpdateNodeCounts(coarsest, finest int) (*amr.HierarchyData, error) {
	hd := amr.NewHierarchyData()
	for ln := coarsest; ln <= finest; ln++ {
		level := m.hierarchy.Level(ln)
		if level == nil {
			return nil, fmt.Errorf("node counts: level %d does not exist", ln)
		}
		cd := amr.NewCellData(m.rank, level, 1, geom.IntVect{})
		if s, ok := m.levels[ln]; ok {
			x := s.quantities[PositionDataName].vec
			for _, p := range cd.LocalPatches() {
				for _, j := range s.patchMarkers[p] {
					cd.Add(p, level.CellIndex(pointAt(x, j)), 0, 1)
				}
			}
		}
		hd.SetLevel(ln, cd)
	}
	for ln := finest; ln > coarsest; ln-- {
		if err := hd.Level(ln).CoarsenSumTo(hd.Level(ln - 1)); err != nil {
			return nil, fmt.Errorf("node counts: %w", err)
		}
	}
	m.nodeCount = hd
	return hd, nil
}

// UpdateWorkload recomputes the per-cell workload estimate alpha +
// beta*count over the level range, where count is the accumulated marker
// count from UpdateNodeCounts. Load balancers partition patches against
// it. Collective; cached until the hierarchy reconfigures.
func (m *Manager) UpdateWorkload(coarsest, finest int) (*amr.HierarchyData, error) {
	counts := m.nodeCount
	if counts == nil || counts.Level(coarsest) == nil || counts.Level(finest) == nil {
		var err error
		counts, err = m.UpdateNodeCounts(coarsest, finest)
		if err != nil {
			return nil, err
		}
	}
	hd := amr.NewHierarchyData()
	for ln := coarsest; ln <= finest; ln++ {
		var (
			level = m.hierarchy.Level(ln)
			cnt   = counts.Level(ln)
			cd    = amr.NewCellData(m.rank, level, 1, geom.IntVect{})
		)
		for _, p := range cd.LocalPatches() {
			level.Patches[p].Box.ForEach(func(ci geom.IntVect) {
				cd.Set(p, ci, 0, m.alphaWork+m.betaWork*cnt.At(p, ci, 0))
			})
		}
		hd.SetLevel(ln, cd)
	}
	m.workload = hd
	return hd, nil
}
