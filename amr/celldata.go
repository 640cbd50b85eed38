package amr

import (
	"fmt"

	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
)

// CellData is cell-centered data on the patches of one level owned by this
// rank, stored over each patch box grown by the ghost width. Ghost cells
// are refreshed from the owning patches by FillGhosts and drained back
// into them by AccumulateGhosts.
type CellData struct {
	rank  *comm.Rank
	level *Level
	depth int
	ghost geom.IntVect

	local []int                 // global patch indices owned by this rank
	boxes map[int]geom.Box      // grown storage box per local patch
	vals  map[int][]float64     // values per local patch, depth interleaved
}

// NewCellData allocates zeroed cell data over this rank's patches.
func NewCellData(r *comm.Rank, l *Level, depth int, ghost geom.IntVect) *CellData {
	cd := &CellData{
		rank:  r,
		level: l,
		depth: depth,
		ghost: ghost,
		local: l.LocalPatches(r.ID()),
		boxes: make(map[int]geom.Box),
		vals:  make(map[int][]float64),
	}
	for _, p := range cd.local {
		gb := l.Patches[p].Box.Grow(ghost)
		cd.boxes[p] = gb
		cd.vals[p] = make([]float64, gb.NumCells()*depth)
	}
	return cd
}

func (cd *CellData) Level() *Level          { return cd.level }
func (cd *CellData) Depth() int             { return cd.depth }
func (cd *CellData) GhostWidth() geom.IntVect { return cd.ghost }

// LocalPatches returns the global indices of the patches this rank holds
// data for.
func (cd *CellData) LocalPatches() []int { return cd.local }

// GrownBox returns the storage box (patch box grown by the ghost width) of
// a local patch.
func (cd *CellData) GrownBox(p int) geom.Box { return cd.boxes[p] }

// Values returns the backing storage of a local patch, aliased, in
// GrownBox Offset order with depth interleaved.
func (cd *CellData) Values(p int) []float64 { return cd.vals[p] }

// At returns component d at cell ci of local patch p. The cell must lie in
// the patch's grown box.
func (cd *CellData) At(p int, ci geom.IntVect, d int) float64 {
	return cd.vals[p][cd.boxes[p].Offset(ci)*cd.depth+d]
}

// Set assigns component d at cell ci of local patch p.
func (cd *CellData) Set(p int, ci geom.IntVect, d int, val float64) {
	cd.vals[p][cd.boxes[p].Offset(ci)*cd.depth+d] = val
}

// Add accumulates into component d at cell ci of local patch p.
func (cd *CellData) Add(p int, ci geom.IntVect, d int, val float64) {
	cd.vals[p][cd.boxes[p].Offset(ci)*cd.depth+d] += val
}

// Fill assigns val to every interior and ghost cell.
func (cd *CellData) Fill(val float64) {
	for _, vals := range cd.vals {
		for i := range vals {
			vals[i] = val
		}
	}
}

// ghostOverlap is one entry of the deterministic transfer plan: the ghost
// region of patch p sourced from (or drained into) the interior of patch q.
type ghostOverlap struct {
	p, q int
	ov   geom.Box
}

// ghostPlan enumerates, in a global deterministic order, every overlap
// between a patch's grown box and another patch's interior. Every rank
// computes the identical plan from the shared patch list, so paired sends
// and receives line up without negotiation.
func (cd *CellData) ghostPlan() []ghostOverlap {
	var plan []ghostOverlap
	for p := range cd.level.Patches {
		gb := cd.level.Patches[p].Box.Grow(cd.ghost)
		for q := range cd.level.Patches {
			if p == q {
				continue
			}
			ov := gb.Intersect(cd.level.Patches[q].Box)
			if ov.Empty() {
				continue
			}
			plan = append(plan, ghostOverlap{p: p, q: q, ov: ov})
		}
	}
	return plan
}

// FillGhosts refreshes every local ghost cell that lies in some other
// patch's interior with the owner's value. Collective.
func (cd *CellData) FillGhosts() {
	var (
		me   = cd.rank.ID()
		plan = cd.ghostPlan()
		out  = make(map[int][]float64)
	)
	// Send interior values of local q patches toward the ghost regions of
	// remote p patches, in plan order.
	for _, t := range plan {
		pOwner := cd.level.Patches[t.p].Owner
		qOwner := cd.level.Patches[t.q].Owner
		if qOwner != me {
			continue
		}
		if pOwner == me {
			t.ov.ForEach(func(ci geom.IntVect) {
				for d := 0; d < cd.depth; d++ {
					cd.Set(t.p, ci, d, cd.At(t.q, ci, d))
				}
			})
			continue
		}
		buf := out[pOwner]
		t.ov.ForEach(func(ci geom.IntVect) {
			off := cd.boxes[t.q].Offset(ci) * cd.depth
			buf = append(buf, cd.vals[t.q][off:off+cd.depth]...)
		})
		out[pOwner] = buf
	}

	in := comm.Exchange(cd.rank, out)

	// Unpack in the same plan order.
	cursor := make(map[int]int)
	for _, t := range plan {
		pOwner := cd.level.Patches[t.p].Owner
		qOwner := cd.level.Patches[t.q].Owner
		if pOwner != me || qOwner == me {
			continue
		}
		buf := in[qOwner]
		k := cursor[qOwner]
		t.ov.ForEach(func(ci geom.IntVect) {
			off := cd.boxes[t.p].Offset(ci) * cd.depth
			copy(cd.vals[t.p][off:off+cd.depth], buf[k:k+cd.depth])
			k += cd.depth
		})
		cursor[qOwner] = k
	}
}

// AccumulateGhosts drains every local ghost cell lying in some other
// patch's interior by adding its value into that patch and zeroing the
// local copy. This is the transpose of FillGhosts and is what makes
// owner-side spreading near patch boundaries conservative. Collective.
func (cd *CellData) AccumulateGhosts() {
	var (
		me   = cd.rank.ID()
		plan = cd.ghostPlan()
		out  = make(map[int][]float64)
	)
	for _, t := range plan {
		pOwner := cd.level.Patches[t.p].Owner
		qOwner := cd.level.Patches[t.q].Owner
		if pOwner != me {
			continue
		}
		if qOwner == me {
			t.ov.ForEach(func(ci geom.IntVect) {
				for d := 0; d < cd.depth; d++ {
					cd.Add(t.q, ci, d, cd.At(t.p, ci, d))
					cd.Set(t.p, ci, d, 0)
				}
			})
			continue
		}
		buf := out[qOwner]
		t.ov.ForEach(func(ci geom.IntVect) {
			off := cd.boxes[t.p].Offset(ci) * cd.depth
			buf = append(buf, cd.vals[t.p][off:off+cd.depth]...)
			for d := 0; d < cd.depth; d++ {
				cd.vals[t.p][off+d] = 0
			}
		})
		out[qOwner] = buf
	}

	in := comm.Exchange(cd.rank, out)

	cursor := make(map[int]int)
	for _, t := range plan {
		pOwner := cd.level.Patches[t.p].Owner
		qOwner := cd.level.Patches[t.q].Owner
		if qOwner != me || pOwner == me {
			continue
		}
		buf := in[pOwner]
		k := cursor[pOwner]
		t.ov.ForEach(func(ci geom.IntVect) {
			off := cd.boxes[t.q].Offset(ci) * cd.depth
			for d := 0; d < cd.depth; d++ {
				cd.vals[t.q][off+d] += buf[k+d]
			}
			k += cd.depth
		})
		cursor[pOwner] = k
	}
}

// coarseSample is one fine-cell contribution destined for a coarse cell on
// another rank.
type coarseSample struct {
	Patch int
	Cell  geom.IntVect
	Val   []float64
}

// CoarsenSumTo sums the interior values of this (finer) level's data into
// the containing cells of coarse. Both data must share depth. Collective.
func (cd *CellData) CoarsenSumTo(coarse *CellData) error {
	if cd.depth != coarse.depth {
		return fmt.Errorf("coarsen: depth mismatch %d != %d", cd.depth, coarse.depth)
	}
	var ratio geom.IntVect
	for d := 0; d < 3; d++ {
		if cd.level.Ratio[d]%coarse.level.Ratio[d] != 0 {
			return fmt.Errorf("coarsen: ratio %v not a refinement of %v", cd.level.Ratio, coarse.level.Ratio)
		}
		ratio[d] = cd.level.Ratio[d] / coarse.level.Ratio[d]
	}

	me := cd.rank.ID()
	out := make(map[int][]coarseSample)
	for _, p := range cd.local {
		box := cd.level.Patches[p].Box
		box.ForEach(func(ci geom.IntVect) {
			off := cd.boxes[p].Offset(ci) * cd.depth
			nonzero := false
			for d := 0; d < cd.depth; d++ {
				if cd.vals[p][off+d] != 0 {
					nonzero = true
					break
				}
			}
			if !nonzero {
				return
			}
			cci := geom.CoarsenIndex(ci, ratio)
			cp := coarse.level.PatchContaining(cci)
			if cp < 0 {
				return
			}
			owner := coarse.level.Patches[cp].Owner
			if owner == me {
				for d := 0; d < cd.depth; d++ {
					coarse.Add(cp, cci, d, cd.vals[p][off+d])
				}
				return
			}
			out[owner] = append(out[owner], coarseSample{
				Patch: cp,
				Cell:  cci,
				Val:   append([]float64(nil), cd.vals[p][off:off+cd.depth]...),
			})
		})
	}

	for _, samples := range comm.Exchange(cd.rank, out) {
		for _, s := range samples {
			for d := 0; d < cd.depth; d++ {
				coarse.Add(s.Patch, s.Cell, d, s.Val[d])
			}
		}
	}
	return nil
}

// LocalSum returns the sum of component d over the interior cells of the
// local patches.
func (cd *CellData) LocalSum(d int) float64 {
	var sum float64
	for _, p := range cd.local {
		box := cd.level.Patches[p].Box
		box.ForEach(func(ci geom.IntVect) {
			sum += cd.At(p, ci, d)
		})
	}
	return sum
}

// GlobalSum returns the sum of component d over every interior cell of
// the level. Collective.
func (cd *CellData) GlobalSum(d int) float64 {
	parts := comm.AllGather(cd.rank, []float64{cd.LocalSum(d)})
	var sum float64
	for _, part := range parts {
		sum += part[0]
	}
	return sum
}

// HierarchyData is a per-level collection of cell data.
type HierarchyData struct {
	data map[int]*CellData
}

func NewHierarchyData() *HierarchyData {
	return &HierarchyData{data: make(map[int]*CellData)}
}

// Level returns the cell data registered for a level, or nil.
func (hd *HierarchyData) Level(ln int) *CellData { return hd.data[ln] }

// SetLevel registers cell data for a level, replacing any previous data.
func (hd *HierarchyData) SetLevel(ln int, cd *CellData) { hd.data[ln] = cd }
