// Package parvec provides the parallel linear-algebra substrate consumed by
// the Lagrangian data manager: distributed vectors owned in contiguous
// per-rank ranges with a ghost extension, an application ordering that maps
// a fixed global index space onto the current parallel ordering in bulk,
// and scatter/gather primitives between the two orderings.
package parvec

import (
	"fmt"
	"sort"

	"github.com/ibmesh/goimb/comm"
	"gonum.org/v1/gonum/floats"
)

// Vec is a distributed vector. Rank r owns the contiguous global range
// [Offset(), Offset()+LocalSize()), each entry holding Depth() interleaved
// components. Entries listed in the ghost set are cached locally after the
// owned block and refreshed by UpdateGhosts.
type Vec struct {
	rank    *comm.Rank
	depth   int
	nLocal  int
	nGlobal int
	offsets []int // per-rank start of the owned range
	ghosts  []int // global indices of cached nonlocal entries

	// data holds (nLocal+len(ghosts))*depth values; the ghost extension
	// follows the owned block in the order of the ghosts slice.
	data []float64

	generation int
}

// NewVec collectively creates a distributed vector with nLocal owned
// entries on this rank. Every rank of the group must call it.
func NewVec(r *comm.Rank, nLocal, depth int) *Vec {
	return NewGhostVec(r, nLocal, depth, nil)
}

// NewGhostVec collectively creates a distributed vector with a ghost
// extension for the given nonlocal global indices.
func NewGhostVec(r *comm.Rank, nLocal, depth int, ghosts []int) *Vec {
	if depth < 1 {
		panic(fmt.Sprintf("vector depth %d out of bounds", depth))
	}
	counts := comm.Counts(r, nLocal)
	offsets, total := comm.OffsetsFromCounts(counts)
	v := &Vec{
		rank:    r,
		depth:   depth,
		nLocal:  nLocal,
		nGlobal: total,
		offsets: offsets,
		ghosts:  append([]int(nil), ghosts...),
		data:    make([]float64, (nLocal+len(ghosts))*depth),
	}
	return v
}

func (v *Vec) Depth() int      { return v.depth }
func (v *Vec) LocalSize() int  { return v.nLocal }
func (v *Vec) GlobalSize() int { return v.nGlobal }
func (v *Vec) Offset() int     { return v.offsets[v.rank.ID()] }
func (v *Vec) NumGhosts() int  { return len(v.ghosts) }

// GhostIndices returns the global indices of the ghost extension in
// storage order.
func (v *Vec) GhostIndices() []int { return v.ghosts }

// Generation returns the rebuild generation stamped on the vector.
func (v *Vec) Generation() int { return v.generation }

// SetGeneration stamps the vector with its owning rebuild generation.
func (v *Vec) SetGeneration(gen int) { v.generation = gen }

// OwnerOf returns the rank owning the given global index.
func (v *Vec) OwnerOf(global int) int {
	// offsets is ascending; find the last rank whose range starts at or
	// before global.
	r := sort.Search(len(v.offsets), func(i int) bool { return v.offsets[i] > global }) - 1
	return r
}

// At returns component d of local entry i. Entries nLocal and above
// address the ghost extension.
func (v *Vec) At(i, d int) float64 { return v.data[i*v.depth+d] }

// Set assigns component d of local entry i.
func (v *Vec) Set(i, d int, val float64) { v.data[i*v.depth+d] = val }

// Add accumulates into component d of local entry i.
func (v *Vec) Add(i, d int, val float64) { v.data[i*v.depth+d] += val }

// Values returns the backing storage for local entry i, aliased.
func (v *Vec) Values(i int) []float64 { return v.data[i*v.depth : (i+1)*v.depth] }

// LocalValues returns the owned block of the vector, aliased.
func (v *Vec) LocalValues() []float64 { return v.data[:v.nLocal*v.depth] }

// Zero clears every local and ghost value.
func (v *Vec) Zero() {
	for i := range v.data {
		v.data[i] = 0
	}
}

// Scale multiplies every owned value by a.
func (v *Vec) Scale(a float64) { floats.Scale(a, v.LocalValues()) }

// AXPY accumulates a*x into the owned block of v. The vectors must share
// layout.
func (v *Vec) AXPY(a float64, x *Vec) {
	if x.nLocal != v.nLocal || x.depth != v.depth {
		panic("axpy: vector layouts differ")
	}
	floats.AddScaled(v.LocalValues(), a, x.LocalValues())
}

// UpdateGhosts refreshes the ghost extension from the owning ranks. It is
// collective: every rank of the group must call it, even with no ghosts.
func (v *Vec) UpdateGhosts() {
	// Group ghost slots by owning rank; request order per owner follows
	// storage order, so the packed reply can be unpacked positionally.
	req := make(map[int][]int)
	slots := make(map[int][]int)
	for slot, global := range v.ghosts {
		owner := v.OwnerOf(global)
		req[owner] = append(req[owner], global)
		slots[owner] = append(slots[owner], slot)
	}

	asked := comm.Exchange(v.rank, req)

	reply := make(map[int][]float64)
	for src, globals := range asked {
		vals := make([]float64, 0, len(globals)*v.depth)
		for _, global := range globals {
			local := global - v.Offset()
			vals = append(vals, v.Values(local)...)
		}
		reply[src] = vals
	}

	got := comm.Exchange(v.rank, reply)

	for owner, ownerSlots := range slots {
		var vals []float64
		if owner == v.rank.ID() {
			// Self-ghosting cannot occur: ghosts are nonlocal by
			// construction.
			panic("ghost entry owned locally")
		}
		vals = got[owner]
		for k, slot := range ownerSlots {
			copy(v.data[(v.nLocal+slot)*v.depth:(v.nLocal+slot+1)*v.depth],
				vals[k*v.depth:(k+1)*v.depth])
		}
	}
}
