package parvec

import (
	"fmt"

	"github.com/ibmesh/goimb/comm"
)

// kv carries one vector entry addressed by a global index of the
// destination vector.
type kv struct {
	Idx int
	Val []float64
}

// Permute scatters the owned entries of src into dst: src's local entry j
// lands at global destination index dstIndex[j]. The vectors must have the
// same depth and global size; dstIndex must be a slice of length
// src.LocalSize() drawn from a permutation of [0, N). Collective.
func Permute(r *comm.Rank, src, dst *Vec, dstIndex []int) error {
	if src.Depth() != dst.Depth() {
		return fmt.Errorf("scatter: depth mismatch %d != %d", src.Depth(), dst.Depth())
	}
	if src.GlobalSize() != dst.GlobalSize() {
		return fmt.Errorf("scatter: global size mismatch %d != %d", src.GlobalSize(), dst.GlobalSize())
	}
	if len(dstIndex) != src.LocalSize() {
		return fmt.Errorf("scatter: %d destination indices for %d local entries", len(dstIndex), src.LocalSize())
	}

	out := make(map[int][]kv)
	for j, global := range dstIndex {
		owner := dst.OwnerOf(global)
		if owner == r.ID() {
			copy(dst.Values(global-dst.Offset()), src.Values(j))
			continue
		}
		out[owner] = append(out[owner], kv{Idx: global, Val: append([]float64(nil), src.Values(j)...)})
	}
	for _, entries := range comm.Exchange(r, out) {
		for _, e := range entries {
			copy(dst.Values(e.Idx-dst.Offset()), e.Val)
		}
	}
	return nil
}

// GatherToRank collects the whole vector, ordered by global index, on the
// given root rank. Other ranks return nil. Collective.
func GatherToRank(r *comm.Rank, v *Vec, root int) []float64 {
	rows := comm.GatherTo(r, root, v.LocalValues())
	if r.ID() != root {
		return nil
	}
	all := make([]float64, 0, v.GlobalSize()*v.Depth())
	for _, row := range rows {
		all = append(all, row...)
	}
	return all
}

// GatherToAll collects the whole vector, ordered by global index, on every
// rank. Collective.
func GatherToAll(r *comm.Rank, v *Vec) []float64 {
	rows := comm.AllGather(r, v.LocalValues())
	all := make([]float64, 0, v.GlobalSize()*v.Depth())
	for _, row := range rows {
		all = append(all, row...)
	}
	return all
}
