package parvec

import (
	"sync"
	"testing"

	"github.com/ibmesh/goimb/comm"
	"github.com/stretchr/testify/assert"
)

func TestVecLayout(t *testing.T) {
	var (
		locals = []int{3, 5, 2, 4}
		want   = []int{0, 3, 8, 10}
	)
	g := comm.NewGroup(4)
	g.Run(func(r *comm.Rank) {
		v := NewVec(r, locals[r.ID()], 2)
		assert.Equal(t, want[r.ID()], v.Offset())
		assert.Equal(t, 14, v.GlobalSize())
		assert.Equal(t, locals[r.ID()], v.LocalSize())
		for global := 0; global < 14; global++ {
			owner := v.OwnerOf(global)
			assert.True(t, global >= want[owner])
			assert.True(t, owner == 3 || global < want[owner+1])
		}
	})
}

func TestUpdateGhosts(t *testing.T) {
	// Each rank owns 4 entries holding 10*global+d and ghosts the first
	// entry of every other rank.
	g := comm.NewGroup(3)
	g.Run(func(r *comm.Rank) {
		var ghosts []int
		for rank := 0; rank < r.Size(); rank++ {
			if rank != r.ID() {
				ghosts = append(ghosts, rank*4)
			}
		}
		v := NewGhostVec(r, 4, 2, ghosts)
		for j := 0; j < 4; j++ {
			global := v.Offset() + j
			v.Set(j, 0, float64(10*global))
			v.Set(j, 1, float64(10*global+1))
		}
		v.UpdateGhosts()
		for slot, global := range v.GhostIndices() {
			assert.Equal(t, float64(10*global), v.At(4+slot, 0))
			assert.Equal(t, float64(10*global+1), v.At(4+slot, 1))
		}
	})
}

func TestAORoundTrip(t *testing.T) {
	// An irregular ownership of the application space [0, 12).
	owned := [][]int{{7, 0, 3}, {11, 2}, {5, 4, 10, 1}, {9, 6, 8}}
	g := comm.NewGroup(4)
	g.Run(func(r *comm.Rank) {
		ao, err := NewAO(r, owned[r.ID()])
		assert.NoError(t, err)
		assert.Equal(t, 12, ao.N())

		// Round-trip law over the entire parallel index space.
		inds := make([]int, ao.N())
		for i := range inds {
			inds[i] = i
		}
		assert.NoError(t, ao.ParallelToApplication(inds))
		assert.NoError(t, ao.ApplicationToParallel(inds))
		for i, v := range inds {
			assert.Equal(t, i, v)
		}

		// The first locally owned application index maps into the local
		// parallel block.
		mine := []int{owned[r.ID()][0]}
		assert.NoError(t, ao.ApplicationToParallel(mine))
		off, _ := comm.Offsets(r, len(owned[r.ID()]))
		assert.Equal(t, off, mine[0])
	})
}

func TestAORejectsBrokenOwnership(t *testing.T) {
	g := comm.NewGroup(2)
	var mu sync.Mutex
	var errs []error
	g.Run(func(r *comm.Rank) {
		// Index 1 owned twice, index 2 unowned.
		owned := [][]int{{0, 1}, {1, 3}}
		_, err := NewAO(r, owned[r.ID()])
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	for _, err := range errs {
		assert.Error(t, err)
	}
}

func TestPermuteAndGather(t *testing.T) {
	// Scatter from application-ordered blocks to a reversed parallel
	// ordering and gather the result everywhere.
	g := comm.NewGroup(2)
	g.Run(func(r *comm.Rank) {
		src := NewVec(r, 3, 1)
		dst := NewVec(r, 3, 1)
		dstIndex := make([]int, 3)
		for j := 0; j < 3; j++ {
			global := src.Offset() + j
			src.Set(j, 0, float64(global))
			dstIndex[j] = 5 - global
		}
		assert.NoError(t, Permute(r, src, dst, dstIndex))

		all := GatherToAll(r, dst)
		assert.Equal(t, []float64{5, 4, 3, 2, 1, 0}, all)

		root := GatherToRank(r, dst, 0)
		if r.ID() == 0 {
			assert.Equal(t, []float64{5, 4, 3, 2, 1, 0}, root)
		} else {
			assert.Nil(t, root)
		}
	})
}

func TestVecOps(t *testing.T) {
	g := comm.NewGroup(1)
	g.Run(func(r *comm.Rank) {
		v := NewVec(r, 4, 1)
		x := NewVec(r, 4, 1)
		for j := 0; j < 4; j++ {
			v.Set(j, 0, 1)
			x.Set(j, 0, float64(j))
		}
		v.AXPY(2, x)
		assert.Equal(t, []float64{1, 3, 5, 7}, v.LocalValues())
		v.Scale(0.5)
		assert.Equal(t, []float64{0.5, 1.5, 2.5, 3.5}, v.LocalValues())
		v.Zero()
		assert.Equal(t, []float64{0, 0, 0, 0}, v.LocalValues())
	})
}
