package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsets(t *testing.T) {
	// Synthetic distribution of local node counts across 4 ranks.
	var (
		locals = []int{3, 5, 2, 4}
		want   = []int{0, 3, 8, 10}
	)
	g := NewGroup(4)
	var mu sync.Mutex
	offsets := make([]int, 4)
	totals := make([]int, 4)
	g.Run(func(r *Rank) {
		off, tot := Offsets(r, locals[r.ID()])
		mu.Lock()
		offsets[r.ID()] = off
		totals[r.ID()] = tot
		mu.Unlock()
	})
	assert.Equal(t, want, offsets)
	for _, tot := range totals {
		assert.Equal(t, 14, tot)
	}

	offs, total := OffsetsFromCounts(locals)
	assert.Equal(t, want, offs)
	assert.Equal(t, 14, total)
}

func TestAllGatherOrdering(t *testing.T) {
	g := NewGroup(3)
	g.Run(func(r *Rank) {
		local := []int{r.ID() * 10, r.ID()*10 + 1}
		got := AllGather(r, local)
		assert.Equal(t, [][]int{{0, 1}, {10, 11}, {20, 21}}, got)
	})
}

func TestExchange(t *testing.T) {
	// Every rank sends its id to rank (id+1) mod np and nothing elsewhere.
	g := NewGroup(4)
	g.Run(func(r *Rank) {
		dst := (r.ID() + 1) % r.Size()
		out := map[int][]int{dst: {r.ID()}}
		in := Exchange(r, out)
		src := (r.ID() + r.Size() - 1) % r.Size()
		assert.Equal(t, map[int][]int{src: {src}}, in)
	})
}

func TestExchangeEmptySends(t *testing.T) {
	g := NewGroup(3)
	g.Run(func(r *Rank) {
		in := Exchange[float64](r, nil)
		assert.Empty(t, in)
	})
}

func TestBroadcastAndGather(t *testing.T) {
	g := NewGroup(4)
	g.Run(func(r *Rank) {
		vals := Broadcast(r, 2, []string{"a", "b"})
		assert.Equal(t, []string{"a", "b"}, vals)

		rows := GatherTo(r, 0, []int{r.ID()})
		if r.ID() == 0 {
			assert.Equal(t, [][]int{{0}, {1}, {2}, {3}}, rows)
		} else {
			assert.Nil(t, rows)
		}
	})
}

func TestCollectiveSequence(t *testing.T) {
	// Back-to-back collectives on FIFO mailboxes must not interleave as
	// long as all ranks issue them in the same order.
	g := NewGroup(4)
	g.Run(func(r *Rank) {
		for iter := 0; iter < 50; iter++ {
			got := AllGather(r, []int{iter*100 + r.ID()})
			for src := 0; src < r.Size(); src++ {
				assert.Equal(t, []int{iter*100 + src}, got[src])
			}
			r.Barrier()
		}
	})
}

func TestSingleRankGroup(t *testing.T) {
	g := NewGroup(1)
	g.Run(func(r *Rank) {
		assert.Equal(t, [][]int{{7}}, AllGather(r, []int{7}))
		off, tot := Offsets(r, 9)
		assert.Equal(t, 0, off)
		assert.Equal(t, 9, tot)
		in := Exchange(r, map[int][]int{0: {1, 2}})
		assert.Equal(t, map[int][]int{0: {1, 2}}, in)
	})
}
