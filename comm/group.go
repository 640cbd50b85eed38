// Package comm implements a fixed-size group of ranks joined by blocking,
// ordered message channels, and the collective operations the Lagrangian
// data manager needs: barrier, all-gather, all-to-all exchange, broadcast,
// gather-to-root, and exclusive-scan node offsets.
//
// Every collective must be entered by every rank of the group in the same
// call order. Divergent call sequences block indefinitely; this is a caller
// obligation, not a recoverable error.
package comm

import (
	"fmt"
	"sync"
)

// Group is a set of ranks with a private mailbox per ordered rank pair.
// Mailboxes are FIFO, so as long as all ranks issue collectives in the
// same order, messages from successive collectives cannot be confused.
type Group struct {
	np   int
	mail [][]chan interface{} // mail[src][dst]
	bar  *barrier
}

// NewGroup creates a group of np ranks.
func NewGroup(np int) *Group {
	if np < 1 {
		panic(fmt.Sprintf("group size %d out of bounds", np))
	}
	g := &Group{
		np:   np,
		mail: make([][]chan interface{}, np),
		bar:  newBarrier(np),
	}
	for src := 0; src < np; src++ {
		g.mail[src] = make([]chan interface{}, np)
		for dst := 0; dst < np; dst++ {
			// Buffered so a rank can run a few collectives ahead of a
			// slow peer without blocking on its own sends.
			g.mail[src][dst] = make(chan interface{}, 8)
		}
	}
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.np }

// Rank returns the handle for rank id.
func (g *Group) Rank(id int) *Rank {
	if id < 0 || id >= g.np {
		panic(fmt.Sprintf("rank %d out of bounds", id))
	}
	return &Rank{g: g, id: id}
}

// Run executes body once per rank, each on its own goroutine, and waits
// for all of them to return.
func (g *Group) Run(body func(r *Rank)) {
	var wg sync.WaitGroup
	wg.Add(g.np)
	for id := 0; id < g.np; id++ {
		go func(id int) {
			defer wg.Done()
			body(g.Rank(id))
		}(id)
	}
	wg.Wait()
}

// Rank is one member of a Group. All communication is expressed through
// rank handles; a rank handle must only be used by the goroutine that owns
// that rank.
type Rank struct {
	g  *Group
	id int
}

// ID returns this rank's id, 0 <= ID() < Size().
func (r *Rank) ID() int { return r.id }

// Size returns the group size.
func (r *Rank) Size() int { return r.g.np }

// Barrier blocks until every rank of the group has entered it.
func (r *Rank) Barrier() { r.g.bar.await() }

func (r *Rank) send(dst int, v interface{}) {
	r.g.mail[r.id][dst] <- v
}

func (r *Rank) recv(src int) interface{} {
	return <-r.g.mail[src][r.id]
}

// barrier is a cyclic barrier; it is reusable across phases.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	phase int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	b.mu.Lock()
	phase := b.phase
	b.count++
	if b.count == b.n {
		b.count = 0
		b.phase++
		b.cond.Broadcast()
	} else {
		for phase == b.phase {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}
