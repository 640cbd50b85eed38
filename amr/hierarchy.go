// Package amr models the block-structured adaptive mesh hierarchy the
// Lagrangian data manager operates against: Cartesian grid geometry, patch
// levels with per-patch owner ranks, lifecycle hooks fired at well-defined
// hierarchy events, and ghosted cell-centered data with the parallel fill,
// accumulate and coarsen schedules derived cell data needs.
package amr

import (
	"fmt"

	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
)

// Geometry describes the Cartesian domain at the coarsest level.
type Geometry struct {
	XLower, XUpper geom.Point
	Domain         geom.Box // coarsest-level cell box
}

// Dx returns the coarsest-level cell spacing.
func (g *Geometry) Dx() [3]float64 {
	var dx [3]float64
	s := g.Domain.Size()
	for d := 0; d < 3; d++ {
		dx[d] = (g.XUpper[d] - g.XLower[d]) / float64(s[d])
	}
	return dx
}

// Patch is one box of a level together with the rank owning its data.
// Patch boxes on a level never overlap.
type Patch struct {
	Box   geom.Box
	Owner int
}

// Level is one refinement level: a cumulative refinement ratio relative to
// the coarsest level and the global list of patches. Every rank holds the
// full patch list; only data on patches it owns.
type Level struct {
	Number  int
	Ratio   geom.IntVect
	Patches []Patch

	geometry *Geometry
	domain   geom.Box
	dx       [3]float64
}

// NewLevel builds a level of the given geometry.
func NewLevel(g *Geometry, number int, ratio geom.IntVect, patches []Patch) *Level {
	l := &Level{
		Number:   number,
		Ratio:    ratio,
		Patches:  patches,
		geometry: g,
		domain:   g.Domain.Refine(ratio),
	}
	dx0 := g.Dx()
	for d := 0; d < 3; d++ {
		l.dx[d] = dx0[d] / float64(ratio[d])
	}
	return l
}

// Geometry returns the coarsest-level grid geometry.
func (l *Level) Geometry() *Geometry { return l.geometry }

// Dx returns this level's cell spacing.
func (l *Level) Dx() [3]float64 { return l.dx }

// Domain returns this level's cell box over the whole physical domain.
func (l *Level) Domain() geom.Box { return l.domain }

// CellIndex maps a physical position to this level's cell index using the
// nearer-domain-bound rule, so abutting patches classify face points
// identically.
func (l *Level) CellIndex(x geom.Point) geom.IntVect {
	return geom.CellIndexForPoint(x, l.geometry.XLower, l.geometry.XUpper,
		l.dx, l.domain.Lo, l.domain.Hi)
}

// CellCenter returns the physical center of the given cell.
func (l *Level) CellCenter(ci geom.IntVect) geom.Point {
	var x geom.Point
	for d := 0; d < 3; d++ {
		x[d] = l.geometry.XLower[d] + (float64(ci[d]-l.domain.Lo[d])+0.5)*l.dx[d]
	}
	return x
}

// PatchContaining returns the index of the patch whose box contains the
// cell, or -1 if no patch does.
func (l *Level) PatchContaining(ci geom.IntVect) int {
	for p, patch := range l.Patches {
		if patch.Box.Contains(ci) {
			return p
		}
	}
	return -1
}

// OwnerOf returns the rank owning the patch containing the cell, or -1.
func (l *Level) OwnerOf(ci geom.IntVect) int {
	if p := l.PatchContaining(ci); p >= 0 {
		return l.Patches[p].Owner
	}
	return -1
}

// LocalPatches returns the indices of the patches owned by rank.
func (l *Level) LocalPatches(rank int) []int {
	var out []int
	for p, patch := range l.Patches {
		if patch.Owner == rank {
			out = append(out, p)
		}
	}
	return out
}

// LevelHooks is the capability interface the hierarchy drives at lifecycle
// points. The Lagrangian data manager implements it to keep its
// distribution state consistent with the evolving hierarchy.
type LevelHooks interface {
	// OnLevelInserted runs after a level is inserted or regridded.
	// initial is true only for first-time initialization.
	OnLevelInserted(h *Hierarchy, ln int, initial bool) error

	// OnReconfigured runs after the hierarchy changed over the given
	// level range; cached communication schedules must be rebuilt.
	OnReconfigured(h *Hierarchy, coarsest, finest int) error

	// OnTagCells marks cells of the level that require refinement.
	OnTagCells(h *Hierarchy, ln int, tags *CellData) error
}

// Hierarchy is the patch hierarchy handle held by each rank.
type Hierarchy struct {
	rank     *comm.Rank
	geometry *Geometry
	levels   []*Level
	hooks    []LevelHooks
}

func NewHierarchy(r *comm.Rank, g *Geometry) *Hierarchy {
	return &Hierarchy{rank: r, geometry: g}
}

func (h *Hierarchy) Rank() *comm.Rank     { return h.rank }
func (h *Hierarchy) Geometry() *Geometry  { return h.geometry }
func (h *Hierarchy) NumLevels() int       { return len(h.levels) }
func (h *Hierarchy) FinestLevelNumber() int { return len(h.levels) - 1 }

// Level returns the level with the given number, or nil.
func (h *Hierarchy) Level(ln int) *Level {
	if ln < 0 || ln >= len(h.levels) {
		return nil
	}
	return h.levels[ln]
}

// RegisterHooks attaches a lifecycle listener. Hooks fire in registration
// order.
func (h *Hierarchy) RegisterHooks(hk LevelHooks) {
	h.hooks = append(h.hooks, hk)
}

// InsertLevel appends a new finest level and fires OnLevelInserted.
func (h *Hierarchy) InsertLevel(ratio geom.IntVect, patches []Patch, initial bool) (*Level, error) {
	ln := len(h.levels)
	l := NewLevel(h.geometry, ln, ratio, patches)
	h.levels = append(h.levels, l)
	for _, hk := range h.hooks {
		if err := hk.OnLevelInserted(h, ln, initial); err != nil {
			return nil, fmt.Errorf("insert level %d: %w", ln, err)
		}
	}
	return l, nil
}

// RegridLevel replaces the patch configuration of an existing level and
// fires OnLevelInserted (non-initial) followed by OnReconfigured over the
// affected range.
func (h *Hierarchy) RegridLevel(ln int, patches []Patch) (*Level, error) {
	old := h.Level(ln)
	if old == nil {
		return nil, fmt.Errorf("regrid: level %d does not exist", ln)
	}
	l := NewLevel(h.geometry, ln, old.Ratio, patches)
	h.levels[ln] = l
	for _, hk := range h.hooks {
		if err := hk.OnLevelInserted(h, ln, false); err != nil {
			return nil, fmt.Errorf("regrid level %d: %w", ln, err)
		}
	}
	if err := h.Reconfigure(ln, h.FinestLevelNumber()); err != nil {
		return nil, err
	}
	return l, nil
}

// Reconfigure fires OnReconfigured over the given level range.
func (h *Hierarchy) Reconfigure(coarsest, finest int) error {
	if coarsest > finest || coarsest < 0 || finest >= len(h.levels) {
		return fmt.Errorf("reconfigure: bad level range [%d, %d]", coarsest, finest)
	}
	for _, hk := range h.hooks {
		if err := hk.OnReconfigured(h, coarsest, finest); err != nil {
			return fmt.Errorf("reconfigure [%d, %d]: %w", coarsest, finest, err)
		}
	}
	return nil
}

// TagCellsForRefinement asks every hook to mark cells of the level that
// need refining.
func (h *Hierarchy) TagCellsForRefinement(ln int, tags *CellData) error {
	for _, hk := range h.hooks {
		if err := hk.OnTagCells(h, ln, tags); err != nil {
			return fmt.Errorf("tag cells on level %d: %w", ln, err)
		}
	}
	return nil
}
