// Package lagrangian coordinates distributed Lagrangian marker data over
// an adaptively refined Eulerian grid: ownership tracking, the two-phase
// redistribution protocol, named per-level quantities, structure
// bookkeeping, and spreading/interpolation between markers and
// cell-centered grid data.
package lagrangian

import (
	"fmt"
	"sort"

	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
)

// Config carries the construction parameters of a manager.
type Config struct {
	// InterpKernel and SpreadKernel name the weighting functions used for
	// grid-to-marker and marker-to-grid transfer.
	InterpKernel string
	SpreadKernel string

	// GhostCellWidth overrides the ghost width derived from the kernels
	// when positive. The effective width is never narrower than the wider
	// kernel requires.
	GhostCellWidth int

	// AlphaWork and BetaWork parameterize the per-cell workload estimate
	// alpha + beta*markers.
	AlphaWork float64
	BetaWork  float64
}

// Context is an explicit registry of named managers. Callers construct
// one per computation and pass it where needed; there is no process-wide
// instance.
type Context struct {
	rank     *comm.Rank
	managers map[string]*Manager
}

// NewContext creates an empty manager registry bound to a rank.
func NewContext(r *comm.Rank) *Context {
	return &Context{rank: r, managers: make(map[string]*Manager)}
}

// NewManager creates and registers a manager under a unique name.
func (c *Context) NewManager(name string, cfg Config) (*Manager, error) {
	if _, exists := c.managers[name]; exists {
		return nil, fmt.Errorf("%w: manager %q", ErrDuplicateName, name)
	}
	interp, err := KernelByName(cfg.InterpKernel)
	if err != nil {
		return nil, fmt.Errorf("manager %q: interp: %w", name, err)
	}
	spread, err := KernelByName(cfg.SpreadKernel)
	if err != nil {
		return nil, fmt.Errorf("manager %q: spread: %w", name, err)
	}
	width := interp.GhostCells()
	if w := spread.GhostCells(); w > width {
		width = w
	}
	if cfg.GhostCellWidth > width {
		width = cfg.GhostCellWidth
	}
	m := &Manager{
		name:       name,
		rank:       c.rank,
		interp:     interp,
		spread:     spread,
		ghostWidth: geom.UniformIntVect(width),
		alphaWork:  cfg.AlphaWork,
		betaWork:   cfg.BetaWork,
		levels:     make(map[int]*levelState),
	}
	c.managers[name] = m
	return m, nil
}

// Manager returns the registered manager with the given name.
func (c *Context) Manager(name string) (*Manager, bool) {
	m, ok := c.managers[name]
	return m, ok
}

// Names returns the registered manager names in ascending order.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.managers))
	for name := range c.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
