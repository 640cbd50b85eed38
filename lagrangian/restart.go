package lagrangian

import (
	"fmt"
	"os"
	"sort"

	"github.com/DataDog/zstd"
	"github.com/ghodss/yaml"
)

// RestartVersion is the on-disk format version. Files written by another
// version are rejected.
const RestartVersion = 1

// The restart file holds one rank's owned marker payloads per level,
// keyed by global Lagrangian index, so the read side can rebuild the
// distribution against whatever patch configuration the restarted run
// has. Files are YAML compressed with zstd.
type persistedQuantity struct {
	Name     string               `json:"name"`
	Depth    int                  `json:"depth"`
	Maintain bool                 `json:"maintain"`
	Values   map[string][]float64 `json:"values"`
}

type persistedStructure struct {
	Name     string `json:"name"`
	FirstLag int    `json:"firstLag"`
	LastLag  int    `json:"lastLag"`
	Active   bool   `json:"active"`
}

type persistedLevel struct {
	Level      int                  `json:"level"`
	Quantities []persistedQuantity  `json:"quantities"`
	Structures []persistedStructure `json:"structures"`
}

type persistedManager struct {
	Version        int              `json:"version"`
	Name           string           `json:"name"`
	Rank           int              `json:"rank"`
	InterpKernel   string           `json:"interpKernel"`
	SpreadKernel   string           `json:"spreadKernel"`
	GhostCellWidth int              `json:"ghostCellWidth"`
	Levels         []persistedLevel `json:"levels"`
}

// WriteRestart persists this rank's marker state to path. Each rank
// writes its own file; only maintained quantities and only owned markers
// are written, ghosts being reconstructible.
func (m *Manager) WriteRestart(path string) error {
	pm := persistedManager{
		Version:        RestartVersion,
		Name:           m.name,
		Rank:           m.rank.ID(),
		InterpKernel:   m.interp.Name,
		SpreadKernel:   m.spread.Name,
		GhostCellWidth: m.ghostWidth[0],
	}
	lns := make([]int, 0, len(m.levels))
	for ln := range m.levels {
		lns = append(lns, ln)
	}
	sort.Ints(lns)
	for _, ln := range lns {
		s := m.levels[ln]
		if s.phase != phaseQuiescent {
			return fmt.Errorf("write restart during %s on level %d: %w", s.phase, ln, ErrPrecondition)
		}
		pl := persistedLevel{Level: ln}
		for _, def := range s.maintainedDefs() {
			pq := persistedQuantity{
				Name:     def.name,
				Depth:    def.depth,
				Maintain: true,
				Values:   make(map[string][]float64, len(s.localLag)),
			}
			vec := s.quantities[def.name].vec
			for j, lag := range s.localLag {
				pq.Values[fmt.Sprint(lag)] = append([]float64(nil), vec.Values(j)...)
			}
			pl.Quantities = append(pl.Quantities, pq)
		}
		for _, id := range s.structures.ids {
			spec := s.structures.specs[id]
			pl.Structures = append(pl.Structures, persistedStructure{
				Name:     spec.Name,
				FirstLag: spec.FirstLag,
				LastLag:  spec.LastLag,
				Active:   s.structures.active[id],
			})
		}
		pm.Levels = append(pm.Levels, pl)
	}

	raw, err := yaml.Marshal(&pm)
	if err != nil {
		return fmt.Errorf("write restart: %w", err)
	}
	packed, err := zstd.Compress(nil, raw)
	if err != nil {
		return fmt.Errorf("write restart: %w", err)
	}
	if err := os.WriteFile(path, packed, 0644); err != nil {
		return fmt.Errorf("write restart: %w", err)
	}
	return nil
}

// ReadRestart restores this rank's marker state from path and rebuilds
// the distribution against the attached hierarchy. Collective: every rank
// must read its file in the same call sequence. Files written by a
// different format version or a different manager are rejected.
func (m *Manager) ReadRestart(path string) error {
	packed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read restart: %w", err)
	}
	raw, err := zstd.Decompress(nil, packed)
	if err != nil {
		return fmt.Errorf("read restart: %w", err)
	}
	var pm persistedManager
	if err := yaml.Unmarshal(raw, &pm); err != nil {
		return fmt.Errorf("read restart: %w", err)
	}
	if pm.Version != RestartVersion {
		return fmt.Errorf("read restart: file version %d, want %d: %w", pm.Version, RestartVersion, ErrVersionMismatch)
	}
	if pm.Name != m.name {
		return fmt.Errorf("read restart: file for manager %q, this manager is %q", pm.Name, m.name)
	}

	for _, pl := range pm.Levels {
		var (
			specs  []StructureSpec
			active = make(map[string]bool)
		)
		for _, ps := range pl.Structures {
			specs = append(specs, StructureSpec{Name: ps.Name, FirstLag: ps.FirstLag, LastLag: ps.LastLag})
			active[ps.Name] = ps.Active
		}
		structures, err := newStructureRegistry(specs)
		if err != nil {
			return fmt.Errorf("read restart: level %d: %w", pl.Level, err)
		}
		for name, id := range structures.byName {
			structures.active[id] = active[name]
		}

		s := &levelState{ln: pl.Level, structures: structures}
		var (
			lags    []int
			lagSeen = make(map[int]bool)
			carried = make(map[string]map[int][]float64)
		)
		for _, pq := range pl.Quantities {
			s.defs = append(s.defs, quantityDef{name: pq.Name, depth: pq.Depth, maintain: pq.Maintain})
			payload := make(map[int][]float64, len(pq.Values))
			for key, vals := range pq.Values {
				var lag int
				if _, err := fmt.Sscan(key, &lag); err != nil {
					return fmt.Errorf("read restart: bad marker index %q: %v", key, err)
				}
				payload[lag] = vals
				if pq.Name == PositionDataName && !lagSeen[lag] {
					lagSeen[lag] = true
					lags = append(lags, lag)
				}
			}
			carried[pq.Name] = payload
		}
		if carried[PositionDataName] == nil {
			return fmt.Errorf("read restart: level %d has no position data", pl.Level)
		}
		m.levels[pl.Level] = s
		if err := m.rebuildLevel(s, lags, carried); err != nil {
			return fmt.Errorf("read restart: %w", err)
		}
	}
	return nil
}
