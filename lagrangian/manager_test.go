package lagrangian

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ibmesh/goimb/amr"
	"github.com/ibmesh/goimb/comm"
	"github.com/ibmesh/goimb/geom"
)

// lineMarkers places n markers along the x axis at cell centers of a
// 16x8x8 unit-spacing domain, marker i at (i+0.5, 0.5, 0.5).
type lineMarkers struct {
	n     int
	specs []StructureSpec
}

func (li *lineMarkers) LevelHasMarkers(ln int) bool { return ln == 0 }

func (li *lineMarkers) InitialPositions(ln int) []geom.Point {
	pts := make([]geom.Point, li.n)
	for i := range pts {
		pts[i] = geom.Point{float64(i) + 0.5, 0.5, 0.5}
	}
	return pts
}

func (li *lineMarkers) Structures(ln int) []StructureSpec { return li.specs }

func testPatches(owners [2]int) (*amr.Geometry, []amr.Patch) {
	g := &amr.Geometry{
		XLower: geom.Point{0, 0, 0},
		XUpper: geom.Point{16, 8, 8},
		Domain: geom.NewBox(geom.IntVect{0, 0, 0}, geom.IntVect{15, 7, 7}),
	}
	patches := []amr.Patch{
		{Box: geom.NewBox(geom.IntVect{0, 0, 0}, geom.IntVect{7, 7, 7}), Owner: owners[0]},
		{Box: geom.NewBox(geom.IntVect{8, 0, 0}, geom.IntVect{15, 7, 7}), Owner: owners[1]},
	}
	return g, patches
}

// markerFixture stands up a two-patch hierarchy with 16 line markers and
// a manager using the given kernels.
func markerFixture(t *testing.T, r *comm.Rank, interp, spread string, init MarkerInitializer) (*Manager, *amr.Hierarchy) {
	owners := [2]int{0, 1}
	if r.Size() == 1 {
		owners = [2]int{0, 0}
	}
	g, patches := testPatches(owners)
	h := amr.NewHierarchy(r, g)
	ctx := NewContext(r)
	m, err := ctx.NewManager("markers", Config{
		InterpKernel: interp,
		SpreadKernel: spread,
		AlphaWork:    1,
		BetaWork:     2,
	})
	assert.NoError(t, err)
	m.SetMarkerInitializer(init)
	m.AttachHierarchy(h)
	_, err = h.InsertLevel(geom.UniformIntVect(1), patches, true)
	assert.NoError(t, err)
	return m, h
}

func TestContextRegistry(t *testing.T) {
	grp := comm.NewGroup(1)
	grp.Run(func(r *comm.Rank) {
		ctx := NewContext(r)
		_, err := ctx.NewManager("a", Config{InterpKernel: IB4, SpreadKernel: IB4})
		assert.NoError(t, err)
		_, err = ctx.NewManager("a", Config{InterpKernel: IB4, SpreadKernel: IB4})
		assert.ErrorIs(t, err, ErrDuplicateName)
		_, err = ctx.NewManager("b", Config{InterpKernel: "NONE", SpreadKernel: IB4})
		assert.ErrorIs(t, err, ErrUnknownKernel)

		m, ok := ctx.Manager("a")
		assert.True(t, ok)
		assert.Equal(t, "a", m.Name())
		assert.Equal(t, geom.UniformIntVect(2), m.GhostCellWidth())
		assert.Equal(t, []string{"a"}, ctx.Names())

		// An explicit width can widen the kernel requirement, never
		// narrow it.
		m2, err := ctx.NewManager("wide", Config{InterpKernel: IB4, SpreadKernel: IB4, GhostCellWidth: 3})
		assert.NoError(t, err)
		assert.Equal(t, geom.UniformIntVect(3), m2.GhostCellWidth())
	})
}

func TestInitialDistribution(t *testing.T) {
	grp := comm.NewGroup(2)
	grp.Run(func(r *comm.Rank) {
		init := &lineMarkers{n: 16}
		m, _ := markerFixture(t, r, PiecewiseLinear, PiecewiseLinear, init)

		assert.True(t, m.LevelContainsMarkers(0))
		assert.False(t, m.LevelContainsMarkers(1))
		assert.Equal(t, 16, m.NumNodes(0))
		assert.Equal(t, 8, m.NumLocalNodes(0))
		assert.Equal(t, 8*r.ID(), m.NodeOffset(0))

		want := make([]int, 8)
		for i := range want {
			want[i] = 8*r.ID() + i
		}
		assert.Equal(t, want, m.LocalLagrangianIndices(0))

		// One-cell ghost width makes exactly the face-adjacent marker of
		// the other patch visible.
		if r.ID() == 0 {
			assert.Equal(t, []int{8}, m.NonlocalLagrangianIndices(0))
		} else {
			assert.Equal(t, []int{7}, m.NonlocalLagrangianIndices(0))
		}

		// The ordering is a bijection over the whole index space.
		inds := make([]int, 16)
		for i := range inds {
			inds[i] = i
		}
		assert.NoError(t, m.MapLagrangianToParallel(inds, 0))
		assert.NoError(t, m.MapParallelToLagrangian(inds, 0))
		for i, v := range inds {
			assert.Equal(t, i, v)
		}

		// Ghost-visible markers resolve to handles with current positions.
		h, ok := m.LocateMarker(8-r.ID(), 0)
		assert.True(t, ok)
		x, err := m.MarkerPosition(h, 0)
		assert.NoError(t, err)
		assert.Equal(t, geom.Point{float64(8-r.ID()) + 0.5, 0.5, 0.5}, x)
		assert.False(t, m.MarkerIsLocal(h, 0))

		local, ok := m.LocateMarker(m.NodeOffset(0), 0)
		assert.True(t, ok)
		assert.True(t, m.MarkerIsLocal(local, 0))

		_, ok = m.LocateMarker(15-15*r.ID(), 0)
		assert.False(t, ok)
	})
}

func TestLevelDataLifecycle(t *testing.T) {
	grp := comm.NewGroup(2)
	grp.Run(func(r *comm.Rank) {
		m, _ := markerFixture(t, r, PiecewiseLinear, PiecewiseLinear, &lineMarkers{n: 16})

		u, err := m.CreateLevelData(VelocityDataName, 0, 3, true)
		assert.NoError(t, err)
		assert.Equal(t, 3, u.Depth())
		assert.True(t, u.Maintained())
		assert.Equal(t, 8, u.Vec().LocalSize())
		assert.Equal(t, 1, u.Vec().NumGhosts())

		_, err = m.CreateLevelData(VelocityDataName, 0, 3, true)
		assert.ErrorIs(t, err, ErrDuplicateName)
		_, err = m.CreateLevelData(PositionDataName, 0, 3, true)
		assert.ErrorIs(t, err, ErrDuplicateName)

		got, err := m.LevelData(VelocityDataName, 0)
		assert.NoError(t, err)
		assert.Equal(t, u, got)
		_, err = m.LevelData("missing", 0)
		assert.Error(t, err)

		// Ghost refresh pulls owner values into the ghost extension.
		for j, lag := range m.LocalLagrangianIndices(0) {
			u.Vec().Set(j, 0, float64(lag))
		}
		assert.NoError(t, m.RefreshGhosts(VelocityDataName, 0))
		nl := m.NonlocalLagrangianIndices(0)
		assert.Equal(t, float64(nl[0]), u.Vec().At(8, 0))

		assert.Error(t, m.FreeLevelData(PositionDataName, 0))
		assert.NoError(t, m.FreeLevelData(VelocityDataName, 0))
		_, err = m.LevelData(VelocityDataName, 0)
		assert.Error(t, err)
	})
}

func TestRedistributeMovesMarkers(t *testing.T) {
	grp := comm.NewGroup(2)
	grp.Run(func(r *comm.Rank) {
		m, _ := markerFixture(t, r, PiecewiseLinear, PiecewiseLinear, &lineMarkers{n: 16})

		u, err := m.CreateLevelData(VelocityDataName, 0, 3, true)
		assert.NoError(t, err)
		tmp, err := m.CreateLevelData("scratch", 0, 1, false)
		assert.NoError(t, err)
		tmp.Vec().Set(0, 0, 42)

		// Tag each marker with its Lagrangian index and shift everything
		// four cells in +x. Markers shifted past the domain end leave
		// every patch and fall back to rank 0.
		x, err := m.LevelData(PositionDataName, 0)
		assert.NoError(t, err)
		for j, lag := range m.LocalLagrangianIndices(0) {
			u.Vec().Set(j, 0, float64(lag))
			x.Vec().Add(j, 0, 4)
		}

		stale, ok := m.LocateMarker(m.NodeOffset(0), 0)
		assert.True(t, ok)

		assert.NoError(t, m.BeginRedistribute(0))
		assert.ErrorIs(t, m.BeginRedistribute(0), ErrPrecondition)
		_, err = m.CreateLevelData("blocked", 0, 1, true)
		assert.ErrorIs(t, err, ErrPrecondition)
		assert.NoError(t, m.EndRedistribute(0))
		assert.ErrorIs(t, m.EndRedistribute(0), ErrPrecondition)

		assert.Equal(t, 16, m.NumNodes(0))
		assert.Equal(t, 8, m.NumLocalNodes(0))
		if r.ID() == 0 {
			assert.Equal(t, []int{0, 1, 2, 3, 12, 13, 14, 15}, m.LocalLagrangianIndices(0))
		} else {
			assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11}, m.LocalLagrangianIndices(0))
		}

		// Maintained data followed its markers; the scratch quantity was
		// dropped.
		u2, err := m.LevelData(VelocityDataName, 0)
		assert.NoError(t, err)
		for j, lag := range m.LocalLagrangianIndices(0) {
			assert.Equal(t, float64(lag), u2.Vec().At(j, 0))
		}
		_, err = m.LevelData("scratch", 0)
		assert.Error(t, err)

		// Pre-rebuild handles and data are rejected, not misread.
		_, err = m.MarkerPosition(stale, 0)
		assert.ErrorIs(t, err, ErrStaleIndex)
		assert.False(t, m.LevelDataIsCurrent(u, 0))
		assert.True(t, m.LevelDataIsCurrent(u2, 0))
	})
}

func TestRegridRedistributesInPlace(t *testing.T) {
	grp := comm.NewGroup(2)
	grp.Run(func(r *comm.Rank) {
		m, h := markerFixture(t, r, PiecewiseLinear, PiecewiseLinear, &lineMarkers{n: 16})

		gen := m.Generation(0)

		// Swap patch ownership; the insertion hook must migrate every
		// marker without an explicit Begin/End.
		_, patches := testPatches([2]int{1, 0})
		_, err := h.RegridLevel(0, patches)
		assert.NoError(t, err)

		assert.Equal(t, 8, m.NumLocalNodes(0))
		want := make([]int, 8)
		for i := range want {
			want[i] = 8*(1-r.ID()) + i
		}
		assert.Equal(t, want, m.LocalLagrangianIndices(0))
		assert.Greater(t, m.Generation(0), gen)
	})
}

func TestSingleRankDistribution(t *testing.T) {
	grp := comm.NewGroup(1)
	grp.Run(func(r *comm.Rank) {
		m, _ := markerFixture(t, r, IB4, IB4, &lineMarkers{n: 16})
		assert.Equal(t, 16, m.NumNodes(0))
		assert.Equal(t, 16, m.NumLocalNodes(0))
		assert.Empty(t, m.NonlocalLagrangianIndices(0))

		assert.NoError(t, m.BeginRedistribute(0))
		assert.NoError(t, m.EndRedistribute(0))
		assert.Equal(t, 16, m.NumLocalNodes(0))
	})
}
