package beam

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/grid"
)

func flatGrid(t *testing.T, nx, ny int) *grid.Grid {
	t.Helper()
	g, err := grid.New(nx, ny, 8, 1.0, 1)
	require.NoError(t, err)
	return g
}

func TestDefineIrradiatedArea_FlatDisk(t *testing.T) {
	g := flatGrid(t, 21, 21)
	area, err := DefineIrradiatedArea(g, febid.Point{X: 10, Y: 10}, 3, ProjectVertical)
	require.NoError(t, err)

	// Lattice points within radius 3 of an integer centre.
	assert.Equal(t, 29, area.Len())
	for i, c := range area.Coords {
		assert.Equal(t, 1, c.Z, "cell %v not on the active layer", c)
		d := math.Hypot(float64(c.X-10), float64(c.Y-10))
		assert.LessOrEqual(t, d, 3.0)
		assert.InDelta(t, d, area.Dist[i], 1e-12)
		assert.Equal(t, g.Idx(c.X, c.Y, c.Z), area.Index[i])
	}
	for i := 1; i < len(area.Coords); i++ {
		prev, cur := area.Coords[i-1], area.Coords[i]
		assert.True(t, prev.Y < cur.Y || (prev.Y == cur.Y && prev.X < cur.X), "coords not ordered at %d", i)
	}
}

func TestPEFlux_PeakAndMonotone(t *testing.T) {
	g := flatGrid(t, 21, 21)
	centre := febid.Point{X: 10, Y: 10}
	area, err := DefineIrradiatedArea(g, centre, 3, ProjectVertical)
	require.NoError(t, err)

	p := Profile{Centre: centre, Radius: 3, Current: 1e6}
	fm := PEFlux(area, p, g.CellSize)
	require.Equal(t, area.Len(), fm.Len())

	peak := -1
	for i, c := range area.Coords {
		if c.X == 10 && c.Y == 10 {
			peak = i
		}
	}
	require.GreaterOrEqual(t, peak, 0)
	for i := range fm.Flux {
		if i != peak {
			assert.Less(t, fm.Flux[i], fm.Flux[peak])
		}
		for j := range fm.Flux {
			if area.Dist[i] < area.Dist[j]-1e-9 {
				assert.Greater(t, fm.Flux[i], fm.Flux[j], "flux must decrease with distance")
			}
		}
	}

	assert.InDelta(t, p.Current, TotalCurrent(fm, g.CellSize), 1e-6*p.Current)
}

func TestPEFlux_ClippedAtEdge(t *testing.T) {
	g := flatGrid(t, 10, 10)
	area, err := DefineIrradiatedArea(g, febid.Point{X: 0, Y: 0}, 3, ProjectVertical)
	require.NoError(t, err)

	fm := PEFlux(area, Profile{Radius: 3, Current: 100}, g.CellSize)
	total := TotalCurrent(fm, g.CellSize)
	assert.Greater(t, total, 0.0)
	assert.Less(t, total, 100.0)
}

func TestDefineIrradiatedArea_Degenerate(t *testing.T) {
	g := flatGrid(t, 8, 8)
	area, err := DefineIrradiatedArea(g, febid.Point{X: 3.2, Y: 4.4}, 0.3, ProjectVertical)
	require.NoError(t, err)
	require.Equal(t, 1, area.Len())
	assert.True(t, area.Degenerate)
	assert.Equal(t, febid.Coord{X: 3, Y: 4, Z: 1}, area.Coords[0])

	fm := PEFlux(area, Profile{Radius: 0.3, Current: 50}, 2.0)
	assert.InDelta(t, 50.0/4.0, fm.Flux[0], 1e-12)
	assert.InDelta(t, 50.0, TotalCurrent(fm, 2.0), 1e-12)
}

func TestDefineIrradiatedArea_OutsideGrid(t *testing.T) {
	g := flatGrid(t, 8, 8)
	tests := []struct {
		name   string
		centre febid.Point
		radius float64
	}{
		{"far away", febid.Point{X: 100, Y: 100}, 3},
		{"negative", febid.Point{X: -10, Y: 2}, 2},
		{"degenerate outside", febid.Point{X: 8.6, Y: 1}, 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefineIrradiatedArea(g, tc.centre, tc.radius, ProjectVertical)
			assert.True(t, errors.Is(err, febid.ErrInvalidGeometry), "got %v", err)
		})
	}
}

func TestDefineIrradiatedArea_SurfacePolicy(t *testing.T) {
	g, err := grid.New(11, 11, 10, 1.0, 1)
	require.NoError(t, err)
	for z := 1; z <= 4; z++ {
		g.Deposit[g.Idx(5, 5, z)] = grid.FullCell
	}
	require.NoError(t, g.FlushStructure())

	vertical, err := DefineIrradiatedArea(g, febid.Point{X: 5, Y: 5}, 2, ProjectVertical)
	require.NoError(t, err)
	surface, err := DefineIrradiatedArea(g, febid.Point{X: 5, Y: 5}, 2, ProjectSurface)
	require.NoError(t, err)

	// The pillar top is hit in both; distant flat ground falls outside the
	// 3D radius once the hit point is lifted.
	assert.Contains(t, surface.Index, g.Idx(5, 5, 5))
	assert.Contains(t, vertical.Index, g.Idx(5, 5, 5))
	assert.Less(t, surface.Len(), vertical.Len())

	// Normalisation is planar: on the same surface the vertical footprint
	// carries the full current and the Euclidean one loses the far cells.
	prof := Profile{Centre: febid.Point{X: 5, Y: 5}, Radius: 2, Current: 1e6}
	assert.InDelta(t, prof.Current, TotalCurrent(PEFlux(vertical, prof, g.CellSize), g.CellSize), 1e-6*prof.Current)
	assert.Less(t, TotalCurrent(PEFlux(surface, prof, g.CellSize), g.CellSize), prof.Current)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Surface")
	require.NoError(t, err)
	assert.Equal(t, ProjectSurface, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ProjectVertical, p)

	_, err = ParsePolicy("oblique")
	assert.ErrorIs(t, err, febid.ErrConfiguration)
}

func TestPatternAt(t *testing.T) {
	p := Pattern{
		Points: []Dwell{
			{X: 1, Y: 1, Duration: 1},
			{X: 2, Y: 1, Duration: 2},
		},
		Repeats: 2,
	}
	require.NoError(t, p.Validate())
	assert.Equal(t, 6.0, p.Total())

	tests := []struct {
		t     float64
		index int
		ok    bool
	}{
		{0, 0, true},
		{0.5, 0, true},
		{1.5, 1, true},
		{3.2, 0, true},
		{5.9, 1, true},
		{6, -1, false},
	}
	for _, tc := range tests {
		_, idx, ok := p.At(tc.t)
		assert.Equal(t, tc.ok, ok, "t=%g", tc.t)
		assert.Equal(t, tc.index, idx, "t=%g", tc.t)
	}

	bad := Pattern{Points: []Dwell{{Duration: 0}}}
	assert.ErrorIs(t, bad.Validate(), febid.ErrConfiguration)
}
