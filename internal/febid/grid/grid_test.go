package grid

import (
	"errors"
	"testing"

	"github.com/banshee-data/febid/internal/febid"
)

func newTestGrid(t *testing.T, nx, ny, nz, substrate int) *Grid {
	t.Helper()
	g, err := New(nx, ny, nz, 1.0, substrate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestNew_InvalidParameters(t *testing.T) {
	tests := []struct {
		name              string
		nx, ny, nz, subst int
		cellSize          float64
	}{
		{"zero width", 0, 4, 6, 1, 1},
		{"zero cell size", 4, 4, 6, 1, 0},
		{"negative cell size", 4, 4, 6, 1, -2},
		{"no substrate", 4, 4, 6, 0, 1},
		{"no headroom", 4, 4, 3, 2, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.nx, tc.ny, tc.nz, tc.cellSize, tc.subst)
			if !errors.Is(err, febid.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestFlatSubstrateClassification(t *testing.T) {
	g := newTestGrid(t, 5, 4, 8, 2)

	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				i := g.Idx(x, y, z)
				wantSolid := z < 2
				wantSurface := z == 1
				wantSemi := z == 2
				wantGhost := z == 1 || z == 3
				if g.Solid[i] != wantSolid || g.Surface[i] != wantSurface ||
					g.SemiSurface[i] != wantSemi || g.Ghost[i] != wantGhost {
					t.Fatalf("cell (%d,%d,%d): solid=%v surface=%v semi=%v ghost=%v",
						x, y, z, g.Solid[i], g.Surface[i], g.SemiSurface[i], g.Ghost[i])
				}
			}
		}
	}

	if got, want := len(g.Active), g.Nx*g.Ny; got != want {
		t.Errorf("active cells = %d, want %d", got, want)
	}
	if got, want := len(g.Ghosts), 2*g.Nx*g.Ny; got != want {
		t.Errorf("ghost cells = %d, want %d", got, want)
	}
	if g.ZTop != 2 {
		t.Errorf("ZTop = %d, want 2", g.ZTop)
	}
	if g.ZMax != g.Nz-2 {
		t.Errorf("ZMax = %d, want %d", g.ZMax, g.Nz-2)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestIdxCoordRoundTrip(t *testing.T) {
	g := newTestGrid(t, 3, 5, 7, 1)
	for i := 0; i < g.Len(); i++ {
		c := g.Coord(i)
		if got := g.Idx(c.X, c.Y, c.Z); got != i {
			t.Fatalf("Idx(Coord(%d)) = %d", i, got)
		}
	}
}

func TestRefreshGhostsMirrorsActiveLayer(t *testing.T) {
	g := newTestGrid(t, 4, 4, 6, 1)
	field := make([]float64, g.Len())
	for _, idx := range g.Active {
		c := g.Coord(idx)
		field[idx] = float64(1 + c.X + 10*c.Y)
	}

	g.RefreshGhosts(field, 3)

	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			active := field[g.Idx(x, y, 1)]
			if above := field[g.Idx(x, y, 2)]; above != active {
				t.Errorf("ghost above (%d,%d) = %g, want %g", x, y, above, active)
			}
			if below := field[g.Idx(x, y, 0)]; below != active {
				t.Errorf("ghost below (%d,%d) = %g, want %g", x, y, below, active)
			}
		}
	}
}

func TestRefreshGhostsAveragesMultipleNeighbours(t *testing.T) {
	g := newTestGrid(t, 5, 5, 8, 1)
	// A solid column at (2,2,1) lifts its top and exposes side faces.
	g.Deposit[g.Idx(2, 2, 1)] = FullCell
	if err := g.FlushStructure(); err != nil {
		t.Fatalf("FlushStructure: %v", err)
	}

	field := make([]float64, g.Len())
	field[g.Idx(1, 2, 1)] = 2
	field[g.Idx(2, 2, 2)] = 6
	g.RefreshGhosts(field, 3)

	// (1,2,2) sits above active (1,2,1) and beside active (2,2,2).
	ghost := g.Idx(1, 2, 2)
	if !g.Ghost[ghost] {
		t.Fatalf("expected (1,2,2) to be a ghost")
	}
	if got := field[ghost]; got != 4 {
		t.Errorf("ghost value = %g, want mean 4", got)
	}
}

func TestRefreshGhostsPlanarKernelIgnoresVerticalNeighbours(t *testing.T) {
	g := newTestGrid(t, 5, 5, 8, 1)
	g.Deposit[g.Idx(2, 2, 1)] = FullCell
	if err := g.FlushStructure(); err != nil {
		t.Fatalf("FlushStructure: %v", err)
	}

	field := make([]float64, g.Len())
	field[g.Idx(1, 2, 1)] = 2
	field[g.Idx(2, 2, 2)] = 6
	g.RefreshGhosts(field, 2)

	// Only (2,2,2) lies in the ghost's x/y plane; (1,2,1) is below it.
	if got := field[g.Idx(1, 2, 2)]; got != 6 {
		t.Errorf("ghost value = %g, want 6", got)
	}
}

func TestIsFull(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{0, false},
		{0.5, false},
		{FullCell - 1e-9, false},
		{FullCell - 1e-13, true},
		{FullCell, true},
		{FullCell + 0.2, true},
	}
	for _, tc := range tests {
		if got := IsFull(tc.v); got != tc.want {
			t.Errorf("IsFull(%g) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestReclassifyAfterPromotion(t *testing.T) {
	g := newTestGrid(t, 5, 5, 8, 1)
	idx := g.Idx(2, 2, 1)
	g.Precursor[idx] = 3

	g.Promote(idx)
	activated := g.Reclassify([]int{idx})

	if !g.Solid[idx] || !g.Surface[idx] {
		t.Fatalf("promoted cell must be solid surface")
	}
	if g.Precursor[idx] != 0 {
		t.Errorf("promoted cell kept precursor %g", g.Precursor[idx])
	}
	above := g.Idx(2, 2, 2)
	if !g.SemiSurface[above] {
		t.Errorf("cell above promotion must become semi-surface")
	}
	found := false
	for _, a := range activated {
		if a == above {
			found = true
		}
	}
	if !found {
		t.Errorf("activated list %v misses %d", activated, above)
	}
	if g.ZTop != 2 {
		t.Errorf("ZTop = %d, want 2", g.ZTop)
	}
	if !g.Ghost[g.Idx(2, 2, 3)] {
		t.Errorf("cell two above promotion must be ghost")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	// Incremental and full reclassification agree.
	full := g.Clone()
	if err := full.FlushStructure(); err != nil {
		t.Fatalf("FlushStructure: %v", err)
	}
	for i := range g.Solid {
		if g.SemiSurface[i] != full.SemiSurface[i] || g.Ghost[i] != full.Ghost[i] || g.Surface[i] != full.Surface[i] {
			t.Fatalf("incremental and flushed classification differ at %v", g.Coord(i))
		}
	}
}

func TestFlushStructureHeightLimit(t *testing.T) {
	g := newTestGrid(t, 3, 3, 6, 1)
	g.Deposit[g.Idx(1, 1, 4)] = FullCell

	err := g.FlushStructure()
	if !errors.Is(err, febid.ErrInvalidGeometry) {
		t.Fatalf("expected geometry error, got %v", err)
	}
}

func TestSetZMax(t *testing.T) {
	g := newTestGrid(t, 3, 3, 10, 2)
	if err := g.SetZMax(9); !errors.Is(err, febid.ErrConfiguration) {
		t.Errorf("z_max above grid: got %v", err)
	}
	if err := g.SetZMax(1); !errors.Is(err, febid.ErrConfiguration) {
		t.Errorf("z_max below deposit: got %v", err)
	}
	if err := g.SetZMax(5); err != nil {
		t.Errorf("valid z_max: %v", err)
	}
	if err := g.CheckHeight(febid.Coord{Z: 5}); !errors.Is(err, febid.ErrInvalidGeometry) {
		t.Errorf("CheckHeight at cap: got %v", err)
	}
	if err := g.CheckHeight(febid.Coord{Z: 4}); err != nil {
		t.Errorf("CheckHeight below cap: %v", err)
	}
}

func TestRefreshClearsScratchOnly(t *testing.T) {
	g := newTestGrid(t, 3, 3, 5, 1)
	for i := range g.Flux {
		g.Flux[i] = 1
	}
	g.Precursor[g.Active[0]] = 7
	g.Refresh()

	for i, f := range g.Flux {
		if f != 0 {
			t.Fatalf("flux[%d] = %g after Refresh", i, f)
		}
	}
	if g.Precursor[g.Active[0]] != 7 {
		t.Errorf("Refresh touched precursor")
	}
}

func TestTopActiveFollowsPillar(t *testing.T) {
	g := newTestGrid(t, 5, 5, 8, 1)
	for z := 1; z <= 3; z++ {
		g.Deposit[g.Idx(2, 2, z)] = FullCell
	}
	if err := g.FlushStructure(); err != nil {
		t.Fatalf("FlushStructure: %v", err)
	}

	if z, ok := g.TopActive(2, 2); !ok || z != 4 {
		t.Errorf("TopActive on pillar = (%d,%v), want (4,true)", z, ok)
	}
	// Columns beside the pillar still expose the flat active layer on top;
	// their highest semi-surface cell is the pillar wall neighbour.
	if z, ok := g.TopActive(1, 2); !ok || z != 3 {
		t.Errorf("TopActive beside pillar = (%d,%v), want (3,true)", z, ok)
	}
	if z, ok := g.TopActive(0, 0); !ok || z != 1 {
		t.Errorf("TopActive in corner = (%d,%v), want (1,true)", z, ok)
	}
	if g.FilledCells() != 3 {
		t.Errorf("FilledCells = %d, want 3", g.FilledCells())
	}
}
