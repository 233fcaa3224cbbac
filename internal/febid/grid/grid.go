package grid

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/febid/internal/febid"
)

// FullCell is the deposit volume fraction at which a cell becomes solid.
const FullCell = 1.0

// fillEpsilon absorbs float round-off when comparing against FullCell.
const fillEpsilon = 1e-12

// IsFull reports whether a deposit fraction counts as a filled cell.
func IsFull(v float64) bool { return v >= FullCell-fillEpsilon }

// faceOffsets lists the six face neighbours as (dx, dy, dz).
var faceOffsets = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// Grid is the simulation domain. Slices are indexed by Idx(x, y, z) with z
// outermost so that ascending index order is bottom-up.
type Grid struct {
	Nx, Ny, Nz      int
	CellSize        float64 // nm
	SubstrateHeight int     // solid layers at initialisation
	ZMax            int     // highest z a solid cell may occupy (exclusive)

	Precursor   []float64 // molecules per nm²
	Deposit     []float64 // volume fraction of the cell, [0, FullCell]
	Solid       []bool
	Surface     []bool
	SemiSurface []bool
	Ghost       []bool

	// Flux is per-step scratch, cleared by Refresh.
	Flux []float64

	// Active holds semi-surface indices in ascending order; Ghosts holds
	// ghost indices. Both are rebuilt after every classification change.
	Active []int
	Ghosts []int

	// ZTop is one above the highest solid cell.
	ZTop int

	initialDeposit float64
}

// New allocates a grid with a flat substrate of substrateHeight solid layers
// and classifies it. ZMax defaults to nz-2 so that the active layer and its
// ghost layer always fit above a solid cell.
func New(nx, ny, nz int, cellSize float64, substrateHeight int) (*Grid, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, febid.NewConfigurationError("dimensions", "must be positive, got %dx%dx%d", nx, ny, nz)
	}
	if cellSize <= 0 {
		return nil, febid.NewConfigurationError("cell_size", "must be positive, got %g", cellSize)
	}
	if substrateHeight < 1 {
		return nil, febid.NewConfigurationError("substrate_height", "must be at least 1, got %d", substrateHeight)
	}
	if substrateHeight+2 > nz {
		return nil, febid.NewConfigurationError("nz", "grid height %d leaves no room above a %d-layer substrate", nz, substrateHeight)
	}

	n := nx * ny * nz
	g := &Grid{
		Nx:              nx,
		Ny:              ny,
		Nz:              nz,
		CellSize:        cellSize,
		SubstrateHeight: substrateHeight,
		ZMax:            nz - 2,
		Precursor:       make([]float64, n),
		Deposit:         make([]float64, n),
		Solid:           make([]bool, n),
		Surface:         make([]bool, n),
		SemiSurface:     make([]bool, n),
		Ghost:           make([]bool, n),
		Flux:            make([]float64, n),
	}
	layer := nx * ny
	for i := 0; i < substrateHeight*layer; i++ {
		g.Deposit[i] = FullCell
	}
	if err := g.FlushStructure(); err != nil {
		return nil, err
	}
	g.initialDeposit = floats.Sum(g.Deposit)
	return g, nil
}

// SetZMax sets the growth cap. It must leave room for the ghost layer above
// the active layer and sit above the current deposit.
func (g *Grid) SetZMax(zMax int) error {
	if zMax > g.Nz-2 {
		return febid.NewConfigurationError("z_max", "%d exceeds grid height %d minus the active and ghost layers", zMax, g.Nz)
	}
	if zMax < g.ZTop {
		return febid.NewConfigurationError("z_max", "%d is below the current deposit top %d", zMax, g.ZTop)
	}
	g.ZMax = zMax
	return nil
}

// Len returns the number of cells.
func (g *Grid) Len() int { return g.Nx * g.Ny * g.Nz }

// Idx flattens a coordinate: idx = (z*Ny + y)*Nx + x.
func (g *Grid) Idx(x, y, z int) int { return (z*g.Ny+y)*g.Nx + x }

// Coord expands a flat index.
func (g *Grid) Coord(idx int) febid.Coord {
	layer := g.Nx * g.Ny
	z := idx / layer
	rem := idx - z*layer
	return febid.Coord{X: rem % g.Nx, Y: rem / g.Nx, Z: z}
}

// InBounds reports whether the coordinate lies inside the array.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.Nx && y >= 0 && y < g.Ny && z >= 0 && z < g.Nz
}

// CellVolume returns the volume of one cell in nm³.
func (g *Grid) CellVolume() float64 { return g.CellSize * g.CellSize * g.CellSize }

// CheckHeight fails with InvalidGeometry when a solid cell at c would reach
// the configured cap.
func (g *Grid) CheckHeight(c febid.Coord) error {
	if c.Z >= g.ZMax {
		return &febid.GeometryError{Coord: c, Height: c.Z, Reason: "deposit reached z_max"}
	}
	return nil
}

// Refresh zeroes per-step scratch. Density and deposit are untouched.
func (g *Grid) Refresh() {
	for i := range g.Flux {
		g.Flux[i] = 0
	}
}

// TopActive returns the highest semi-surface cell of column (x, y).
func (g *Grid) TopActive(x, y int) (int, bool) {
	top := g.ZTop + 1
	if top > g.Nz-1 {
		top = g.Nz - 1
	}
	for z := top; z >= 0; z-- {
		if g.SemiSurface[g.Idx(x, y, z)] {
			return z, true
		}
	}
	return 0, false
}

// ActiveSum sums a field over the semi-surface cells.
func (g *Grid) ActiveSum(field []float64) float64 {
	sum := 0.0
	for _, idx := range g.Active {
		sum += field[idx]
	}
	return sum
}

// FilledCells counts solid cells above the substrate.
func (g *Grid) FilledCells() int {
	n := 0
	for i := g.SubstrateHeight * g.Nx * g.Ny; i < len(g.Solid); i++ {
		if g.Solid[i] {
			n++
		}
	}
	return n
}

// InitialDeposit is the summed deposit fraction at construction.
func (g *Grid) InitialDeposit() float64 { return g.initialDeposit }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Precursor = append([]float64(nil), g.Precursor...)
	c.Deposit = append([]float64(nil), g.Deposit...)
	c.Solid = append([]bool(nil), g.Solid...)
	c.Surface = append([]bool(nil), g.Surface...)
	c.SemiSurface = append([]bool(nil), g.SemiSurface...)
	c.Ghost = append([]bool(nil), g.Ghost...)
	c.Flux = append([]float64(nil), g.Flux...)
	c.Active = append([]int(nil), g.Active...)
	c.Ghosts = append([]int(nil), g.Ghosts...)
	return &c
}

// FaceNeighbours appends the in-bounds face neighbours of idx to dst.
func (g *Grid) FaceNeighbours(idx int, dst []int) []int {
	g.forFaces(idx, func(n int) { dst = append(dst, n) })
	return dst
}

// forFaces calls fn with the flat index of every in-bounds face neighbour.
func (g *Grid) forFaces(idx int, fn func(n int)) {
	g.forAxisFaces(idx, 3, fn)
}

// forAxisFaces visits the in-bounds face neighbours along the first dims
// axes.
func (g *Grid) forAxisFaces(idx, dims int, fn func(n int)) {
	dims = max(1, min(dims, 3))
	c := g.Coord(idx)
	for _, o := range faceOffsets[:2*dims] {
		x, y, z := c.X+o[0], c.Y+o[1], c.Z+o[2]
		if g.InBounds(x, y, z) {
			fn(g.Idx(x, y, z))
		}
	}
}
