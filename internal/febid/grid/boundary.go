package grid

import (
	"github.com/banshee-data/febid/internal/febid"
)

// FlushStructure rebuilds every classification flag from the raw Deposit
// field. It is the full-grid counterpart of Reclassify, used at
// initialisation and after external edits to Deposit. Precursor held by
// cells that are neither semi-surface nor ghost is cleared.
func (g *Grid) FlushStructure() error {
	for i, v := range g.Deposit {
		g.Solid[i] = IsFull(v)
		if g.Solid[i] {
			g.Deposit[i] = FullCell
		}
	}
	for i := range g.Solid {
		g.classify(i)
	}
	g.DefineGhosts()
	g.rebuildIndex()

	for i := range g.Precursor {
		if !g.SemiSurface[i] && !g.Ghost[i] {
			g.Precursor[i] = 0
		}
	}

	if g.ZTop > 0 {
		highest := g.ZTop - 1
		for i := highest * g.Nx * g.Ny; i < (highest+1)*g.Nx*g.Ny; i++ {
			if g.Solid[i] {
				if err := g.CheckHeight(g.Coord(i)); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// DefineGhosts recomputes the ghost mask from the semi-surface layout and
// returns it. A ghost is any non-semi-surface cell sharing a face with a
// semi-surface cell.
func (g *Grid) DefineGhosts() []bool {
	for i := range g.Ghost {
		g.Ghost[i] = g.isGhost(i)
	}
	return g.Ghost
}

// RefreshGhosts writes into every ghost index of field the mean of field
// over that ghost's semi-surface face neighbours along the first dims axes
// (x, then y, then z), the axes a Laplacian of that dimensionality samples.
// The mean keeps the summed stencil flux through a ghost at zero, so the
// boundary is reflecting. It must run before each Laplacian evaluation.
func (g *Grid) RefreshGhosts(field []float64, dims int) {
	for _, idx := range g.Ghosts {
		sum, n := 0.0, 0
		g.forAxisFaces(idx, dims, func(nb int) {
			if g.SemiSurface[nb] {
				sum += field[nb]
				n++
			}
		})
		if n > 0 {
			field[idx] = sum / float64(n)
		}
	}
}

// Reclassify updates the classification in the neighbourhood of changed
// cells (typically cells just promoted to solid) and rebuilds the indexes.
// It returns the indices that became semi-surface.
func (g *Grid) Reclassify(changed []int) []int {
	if len(changed) == 0 {
		return nil
	}
	var activated []int
	seen := make(map[int]struct{})
	g.forBox(changed, 1, func(i int) {
		wasSemi := g.SemiSurface[i]
		g.classify(i)
		if g.SemiSurface[i] && !wasSemi {
			if _, ok := seen[i]; !ok {
				seen[i] = struct{}{}
				activated = append(activated, i)
			}
		}
	})
	g.forBox(changed, 2, func(i int) {
		g.Ghost[i] = g.isGhost(i)
	})
	g.rebuildIndex()
	return activated
}

// Promote marks idx solid and surface with a full deposit. Precursor at the
// cell is cleared; the caller redistributes it.
func (g *Grid) Promote(idx int) {
	g.Deposit[idx] = FullCell
	g.Solid[idx] = true
	g.Surface[idx] = true
	g.SemiSurface[idx] = false
	g.Precursor[idx] = 0
}

func (g *Grid) classify(i int) {
	if g.Solid[i] {
		exposed := false
		g.forFaces(i, func(nb int) {
			if !g.Solid[nb] {
				exposed = true
			}
		})
		g.Surface[i] = exposed
		g.SemiSurface[i] = false
		return
	}
	g.Surface[i] = false
	touching := false
	g.forFaces(i, func(nb int) {
		if g.Solid[nb] {
			touching = true
		}
	})
	g.SemiSurface[i] = touching
}

func (g *Grid) isGhost(i int) bool {
	if g.SemiSurface[i] {
		return false
	}
	ghost := false
	g.forFaces(i, func(nb int) {
		if g.SemiSurface[nb] {
			ghost = true
		}
	})
	return ghost
}

func (g *Grid) rebuildIndex() {
	g.Active = g.Active[:0]
	g.Ghosts = g.Ghosts[:0]
	g.ZTop = 0
	layer := g.Nx * g.Ny
	for i := range g.Solid {
		if g.SemiSurface[i] {
			g.Active = append(g.Active, i)
		}
		if g.Ghost[i] {
			g.Ghosts = append(g.Ghosts, i)
		}
		if g.Solid[i] {
			if z := i/layer + 1; z > g.ZTop {
				g.ZTop = z
			}
		}
	}
}

// forBox visits every in-bounds cell within Chebyshev distance r of any of
// the given centres. Cells may be visited more than once.
func (g *Grid) forBox(centres []int, r int, fn func(i int)) {
	for _, c := range centres {
		cc := g.Coord(c)
		for z := cc.Z - r; z <= cc.Z+r; z++ {
			for y := cc.Y - r; y <= cc.Y+r; y++ {
				for x := cc.X - r; x <= cc.X+r; x++ {
					if g.InBounds(x, y, z) {
						fn(g.Idx(x, y, z))
					}
				}
			}
		}
	}
}

// Validate checks the classification invariants. It is used by tests and by
// the process loop in debug mode.
func (g *Grid) Validate() error {
	for i := range g.Solid {
		if g.Precursor[i] < 0 {
			return &febid.CoordinateError{Coord: g.Coord(i), Reason: "negative precursor density"}
		}
		if g.SemiSurface[i] && g.Solid[i] {
			return &febid.CoordinateError{Coord: g.Coord(i), Reason: "cell is both solid and semi-surface"}
		}
		if g.SemiSurface[i] && g.Ghost[i] {
			return &febid.CoordinateError{Coord: g.Coord(i), Reason: "cell is both semi-surface and ghost"}
		}
	}
	return nil
}
