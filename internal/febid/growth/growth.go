// Package growth converts electron flux and precursor density into deposit
// volume and promotes filled cells across the solid-gas interface.
package growth

import (
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/beam"
	"github.com/banshee-data/febid/internal/febid/grid"
)

// seedThreshold is the density below which a newly active cell counts as
// empty and inherits coverage from the cell that filled next to it.
const seedThreshold = 1e-6

// Deposition returns the deposit increment per cell for one step:
// yield·f·n·dt at active cells with non-zero flux, zero elsewhere. density
// must be the pre-step field.
func Deposition(flux, density []float64, dt, yield float64, g *grid.Grid) []float64 {
	inc := make([]float64, g.Len())
	for _, idx := range g.Active {
		if f := flux[idx]; f > 0 {
			inc[idx] = yield * f * density[idx] * dt
		}
	}
	return inc
}

// FluxMatrix adds every flux map into g.Flux and returns it. Callers clear
// the scratch with g.Refresh first.
func FluxMatrix(g *grid.Grid, maps ...beam.FluxMap) []float64 {
	for _, fm := range maps {
		for i, idx := range fm.Index {
			g.Flux[idx] += fm.Flux[i]
		}
	}
	return g.Flux
}

// Promotion reports what UpdateSurface changed.
type Promotion struct {
	// Cells lists promoted indices in the order they filled.
	Cells []int
	// Activated lists cells that became semi-surface as a result.
	Activated []int
	// Overflow is the summed deposit carried upward past full cells.
	Overflow float64
}

// Filled reports whether any cell was promoted.
func (p Promotion) Filled() bool { return len(p.Cells) > 0 }

// UpdateSurface adds inc to the deposit of active cells and promotes every
// cell that reaches a full deposit. Promotion runs bottom-up in ascending
// index order: the cell becomes solid surface with a deposit of exactly one
// and its excess moves to the first non-solid cell above it, which may
// itself fill in the same pass.
//
// A promotion at or above g.ZMax fails with an InvalidGeometry error and a
// receiving cell outside the array with an InvalidCoordinate error. Cells
// promoted before the failure stay promoted.
func UpdateSurface(g *grid.Grid, inc []float64) (Promotion, error) {
	var res Promotion
	var queue []int
	for _, idx := range g.Active {
		if inc[idx] == 0 {
			continue
		}
		g.Deposit[idx] += inc[idx]
		if grid.IsFull(g.Deposit[idx]) {
			queue = append(queue, idx)
		}
	}

	// Seed coverage by promoted index so activated neighbours can inherit it.
	coverage := make(map[int]float64)
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if g.Solid[idx] || !grid.IsFull(g.Deposit[idx]) {
			continue
		}
		c := g.Coord(idx)
		if err := g.CheckHeight(c); err != nil {
			return finish(g, res, coverage), err
		}

		excess := g.Deposit[idx] - grid.FullCell
		coverage[idx] = g.Precursor[idx]
		g.Promote(idx)
		res.Cells = append(res.Cells, idx)

		if excess <= 0 {
			continue
		}
		target, err := receiver(g, c)
		if err != nil {
			return finish(g, res, coverage), err
		}
		g.Deposit[target] += excess
		res.Overflow += excess
		if grid.IsFull(g.Deposit[target]) {
			pos, found := slices.BinarySearch(queue, target)
			if !found {
				queue = slices.Insert(queue, pos, target)
			}
		}
	}
	return finish(g, res, coverage), nil
}

// receiver returns the first non-solid cell above c.
func receiver(g *grid.Grid, c febid.Coord) (int, error) {
	for z := c.Z + 1; ; z++ {
		if z >= g.Nz {
			return 0, &febid.CoordinateError{
				Coord:  febid.Coord{X: c.X, Y: c.Y, Z: z},
				Reason: "deposit overflow leaves the grid",
			}
		}
		idx := g.Idx(c.X, c.Y, z)
		if !g.Solid[idx] {
			return idx, nil
		}
	}
}

func finish(g *grid.Grid, res Promotion, coverage map[int]float64) Promotion {
	if len(res.Cells) == 0 {
		return res
	}
	res.Activated = g.Reclassify(res.Cells)

	var nbs []int
	for _, idx := range res.Activated {
		if g.Precursor[idx] >= seedThreshold {
			continue
		}
		sum, n := 0.0, 0
		nbs = g.FaceNeighbours(idx, nbs[:0])
		for _, nb := range nbs {
			if cov, ok := coverage[nb]; ok {
				sum += cov
				n++
			}
		}
		if n > 0 {
			g.Precursor[idx] = sum / float64(n)
		}
	}
	return res
}

// ShowYield returns the volume deposited since the grid was created, in nm³.
func ShowYield(g *grid.Grid) float64 {
	return (floats.Sum(g.Deposit) - g.InitialDeposit()) * g.CellVolume()
}
