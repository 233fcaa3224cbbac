package report

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/febid/internal/febid/process"
)

// heightGrid adapts snapshot column heights to plotter.GridXYZ.
type heightGrid struct {
	nx, ny   int
	cellSize float64
	h        []float64
}

func (g heightGrid) Dims() (c, r int) { return g.nx, g.ny }
func (g heightGrid) Z(c, r int) float64 { return g.h[r*g.nx+c] * g.cellSize }
func (g heightGrid) X(c int) float64 { return (float64(c) + 0.5) * g.cellSize }
func (g heightGrid) Y(r int) float64 { return (float64(r) + 0.5) * g.cellSize }

func (g heightGrid) maxMin() (float64, float64) {
	return floats.Max(g.h) * g.cellSize, floats.Min(g.h) * g.cellSize
}

// PlotHeightMap writes a top-down heat map of the deposit height in nm.
func PlotHeightMap(snap *process.Snapshot, path string) error {
	if snap == nil || snap.Nx == 0 || snap.Ny == 0 {
		return ErrNoData
	}
	g := heightGrid{nx: snap.Nx, ny: snap.Ny, cellSize: snap.CellSize, h: snap.Heights()}

	hm := plotter.NewHeatMap(g, palette.Heat(32, 1))
	hi, lo := g.maxMin()
	if hi == lo {
		// A flat surface still needs a non-empty colour range.
		hi = lo + snap.CellSize
	}
	hm.Min, hm.Max = lo, hi

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Deposit Height (step %d, t=%.4gs, %.3g to %.3g nm)", snap.Step, snap.Time, lo, hi)
	p.X.Label.Text = "x (nm)"
	p.Y.Label.Text = "y (nm)"
	p.Add(hm)

	if err := p.Save(7*vg.Inch, 7*vg.Inch, path); err != nil {
		return fmt.Errorf("save height map: %w", err)
	}
	return nil
}
