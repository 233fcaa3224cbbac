// Package report renders run statistics and deposit snapshots as PNG plots
// and an interactive HTML page.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/febid/internal/febid/process"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("report: no data")

type series struct {
	label string
	value func(process.Stats) float64
}

type statsPlot struct {
	file   string
	title  string
	ylabel string
	series []series
}

var statsPlots = []statsPlot{
	{
		file: "volume.png", title: "Deposited Volume", ylabel: "Volume (nm³)",
		series: []series{{"volume", func(s process.Stats) float64 { return s.Volume }}},
	},
	{
		file: "growth_rate.png", title: "Growth Rate", ylabel: "Rate (nm³/s)",
		series: []series{{"growth rate", func(s process.Stats) float64 { return s.GrowthRate }}},
	},
	{
		file: "height.png", title: "Deposit Height", ylabel: "Top layer (cells)",
		series: []series{{"z_top", func(s process.Stats) float64 { return float64(s.ZTop) }}},
	},
	{
		file: "precursor.png", title: "Precursor Coverage", ylabel: "Coverage (1/nm²)",
		series: []series{
			{"mean", func(s process.Stats) float64 { return s.MeanPrecursor }},
			{"min", func(s process.Stats) float64 { return s.MinPrecursor }},
			{"mean+std", func(s process.Stats) float64 { return s.MeanPrecursor + s.StdPrecursor }},
		},
	},
}

// PlotStats writes one time-series PNG per tracked quantity into dir and
// returns the written paths.
func PlotStats(stats []process.Stats, dir string) ([]string, error) {
	if len(stats) == 0 {
		return nil, ErrNoData
	}

	var written []string
	for _, sp := range statsPlots {
		p := plot.New()
		p.Title.Text = sp.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = sp.ylabel

		colors := generateColors(len(sp.series))
		for i, s := range sp.series {
			pts := make(plotter.XYs, len(stats))
			for j, st := range stats {
				pts[j] = plotter.XY{X: st.Time, Y: s.value(st)}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, fmt.Errorf("%s: %w", sp.file, err)
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(s.label, line)
		}
		p.Legend.Top = true
		p.Legend.Left = true
		p.Legend.XOffs = 10
		p.Legend.YOffs = -10

		path := filepath.Join(dir, sp.file)
		if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
			return written, fmt.Errorf("save %s: %w", sp.file, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// PlotProfile writes the deposit height along x through the beam row.
func PlotProfile(snap *process.Snapshot, path string) error {
	if snap == nil || snap.Nx == 0 || snap.Ny == 0 {
		return ErrNoData
	}
	heights := snap.Heights()
	row := clampInt(int(snap.BeamY+0.5), 0, snap.Ny-1)

	pts := make(plotter.XYs, snap.Nx)
	for x := 0; x < snap.Nx; x++ {
		pts[x] = plotter.XY{X: float64(x) * snap.CellSize, Y: heights[row*snap.Nx+x] * snap.CellSize}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Deposit Profile y=%d (step %d, t=%.4gs)", row, snap.Step, snap.Time)
	p.X.Label.Text = "x (nm)"
	p.Y.Label.Text = "Height (nm)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line, plotter.NewGrid())

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save profile plot: %w", err)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// generateColors creates a palette of n distinct line colours.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
