package report

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/febid/internal/febid/process"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Page collects the inputs of the HTML report.
type Page struct {
	RunID string
	Stats []process.Stats
	Final *process.Snapshot
}

// RenderHTML renders the report page: growth curves from the statistics
// and a height map plus beam-row profile from the final snapshot.
func RenderHTML(pg Page) ([]byte, error) {
	if len(pg.Stats) == 0 && pg.Final == nil {
		return nil, ErrNoData
	}

	page := components.NewPage()
	page.PageTitle = "FEBID run " + pg.RunID
	if len(pg.Stats) > 0 {
		page.AddCharts(growthChart(pg.RunID, pg.Stats), precursorChart(pg.Stats))
	}
	if pg.Final != nil && pg.Final.Nx > 0 && pg.Final.Ny > 0 {
		page.AddCharts(heightChart(pg.Final), profileChart(pg.Final))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML renders the report page to path.
func WriteHTML(pg Page, path string) error {
	data, err := RenderHTML(pg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func timeAxis(stats []process.Stats) []string {
	xs := make([]string, len(stats))
	for i, s := range stats {
		xs[i] = strconv.FormatFloat(s.Time, 'g', 4, 64)
	}
	return xs
}

func lineData(stats []process.Stats, f func(process.Stats) float64) []opts.LineData {
	out := make([]opts.LineData, len(stats))
	for i, s := range stats {
		out[i] = opts.LineData{Value: f(s)}
	}
	return out
}

func growthChart(runID string, stats []process.Stats) *charts.Line {
	line := charts.NewLine()
	last := stats[len(stats)-1]
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Deposit Growth", Subtitle: fmt.Sprintf("run=%s steps=%d volume=%.4gnm³", runID, last.Step, last.Volume)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Volume (nm³)"}),
	)
	line.SetXAxis(timeAxis(stats)).
		AddSeries("volume", lineData(stats, func(s process.Stats) float64 { return s.Volume })).
		AddSeries("growth rate", lineData(stats, func(s process.Stats) float64 { return s.GrowthRate })).
		AddSeries("z_top", lineData(stats, func(s process.Stats) float64 { return float64(s.ZTop) }))
	return line
}

func precursorChart(stats []process.Stats) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Precursor Coverage"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "n (1/nm²)"}),
	)
	line.SetXAxis(timeAxis(stats)).
		AddSeries("mean", lineData(stats, func(s process.Stats) float64 { return s.MeanPrecursor })).
		AddSeries("min", lineData(stats, func(s process.Stats) float64 { return s.MinPrecursor }))
	return line
}

func heightChart(snap *process.Snapshot) *charts.HeatMap {
	heights := snap.Heights()
	xs := make([]string, snap.Nx)
	for x := range xs {
		xs[x] = strconv.Itoa(x)
	}
	ys := make([]string, snap.Ny)
	for y := range ys {
		ys[y] = strconv.Itoa(y)
	}
	data := make([]opts.HeatMapData, 0, len(heights))
	for i, h := range heights {
		data = append(data, opts.HeatMapData{Value: [3]interface{}{i % snap.Nx, i / snap.Nx, h * snap.CellSize}})
	}
	hi := floats.Max(heights) * snap.CellSize

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "720px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Deposit Height (nm)", Subtitle: fmt.Sprintf("step=%d t=%.4gs beam=(%.1f, %.1f)", snap.Step, snap.Time, snap.BeamX, snap.BeamY)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "x (cells)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "y (cells)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(xs).AddSeries("height", data)
	return hm
}

func profileChart(snap *process.Snapshot) *charts.Bar {
	heights := snap.Heights()
	row := clampInt(int(snap.BeamY+0.5), 0, snap.Ny-1)
	xs := make([]string, snap.Nx)
	data := make([]opts.BarData, snap.Nx)
	for x := 0; x < snap.Nx; x++ {
		xs[x] = strconv.FormatFloat(float64(x)*snap.CellSize, 'g', 4, 64)
		data[x] = opts.BarData{Value: heights[row*snap.Nx+x] * snap.CellSize}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Profile through y=%d", row)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (nm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Height (nm)"}),
	)
	bar.SetXAxis(xs).AddSeries("height", data)
	return bar
}
