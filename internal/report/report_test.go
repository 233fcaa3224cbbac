package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/febid/internal/febid/process"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func testStats() []process.Stats {
	var out []process.Stats
	for i := 1; i <= 5; i++ {
		out = append(out, process.Stats{
			Step:          i * 10,
			Time:          float64(i) * 1e-4,
			FilledCells:   i,
			Volume:        float64(i) * 125,
			GrowthRate:    1.25e6,
			MinPrecursor:  2.7 - 0.2*float64(i),
			MeanPrecursor: 2.7 - 0.05*float64(i),
			StdPrecursor:  0.01 * float64(i),
			ActiveCells:   64 + i,
			ZTop:          2 + i/2,
		})
	}
	return out
}

// testSnapshot builds a 4x3x6 snapshot with a two-cell pillar at (1,1).
func testSnapshot() *process.Snapshot {
	nx, ny, nz := 4, 3, 6
	s := &process.Snapshot{Step: 50, Time: 5e-4, Nx: nx, Ny: ny, Nz: nz, CellSize: 5, BeamX: 1, BeamY: 1}
	n := nx * ny * nz
	s.Deposit = make([]float64, n)
	s.Precursor = make([]float64, n)
	for i := 0; i < 2*nx*ny; i++ {
		s.Deposit[i] = 1
	}
	layer := nx * ny
	s.Deposit[2*layer+1*nx+1] = 1
	s.Deposit[3*layer+1*nx+1] = 0.5
	return s
}

func requirePNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", path)
}

func TestPlotStats(t *testing.T) {
	dir := t.TempDir()
	paths, err := PlotStats(testStats(), dir)
	require.NoError(t, err)
	require.Len(t, paths, len(statsPlots))
	for _, p := range paths {
		requirePNG(t, p)
	}
	assert.FileExists(t, filepath.Join(dir, "height.png"))
}

func TestPlotStatsEmpty(t *testing.T) {
	_, err := PlotStats(nil, t.TempDir())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestPlotHeightMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heights.png")
	require.NoError(t, PlotHeightMap(testSnapshot(), path))
	requirePNG(t, path)

	assert.ErrorIs(t, PlotHeightMap(nil, path), ErrNoData)
}

func TestPlotHeightMapFlatSurface(t *testing.T) {
	s := testSnapshot()
	layer := s.Nx * s.Ny
	s.Deposit[2*layer+1*s.Nx+1] = 0
	s.Deposit[3*layer+1*s.Nx+1] = 0

	path := filepath.Join(t.TempDir(), "flat.png")
	require.NoError(t, PlotHeightMap(s, path))
	requirePNG(t, path)
}

func TestPlotProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.png")
	require.NoError(t, PlotProfile(testSnapshot(), path))
	requirePNG(t, path)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Page{RunID: "run-1", Stats: testStats(), Final: testSnapshot()})
	require.NoError(t, err)

	body := string(html)
	assert.True(t, strings.Contains(body, "echarts"), "page should load echarts")
	assert.Contains(t, body, "FEBID run run-1")
	assert.Contains(t, body, "Deposit Growth")
	assert.Contains(t, body, "Deposit Height (nm)")
	assert.Contains(t, body, "Profile through y=1")
}

func TestRenderHTMLPartial(t *testing.T) {
	html, err := RenderHTML(Page{RunID: "r", Stats: testStats()})
	require.NoError(t, err)
	assert.NotContains(t, string(html), "Deposit Height (nm)")

	_, err = RenderHTML(Page{RunID: "r"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteHTML(Page{RunID: "r", Final: testSnapshot()}, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<html")
}

func TestHSLPalette(t *testing.T) {
	assert.Nil(t, generateColors(0))
	cols := generateColors(3)
	require.Len(t, cols, 3)
	assert.NotEqual(t, cols[0], cols[1])

	r, g, b := hslToRGB(0, 0, 0.5)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}
