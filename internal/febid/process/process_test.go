package process

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/febid/internal/config"
	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/beam"
	"github.com/banshee-data/febid/internal/febid/diffusion"
	"github.com/banshee-data/febid/internal/monitoring"
	"github.com/banshee-data/febid/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// testConfig is a small, fast-growing setup in unit cells.
func testConfig() Config {
	cfg := DefaultConfig().
		WithGrid(9, 9, 24, 2).
		WithBeam(4, 4, 2, 100).
		WithTimeStep(0.01).
		WithTimeLimit(0.5)
	cfg.CellSize = 1
	cfg.D = 1
	cfg.N0 = 1
	cfg.F = 10
	cfg.Tau = 0
	cfg.Sigma = 1
	cfg.Yield = 1
	cfg.Workers = 2
	cfg.SnapshotEvery = 10
	cfg.StatsEvery = 5
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative diffusion", func(c *Config) { c.D = -1 }},
		{"zero cell size", func(c *Config) { c.CellSize = 0 }},
		{"dt above stability limit", func(c *Config) { c.DT = 1 }},
		{"z_max above grid", func(c *Config) { c.ZMax = c.Nz }},
		{"z_max inside substrate", func(c *Config) { c.ZMax = 1 }},
		{"no termination", func(c *Config) { c.TimeLimit = 0 }},
		{"negative current", func(c *Config) { c.Beam.Current = -5 }},
		{"kernel dims", func(c *Config) { c.Kernel.Dims = 0 }},
		{"bad dwell", func(c *Config) { c.Pattern.Points = []beam.Dwell{{X: 1, Y: 1}} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, febid.ErrConfiguration)

			_, err = New(cfg, nil)
			assert.ErrorIs(t, err, febid.ErrConfiguration)
		})
	}

	require.NoError(t, testConfig().Validate())
}

func TestConfigFromSimMatchesDefaults(t *testing.T) {
	cfg, err := ConfigFromSim(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults file and getter defaults differ (-getters +file):\n%s", diff)
	}
}

func TestConfigFromSimPattern(t *testing.T) {
	sim, err := config.ParseSimConfig([]byte(`{
		"laplacian_strategy": "rolling",
		"projection": "surface",
		"pattern": [{"x": 3, "y": 4, "dwell_time": 0.001}, {"x": 5, "y": 4, "dwell_time": 0.002}],
		"pattern_repeats": 3
	}`))
	require.NoError(t, err)

	cfg, err := ConfigFromSim(sim)
	require.NoError(t, err)
	assert.Equal(t, diffusion.Rolling, cfg.Strategy)
	assert.Equal(t, beam.ProjectSurface, cfg.Projection)
	want := beam.Pattern{
		Points:  []beam.Dwell{{X: 3, Y: 4, Duration: 0.001}, {X: 5, Y: 4, Duration: 0.002}},
		Repeats: 3,
	}
	if diff := cmp.Diff(want, cfg.Pattern); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestTimeStep(t *testing.T) {
	cfg := testConfig()
	cfg.D = 1
	cfg.Tau = 0
	cfg.Sigma = 0

	dt, err := SuggestTimeStep(cfg, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.9/6, dt, 1e-15, "diffusion bound")

	cfg.Tau = 0.01
	dt, err = SuggestTimeStep(cfg, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.009, dt, 1e-15, "desorption bound")

	cfg.Sigma = 2
	dt, err = SuggestTimeStep(cfg, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0.9/2000, dt, 1e-15, "dissociation bound")

	cfg.D, cfg.Tau, cfg.Sigma = 0, 0, 0
	_, err = SuggestTimeStep(cfg, 1000)
	assert.ErrorIs(t, err, febid.ErrConfiguration)
}

func TestNewDerivesTimeStep(t *testing.T) {
	cfg := testConfig().WithTimeStep(0)
	p, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Greater(t, p.DT(), 0.0)
	assert.LessOrEqual(t, p.DT(), 0.9/6+1e-15)
}

func TestNewFillsBaselineDensity(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	g := p.Grid()
	for _, idx := range g.Active {
		require.Equal(t, 1.0, g.Precursor[idx])
	}
	assert.Equal(t, 2, g.ZTop)
}

func TestStepConservesMassWithoutBeam(t *testing.T) {
	for _, s := range []diffusion.Strategy{diffusion.Stencil, diffusion.Rolling} {
		t.Run(s.String(), func(t *testing.T) {
			cfg := testConfig().WithBeam(4, 4, 2, 0).WithStrategy(s)
			cfg.F = 0

			base, err := New(cfg, nil)
			require.NoError(t, err)
			r := rand.New(rand.NewSource(21))
			density := make([]float64, base.Grid().Len())
			for _, idx := range base.Grid().Active {
				density[idx] = 0.5 + r.Float64()
			}

			p, err := New(cfg, &InitialState{Density: density})
			require.NoError(t, err)
			before := p.Grid().ActiveSum(p.Grid().Precursor)
			for i := 0; i < 30; i++ {
				require.NoError(t, p.Step())
			}
			after := p.Grid().ActiveSum(p.Grid().Precursor)
			assert.InDelta(t, before, after, 1e-9*before)
			assert.Zero(t, p.Finalize().Yield)
		})
	}
}

func TestRunGrowsDeposit(t *testing.T) {
	cfg := testConfig()
	p, err := New(cfg, nil)
	require.NoError(t, err)
	pub := NewPublisher(16)
	p.SetPublisher(pub)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	pub.Close()

	assert.Equal(t, StopTimeLimit, res.Reason)
	assert.Equal(t, 50, res.Steps)
	assert.InDelta(t, 0.5, res.Time, 1e-9)
	assert.Greater(t, res.Yield, 0.0)
	assert.GreaterOrEqual(t, res.FilledCells, 1)
	assert.Greater(t, res.ZTop, cfg.SubstrateHeight)
	require.NotNil(t, res.Final)
	assert.NoError(t, p.Grid().Validate())
	testutil.AssertNonNegative(t, "precursor", res.Final.Precursor)
	testutil.AssertClose(t, "time", res.Final.Time, res.Time, 1e-12)

	var steps []int
	for s := range pub.Snapshots() {
		steps = append(steps, s.Step)
	}
	if diff := cmp.Diff([]int{10, 20, 30, 40, 50}, steps); diff != "" {
		t.Errorf("snapshot steps (-want +got):\n%s", diff)
	}
	nStats := 0
	lastVolume := 0.0
	for s := range pub.Stats() {
		nStats++
		assert.GreaterOrEqual(t, s.Volume, lastVolume, "deposited volume must not shrink")
		lastVolume = s.Volume
	}
	assert.Equal(t, 10, nStats)
	assert.Zero(t, pub.Dropped())
}

func TestRunStopsAtHeightLimit(t *testing.T) {
	cfg := testConfig().WithTimeLimit(5)
	cfg.ZMax = 3
	p, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, febid.ErrInvalidGeometry), "got %v", err)
	var geo *febid.GeometryError
	require.ErrorAs(t, err, &geo)
	assert.Equal(t, 3, geo.Coord.Z)
	assert.Equal(t, StopHeightLimit, res.Reason)
	assert.Less(t, res.Time, 5.0)
}

func TestRunCancelled(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, res.Reason)
	assert.Zero(t, res.Steps)
}

func TestRunFollowsPattern(t *testing.T) {
	cfg := testConfig().WithTimeLimit(0)
	cfg.Pattern = beam.Pattern{
		Points:  []beam.Dwell{{X: 2, Y: 4, Duration: 0.05}, {X: 6, Y: 4, Duration: 0.05}},
		Repeats: 2,
	}
	p, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Area().Centre.X)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopPatternComplete, res.Reason)
	assert.GreaterOrEqual(t, res.Time, 0.2-1e-9)
	assert.Equal(t, 6.0, res.Final.BeamX)
}

func TestEquilibrateReachesSteadyState(t *testing.T) {
	cfg := testConfig().WithBeam(4, 4, 2, 0).WithTimeStep(0)
	cfg.F = 10
	cfg.N0 = 1
	cfg.Tau = 0.5

	base, err := New(cfg, nil)
	require.NoError(t, err)
	zero := make([]float64, base.Grid().Len())

	p, err := New(cfg, &InitialState{Density: zero})
	require.NoError(t, err)
	_, err = p.Equilibrate(1, 1e-12)
	assert.ErrorIs(t, err, ErrNotConverged)

	iters, err := p.Equilibrate(10000, 1e-12)
	require.NoError(t, err)
	assert.Greater(t, iters, 1)

	// F·(1 - n/n0) = n/τ  =>  n = F / (F/n0 + 1/τ)
	want := cfg.F / (cfg.F/cfg.N0 + 1/cfg.Tau)
	for _, idx := range p.Grid().Active {
		require.InDelta(t, want, p.Grid().Precursor[idx], 1e-8)
	}
	assert.Zero(t, p.Time(), "equilibration must not advance time")
}

func TestInitialStateFromSnapshot(t *testing.T) {
	cfg := testConfig().WithTimeLimit(0.2)
	p, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	snap := p.Snapshot()

	resumed, err := New(cfg, snap.InitialState())
	require.NoError(t, err)
	g := resumed.Grid()
	if diff := cmp.Diff(snap.Deposit, g.Deposit); diff != "" {
		t.Errorf("deposit mismatch (-snapshot +resumed):\n%s", diff)
	}
	if diff := cmp.Diff(snap.SemiSurface, g.SemiSurface); diff != "" {
		t.Errorf("semi-surface mismatch (-snapshot +resumed):\n%s", diff)
	}
	assert.Equal(t, snap.ZTop, g.ZTop)

	_, err = New(cfg, &InitialState{Deposit: make([]float64, 3)})
	assert.ErrorIs(t, err, febid.ErrConfiguration)
}

func TestStatsSummarisesActiveLayer(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	s := p.Stats()
	assert.Equal(t, 81, s.ActiveCells)
	assert.Equal(t, 1.0, s.MeanPrecursor)
	assert.Equal(t, 1.0, s.MinPrecursor)
	assert.InDelta(t, 0, s.StdPrecursor, 1e-12)
	assert.False(t, math.IsNaN(s.GrowthRate))
}
