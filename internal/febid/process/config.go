package process

import (
	"math"

	"github.com/banshee-data/febid/internal/config"
	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/beam"
	"github.com/banshee-data/febid/internal/febid/diffusion"
	"github.com/banshee-data/febid/internal/febid/rk4"
)

// dtSafety scales the tightest stability time when dt is derived.
const dtSafety = 0.9

// Config is the validated engine configuration. Lengths are in nm, times
// in s, beam geometry in cells.
type Config struct {
	Nx, Ny, Nz      int
	CellSize        float64
	SubstrateHeight int
	ZMax            int // 0 selects Nz-2

	D     float64 // surface diffusion coefficient, nm²/s
	N0    float64 // maximum coverage, 1/nm²
	F     float64 // adsorption flux, 1/(nm²·s)
	Tau   float64 // residence time, s
	Sigma float64 // dissociation cross-section, nm²

	MolecularVolume   float64 // nm³
	DepositionScaling float64 // multiplier on the derived yield; <= 0 means 1
	Yield             float64 // deposit fraction per electron per molecule; 0 derives it

	Beam       beam.Profile
	Pattern    beam.Pattern
	Projection beam.Policy

	DT        float64 // 0 derives from SuggestTimeStep
	TimeLimit float64
	MaxSteps  int

	Kernel   diffusion.Kernel
	Strategy diffusion.Strategy
	Workers  int

	SnapshotEvery int // 0 disables periodic snapshots
	StatsEvery    int // 0 disables periodic statistics
}

// DefaultConfig returns the engine configuration built from the SimConfig
// defaults.
func DefaultConfig() Config {
	cfg, err := ConfigFromSim(config.EmptySimConfig())
	if err != nil {
		panic("process: default configuration invalid: " + err.Error())
	}
	return cfg
}

// WithGrid sets the grid dimensions and substrate height.
func (c Config) WithGrid(nx, ny, nz, substrateHeight int) Config {
	c.Nx, c.Ny, c.Nz, c.SubstrateHeight = nx, ny, nz, substrateHeight
	return c
}

// WithBeam places the beam and sets its radius and current.
func (c Config) WithBeam(x, y, radius, current float64) Config {
	c.Beam = beam.Profile{Centre: febid.Point{X: x, Y: y}, Radius: radius, Current: current, Sigma: c.Beam.Sigma}
	return c
}

// WithTimeStep fixes dt; zero derives it.
func (c Config) WithTimeStep(dt float64) Config {
	c.DT = dt
	return c
}

// WithTimeLimit sets the simulated time at which Run stops.
func (c Config) WithTimeLimit(t float64) Config {
	c.TimeLimit = t
	return c
}

// WithStrategy selects the Laplacian evaluation form.
func (c Config) WithStrategy(s diffusion.Strategy) Config {
	c.Strategy = s
	return c
}

// Params returns the precursor equation constants.
func (c Config) Params() rk4.Params {
	return rk4.Params{D: c.D, CellSize: c.CellSize, F: c.F, N0: c.N0, Tau: c.Tau, Sigma: c.Sigma}
}

// EffectiveYield returns Yield, or σ·V·scaling/dx when Yield is zero.
func (c Config) EffectiveYield() float64 {
	if c.Yield > 0 {
		return c.Yield
	}
	scaling := c.DepositionScaling
	if scaling <= 0 {
		scaling = 1
	}
	return c.Sigma * c.MolecularVolume * scaling / c.CellSize
}

// Validate checks the configuration before the first step.
func (c Config) Validate() error {
	if c.Nx < 1 || c.Ny < 1 || c.Nz < 1 {
		return febid.NewConfigurationError("dimensions", "must be positive, got %dx%dx%d", c.Nx, c.Ny, c.Nz)
	}
	if c.CellSize <= 0 {
		return febid.NewConfigurationError("cell_size", "must be positive, got %g", c.CellSize)
	}
	if c.SubstrateHeight < 1 || c.SubstrateHeight+2 > c.Nz {
		return febid.NewConfigurationError("substrate_height", "%d does not fit a grid of height %d", c.SubstrateHeight, c.Nz)
	}
	if c.ZMax != 0 && (c.ZMax < c.SubstrateHeight || c.ZMax > c.Nz-2) {
		return febid.NewConfigurationError("z_max", "%d outside [%d, %d]", c.ZMax, c.SubstrateHeight, c.Nz-2)
	}

	nonNegative := []struct {
		name string
		v    float64
	}{
		{"diffusion_coefficient", c.D}, {"n0", c.N0}, {"flux_f", c.F},
		{"residence_time", c.Tau}, {"sigma", c.Sigma},
		{"molecular_volume", c.MolecularVolume}, {"deposition_yield", c.Yield},
		{"beam_radius", c.Beam.Radius}, {"beam_current", c.Beam.Current}, {"beam_sigma", c.Beam.Sigma},
		{"dt", c.DT}, {"time_limit", c.TimeLimit},
	}
	for _, f := range nonNegative {
		if f.v < 0 || math.IsNaN(f.v) {
			return febid.NewConfigurationError(f.name, "must be non-negative, got %g", f.v)
		}
	}
	if c.MaxSteps < 0 || c.SnapshotEvery < 0 || c.StatsEvery < 0 {
		return febid.NewConfigurationError("intervals", "max_steps, snapshot_every and stats_every must be non-negative")
	}
	if err := c.Kernel.Validate(); err != nil {
		return err
	}
	if err := c.Pattern.Validate(); err != nil {
		return err
	}
	if c.TimeLimit == 0 && c.MaxSteps == 0 && len(c.Pattern.Points) == 0 {
		return febid.NewConfigurationError("time_limit", "a time limit, step limit or scan pattern is required")
	}
	if c.DT > 0 {
		if limit := rk4.StabilityLimit(c.CellSize, c.D, c.Kernel.Dims); c.DT > limit {
			return febid.NewConfigurationError("dt", "%g exceeds the diffusion stability limit %g", c.DT, limit)
		}
	}
	return nil
}

// SuggestTimeStep returns dtSafety times the shortest of the diffusion,
// desorption and dissociation stability times. peakFlux is the highest
// electron flux density on the surface.
func SuggestTimeStep(c Config, peakFlux float64) (float64, error) {
	limit := rk4.StabilityLimit(c.CellSize, c.D, c.Kernel.Dims)
	if c.Tau > 0 {
		limit = math.Min(limit, c.Tau)
	}
	if c.Sigma > 0 && peakFlux > 0 {
		limit = math.Min(limit, 1/(c.Sigma*peakFlux))
	}
	if math.IsInf(limit, 1) {
		return 0, febid.NewConfigurationError("dt", "no process bounds the time step; set dt explicitly")
	}
	return dtSafety * limit, nil
}

// ConfigFromSim maps a loaded SimConfig onto the engine configuration.
func ConfigFromSim(s *config.SimConfig) (Config, error) {
	strategy, err := diffusion.ParseStrategy(s.GetLaplacianStrategy())
	if err != nil {
		return Config{}, err
	}
	projection, err := beam.ParsePolicy(s.GetProjection())
	if err != nil {
		return Config{}, err
	}

	pattern := beam.Pattern{Repeats: s.GetPatternRepeats()}
	for _, pt := range s.Pattern {
		pattern.Points = append(pattern.Points, beam.Dwell{X: pt.X, Y: pt.Y, Duration: pt.DwellTime})
	}

	cfg := Config{
		Nx:                s.GetNx(),
		Ny:                s.GetNy(),
		Nz:                s.GetNz(),
		CellSize:          s.GetCellSize(),
		SubstrateHeight:   s.GetSubstrateHeight(),
		ZMax:              s.GetZMax(),
		D:                 s.GetDiffusionCoefficient(),
		N0:                s.GetN0(),
		F:                 s.GetFluxF(),
		Tau:               s.GetResidenceTime(),
		Sigma:             s.GetSigma(),
		MolecularVolume:   s.GetMolecularVolume(),
		DepositionScaling: s.GetDepositionScaling(),
		Yield:             s.GetDepositionYield(),
		Beam: beam.Profile{
			Centre:  febid.Point{X: s.GetBeamX(), Y: s.GetBeamY()},
			Radius:  s.GetBeamRadius(),
			Current: s.GetBeamCurrent(),
			Sigma:   s.GetBeamSigma(),
		},
		Pattern:       pattern,
		Projection:    projection,
		DT:            s.GetDT(),
		TimeLimit:     s.GetTimeLimit(),
		MaxSteps:      s.GetMaxSteps(),
		Kernel:        diffusion.Kernel{Dims: s.GetKernelDims(), Weight: 1},
		Strategy:      strategy,
		Workers:       s.GetWorkers(),
		SnapshotEvery: s.GetSnapshotEvery(),
		StatsEvery:    s.GetStatsEvery(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
