package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
// This is the single source of truth for all default simulation values.
const DefaultConfigPath = "config/febid.defaults.json"

// maxFileSize caps config files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// SimConfig is the on-disk simulation configuration. Every field is optional;
// the Get* methods supply defaults for fields left out of the JSON, so a
// partial file only needs to name what it overrides. Lengths are in nm,
// times in s, the beam position and radius in cells.
type SimConfig struct {
	// Grid
	Nx              *int     `json:"nx,omitempty"`
	Ny              *int     `json:"ny,omitempty"`
	Nz              *int     `json:"nz,omitempty"`
	CellSize        *float64 `json:"cell_size,omitempty"`
	SubstrateHeight *int     `json:"substrate_height,omitempty"`
	ZMax            *int     `json:"z_max,omitempty"` // 0 selects nz-2

	// Precursor
	DiffusionCoefficient *float64 `json:"diffusion_coefficient,omitempty"` // nm²/s
	N0                   *float64 `json:"n0,omitempty"`                    // 1/nm²
	FluxF                *float64 `json:"flux_f,omitempty"`                // 1/(nm²·s)
	ResidenceTime        *float64 `json:"residence_time,omitempty"`        // s, 0 disables desorption
	Sigma                *float64 `json:"sigma,omitempty"`                 // nm²
	MolecularVolume      *float64 `json:"molecular_volume,omitempty"`      // nm³
	DepositionScaling    *float64 `json:"deposition_scaling,omitempty"`
	DepositionYield      *float64 `json:"deposition_yield,omitempty"` // 0 derives from sigma, volume and scaling

	// Beam
	BeamX          *float64       `json:"beam_x,omitempty"`
	BeamY          *float64       `json:"beam_y,omitempty"`
	BeamRadius     *float64       `json:"beam_radius,omitempty"`
	BeamCurrent    *float64       `json:"beam_current,omitempty"` // electrons/s
	BeamSigma      *float64       `json:"beam_sigma,omitempty"`   // cells, 0 selects radius/3
	Pattern        []PatternPoint `json:"pattern,omitempty"`
	PatternRepeats *int           `json:"pattern_repeats,omitempty"`

	// Time
	DT        *float64 `json:"dt,omitempty"` // 0 derives from the stability limits
	TimeLimit *float64 `json:"time_limit,omitempty"`
	MaxSteps  *int     `json:"max_steps,omitempty"`

	// Engine
	LaplacianStrategy *string `json:"laplacian_strategy,omitempty"`
	Projection        *string `json:"projection,omitempty"`
	KernelDims        *int    `json:"kernel_dims,omitempty"`
	Workers           *int    `json:"workers,omitempty"`
	SnapshotEvery     *int    `json:"snapshot_every,omitempty"`
	StatsEvery        *int    `json:"stats_every,omitempty"`
	Debug             *bool   `json:"debug,omitempty"`
}

// PatternPoint is one dwell position of a scan pattern.
type PatternPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	DwellTime float64 `json:"dwell_time"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptySimConfig returns a SimConfig with all fields set to nil.
// Use LoadSimConfig to load actual values from the defaults file.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSimConfig(data)
}

// ParseSimConfig decodes and validates a JSON document. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func ParseSimConfig(data []byte) (*SimConfig, error) {
	cfg := EmptySimConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/febid/process/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field physics checks (time
// step stability, z_max against the grid) happen when the engine config is
// built.
func (c *SimConfig) Validate() error {
	positiveInts := []struct {
		name string
		v    *int
	}{
		{"nx", c.Nx}, {"ny", c.Ny}, {"nz", c.Nz},
		{"substrate_height", c.SubstrateHeight},
		{"snapshot_every", c.SnapshotEvery}, {"stats_every", c.StatsEvery},
	}
	for _, f := range positiveInts {
		if f.v != nil && *f.v < 1 {
			return fmt.Errorf("%s must be positive, got %d", f.name, *f.v)
		}
	}

	nonNegativeInts := []struct {
		name string
		v    *int
	}{
		{"z_max", c.ZMax}, {"pattern_repeats", c.PatternRepeats},
		{"max_steps", c.MaxSteps}, {"workers", c.Workers},
	}
	for _, f := range nonNegativeInts {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, *f.v)
		}
	}

	if c.CellSize != nil && *c.CellSize <= 0 {
		return fmt.Errorf("cell_size must be positive, got %g", *c.CellSize)
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"diffusion_coefficient", c.DiffusionCoefficient},
		{"n0", c.N0}, {"flux_f", c.FluxF}, {"residence_time", c.ResidenceTime},
		{"sigma", c.Sigma}, {"molecular_volume", c.MolecularVolume},
		{"deposition_scaling", c.DepositionScaling}, {"deposition_yield", c.DepositionYield},
		{"beam_radius", c.BeamRadius}, {"beam_current", c.BeamCurrent}, {"beam_sigma", c.BeamSigma},
		{"dt", c.DT}, {"time_limit", c.TimeLimit},
	}
	for _, f := range nonNegative {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", f.name, *f.v)
		}
	}

	if c.KernelDims != nil && (*c.KernelDims < 1 || *c.KernelDims > 3) {
		return fmt.Errorf("kernel_dims must be 1, 2 or 3, got %d", *c.KernelDims)
	}
	if c.LaplacianStrategy != nil {
		switch *c.LaplacianStrategy {
		case "stencil", "rolling":
		default:
			return fmt.Errorf("laplacian_strategy must be \"stencil\" or \"rolling\", got %q", *c.LaplacianStrategy)
		}
	}
	if c.Projection != nil {
		switch *c.Projection {
		case "vertical", "surface":
		default:
			return fmt.Errorf("projection must be \"vertical\" or \"surface\", got %q", *c.Projection)
		}
	}
	for i, p := range c.Pattern {
		if p.DwellTime <= 0 {
			return fmt.Errorf("pattern[%d].dwell_time must be positive, got %g", i, p.DwellTime)
		}
	}
	return nil
}

// GetNx returns the nx value or the default.
func (c *SimConfig) GetNx() int {
	if c.Nx == nil {
		return 40
	}
	return *c.Nx
}

// GetNy returns the ny value or the default.
func (c *SimConfig) GetNy() int {
	if c.Ny == nil {
		return 40
	}
	return *c.Ny
}

// GetNz returns the nz value or the default.
func (c *SimConfig) GetNz() int {
	if c.Nz == nil {
		return 40
	}
	return *c.Nz
}

// GetCellSize returns the cell_size value or the default.
func (c *SimConfig) GetCellSize() float64 {
	if c.CellSize == nil {
		return 5.0
	}
	return *c.CellSize
}

// GetSubstrateHeight returns the substrate_height value or the default.
func (c *SimConfig) GetSubstrateHeight() int {
	if c.SubstrateHeight == nil {
		return 4
	}
	return *c.SubstrateHeight
}

// GetZMax returns the z_max value; 0 means derive from nz.
func (c *SimConfig) GetZMax() int {
	if c.ZMax == nil {
		return 0
	}
	return *c.ZMax
}

// GetDiffusionCoefficient returns the diffusion_coefficient value or the default.
func (c *SimConfig) GetDiffusionCoefficient() float64 {
	if c.DiffusionCoefficient == nil {
		return 1e5
	}
	return *c.DiffusionCoefficient
}

// GetN0 returns the n0 value or the default.
func (c *SimConfig) GetN0() float64 {
	if c.N0 == nil {
		return 2.7
	}
	return *c.N0
}

// GetFluxF returns the flux_f value or the default.
func (c *SimConfig) GetFluxF() float64 {
	if c.FluxF == nil {
		return 1700
	}
	return *c.FluxF
}

// GetResidenceTime returns the residence_time value or the default.
func (c *SimConfig) GetResidenceTime() float64 {
	if c.ResidenceTime == nil {
		return 500e-6
	}
	return *c.ResidenceTime
}

// GetSigma returns the sigma value or the default.
func (c *SimConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return 0.022
	}
	return *c.Sigma
}

// GetMolecularVolume returns the molecular_volume value or the default.
func (c *SimConfig) GetMolecularVolume() float64 {
	if c.MolecularVolume == nil {
		return 0.4
	}
	return *c.MolecularVolume
}

// GetDepositionScaling returns the deposition_scaling value or the default.
func (c *SimConfig) GetDepositionScaling() float64 {
	if c.DepositionScaling == nil {
		return 1.0
	}
	return *c.DepositionScaling
}

// GetDepositionYield returns the deposition_yield value; 0 means derive it.
func (c *SimConfig) GetDepositionYield() float64 {
	if c.DepositionYield == nil {
		return 0
	}
	return *c.DepositionYield
}

// GetBeamX returns the beam_x value, defaulting to the grid centre.
func (c *SimConfig) GetBeamX() float64 {
	if c.BeamX == nil {
		return float64(c.GetNx() / 2)
	}
	return *c.BeamX
}

// GetBeamY returns the beam_y value, defaulting to the grid centre.
func (c *SimConfig) GetBeamY() float64 {
	if c.BeamY == nil {
		return float64(c.GetNy() / 2)
	}
	return *c.BeamY
}

// GetBeamRadius returns the beam_radius value or the default.
func (c *SimConfig) GetBeamRadius() float64 {
	if c.BeamRadius == nil {
		return 3
	}
	return *c.BeamRadius
}

// GetBeamCurrent returns the beam_current value or the default.
func (c *SimConfig) GetBeamCurrent() float64 {
	if c.BeamCurrent == nil {
		return 1e8
	}
	return *c.BeamCurrent
}

// GetBeamSigma returns the beam_sigma value; 0 means radius/3.
func (c *SimConfig) GetBeamSigma() float64 {
	if c.BeamSigma == nil {
		return 0
	}
	return *c.BeamSigma
}

// GetPatternRepeats returns the pattern_repeats value or the default.
func (c *SimConfig) GetPatternRepeats() int {
	if c.PatternRepeats == nil {
		return 1
	}
	return *c.PatternRepeats
}

// GetDT returns the dt value; 0 means derive from the stability limits.
func (c *SimConfig) GetDT() float64 {
	if c.DT == nil {
		return 0
	}
	return *c.DT
}

// GetTimeLimit returns the time_limit value or the default.
func (c *SimConfig) GetTimeLimit() float64 {
	if c.TimeLimit == nil {
		return 0.01
	}
	return *c.TimeLimit
}

// GetMaxSteps returns the max_steps value; 0 means unbounded.
func (c *SimConfig) GetMaxSteps() int {
	if c.MaxSteps == nil {
		return 0
	}
	return *c.MaxSteps
}

// GetLaplacianStrategy returns the laplacian_strategy value or the default.
func (c *SimConfig) GetLaplacianStrategy() string {
	if c.LaplacianStrategy == nil {
		return "stencil"
	}
	return *c.LaplacianStrategy
}

// GetProjection returns the projection value or the default.
func (c *SimConfig) GetProjection() string {
	if c.Projection == nil {
		return "vertical"
	}
	return *c.Projection
}

// GetKernelDims returns the kernel_dims value or the default.
func (c *SimConfig) GetKernelDims() int {
	if c.KernelDims == nil {
		return 3
	}
	return *c.KernelDims
}

// GetWorkers returns the workers value; 0 means one per CPU.
func (c *SimConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSnapshotEvery returns the snapshot_every value or the default.
func (c *SimConfig) GetSnapshotEvery() int {
	if c.SnapshotEvery == nil {
		return 100
	}
	return *c.SnapshotEvery
}

// GetStatsEvery returns the stats_every value or the default.
func (c *SimConfig) GetStatsEvery() int {
	if c.StatsEvery == nil {
		return 10
	}
	return *c.StatsEvery
}

// GetDebug returns the debug value or the default.
func (c *SimConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
