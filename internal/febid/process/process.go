// Package process drives a FEBID simulation: it owns the grid, advances it
// one time step at a time and reports snapshots and statistics.
//
// A step refreshes scratch and ghost cells, evaluates the beam over the
// irradiated area, integrates the precursor density with RK4 into a spare
// buffer, computes deposition from the pre-step density, swaps buffers,
// promotes filled cells and redefines the irradiated area if the surface
// moved.
package process

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/beam"
	"github.com/banshee-data/febid/internal/febid/diffusion"
	"github.com/banshee-data/febid/internal/febid/grid"
	"github.com/banshee-data/febid/internal/febid/growth"
	"github.com/banshee-data/febid/internal/febid/rk4"
	"github.com/banshee-data/febid/internal/monitoring"
)

var logf = monitoring.Tagged("process")

// ErrPatternComplete is returned by Step once the scan pattern has run out.
var ErrPatternComplete = errors.New("process: scan pattern complete")

// ErrNotConverged is returned by Equilibrate when the iteration limit is hit.
var ErrNotConverged = errors.New("process: precursor density did not converge")

// StopReason records why Run returned.
type StopReason string

const (
	StopTimeLimit       StopReason = "time_limit"
	StopMaxSteps        StopReason = "max_steps"
	StopPatternComplete StopReason = "pattern_complete"
	StopHeightLimit     StopReason = "height_limit"
	StopCancelled       StopReason = "cancelled"
	StopError           StopReason = "error"
)

// Process is the simulation state. It is not safe for concurrent use; the
// stencil pass inside a step is parallel, the step loop is not.
type Process struct {
	cfg    Config
	g      *grid.Grid
	op     *diffusion.Operator
	integ  rk4.Integrator
	params rk4.Params
	yield  float64
	dt     float64
	next   []float64

	profile    beam.Profile
	area       beam.Area
	dwellIndex int

	time float64
	step int

	lastStats Stats
	pub       *Publisher
}

// New validates cfg, builds the grid and applies the initial state.
func New(cfg Config, init *InitialState) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := grid.New(cfg.Nx, cfg.Ny, cfg.Nz, cfg.CellSize, cfg.SubstrateHeight)
	if err != nil {
		return nil, err
	}

	if init != nil && init.Deposit != nil {
		if len(init.Deposit) != g.Len() {
			return nil, febid.NewConfigurationError("initial_state", "deposit has %d cells, grid has %d", len(init.Deposit), g.Len())
		}
		copy(g.Deposit, init.Deposit)
		if err := g.FlushStructure(); err != nil {
			return nil, fmt.Errorf("initial deposit: %w", err)
		}
	}
	if cfg.ZMax != 0 {
		if err := g.SetZMax(cfg.ZMax); err != nil {
			return nil, err
		}
	}

	if init != nil && init.Density != nil {
		if len(init.Density) != g.Len() {
			return nil, febid.NewConfigurationError("initial_state", "density has %d cells, grid has %d", len(init.Density), g.Len())
		}
		for i, v := range init.Density {
			if v < 0 || math.IsNaN(v) {
				return nil, febid.NewConfigurationError("initial_state", "density at %v is %g", g.Coord(i), v)
			}
		}
		copy(g.Precursor, init.Density)
	} else {
		for _, idx := range g.Active {
			g.Precursor[idx] = cfg.N0
		}
	}
	g.RefreshGhosts(g.Precursor, cfg.Kernel.Dims)

	p := &Process{
		cfg:        cfg,
		g:          g,
		op:         diffusion.NewOperator(cfg.Kernel, cfg.Strategy, cfg.Workers),
		params:     cfg.Params(),
		yield:      cfg.EffectiveYield(),
		next:       make([]float64, g.Len()),
		profile:    cfg.Beam,
		dwellIndex: -1,
	}
	if d, idx, ok := cfg.Pattern.At(0); ok {
		p.profile.Centre = febid.Point{X: d.X, Y: d.Y}
		p.dwellIndex = idx
	}
	if err := p.redefineArea(); err != nil {
		return nil, err
	}

	p.dt = cfg.DT
	if p.dt == 0 {
		fm := beam.PEFlux(p.area, p.profile, g.CellSize)
		peak := 0.0
		if fm.Len() > 0 {
			peak = floats.Max(fm.Flux)
		}
		if p.dt, err = SuggestTimeStep(cfg, peak); err != nil {
			return nil, err
		}
	}

	p.lastStats = p.Stats()
	logf("grid %dx%dx%d dx=%gnm dt=%.3gs yield=%.3g strategy=%v projection=%v active=%d",
		g.Nx, g.Ny, g.Nz, g.CellSize, p.dt, p.yield, cfg.Strategy, cfg.Projection, len(g.Active))
	return p, nil
}

// SetPublisher attaches a snapshot consumer. Nil detaches.
func (p *Process) SetPublisher(pub *Publisher) { p.pub = pub }

// Grid exposes the simulation grid for read access.
func (p *Process) Grid() *grid.Grid { return p.g }

// Time returns the simulated time in s.
func (p *Process) Time() float64 { return p.time }

// StepCount returns the number of completed steps.
func (p *Process) StepCount() int { return p.step }

// DT returns the time step in use.
func (p *Process) DT() float64 { return p.dt }

// Area returns the current irradiated area.
func (p *Process) Area() beam.Area { return p.area }

// Step advances the simulation by one time step.
func (p *Process) Step() error {
	if err := p.moveBeam(); err != nil {
		return err
	}
	g := p.g

	g.Refresh()
	g.RefreshGhosts(g.Precursor, p.cfg.Kernel.Dims)
	flux := growth.FluxMatrix(g, beam.PEFlux(p.area, p.profile, g.CellSize))

	if err := p.integ.Diffusion(p.next, g.Precursor, p.dt, flux, g, p.op, p.params); err != nil {
		return fmt.Errorf("precursor integration at step %d: %w", p.step, err)
	}
	inc := growth.Deposition(flux, g.Precursor, p.dt, p.yield, g)
	g.Precursor, p.next = p.next, g.Precursor
	p.time += p.dt
	p.step++

	promo, err := growth.UpdateSurface(g, inc)
	if err != nil {
		return fmt.Errorf("surface update at step %d: %w", p.step, err)
	}
	if promo.Filled() {
		monitoring.Debugf("[process] step %d: %d cell(s) filled, %d activated, z_top=%d",
			p.step, len(promo.Cells), len(promo.Activated), g.ZTop)
		g.RefreshGhosts(g.Precursor, p.cfg.Kernel.Dims)
		if err := p.redefineArea(); err != nil {
			return err
		}
	}

	if p.cfg.StatsEvery > 0 && p.step%p.cfg.StatsEvery == 0 {
		s := p.Stats()
		p.lastStats = s
		if p.pub != nil {
			p.pub.PublishStats(s)
		}
	}
	if p.pub != nil && p.cfg.SnapshotEvery > 0 && p.step%p.cfg.SnapshotEvery == 0 {
		p.pub.Publish(p.Snapshot())
	}
	return nil
}

// moveBeam follows the scan pattern, redefining the irradiated area when
// the dwell point changes.
func (p *Process) moveBeam() error {
	if len(p.cfg.Pattern.Points) == 0 {
		return nil
	}
	d, idx, ok := p.cfg.Pattern.At(p.time)
	if !ok {
		return ErrPatternComplete
	}
	if idx == p.dwellIndex {
		return nil
	}
	p.dwellIndex = idx
	p.profile.Centre = febid.Point{X: d.X, Y: d.Y}
	return p.redefineArea()
}

func (p *Process) redefineArea() error {
	area, err := beam.DefineIrradiatedArea(p.g, p.profile.Centre, p.profile.Radius, p.cfg.Projection)
	if err != nil {
		return err
	}
	p.area = area
	return nil
}

// Run steps until the time limit, step limit or scan pattern ends, the
// deposit reaches z_max, or ctx is cancelled. The returned Result describes
// the final state in every case; the error is non-nil for cancellation and
// for failures, including the height limit.
func (p *Process) Run(ctx context.Context) (Result, error) {
	logf("run started: time_limit=%gs max_steps=%d pattern=%d point(s)",
		p.cfg.TimeLimit, p.cfg.MaxSteps, len(p.cfg.Pattern.Points))
	for {
		if err := ctx.Err(); err != nil {
			return p.stop(StopCancelled), err
		}
		if reason, done := p.done(); done {
			return p.stop(reason), nil
		}
		if err := p.Step(); err != nil {
			switch {
			case errors.Is(err, ErrPatternComplete):
				return p.stop(StopPatternComplete), nil
			case errors.Is(err, febid.ErrInvalidGeometry):
				return p.stop(StopHeightLimit), err
			default:
				return p.stop(StopError), err
			}
		}
	}
}

func (p *Process) done() (StopReason, bool) {
	if p.cfg.MaxSteps > 0 && p.step >= p.cfg.MaxSteps {
		return StopMaxSteps, true
	}
	// Tolerate round-off in the accumulated time.
	if p.cfg.TimeLimit > 0 && p.time >= p.cfg.TimeLimit-1e-9*p.dt {
		return StopTimeLimit, true
	}
	return "", false
}

func (p *Process) stop(reason StopReason) Result {
	res := p.Finalize()
	res.Reason = reason
	logf("run stopped (%s) after %d steps, t=%.4gs, yield=%.4gnm³, z_top=%d, dropped=%d",
		reason, res.Steps, res.Time, res.Yield, res.ZTop, res.Dropped)
	return res
}

// Equilibrate iterates the precursor equation under the current beam
// without depositing or advancing time, until the relative change of the
// active density over one step drops below tol. It returns the number of
// iterations used.
func (p *Process) Equilibrate(maxIter int, tol float64) (int, error) {
	g := p.g
	g.Refresh()
	flux := growth.FluxMatrix(g, beam.PEFlux(p.area, p.profile, g.CellSize))

	prev := make([]float64, len(g.Active))
	cur := make([]float64, len(g.Active))
	residual := math.Inf(1)
	for i := 1; i <= maxIter; i++ {
		g.RefreshGhosts(g.Precursor, p.cfg.Kernel.Dims)
		if err := p.integ.Diffusion(p.next, g.Precursor, p.dt, flux, g, p.op, p.params); err != nil {
			return i, err
		}
		for k, idx := range g.Active {
			prev[k] = g.Precursor[idx]
			cur[k] = p.next[idx]
		}
		g.Precursor, p.next = p.next, g.Precursor

		norm := floats.Norm(cur, 2)
		if norm == 0 {
			residual = floats.Distance(cur, prev, 2)
		} else {
			residual = floats.Distance(cur, prev, 2) / norm
		}
		if residual < tol {
			g.RefreshGhosts(g.Precursor, p.cfg.Kernel.Dims)
			logf("equilibrated in %d iteration(s), residual %.3g", i, residual)
			return i, nil
		}
	}
	g.RefreshGhosts(g.Precursor, p.cfg.Kernel.Dims)
	return maxIter, fmt.Errorf("%w: residual %.3g after %d iterations", ErrNotConverged, residual, maxIter)
}

// Stats computes the current statistics.
func (p *Process) Stats() Stats {
	g := p.g
	values := make([]float64, len(g.Active))
	for k, idx := range g.Active {
		values[k] = g.Precursor[idx]
	}
	s := Stats{
		Step:        p.step,
		Time:        p.time,
		FilledCells: g.FilledCells(),
		Volume:      growth.ShowYield(g),
		ActiveCells: len(values),
		ZTop:        g.ZTop,
	}
	if len(values) > 0 {
		s.MeanPrecursor, s.StdPrecursor = stat.MeanStdDev(values, nil)
		s.MinPrecursor = floats.Min(values)
	}
	if dt := s.Time - p.lastStats.Time; dt > 0 {
		s.GrowthRate = (s.Volume - p.lastStats.Volume) / dt
	}
	if len(values) < 2 {
		s.StdPrecursor = 0
	}
	return s
}

// Snapshot deep-copies the current state.
func (p *Process) Snapshot() *Snapshot {
	g := p.g
	return &Snapshot{
		Step:        p.step,
		Time:        p.time,
		Nx:          g.Nx,
		Ny:          g.Ny,
		Nz:          g.Nz,
		CellSize:    g.CellSize,
		ZTop:        g.ZTop,
		Yield:       growth.ShowYield(g),
		BeamX:       p.profile.Centre.X,
		BeamY:       p.profile.Centre.Y,
		Precursor:   append([]float64(nil), g.Precursor...),
		Deposit:     append([]float64(nil), g.Deposit...),
		Surface:     append([]bool(nil), g.Surface...),
		SemiSurface: append([]bool(nil), g.SemiSurface...),
		Ghost:       append([]bool(nil), g.Ghost...),
	}
}

// Result is the summary returned when a run ends.
type Result struct {
	Steps       int
	Time        float64
	DT          float64
	Yield       float64 // nm³
	FilledCells int
	ZTop        int
	Reason      StopReason
	Dropped     uint64
	Stats       Stats
	Final       *Snapshot
}

// Finalize summarises the current state. The process may keep stepping
// afterwards.
func (p *Process) Finalize() Result {
	res := Result{
		Steps:       p.step,
		Time:        p.time,
		DT:          p.dt,
		Yield:       growth.ShowYield(p.g),
		FilledCells: p.g.FilledCells(),
		ZTop:        p.g.ZTop,
		Stats:       p.Stats(),
		Final:       p.Snapshot(),
	}
	if p.pub != nil {
		res.Dropped = p.pub.Dropped()
	}
	return res
}
